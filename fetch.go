package potency

import (
	"context"
	"runtime/debug"

	"github.com/schell/potency/codec"
	"github.com/schell/potency/key"
)

// FetchOrCompute returns the value stored under k, or runs compute, stores
// the encoded result under k and returns it.
//
// On a miss the returned value is the stored bytes decoded again, so a first
// call and every later hit observe the same thing. A failed compute stores
// nothing; the next call computes again.
//
// With LockBackend the backend session is held from fetch through store.
// With LockPerKey concurrent callers for one key share a single flight that
// runs detached from any one caller's cancellation; a caller whose ctx ends
// first gets ctx.Err() while the flight completes for the rest. A panic in
// the flight reaches every caller as a *ComputeError wrapping *PanicError.
func FetchOrCompute[T any](ctx context.Context, s *Store, k key.Key, compute Task[T]) (T, error) {
	v, err := fetchOrCompute(ctx, s, k, compute)
	if err != nil {
		s.stats.failures.Add(1)
	}
	return v, err
}

// Do derives the key for params under s and memoizes compute there.
func Do[T any](ctx context.Context, s *Store, compute Task[T], params ...any) (T, error) {
	k, err := s.Key(params...)
	if err != nil {
		s.stats.failures.Add(1)
		var zero T
		return zero, err
	}
	return FetchOrCompute(ctx, s, k, compute)
}

func fetchOrCompute[T any](ctx context.Context, s *Store, k key.Key, compute Task[T]) (T, error) {
	var zero T
	if compute == nil {
		return zero, &BindError{Reason: "nil task"}
	}
	if s.disabled {
		v, err := compute(ctx)
		if err != nil {
			return zero, s.computeFailed(k, err)
		}
		s.stats.computes.Add(1)
		return v, nil
	}

	tc := codec.For[T](s.codec)
	produce := func(ctx context.Context) ([]byte, error) {
		v, err := compute(ctx)
		if err != nil {
			return nil, s.computeFailed(k, err)
		}
		s.stats.computes.Add(1)
		raw, err := tc.Encode(v)
		if err != nil {
			s.log.Warn("encode failed", Fields{"key": k.String(), "codec": s.codec.Name(), "err": err})
			return nil, &SerializeError{Key: k.String(), Codec: s.codec.Name(), Err: err}
		}
		return raw, nil
	}

	if s.locking == LockPerKey {
		return fetchShared(ctx, s, k, tc, produce)
	}

	sess, err := s.acquire(ctx, k)
	if err != nil {
		return zero, err
	}
	defer sess.Release()

	raw, ok, err := sess.Fetch(ctx, k)
	if err != nil {
		return zero, s.backendFailed("fetch", k, err)
	}
	if ok {
		s.hit(k)
		return decode(s, k, tc, raw)
	}

	s.miss(k)
	raw, err = produce(ctx)
	if err != nil {
		return zero, err
	}
	if err := sess.Store(ctx, k, raw); err != nil {
		return zero, s.backendFailed("store", k, err)
	}
	s.stored(k, len(raw))
	return decode(s, k, tc, raw)
}

func fetchShared[T any](ctx context.Context, s *Store, k key.Key, tc codec.Typed[T], produce func(context.Context) ([]byte, error)) (T, error) {
	var zero T
	led := false
	ch := s.flights.DoChan(k.ID(), func() (v any, err error) {
		led = true
		// DoChan re-panics on a fresh goroutine; keep panics inside the flight
		defer func() {
			if r := recover(); r != nil {
				v, err = nil, s.computeFailed(k, &PanicError{Value: r, Stack: debug.Stack()})
			}
		}()
		return s.flight(context.WithoutCancel(ctx), k, produce)
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case r := <-ch:
		if !led {
			s.stats.coalesced.Add(1)
			s.hooks.Coalesced(k.String())
		}
		if r.Err != nil {
			return zero, r.Err
		}
		return decode(s, k, tc, r.Val.([]byte))
	}
}

// flight is one fetch-or-produce for k with the session held only around
// backend calls.
func (s *Store) flight(ctx context.Context, k key.Key, produce func(context.Context) ([]byte, error)) ([]byte, error) {
	raw, ok, err := s.fetchOnce(ctx, k)
	if err != nil {
		return nil, err
	}
	if ok {
		s.hit(k)
		return raw, nil
	}

	s.miss(k)
	raw, err = produce(ctx)
	if err != nil {
		return nil, err
	}

	sess, err := s.acquire(ctx, k)
	if err != nil {
		return nil, err
	}
	defer sess.Release()
	if err := sess.Store(ctx, k, raw); err != nil {
		return nil, s.backendFailed("store", k, err)
	}
	s.stored(k, len(raw))
	return raw, nil
}

func (s *Store) fetchOnce(ctx context.Context, k key.Key) ([]byte, bool, error) {
	sess, err := s.acquire(ctx, k)
	if err != nil {
		return nil, false, err
	}
	defer sess.Release()
	raw, ok, err := sess.Fetch(ctx, k)
	if err != nil {
		return nil, false, s.backendFailed("fetch", k, err)
	}
	return raw, ok, nil
}

func decode[T any](s *Store, k key.Key, tc codec.Typed[T], raw []byte) (T, error) {
	v, err := tc.Decode(raw)
	if err != nil {
		var zero T
		ks := k.String()
		s.hooks.DecodeFailed(ks, err)
		s.log.Warn("decode failed", Fields{"key": ks, "codec": s.codec.Name(), "err": err})
		return zero, &DeserializeError{Key: ks, Codec: s.codec.Name(), Err: err}
	}
	return v, nil
}

func (s *Store) hit(k key.Key) {
	ks := k.String()
	s.stats.hits.Add(1)
	s.hooks.Hit(ks)
	s.log.Debug("cache hit", Fields{"key": ks})
}

func (s *Store) miss(k key.Key) {
	ks := k.String()
	s.stats.misses.Add(1)
	s.hooks.Miss(ks)
	s.log.Debug("cache miss", Fields{"key": ks})
}

func (s *Store) stored(k key.Key, size int) {
	ks := k.String()
	s.hooks.Stored(ks, size)
	s.log.Debug("entry stored", Fields{"key": ks, "bytes": size})
}

func (s *Store) computeFailed(k key.Key, err error) error {
	ks := k.String()
	s.hooks.ComputeFailed(ks, err)
	s.log.Warn("compute failed", Fields{"key": ks, "err": err})
	return &ComputeError{Key: ks, Err: err}
}
