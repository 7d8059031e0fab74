// Package tiered puts a bounded ristretto cache in front of a durable
// backend. The front may drop entries under cost pressure; the back stays
// authoritative, so a dropped entry costs one extra backend read.
//
// Sessions are the back's sessions: exclusivity is whatever the back
// provides.
package tiered

import (
	"context"
	"errors"

	rc "github.com/dgraph-io/ristretto"

	"github.com/schell/potency/backend"
	"github.com/schell/potency/codec"
	"github.com/schell/potency/key"
)

type Config struct {
	// Back is the durable backend. Required. Closed by Tiered.Close.
	Back backend.Backend

	NumCounters int64 // 0 => 1e5
	MaxCost     int64 // bytes; 0 => 64MiB
	BufferItems int64 // 0 => 64
	Metrics     bool
}

type Tiered struct {
	front *rc.Cache
	back  backend.Backend
}

var (
	_ backend.Backend       = (*Tiered)(nil)
	_ backend.CodecProvider = (*Tiered)(nil)
	_ backend.Identifier    = (*Tiered)(nil)
)

func New(cfg Config) (*Tiered, error) {
	if cfg.Back == nil {
		return nil, errors.New("tiered: back backend is required")
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: coalesce(cfg.NumCounters, 1e5),
		MaxCost:     coalesce(cfg.MaxCost, 64<<20),
		BufferItems: coalesce(cfg.BufferItems, 64),
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	return &Tiered{front: c, back: cfg.Back}, nil
}

func coalesce(v, def int64) int64 {
	if v <= 0 {
		return def
	}
	return v
}

// Codec is the back's codec, or JSON when it has no preference.
func (t *Tiered) Codec() codec.Codec {
	if cp, ok := t.back.(backend.CodecProvider); ok {
		return cp.Codec()
	}
	return codec.JSON{}
}

// Identity is the back's, so the front never tells apart keys the back
// stores as one entry.
func (t *Tiered) Identity(k key.Key) string { return backend.Identity(t.back, k) }

// Metrics exposes ristretto's counters; nil unless Config.Metrics was set.
func (t *Tiered) Metrics() *rc.Metrics { return t.front.Metrics }

func (t *Tiered) Acquire(ctx context.Context) (backend.Session, error) {
	inner, err := t.back.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	s := &session{front: t.front, inner: inner, id: t.Identity}
	if l, ok := inner.(backend.Lister); ok {
		return &listingSession{session: s, l: l}, nil
	}
	return s, nil
}

func (t *Tiered) Close(ctx context.Context) error {
	t.front.Wait()
	t.front.Close()
	return t.back.Close(ctx)
}

type session struct {
	front    *rc.Cache
	inner    backend.Session
	id       func(key.Key) string
	released bool
}

func (s *session) Release() {
	s.released = true
	s.inner.Release()
}

func (s *session) Fetch(ctx context.Context, k key.Key) ([]byte, bool, error) {
	if s.released {
		return nil, false, backend.ErrReleased
	}
	ks := s.id(k)
	if v, ok := s.front.Get(ks); ok {
		if b, _ := v.([]byte); b != nil {
			return clone(b), true, nil
		}
		// unexpected entry shape; drop it
		s.front.Del(ks)
	}
	b, ok, err := s.inner.Fetch(ctx, k)
	if err != nil || !ok {
		return nil, false, err
	}
	s.front.Set(ks, clone(b), int64(len(b)))
	return b, true, nil
}

func (s *session) Store(ctx context.Context, k key.Key, value []byte) error {
	if s.released {
		return backend.ErrReleased
	}
	ks := s.id(k)
	s.front.Del(ks)
	if err := s.inner.Store(ctx, k, value); err != nil {
		return err
	}
	s.front.Set(ks, clone(value), int64(len(value)))
	s.front.Wait()
	return nil
}

func (s *session) Delete(ctx context.Context, k key.Key) error {
	if s.released {
		return backend.ErrReleased
	}
	s.front.Del(s.id(k))
	return s.inner.Delete(ctx, k)
}

type listingSession struct {
	*session
	l backend.Lister
}

func (s *listingSession) Keys(ctx context.Context, prefix key.Key) ([]key.Key, error) {
	return s.l.Keys(ctx, prefix)
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
