package potency

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/schell/potency/backend"
	"github.com/schell/potency/codec"
	"github.com/schell/potency/key"
)

// shared is the state every namespaced view of one store points at.
type shared struct {
	backend  backend.Backend
	codec    codec.Codec
	hooks    Hooks
	locking  LockMode
	disabled bool
	baseLog  Logger

	flights singleflight.Group
	stats   counters
}

// Store is a handle on a backend plus a key prefix. Handles are cheap,
// immutable and safe for concurrent use.
type Store struct {
	*shared
	ns  key.Key
	log Logger
}

// Namespace returns a handle whose keys gain segs after the current prefix.
// The receiver is unchanged.
func (s *Store) Namespace(segs ...string) *Store {
	ns := s.ns.Append(segs...)
	return &Store{
		shared: s.shared,
		ns:     ns,
		log:    withFields(s.baseLog, Fields{"ns": ns.String()}),
	}
}

// Prefix returns a copy of the namespace segments.
func (s *Store) Prefix() key.Key { return key.New(s.ns...) }

// Key derives the key for params under this store's namespace: one
// fragment per parameter, in order.
func (s *Store) Key(params ...any) (key.Key, error) {
	frags := make([]string, len(params))
	for i, p := range params {
		f, err := key.Fragment(p)
		if err != nil {
			return nil, &BindError{Reason: fmt.Sprintf("param %d", i), Err: err}
		}
		frags[i] = f
	}
	return s.ns.Append(frags...), nil
}

func (s *Store) Codec() codec.Codec       { return s.codec }
func (s *Store) Backend() backend.Backend { return s.backend }
func (s *Store) Stats() Stats             { return s.stats.snapshot() }

// Forget deletes the entry under k so the next call recomputes it.
func (s *Store) Forget(ctx context.Context, k key.Key) error {
	if s.disabled {
		return nil
	}
	sess, err := s.acquire(ctx, k)
	if err != nil {
		return err
	}
	defer sess.Release()

	if err := sess.Delete(ctx, k); err != nil {
		return s.backendFailed("delete", k, err)
	}
	s.log.Debug("entry forgotten", Fields{"key": k.String()})
	return nil
}

// Close closes the backend. Every handle derived from this store is done.
func (s *Store) Close(ctx context.Context) error {
	return s.backend.Close(ctx)
}

func (s *Store) acquire(ctx context.Context, k key.Key) (backend.Session, error) {
	sess, err := s.backend.Acquire(ctx)
	if err != nil {
		return nil, s.backendFailed("acquire", k, err)
	}
	return sess, nil
}

func (s *Store) backendFailed(op string, k key.Key, err error) error {
	ks := k.String()
	s.hooks.BackendFailed(op, ks, err)
	s.log.Error("backend failed", Fields{"op": op, "key": ks, "err": err})
	return &BackendError{Op: op, Key: ks, Err: err}
}
