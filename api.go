package potency

import (
	"context"
	"errors"

	"github.com/schell/potency/backend"
	"github.com/schell/potency/codec"
)

// Task is a computation whose result may be memoized.
type Task[T any] func(ctx context.Context) (T, error)

// LockMode selects how FetchOrCompute serializes work.
type LockMode int

const (
	// LockBackend holds one backend session across fetch, compute and store.
	// All memoized work through a backend is serialized; no two callers ever
	// compute the same key.
	LockBackend LockMode = iota

	// LockPerKey holds the session only around fetch and store. Concurrent
	// callers for the same key share one computation; different keys
	// compute in parallel.
	LockPerKey
)

func (m LockMode) String() string {
	switch m {
	case LockBackend:
		return "backend"
	case LockPerKey:
		return "per-key"
	}
	return "unknown"
}

// Options tune a Store. Only the backend passed to New is required.
type Options struct {
	// Codec encodes computed values. nil => the backend's codec when it
	// implements backend.CodecProvider, else JSON.
	Codec codec.Codec

	Logger   Logger   // if nil, NopLogger is used
	Hooks    Hooks    // if nil, NopHooks is used
	Locking  LockMode // default LockBackend
	Disabled bool     // always compute; never touch the backend

	// Namespace segments prefixed to every key. Same as calling Namespace.
	Namespace []string
}

var errNoBackend = errors.New("potency: backend is required")

// New wraps b in a Store.
func New(b backend.Backend, opts Options) (*Store, error) {
	if b == nil {
		return nil, errNoBackend
	}
	if opts.Locking != LockBackend && opts.Locking != LockPerKey {
		return nil, errors.New("potency: unknown lock mode")
	}

	cd := opts.Codec
	if cd == nil {
		cd = codec.Codec(codec.JSON{})
		if cp, ok := b.(backend.CodecProvider); ok && cp.Codec() != nil {
			cd = cp.Codec()
		}
	}

	log := coalesce[Logger](opts.Logger, NopLogger{})
	hooks := coalesce[Hooks](opts.Hooks, NopHooks{})

	sh := &shared{
		backend:  b,
		codec:    cd,
		hooks:    hooks,
		locking:  opts.Locking,
		disabled: opts.Disabled,
		baseLog:  log,
	}
	s := &Store{shared: sh, log: log}
	if len(opts.Namespace) > 0 {
		s = s.Namespace(opts.Namespace...)
	}
	s.log.Debug("store ready", Fields{
		"codec":    cd.Name(),
		"locking":  opts.Locking.String(),
		"disabled": opts.Disabled,
	})
	return s, nil
}
