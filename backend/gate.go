package backend

import (
	"context"
	"sync"
)

// Gate is a context-aware exclusive lock: one per backend instance, held for
// the lifetime of a session. The zero value is not usable; use NewGate.
type Gate struct {
	ch        chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
}

func NewGate() *Gate {
	return &Gate{
		ch:     make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

// Lock waits for the gate. It fails with ctx.Err() or ErrClosed.
func (g *Gate) Lock(ctx context.Context) error {
	select {
	case <-g.closed:
		return ErrClosed
	default:
	}
	select {
	case g.ch <- struct{}{}:
		return nil
	case <-g.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryLock takes the gate without waiting.
func (g *Gate) TryLock() bool {
	select {
	case g.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

func (g *Gate) Unlock() {
	select {
	case <-g.ch:
	default:
		panic("backend: unlock of unlocked gate")
	}
}

// Close makes pending and future Lock calls fail with ErrClosed.
func (g *Gate) Close() {
	g.closeOnce.Do(func() { close(g.closed) })
}

// Hold is a Release helper for session implementations: it unlocks the gate
// exactly once.
type Hold struct {
	gate *Gate
	once sync.Once
	done bool
}

func NewHold(g *Gate) *Hold { return &Hold{gate: g} }

// Released reports whether Release already ran.
func (h *Hold) Released() bool { return h.done }

func (h *Hold) Release() {
	h.once.Do(func() {
		h.done = true
		h.gate.Unlock()
	})
}
