// Package asynchook moves hook delivery off the caller's goroutine.
//
// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    HitEvery: 100, // sample logs: ~every 100th hit
//	})
//
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	store, _ := potency.New(backend, potency.Options{
//	    Hooks: hooks, // or `raw` if you don't want async
//	})
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/schell/potency"
)

type Hooks struct {
	inner potency.Hooks
	q     chan func()
	wg    sync.WaitGroup
	once  sync.Once

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

var _ potency.Hooks = (*Hooks)(nil)

func New(inner potency.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Events after Close are
// dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped counts events discarded because the queue was full or closed.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default: // drop
		h.dropped.Add(1)
	}
}

func (h *Hooks) Hit(k string)       { h.try(func() { h.inner.Hit(k) }) }
func (h *Hooks) Miss(k string)      { h.try(func() { h.inner.Miss(k) }) }
func (h *Hooks) Coalesced(k string) { h.try(func() { h.inner.Coalesced(k) }) }
func (h *Hooks) Stored(k string, n int) {
	h.try(func() { h.inner.Stored(k, n) })
}
func (h *Hooks) ComputeFailed(k string, err error) {
	h.try(func() { h.inner.ComputeFailed(k, err) })
}
func (h *Hooks) DecodeFailed(k string, err error) {
	h.try(func() { h.inner.DecodeFailed(k, err) })
}
func (h *Hooks) BackendFailed(op, k string, err error) {
	h.try(func() { h.inner.BackendFailed(op, k, err) })
}
