package potency

import (
	"context"
	"sync"
	"testing"

	"github.com/schell/potency/backend"
	"github.com/schell/potency/codec"
	"github.com/schell/potency/key"
)

// memBackend is a map behind a one-slot semaphore with injectable faults.
type memBackend struct {
	sem chan struct{}

	mu      sync.Mutex
	m       map[string][]byte
	fetches int
	stores  int

	acquireErr error
	fetchErr   error
	storeErr   error
	cd         codec.Codec
}

var _ backend.Backend = (*memBackend)(nil)

func newMemBackend() *memBackend {
	return &memBackend{sem: make(chan struct{}, 1), m: make(map[string][]byte)}
}

func (b *memBackend) Acquire(ctx context.Context) (backend.Session, error) {
	if b.acquireErr != nil {
		return nil, b.acquireErr
	}
	select {
	case b.sem <- struct{}{}:
		return &memSession{b: b}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *memBackend) Close(context.Context) error { return nil }

func (b *memBackend) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.m)
}

func (b *memBackend) put(k key.Key, v []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.m[k.ID()] = v
}

func (b *memBackend) get(k key.Key) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.m[k.ID()]
	return v, ok
}

type memSession struct {
	b    *memBackend
	once sync.Once
}

func (s *memSession) Fetch(_ context.Context, k key.Key) ([]byte, bool, error) {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	s.b.fetches++
	if s.b.fetchErr != nil {
		return nil, false, s.b.fetchErr
	}
	v, ok := s.b.m[k.ID()]
	return v, ok, nil
}

func (s *memSession) Store(_ context.Context, k key.Key, value []byte) error {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	s.b.stores++
	if s.b.storeErr != nil {
		return s.b.storeErr
	}
	s.b.m[k.ID()] = append([]byte(nil), value...)
	return nil
}

func (s *memSession) Delete(_ context.Context, k key.Key) error {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	delete(s.b.m, k.ID())
	return nil
}

func (s *memSession) Release() { s.once.Do(func() { <-s.b.sem }) }

// codecBackend advertises a preferred codec.
type codecBackend struct {
	*memBackend
}

func (b codecBackend) Codec() codec.Codec { return b.cd }

type event struct {
	name string
	key  string
}

type recHooks struct {
	mu     sync.Mutex
	events []event
}

func (h *recHooks) add(name, k string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event{name, k})
}

func (h *recHooks) names() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.events))
	for i, e := range h.events {
		out[i] = e.name
	}
	return out
}

func (h *recHooks) Hit(k string)                        { h.add("hit", k) }
func (h *recHooks) Miss(k string)                       { h.add("miss", k) }
func (h *recHooks) ComputeFailed(k string, _ error)     { h.add("compute_failed", k) }
func (h *recHooks) DecodeFailed(k string, _ error)      { h.add("decode_failed", k) }
func (h *recHooks) BackendFailed(op, k string, _ error) { h.add("backend_failed:"+op, k) }
func (h *recHooks) Stored(k string, _ int)              { h.add("stored", k) }
func (h *recHooks) Coalesced(k string)                  { h.add("coalesced", k) }

type logLine struct {
	level string
	msg   string
	f     Fields
}

// recLogger implements Logger only, not FieldLogger.
type recLogger struct {
	mu    sync.Mutex
	lines []logLine
}

func (l *recLogger) add(level, msg string, f Fields) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, logLine{level, msg, f})
}

func (l *recLogger) Debug(msg string, f Fields) { l.add("debug", msg, f) }
func (l *recLogger) Info(msg string, f Fields)  { l.add("info", msg, f) }
func (l *recLogger) Warn(msg string, f Fields)  { l.add("warn", msg, f) }
func (l *recLogger) Error(msg string, f Fields) { l.add("error", msg, f) }

func newTestStore(t *testing.T, b backend.Backend, opts Options) *Store {
	t.Helper()
	s, err := New(b, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}
