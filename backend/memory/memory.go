// Package memory is an in-process backend: an ordered map from the exact
// segment sequence of a key to its stored bytes. Mostly meant for tests and
// short-lived processes; nothing survives a restart.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/schell/potency/backend"
	"github.com/schell/potency/codec"
	"github.com/schell/potency/key"
)

type entry struct {
	k key.Key
	v []byte
}

type Memory struct {
	gate *backend.Gate

	mu sync.RWMutex
	m  map[string]entry
}

var (
	_ backend.Backend       = (*Memory)(nil)
	_ backend.CodecProvider = (*Memory)(nil)
	_ backend.Lister        = (*session)(nil)
)

func New() *Memory {
	return &Memory{
		gate: backend.NewGate(),
		m:    make(map[string]entry),
	}
}

// Codec is JSON, mirroring the structured values the map holds.
func (m *Memory) Codec() codec.Codec { return codec.JSON{} }

func (m *Memory) Acquire(ctx context.Context) (backend.Session, error) {
	if err := m.gate.Lock(ctx); err != nil {
		return nil, err
	}
	return &session{m: m, hold: backend.NewHold(m.gate)}, nil
}

func (m *Memory) Close(_ context.Context) error {
	m.gate.Close()
	return nil
}

// Len reports the number of stored entries without taking a session.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.m)
}

type session struct {
	m    *Memory
	hold *backend.Hold
}

func (s *session) Release() { s.hold.Release() }

func (s *session) Fetch(_ context.Context, k key.Key) ([]byte, bool, error) {
	if s.hold.Released() {
		return nil, false, backend.ErrReleased
	}
	s.m.mu.RLock()
	e, ok := s.m.m[k.ID()]
	s.m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(e.v))
	copy(out, e.v)
	return out, true, nil
}

func (s *session) Store(_ context.Context, k key.Key, value []byte) error {
	if s.hold.Released() {
		return backend.ErrReleased
	}
	v := make([]byte, len(value))
	copy(v, value)
	s.m.mu.Lock()
	s.m.m[k.ID()] = entry{k: key.New(k...), v: v}
	s.m.mu.Unlock()
	return nil
}

func (s *session) Delete(_ context.Context, k key.Key) error {
	if s.hold.Released() {
		return backend.ErrReleased
	}
	s.m.mu.Lock()
	delete(s.m.m, k.ID())
	s.m.mu.Unlock()
	return nil
}

// Keys returns keys in segment order.
func (s *session) Keys(_ context.Context, prefix key.Key) ([]key.Key, error) {
	if s.hold.Released() {
		return nil, backend.ErrReleased
	}
	s.m.mu.RLock()
	out := make([]key.Key, 0, len(s.m.m))
	for _, e := range s.m.m {
		if e.k.HasPrefix(prefix) {
			out = append(out, key.New(e.k...))
		}
	}
	s.m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Compare(out[j]) < 0 })
	return out, nil
}
