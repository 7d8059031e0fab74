// Package backendtest is a conformance suite for backend.Backend
// implementations. Each backend package runs it against a fresh instance.
package backendtest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schell/potency/backend"
	"github.com/schell/potency/key"
)

// TestBackend runs every contract check. newBackend must return an empty
// backend; the suite closes it.
func TestBackend(t *testing.T, newBackend func(t *testing.T) backend.Backend) {
	t.Run("FetchMiss", func(t *testing.T) { testFetchMiss(t, newBackend(t)) })
	t.Run("StoreFetch", func(t *testing.T) { testStoreFetch(t, newBackend(t)) })
	t.Run("StoreOverwrites", func(t *testing.T) { testOverwrite(t, newBackend(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, newBackend(t)) })
	t.Run("SessionIsExclusive", func(t *testing.T) { testExclusive(t, newBackend(t)) })
	t.Run("ReleasedSession", func(t *testing.T) { testReleased(t, newBackend(t)) })
	t.Run("Keys", func(t *testing.T) { testKeys(t, newBackend(t)) })
	t.Run("AcquireAfterClose", func(t *testing.T) { testClosed(t, newBackend(t)) })
}

func acquire(t *testing.T, b backend.Backend) backend.Session {
	t.Helper()
	s, err := b.Acquire(context.Background())
	require.NoError(t, err)
	return s
}

func closeBackend(t *testing.T, b backend.Backend) {
	t.Helper()
	assert.NoError(t, b.Close(context.Background()))
}

func testFetchMiss(t *testing.T, b backend.Backend) {
	defer closeBackend(t, b)
	ctx := context.Background()
	s := acquire(t, b)
	defer s.Release()

	v, ok, err := s.Fetch(ctx, key.New("hello"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, v)
}

func testStoreFetch(t *testing.T, b backend.Backend) {
	defer closeBackend(t, b)
	ctx := context.Background()
	s := acquire(t, b)
	defer s.Release()

	k := key.New("ns", "sum3", "1", "2", "3")
	require.NoError(t, s.Store(ctx, k, []byte(`6`)))

	v, ok, err := s.Fetch(ctx, k)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte(`6`), v)

	// binary payloads are kept byte-for-byte
	bin := []byte{0x00, 0xff, 0x10, 0x80}
	k2 := key.New("ns", "bin")
	require.NoError(t, s.Store(ctx, k2, bin))
	v, ok, err = s.Fetch(ctx, k2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, bin, v)
}

func testOverwrite(t *testing.T, b backend.Backend) {
	defer closeBackend(t, b)
	ctx := context.Background()
	s := acquire(t, b)
	defer s.Release()

	k := key.New("k")
	require.NoError(t, s.Store(ctx, k, []byte(`"old"`)))
	require.NoError(t, s.Store(ctx, k, []byte(`"new"`)))

	v, ok, err := s.Fetch(ctx, k)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte(`"new"`), v)
}

func testDelete(t *testing.T, b backend.Backend) {
	defer closeBackend(t, b)
	ctx := context.Background()
	s := acquire(t, b)
	defer s.Release()

	k := key.New("gone")
	require.NoError(t, s.Store(ctx, k, []byte(`1`)))
	require.NoError(t, s.Delete(ctx, k))
	_, ok, err := s.Fetch(ctx, k)
	require.NoError(t, err)
	assert.False(t, ok)

	// deleting a missing key is fine
	assert.NoError(t, s.Delete(ctx, key.New("never-stored")))
}

func testExclusive(t *testing.T, b backend.Backend) {
	defer closeBackend(t, b)
	s := acquire(t, b)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := b.Acquire(ctx)
	require.Error(t, err, "second Acquire must wait while a session is held")
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)

	s.Release()
	s2, err := b.Acquire(context.Background())
	require.NoError(t, err)
	s2.Release()
}

func testReleased(t *testing.T, b backend.Backend) {
	defer closeBackend(t, b)
	ctx := context.Background()
	s := acquire(t, b)
	s.Release()
	s.Release()

	_, _, err := s.Fetch(ctx, key.New("x"))
	assert.ErrorIs(t, err, backend.ErrReleased)
	assert.ErrorIs(t, s.Store(ctx, key.New("x"), []byte(`1`)), backend.ErrReleased)
	assert.ErrorIs(t, s.Delete(ctx, key.New("x")), backend.ErrReleased)
}

func testKeys(t *testing.T, b backend.Backend) {
	defer closeBackend(t, b)
	ctx := context.Background()
	s := acquire(t, b)
	defer s.Release()

	l, ok := s.(backend.Lister)
	if !ok {
		t.Skip("session does not implement backend.Lister")
	}
	for _, k := range []key.Key{
		key.New("a", "2"),
		key.New("a", "1"),
		key.New("b", "1"),
	} {
		require.NoError(t, s.Store(ctx, k, []byte(`0`)))
	}

	all, err := l.Keys(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	under, err := l.Keys(ctx, key.New("a"))
	require.NoError(t, err)
	require.Len(t, under, 2)
	for _, k := range under {
		assert.True(t, k.HasPrefix(key.New("a")), "unexpected key %v", k)
	}
}

func testClosed(t *testing.T, b backend.Backend) {
	require.NoError(t, b.Close(context.Background()))
	_, err := b.Acquire(context.Background())
	assert.ErrorIs(t, err, backend.ErrClosed)
}
