// Package backend defines the storage contract potency memoizes into.
//
// A Backend hands out exclusive Sessions. Fetch, Store and Delete are only
// valid while the session is held; the backend itself makes no promise that a
// Fetch followed by a Store is atomic, holding the session across both is the
// caller's job.
//
// Values are opaque bytes produced by a codec. Implementations MUST be
// byte-for-byte transparent: Fetch returns exactly the bytes previously
// passed to Store for the same key. Store overwrites unconditionally.
package backend

import (
	"context"
	"errors"

	"github.com/schell/potency/codec"
	"github.com/schell/potency/key"
)

var (
	// ErrClosed is returned by Acquire after Close.
	ErrClosed = errors.New("backend: closed")
	// ErrReleased is returned by session methods after Release.
	ErrReleased = errors.New("backend: session released")
)

// Backend is a storage provider.
// Must be safe for concurrent use.
type Backend interface {
	// Acquire blocks until the backend's session lock is free or ctx is done.
	Acquire(ctx context.Context) (Session, error)

	// Close releases resources. Outstanding sessions must be released first.
	Close(ctx context.Context) error
}

// Session is exclusive access to a backend. Not safe for concurrent use.
type Session interface {
	// Fetch returns (value, true, nil) on hit; (nil, false, nil) on miss.
	Fetch(ctx context.Context, k key.Key) ([]byte, bool, error)

	// Store writes value under k, replacing any prior value.
	Store(ctx context.Context, k key.Key, value []byte) error

	// Delete removes k. Deleting a missing key is not an error.
	Delete(ctx context.Context, k key.Key) error

	// Release gives the session lock back. Safe to call more than once.
	Release()
}

// CodecProvider is implemented by backends with a preferred value encoding.
type CodecProvider interface {
	Codec() codec.Codec
}

// Lister is implemented by sessions that can enumerate their keys.
type Lister interface {
	// Keys returns every stored key with the given segment prefix.
	// A nil prefix lists everything.
	Keys(ctx context.Context, prefix key.Key) ([]key.Key, error)
}

// Identifier is implemented by backends that address entries by something
// coarser than the exact segment sequence, such as the joined String form.
// Keys with equal identity share one entry.
type Identifier interface {
	Identity(k key.Key) string
}

// Identity is b's address for k: its Identifier if it has one, else k.ID().
func Identity(b Backend, k key.Key) string {
	if i, ok := b.(Identifier); ok {
		return i.Identity(k)
	}
	return k.ID()
}
