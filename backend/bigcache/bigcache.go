// Package bigcache keeps entries off the Go heap in allegro/bigcache. The
// life window is pinned far in the future and no clean window runs, so
// entries stay until deleted or the process exits.
package bigcache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	bc "github.com/allegro/bigcache/v3"

	"github.com/schell/potency/backend"
	"github.com/schell/potency/codec"
	"github.com/schell/potency/internal/wire"
	"github.com/schell/potency/key"
)

// forever is as long as bigcache's second-resolution clock needs.
const forever = 100 * 365 * 24 * time.Hour

type Config struct {
	Shards             int // power of two; 0 => bigcache default (1024)
	MaxEntriesInWindow int // sizing hint for initial allocation
	MaxEntrySize       int // sizing hint, bytes
	HardMaxCacheSizeMB int // 0 = unlimited; a cap makes bigcache drop old entries
	Codec              codec.Codec
}

type BigCache struct {
	c     *bc.BigCache
	codec codec.Codec
	gate  *backend.Gate
	once  sync.Once
}

var (
	_ backend.Backend       = (*BigCache)(nil)
	_ backend.CodecProvider = (*BigCache)(nil)
	_ backend.Identifier    = (*BigCache)(nil)
	_ backend.Lister        = (*session)(nil)
)

func New(cfg Config) (*BigCache, error) {
	conf := bc.DefaultConfig(forever)
	conf.CleanWindow = 0
	conf.Verbose = false
	if cfg.Shards > 0 {
		conf.Shards = cfg.Shards
	}
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	c, err := bc.New(context.Background(), conf)
	if err != nil {
		return nil, fmt.Errorf("bigcache: %w", err)
	}
	b := &BigCache{c: c, codec: cfg.Codec, gate: backend.NewGate()}
	if b.codec == nil {
		b.codec = codec.Msgpack{}
	}
	return b, nil
}

func (b *BigCache) Codec() codec.Codec { return b.codec }

// Identity is the joined key: segments containing the delimiter collide.
func (b *BigCache) Identity(k key.Key) string { return k.String() }

// Len reports the number of stored entries.
func (b *BigCache) Len() int { return b.c.Len() }

func (b *BigCache) Acquire(ctx context.Context) (backend.Session, error) {
	if err := b.gate.Lock(ctx); err != nil {
		return nil, err
	}
	return &session{b: b, hold: backend.NewHold(b.gate)}, nil
}

func (b *BigCache) Close(_ context.Context) error {
	var err error
	b.once.Do(func() {
		b.gate.Close()
		err = b.c.Close()
	})
	return err
}

type session struct {
	b    *BigCache
	hold *backend.Hold
}

func (s *session) Release() { s.hold.Release() }

func (s *session) Fetch(_ context.Context, k key.Key) ([]byte, bool, error) {
	if s.hold.Released() {
		return nil, false, backend.ErrReleased
	}
	raw, err := s.b.c.Get(k.String())
	if errors.Is(err, bc.ErrEntryNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("bigcache: get %q: %w", k.String(), err)
	}
	payload, err := wire.Decode(raw)
	if err != nil {
		return nil, false, fmt.Errorf("bigcache: get %q: %w", k.String(), err)
	}
	return payload, true, nil
}

func (s *session) Store(_ context.Context, k key.Key, value []byte) error {
	if s.hold.Released() {
		return backend.ErrReleased
	}
	if err := s.b.c.Set(k.String(), wire.Encode(value)); err != nil {
		return fmt.Errorf("bigcache: set %q: %w", k.String(), err)
	}
	return nil
}

func (s *session) Delete(_ context.Context, k key.Key) error {
	if s.hold.Released() {
		return backend.ErrReleased
	}
	err := s.b.c.Delete(k.String())
	if err != nil && !errors.Is(err, bc.ErrEntryNotFound) {
		return fmt.Errorf("bigcache: delete %q: %w", k.String(), err)
	}
	return nil
}

func (s *session) Keys(_ context.Context, prefix key.Key) ([]key.Key, error) {
	if s.hold.Released() {
		return nil, backend.ErrReleased
	}
	var out []key.Key
	it := s.b.c.Iterator()
	for it.SetNext() {
		e, err := it.Value()
		if err != nil {
			return nil, fmt.Errorf("bigcache: iterate: %w", err)
		}
		k := key.Key(strings.Split(e.Key(), key.Delimiter))
		if k.HasPrefix(prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}
