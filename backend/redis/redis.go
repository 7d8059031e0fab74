// Package redis keeps entries in Redis under "<prefix>:<joined key>" with no
// expiry. Values are framed by internal/wire so foreign writes under the
// prefix surface as errors rather than bad decodes.
//
// The session lock is per Redis instance value, i.e. per process: two
// processes sharing a server do not exclude each other.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	goredis "github.com/redis/go-redis/v9"

	"github.com/schell/potency/backend"
	"github.com/schell/potency/codec"
	"github.com/schell/potency/internal/wire"
	"github.com/schell/potency/key"
)

var ErrNilClient = errors.New("redis backend: nil client")

const DefaultPrefix = "potency"

type Config struct {
	Client      goredis.UniversalClient
	Prefix      string // "" => DefaultPrefix
	CloseClient bool   // set true only if this backend exclusively owns the client
	Codec       codec.Codec
	ScanCount   int64 // SCAN batch hint for Keys; 0 => 256
}

type Redis struct {
	rdb         goredis.UniversalClient
	prefix      string
	closeClient bool
	codec       codec.Codec
	scanCount   int64
	gate        *backend.Gate
	once        sync.Once
}

var (
	_ backend.Backend       = (*Redis)(nil)
	_ backend.CodecProvider = (*Redis)(nil)
	_ backend.Identifier    = (*Redis)(nil)
	_ backend.Lister        = (*session)(nil)
)

func New(cfg Config) (*Redis, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	r := &Redis{
		rdb:         cfg.Client,
		prefix:      cfg.Prefix,
		closeClient: cfg.CloseClient,
		codec:       cfg.Codec,
		scanCount:   cfg.ScanCount,
		gate:        backend.NewGate(),
	}
	if r.prefix == "" {
		r.prefix = DefaultPrefix
	}
	if r.codec == nil {
		r.codec = codec.Msgpack{}
	}
	if r.scanCount <= 0 {
		r.scanCount = 256
	}
	return r, nil
}

func (r *Redis) Codec() codec.Codec { return r.codec }

// Identity is the joined key: segments containing the delimiter collide.
func (r *Redis) Identity(k key.Key) string { return k.String() }

func (r *Redis) redisKey(k key.Key) string { return r.prefix + ":" + k.String() }

func (r *Redis) Acquire(ctx context.Context) (backend.Session, error) {
	if err := r.gate.Lock(ctx); err != nil {
		return nil, err
	}
	return &session{r: r, hold: backend.NewHold(r.gate)}, nil
}

// Close releases the underlying redis client only when this backend owns it.
// Safe to call multiple times; repeated calls become no-ops.
func (r *Redis) Close(context.Context) error {
	var err error
	r.once.Do(func() {
		r.gate.Close()
		if r.closeClient {
			if cerr := r.rdb.Close(); cerr != nil && !errors.Is(cerr, goredis.ErrClosed) {
				err = cerr
			}
		}
	})
	return err
}

type session struct {
	r    *Redis
	hold *backend.Hold
}

func (s *session) Release() { s.hold.Release() }

func (s *session) Fetch(ctx context.Context, k key.Key) ([]byte, bool, error) {
	if s.hold.Released() {
		return nil, false, backend.ErrReleased
	}
	b, err := s.r.rdb.Get(ctx, s.r.redisKey(k)).Bytes()
	if err == goredis.Nil {
		return nil, false, nil // miss
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis: get %q: %w", k.String(), err)
	}
	payload, err := wire.Decode(b)
	if err != nil {
		return nil, false, fmt.Errorf("redis: get %q: %w", k.String(), err)
	}
	return payload, true, nil
}

func (s *session) Store(ctx context.Context, k key.Key, value []byte) error {
	if s.hold.Released() {
		return backend.ErrReleased
	}
	// 0 expiration: entries persist until deleted
	if err := s.r.rdb.Set(ctx, s.r.redisKey(k), wire.Encode(value), 0).Err(); err != nil {
		return fmt.Errorf("redis: set %q: %w", k.String(), err)
	}
	return nil
}

func (s *session) Delete(ctx context.Context, k key.Key) error {
	if s.hold.Released() {
		return backend.ErrReleased
	}
	if err := s.r.rdb.Del(ctx, s.r.redisKey(k)).Err(); err != nil {
		return fmt.Errorf("redis: del %q: %w", k.String(), err)
	}
	return nil
}

func (s *session) Keys(ctx context.Context, prefix key.Key) ([]key.Key, error) {
	if s.hold.Released() {
		return nil, backend.ErrReleased
	}
	base := s.r.prefix + ":"
	match := escapeGlob(base) + "*"
	var out []key.Key
	iter := s.r.rdb.Scan(ctx, 0, match, s.r.scanCount).Iterator()
	for iter.Next(ctx) {
		k := key.Key(strings.Split(strings.TrimPrefix(iter.Val(), base), key.Delimiter))
		if k.HasPrefix(prefix) {
			out = append(out, k)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis: scan: %w", err)
	}
	return out, nil
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
