// Package sqlite is the embedded relational backend: one table
//
//	potency(key TEXT PRIMARY KEY NOT NULL, value TEXT NOT NULL)
//
// where key is the joined key string and value the codec output (JSON text by
// default). The table is created on Open if absent.
//
// A key collision on store overwrites the previous row, the same as every
// other backend.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	_ "modernc.org/sqlite"

	"github.com/schell/potency/backend"
	"github.com/schell/potency/codec"
	"github.com/schell/potency/key"
)

const (
	createTable = `CREATE TABLE IF NOT EXISTS potency(
		key TEXT PRIMARY KEY NOT NULL,
		value TEXT NOT NULL
	)`
	selectValue = `SELECT value FROM potency WHERE key = ?`
	upsertValue = `INSERT INTO potency (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	deleteValue = `DELETE FROM potency WHERE key = ?`
	selectKeys  = `SELECT key FROM potency ORDER BY key`
	selectUnder = `SELECT key FROM potency WHERE key = ? OR substr(key, 1, ?) = ? ORDER BY key`
)

type Config struct {
	// Path of the database file. Empty or ":memory:" opens a private
	// in-memory database.
	Path string
	// WAL switches the journal to write-ahead logging.
	WAL bool
	// BusyTimeout makes sqlite wait on a locked database file; 0 => 5s.
	BusyTimeout time.Duration
	// Codec overrides the JSON default.
	Codec codec.Codec
}

type SQLite struct {
	db    *sql.DB
	gate  *backend.Gate
	codec codec.Codec
	once  sync.Once
}

var (
	_ backend.Backend       = (*SQLite)(nil)
	_ backend.CodecProvider = (*SQLite)(nil)
	_ backend.Identifier    = (*SQLite)(nil)
	_ backend.Lister        = (*session)(nil)
)

// Open opens (creating if needed) the database at cfg.Path and runs the
// table migration.
func Open(ctx context.Context, cfg Config) (*SQLite, error) {
	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	// one connection: an in-memory database lives and dies with it, and the
	// session gate serializes access anyway
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLite{db: db, gate: backend.NewGate(), codec: cfg.Codec}
	if s.codec == nil {
		s.codec = codec.JSON{}
	}
	if err := s.migrate(ctx, cfg); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) migrate(ctx context.Context, cfg Config) error {
	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds())); err != nil {
		return fmt.Errorf("sqlite: busy_timeout: %w", err)
	}
	if cfg.WAL {
		if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			return fmt.Errorf("sqlite: journal_mode: %w", err)
		}
	}
	if _, err := s.db.ExecContext(ctx, createTable); err != nil {
		return fmt.Errorf("sqlite: create table: %w", err)
	}
	return nil
}

func (s *SQLite) Codec() codec.Codec { return s.codec }

// Identity is the joined key: segments containing the delimiter collide.
func (s *SQLite) Identity(k key.Key) string { return k.String() }

func (s *SQLite) Acquire(ctx context.Context) (backend.Session, error) {
	if err := s.gate.Lock(ctx); err != nil {
		return nil, err
	}
	conn, err := s.db.Conn(ctx)
	if err != nil {
		s.gate.Unlock()
		if errors.Is(err, sql.ErrConnDone) {
			return nil, backend.ErrClosed
		}
		return nil, fmt.Errorf("sqlite: conn: %w", err)
	}
	return &session{conn: conn, hold: backend.NewHold(s.gate)}, nil
}

func (s *SQLite) Close(_ context.Context) error {
	var err error
	s.once.Do(func() {
		s.gate.Close()
		err = s.db.Close()
	})
	return err
}

type session struct {
	conn *sql.Conn
	hold *backend.Hold
	once sync.Once
}

func (s *session) Release() {
	s.once.Do(func() {
		_ = s.conn.Close() // back to the pool
		s.hold.Release()
	})
}

func (s *session) Fetch(ctx context.Context, k key.Key) ([]byte, bool, error) {
	if s.hold.Released() {
		return nil, false, backend.ErrReleased
	}
	var v []byte
	err := s.conn.QueryRowContext(ctx, selectValue, k.String()).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlite: fetch %q: %w", k.String(), err)
	}
	return v, true, nil
}

func (s *session) Store(ctx context.Context, k key.Key, value []byte) error {
	if s.hold.Released() {
		return backend.ErrReleased
	}
	// text codecs stay readable in the column; anything else goes in as a blob
	var arg any = value
	if utf8.Valid(value) {
		arg = string(value)
	}
	if _, err := s.conn.ExecContext(ctx, upsertValue, k.String(), arg); err != nil {
		return fmt.Errorf("sqlite: store %q: %w", k.String(), err)
	}
	return nil
}

func (s *session) Delete(ctx context.Context, k key.Key) error {
	if s.hold.Released() {
		return backend.ErrReleased
	}
	if _, err := s.conn.ExecContext(ctx, deleteValue, k.String()); err != nil {
		return fmt.Errorf("sqlite: delete %q: %w", k.String(), err)
	}
	return nil
}

// Keys splits stored keys on key.Delimiter, so segments that themselves
// contain the delimiter come back split.
func (s *session) Keys(ctx context.Context, prefix key.Key) ([]key.Key, error) {
	if s.hold.Released() {
		return nil, backend.ErrReleased
	}
	var (
		rows *sql.Rows
		err  error
	)
	if len(prefix) == 0 {
		rows, err = s.conn.QueryContext(ctx, selectKeys)
	} else {
		p := prefix.String()
		under := p + key.Delimiter
		rows, err = s.conn.QueryContext(ctx, selectUnder, p, utf8.RuneCountInString(under), under)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: keys: %w", err)
	}
	defer rows.Close()

	var out []key.Key
	for rows.Next() {
		var joined string
		if err := rows.Scan(&joined); err != nil {
			return nil, fmt.Errorf("sqlite: keys: %w", err)
		}
		out = append(out, key.Key(strings.Split(joined, key.Delimiter)))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: keys: %w", err)
	}
	return out, nil
}
