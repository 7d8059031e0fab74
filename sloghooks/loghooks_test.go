package sloghooks

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func newBuffered(opts Options) (*Hooks, *bytes.Buffer) {
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return New(l, opts), &buf
}

func TestKeysAreRedacted(t *testing.T) {
	h, buf := newBuffered(Options{})
	h.BackendFailed("store", "users,alice@example.com", errors.New("disk"))

	out := buf.String()
	if strings.Contains(out, "alice") {
		t.Fatalf("raw key leaked: %s", out)
	}
	if !strings.Contains(out, "potency.backend_failed") || !strings.Contains(out, "op=store") {
		t.Fatalf("unexpected line: %s", out)
	}
	if h.redact("a") != h.redact("a") || h.redact("a") == h.redact("b") {
		t.Fatalf("redaction not a stable digest")
	}
}

func TestCustomRedact(t *testing.T) {
	h, buf := newBuffered(Options{Redact: func(string) string { return "<k>" }})
	h.ComputeFailed("secret", errors.New("boom"))
	if !strings.Contains(buf.String(), "key=<k>") {
		t.Fatalf("custom redactor unused: %s", buf.String())
	}
}

func TestHitSampling(t *testing.T) {
	h, buf := newBuffered(Options{HitEvery: 4})
	for i := 0; i < 8; i++ {
		h.Hit("k")
	}
	if n := strings.Count(buf.String(), "potency.hit"); n != 2 {
		t.Fatalf("logged %d hits, want 2", n)
	}
}

func TestNilLogger(t *testing.T) {
	h := New(nil, Options{})
	h.Hit("k")
	h.Miss("k")
	h.Stored("k", 1)
	h.Coalesced("k")
	h.ComputeFailed("k", nil)
	h.DecodeFailed("k", nil)
	h.BackendFailed("fetch", "k", nil)
}
