// Package sloghooks reports potency events through log/slog.
package sloghooks

import (
	"log/slog"
	"strconv"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/schell/potency"
)

type Options struct {
	// Sampling to avoid floods on hot paths; 0/1 = log all.
	HitEvery  uint64
	MissEvery uint64
	// Optional key redactor. Defaults to an xxhash64 hex digest, since keys
	// are built from call parameters.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	hitCtr  atomic.Uint64
	missCtr atomic.Uint64
}

var _ potency.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	return strconv.FormatUint(xxhash.Sum64String(k), 16)
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) Hit(key string) {
	if h.l == nil || !sample(h.opts.HitEvery, &h.hitCtr) {
		return
	}
	h.l.Debug("potency.hit", "key", h.redact(key))
}

func (h *Hooks) Miss(key string) {
	if h.l == nil || !sample(h.opts.MissEvery, &h.missCtr) {
		return
	}
	h.l.Debug("potency.miss", "key", h.redact(key))
}

func (h *Hooks) Stored(key string, size int) {
	if h.l == nil {
		return
	}
	h.l.Debug("potency.stored",
		"key", h.redact(key),
		"bytes", size)
}

func (h *Hooks) Coalesced(key string) {
	if h.l == nil {
		return
	}
	h.l.Debug("potency.coalesced", "key", h.redact(key))
}

func (h *Hooks) ComputeFailed(key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("potency.compute_failed",
		"key", h.redact(key),
		"err", err)
}

func (h *Hooks) DecodeFailed(key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("potency.decode_failed",
		"key", h.redact(key),
		"err", err)
}

func (h *Hooks) BackendFailed(op, key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("potency.backend_failed",
		"op", op,
		"key", h.redact(key),
		"err", err)
}
