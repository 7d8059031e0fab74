// Package slog adapts a *slog.Logger to potency.Logger.
package slog

import (
	"context"
	stdslog "log/slog"

	"github.com/schell/potency"
)

var _ potency.FieldLogger = Logger{}

type Logger struct{ L *stdslog.Logger }

// New wraps l; nil means slog.Default().
func New(l *stdslog.Logger) Logger {
	if l == nil {
		l = stdslog.Default()
	}
	return Logger{L: l}
}

func (s Logger) Debug(msg string, f potency.Fields) { s.log(stdslog.LevelDebug, msg, f) }
func (s Logger) Info(msg string, f potency.Fields)  { s.log(stdslog.LevelInfo, msg, f) }
func (s Logger) Warn(msg string, f potency.Fields)  { s.log(stdslog.LevelWarn, msg, f) }
func (s Logger) Error(msg string, f potency.Fields) { s.log(stdslog.LevelError, msg, f) }

func (s Logger) With(f potency.Fields) potency.Logger {
	args := make([]any, 0, len(f))
	for _, a := range attrs(f) {
		args = append(args, a)
	}
	return Logger{L: s.L.With(args...)}
}

func (s Logger) log(level stdslog.Level, msg string, f potency.Fields) {
	ctx := context.Background()
	if !s.L.Enabled(ctx, level) {
		return
	}
	s.L.LogAttrs(ctx, level, msg, attrs(f)...)
}

func attrs(f potency.Fields) []stdslog.Attr {
	if len(f) == 0 {
		return nil
	}
	out := make([]stdslog.Attr, 0, len(f))
	for k, v := range f {
		if err, ok := v.(error); ok {
			out = append(out, stdslog.String(k, err.Error()))
			continue
		}
		out = append(out, stdslog.Any(k, v))
	}
	return out
}
