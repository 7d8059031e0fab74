// Package zap adapts a *zap.Logger to potency.Logger.
package zap

import (
	"sort"

	"github.com/schell/potency"
	"go.uber.org/zap"
)

var _ potency.FieldLogger = Logger{}

type Logger struct{ L *zap.Logger }

// New wraps l; a nil l logs nowhere.
func New(l *zap.Logger) Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return Logger{L: l}
}

func (z Logger) Debug(msg string, f potency.Fields) { z.L.Debug(msg, zf(f)...) }
func (z Logger) Info(msg string, f potency.Fields)  { z.L.Info(msg, zf(f)...) }
func (z Logger) Warn(msg string, f potency.Fields)  { z.L.Warn(msg, zf(f)...) }
func (z Logger) Error(msg string, f potency.Fields) { z.L.Error(msg, zf(f)...) }

// With returns a child logger carrying f on every entry.
func (z Logger) With(f potency.Fields) potency.Logger { return Logger{L: z.L.With(zf(f)...)} }

// zf converts fields in key order; errors become zap.NamedError.
func zf(f potency.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]zap.Field, 0, len(f))
	for _, k := range keys {
		if err, ok := f[k].(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, f[k]))
	}
	return out
}
