package potency

// Fields is a minimal structured field map for logs.
type Fields map[string]any

// Logger is a tiny leveled logger. Provide an adapter around logging stack.
// If Logger is nil in Options, logging is disabled.
type Logger interface {
	Debug(msg string, f Fields)
	Info(msg string, f Fields)
	Warn(msg string, f Fields)
	Error(msg string, f Fields)
}

// FieldLogger is a Logger that can bind fields once, e.g. a zap child logger.
// Namespaced stores use it to tag every line with their namespace.
type FieldLogger interface {
	Logger
	With(f Fields) Logger
}

type NopLogger struct{}

func (NopLogger) Debug(string, Fields) {}
func (NopLogger) Info(string, Fields)  {}
func (NopLogger) Warn(string, Fields)  {}
func (NopLogger) Error(string, Fields) {}

// withFields binds f to l, natively when l supports it.
func withFields(l Logger, f Fields) Logger {
	if _, ok := l.(NopLogger); ok {
		return l
	}
	if fl, ok := l.(FieldLogger); ok {
		return fl.With(f)
	}
	return boundLogger{l: l, f: f}
}

type boundLogger struct {
	l Logger
	f Fields
}

func (b boundLogger) merge(f Fields) Fields {
	out := make(Fields, len(b.f)+len(f))
	for k, v := range b.f {
		out[k] = v
	}
	for k, v := range f {
		out[k] = v
	}
	return out
}

func (b boundLogger) Debug(msg string, f Fields) { b.l.Debug(msg, b.merge(f)) }
func (b boundLogger) Info(msg string, f Fields)  { b.l.Info(msg, b.merge(f)) }
func (b boundLogger) Warn(msg string, f Fields)  { b.l.Warn(msg, b.merge(f)) }
func (b boundLogger) Error(msg string, f Fields) { b.l.Error(msg, b.merge(f)) }
func (b boundLogger) With(f Fields) Logger       { return boundLogger{l: b.l, f: b.merge(f)} }
