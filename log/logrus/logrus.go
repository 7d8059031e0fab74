// Package logrus adapts a *logrus.Entry to potency.Logger.
package logrus

import (
	"github.com/schell/potency"
	"github.com/sirupsen/logrus"
)

var _ potency.FieldLogger = Logger{}

type Logger struct{ E *logrus.Entry }

// New wraps l's root entry.
func New(l *logrus.Logger) Logger { return Logger{E: logrus.NewEntry(l)} }

func (l Logger) Debug(msg string, f potency.Fields) { l.entry(f).Debug(msg) }
func (l Logger) Info(msg string, f potency.Fields)  { l.entry(f).Info(msg) }
func (l Logger) Warn(msg string, f potency.Fields)  { l.entry(f).Warn(msg) }
func (l Logger) Error(msg string, f potency.Fields) { l.entry(f).Error(msg) }

func (l Logger) With(f potency.Fields) potency.Logger { return Logger{E: l.entry(f)} }

// entry lifts an "err" error into logrus' own error key.
func (l Logger) entry(f potency.Fields) *logrus.Entry {
	if len(f) == 0 {
		return l.E
	}
	fields := make(logrus.Fields, len(f))
	for k, v := range f {
		if err, ok := v.(error); ok && k == "err" {
			fields[logrus.ErrorKey] = err
			continue
		}
		fields[k] = v
	}
	return l.E.WithFields(fields)
}
