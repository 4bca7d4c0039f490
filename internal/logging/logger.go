// Package logging provides the node runtime's logger interface, matching
// the teacher's definition.DefaultLogger shape (Info/Warn/Error/Debug at
// both plain and formatted arity, plus ToggleDebug) but backed by
// logrus instead of the standard library's log.Logger, writing
// exclusively to stderr so stdout stays reserved for the wire protocol.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the interface workload and runtime code depend on. Kept
// narrow and interface-shaped so tests can swap in a recording fake.
type Logger interface {
	Info(args ...any)
	Infof(format string, args ...any)
	Warn(args ...any)
	Warnf(format string, args ...any)
	Error(args ...any)
	Errorf(format string, args ...any)
	Debug(args ...any)
	Debugf(format string, args ...any)
	Fatal(args ...any)
	Fatalf(format string, args ...any)
	Panic(args ...any)
	Panicf(format string, args ...any)
	ToggleDebug(value bool) bool
}

// DefaultLogger is the logrus-backed Logger used unless a workload
// substitutes its own. base controls verbosity (ToggleDebug needs a
// *logrus.Logger to call SetLevel on); entry is what every call is
// actually delegated through, since WithField returns a new *Entry
// rather than mutating the Logger it was called on.
type DefaultLogger struct {
	base  *logrus.Logger
	entry *logrus.Entry
}

// NewDefaultLogger creates a logger writing structured lines to stderr,
// tagging every line with the owning node's id.
func NewDefaultLogger(nodeID string) *DefaultLogger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	entry := logrus.NewEntry(l)
	if nodeID != "" {
		entry = entry.WithField("node", nodeID)
	}
	return &DefaultLogger{base: l, entry: entry}
}

func (l *DefaultLogger) Info(args ...any)                 { l.entry.Info(args...) }
func (l *DefaultLogger) Infof(format string, args ...any)  { l.entry.Infof(format, args...) }
func (l *DefaultLogger) Warn(args ...any)                 { l.entry.Warn(args...) }
func (l *DefaultLogger) Warnf(format string, args ...any)  { l.entry.Warnf(format, args...) }
func (l *DefaultLogger) Error(args ...any)                { l.entry.Error(args...) }
func (l *DefaultLogger) Errorf(format string, args ...any) { l.entry.Errorf(format, args...) }
func (l *DefaultLogger) Debug(args ...any)                { l.entry.Debug(args...) }
func (l *DefaultLogger) Debugf(format string, args ...any) { l.entry.Debugf(format, args...) }
func (l *DefaultLogger) Fatal(args ...any)                { l.entry.Fatal(args...) }
func (l *DefaultLogger) Fatalf(format string, args ...any) { l.entry.Fatalf(format, args...) }
func (l *DefaultLogger) Panic(args ...any)                 { l.entry.Panic(args...) }
func (l *DefaultLogger) Panicf(format string, args ...any)  { l.entry.Panicf(format, args...) }

// ToggleDebug sets Debug level when value is true and Info level
// otherwise, and returns value, matching the teacher's
// DefaultLogger.ToggleDebug contract.
func (l *DefaultLogger) ToggleDebug(value bool) bool {
	if value {
		l.base.SetLevel(logrus.DebugLevel)
	} else {
		l.base.SetLevel(logrus.InfoLevel)
	}
	return value
}

// Noop is a Logger that discards everything; used by tests that don't
// want log noise.
type Noop struct{}

func (Noop) Info(args ...any)                 {}
func (Noop) Infof(format string, args ...any) {}
func (Noop) Warn(args ...any)                 {}
func (Noop) Warnf(format string, args ...any) {}
func (Noop) Error(args ...any)                {}
func (Noop) Errorf(format string, args ...any) {}
func (Noop) Debug(args ...any)                {}
func (Noop) Debugf(format string, args ...any) {}
func (Noop) Fatal(args ...any)                {}
func (Noop) Fatalf(format string, args ...any) {}
func (Noop) Panic(args ...any)                {}
func (Noop) Panicf(format string, args ...any) {}
func (Noop) ToggleDebug(value bool) bool      { return value }
