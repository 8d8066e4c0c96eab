// Package logger provides the structured logging surface used across
// microbox. It wraps logrus the way the teacher project's shared/logger
// wraps its own backend: callers pass a message and a Ctx map instead of
// reaching for logrus directly.
package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Ctx is a set of structured fields attached to a log line.
type Ctx map[string]any

var base = newBase()

func newBase() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// SetDebug raises or lowers the global log level. Called once from the CLI
// when --debug is passed.
func SetDebug(enabled bool) {
	if enabled {
		base.SetLevel(logrus.DebugLevel)
		return
	}

	base.SetLevel(logrus.InfoLevel)
}

// Logger is a logrus entry preloaded with context fields.
type Logger struct {
	entry *logrus.Entry
}

// AddContext returns a Logger that always includes the given fields.
func AddContext(ctx Ctx) *Logger {
	return &Logger{entry: base.WithFields(logrus.Fields(ctx))}
}

// AddContext merges additional fields into an existing Logger's context.
func (l *Logger) AddContext(ctx Ctx) *Logger {
	return &Logger{entry: l.entry.WithFields(logrus.Fields(ctx))}
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string, ctx ...Ctx) { logWith(l.entry, logrus.DebugLevel, msg, ctx) }

// Info logs at info level.
func (l *Logger) Info(msg string, ctx ...Ctx) { logWith(l.entry, logrus.InfoLevel, msg, ctx) }

// Warn logs at warning level.
func (l *Logger) Warn(msg string, ctx ...Ctx) { logWith(l.entry, logrus.WarnLevel, msg, ctx) }

// Error logs at error level.
func (l *Logger) Error(msg string, ctx ...Ctx) { logWith(l.entry, logrus.ErrorLevel, msg, ctx) }

func logWith(entry *logrus.Entry, level logrus.Level, msg string, ctxs []Ctx) {
	if len(ctxs) > 0 {
		fields := logrus.Fields{}
		for _, c := range ctxs {
			for k, v := range c {
				fields[k] = v
			}
		}

		entry = entry.WithFields(fields)
	}

	entry.Log(level, msg)
}

// Package-level helpers for callers that don't need a persistent context.

// Debug logs a debug-level message with optional context.
func Debug(msg string, ctx ...Ctx) { logWith(logrus.NewEntry(base), logrus.DebugLevel, msg, ctx) }

// Info logs an info-level message with optional context.
func Info(msg string, ctx ...Ctx) { logWith(logrus.NewEntry(base), logrus.InfoLevel, msg, ctx) }

// Warn logs a warning-level message with optional context.
func Warn(msg string, ctx ...Ctx) { logWith(logrus.NewEntry(base), logrus.WarnLevel, msg, ctx) }

// Error logs an error-level message with optional context.
func Error(msg string, ctx ...Ctx) { logWith(logrus.NewEntry(base), logrus.ErrorLevel, msg, ctx) }
