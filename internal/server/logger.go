// Package server defines the logging capability consumers supply to the
// broadcast subsystem, plus a zerolog-backed default implementation.
package server

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger is the only capability the broadcast subsystem requires from its
// host: leveled logging with a format string and positional arguments.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

type zerologLogger struct {
	log zerolog.Logger
}

// NewZerologLogger wraps an existing zerolog.Logger in the Logger interface.
func NewZerologLogger(log zerolog.Logger) Logger {
	return &zerologLogger{log: log}
}

// NewLogger creates a Logger writing human-readable output to w.
// Passing nil writes to stderr.
func NewLogger(w io.Writer) Logger {
	if w == nil {
		w = os.Stderr
	}
	console := zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05.000"}
	return &zerologLogger{log: zerolog.New(console).With().Timestamp().Logger()}
}

func (l *zerologLogger) Debugf(format string, args ...any) {
	l.log.Debug().Msg(fmt.Sprintf(format, args...))
}

func (l *zerologLogger) Infof(format string, args ...any) {
	l.log.Info().Msg(fmt.Sprintf(format, args...))
}

func (l *zerologLogger) Warnf(format string, args ...any) {
	l.log.Warn().Msg(fmt.Sprintf(format, args...))
}

func (l *zerologLogger) Errorf(format string, args ...any) {
	l.log.Error().Msg(fmt.Sprintf(format, args...))
}

type nopLogger struct{}

// NopLogger returns a Logger that discards everything. Useful in tests and
// as the fallback when a caller passes a nil Logger.
func NopLogger() Logger {
	return nopLogger{}
}

func (nopLogger) Debugf(string, ...any) {}
func (nopLogger) Infof(string, ...any)  {}
func (nopLogger) Warnf(string, ...any)  {}
func (nopLogger) Errorf(string, ...any) {}

// ensureLogger substitutes the no-op logger for nil so call sites never
// have to nil-check.
func ensureLogger(logger Logger) Logger {
	if logger == nil {
		return NopLogger()
	}
	return logger
}
