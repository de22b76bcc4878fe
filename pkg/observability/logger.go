// Package observability provides the logger and Prometheus metrics shared by
// the ingester, the query service and the inspection tool.
package observability

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the structured logger used across the codebase. Fields are
// attached to the entry as key/value pairs.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})

	// WithPrefix returns a logger that tags entries with the given component.
	WithPrefix(prefix string) Logger
}

type zeroLogger struct {
	base   zerolog.Logger
	prefix string
}

// NewLogger creates a Logger writing to stderr. A terminal gets the human
// readable console format, anything else gets one JSON object per line.
// Unknown levels fall back to info.
func NewLogger(prefix, level string) Logger {
	var w io.Writer = os.Stderr
	if fi, err := os.Stderr.Stat(); err == nil && fi.Mode()&os.ModeCharDevice != 0 {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	return NewLoggerWithWriter(w, prefix, level)
}

// NewLoggerWithWriter creates a JSON Logger writing to w.
func NewLoggerWithWriter(w io.Writer, prefix, level string) Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return &zeroLogger{
		base:   zerolog.New(w).Level(lvl).With().Timestamp().Logger(),
		prefix: prefix,
	}
}

func (l *zeroLogger) Debug(msg string, fields map[string]interface{}) {
	l.emit(l.base.Debug(), msg, fields)
}

func (l *zeroLogger) Info(msg string, fields map[string]interface{}) {
	l.emit(l.base.Info(), msg, fields)
}

func (l *zeroLogger) Warn(msg string, fields map[string]interface{}) {
	l.emit(l.base.Warn(), msg, fields)
}

func (l *zeroLogger) Error(msg string, fields map[string]interface{}) {
	l.emit(l.base.Error(), msg, fields)
}

func (l *zeroLogger) WithPrefix(prefix string) Logger {
	return &zeroLogger{base: l.base, prefix: prefix}
}

func (l *zeroLogger) emit(ev *zerolog.Event, msg string, fields map[string]interface{}) {
	if ev == nil {
		return
	}
	if l.prefix != "" {
		ev = ev.Str("component", l.prefix)
	}
	if len(fields) > 0 {
		ev = ev.Fields(fields)
	}
	ev.Msg(msg)
}

// NoopLogger discards everything.
type NoopLogger struct{}

func (NoopLogger) Debug(string, map[string]interface{}) {}
func (NoopLogger) Info(string, map[string]interface{})  {}
func (NoopLogger) Warn(string, map[string]interface{})  {}
func (NoopLogger) Error(string, map[string]interface{}) {}

// WithPrefix implements Logger.
func (n NoopLogger) WithPrefix(string) Logger { return n }

// NewNoopLogger creates a NoopLogger.
func NewNoopLogger() Logger {
	return NoopLogger{}
}
