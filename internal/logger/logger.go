// Package logger provides structured logging for the gateway, backed by
// log/slog. Components depend on the Logger interface so tests can swap in
// a discard logger without touching global state.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// LogLevel controls the minimum level a logger emits.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// slogLevel maps a LogLevel to its slog equivalent. Unknown values
// default to info so a typo in the config never silences logging.
func (l LogLevel) slogLevel() slog.Level {
	switch LogLevel(strings.ToLower(string(l))) {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger is the logging interface used throughout the gateway.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// With returns a child logger that always carries the given fields.
	With(fields ...Field) Logger
}

// slogLogger adapts *slog.Logger to the Logger interface.
type slogLogger struct {
	sl *slog.Logger
}

// NewSlogLogger creates a Logger writing JSON records to w at the given
// level. Extra attrs, if any, are attached to every record.
func NewSlogLogger(w io.Writer, level LogLevel, attrs []slog.Attr) Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level.slogLevel()})
	sl := slog.New(handler)
	if len(attrs) > 0 {
		args := make([]any, 0, len(attrs))
		for _, a := range attrs {
			args = append(args, a)
		}
		sl = sl.With(args...)
	}
	return &slogLogger{sl: sl}
}

// Default returns a Logger writing to stderr at info level.
func Default() Logger {
	return NewSlogLogger(os.Stderr, LogLevelInfo, nil)
}

func (l *slogLogger) Debug(msg string, fields ...Field) { l.sl.Debug(msg, fieldArgs(fields)...) }
func (l *slogLogger) Info(msg string, fields ...Field)  { l.sl.Info(msg, fieldArgs(fields)...) }
func (l *slogLogger) Warn(msg string, fields ...Field)  { l.sl.Warn(msg, fieldArgs(fields)...) }
func (l *slogLogger) Error(msg string, fields ...Field) { l.sl.Error(msg, fieldArgs(fields)...) }

func (l *slogLogger) With(fields ...Field) Logger {
	return &slogLogger{sl: l.sl.With(fieldArgs(fields)...)}
}

func fieldArgs(fields []Field) []any {
	args := make([]any, 0, len(fields))
	for _, f := range fields {
		args = append(args, f.attr)
	}
	return args
}
