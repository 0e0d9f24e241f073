package logger

import (
	"log/slog"
	"time"
)

// Field is a typed key/value pair attached to a log record.
type Field struct {
	attr slog.Attr
}

// String creates a string field.
func String(key, value string) Field {
	return Field{attr: slog.String(key, value)}
}

// Int creates an int field.
func Int(key string, value int) Field {
	return Field{attr: slog.Int(key, value)}
}

// Int64 creates an int64 field.
func Int64(key string, value int64) Field {
	return Field{attr: slog.Int64(key, value)}
}

// Uint64 creates a uint64 field.
func Uint64(key string, value uint64) Field {
	return Field{attr: slog.Uint64(key, value)}
}

// Bool creates a bool field.
func Bool(key string, value bool) Field {
	return Field{attr: slog.Bool(key, value)}
}

// Duration creates a duration field rendered as a human-readable string.
func Duration(key string, value time.Duration) Field {
	return Field{attr: slog.String(key, value.String())}
}

// Any creates a field with an arbitrary value.
func Any(key string, value any) Field {
	return Field{attr: slog.Any(key, value)}
}

// Error creates an "error" field. A nil error renders as "<nil>".
func Error(err error) Field {
	if err == nil {
		return Field{attr: slog.String("error", "<nil>")}
	}
	return Field{attr: slog.String("error", err.Error())}
}
