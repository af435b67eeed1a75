// Package logger defines the structured logging contract used across the
// Muset client packages and provides a zerolog-backed implementation.
package logger

import "time"

// Logger is the contract for structured logging throughout the client.
// It provides methods for creating log events at different severity levels
// and for attaching contextual fields.
type Logger interface {
	Info() LogEvent
	Error() LogEvent
	Debug() LogEvent
	Warn() LogEvent
	WithFields(fields map[string]any) Logger
}

// LogEvent represents a structured log event that can be built with fields
// and sent with a final message.
type LogEvent interface {
	Msg(msg string)
	Msgf(format string, args ...any)
	Err(err error) LogEvent
	Str(key, value string) LogEvent
	Int(key string, value int) LogEvent
	Int64(key string, value int64) LogEvent
	Dur(key string, d time.Duration) LogEvent
	Interface(key string, i any) LogEvent
	Bytes(key string, val []byte) LogEvent
}
