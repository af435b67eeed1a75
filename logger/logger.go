package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// ZeroLogger wraps zerolog.Logger to implement the Logger interface.
// Output is JSON by default; pretty enables human-readable console output.
type ZeroLogger struct {
	zlog   *zerolog.Logger
	filter *CredentialFilter
}

// Ensure ZeroLogger implements the interface
var _ Logger = (*ZeroLogger)(nil)

// New creates a ZeroLogger writing to stdout at the given level.
// Unknown levels fall back to info.
func New(level string, pretty bool) *ZeroLogger {
	return NewWithWriter(level, pretty, os.Stdout)
}

// NewWithWriter creates a ZeroLogger writing to the given writer.
// Tests use this to capture output.
func NewWithWriter(level string, pretty bool, w io.Writer) *ZeroLogger {
	var l zerolog.Logger
	if pretty {
		l = zerolog.New(zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	} else {
		l = zerolog.New(w).With().Timestamp().Logger()
	}

	zLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		zLevel = zerolog.InfoLevel
	}
	l = l.Level(zLevel)

	return &ZeroLogger{zlog: &l, filter: NewCredentialFilter(nil)}
}

// WithFields returns a logger with additional fields attached to all entries.
// Credential-bearing fields are masked before attachment.
func (l *ZeroLogger) WithFields(fields map[string]any) Logger {
	if l.filter != nil {
		fields = l.filter.FilterFields(fields)
	}
	log := l.zlog.With().Fields(fields).Logger()
	return &ZeroLogger{zlog: &log, filter: l.filter}
}

// Info creates an info-level log event
func (l *ZeroLogger) Info() LogEvent {
	return &LogEventAdapter{event: l.zlog.Info(), filter: l.filter}
}

// Error creates an error-level log event
func (l *ZeroLogger) Error() LogEvent {
	return &LogEventAdapter{event: l.zlog.Error(), filter: l.filter}
}

// Debug creates a debug-level log event
func (l *ZeroLogger) Debug() LogEvent {
	return &LogEventAdapter{event: l.zlog.Debug(), filter: l.filter}
}

// Warn creates a warn-level log event
func (l *ZeroLogger) Warn() LogEvent {
	return &LogEventAdapter{event: l.zlog.Warn(), filter: l.filter}
}
