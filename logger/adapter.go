package logger

import (
	"time"

	"github.com/rs/zerolog"
)

// LogEventAdapter adapts zerolog events to the LogEvent interface,
// applying the credential filter to string and interface fields.
type LogEventAdapter struct {
	event  *zerolog.Event
	filter *CredentialFilter
}

// Msg logs the message
func (lea *LogEventAdapter) Msg(msg string) {
	lea.event.Msg(msg)
}

// Msgf logs a formatted message
func (lea *LogEventAdapter) Msgf(format string, args ...any) {
	lea.event.Msgf(format, args...)
}

// Err adds an error to the log event
func (lea *LogEventAdapter) Err(err error) LogEvent {
	return &LogEventAdapter{event: lea.event.Err(err), filter: lea.filter}
}

// Str adds a string field to the log event
func (lea *LogEventAdapter) Str(key, value string) LogEvent {
	if lea.filter != nil {
		value = lea.filter.FilterString(key, value)
	}
	return &LogEventAdapter{event: lea.event.Str(key, value), filter: lea.filter}
}

// Int adds an integer field to the log event
func (lea *LogEventAdapter) Int(key string, value int) LogEvent {
	return &LogEventAdapter{event: lea.event.Int(key, value), filter: lea.filter}
}

// Int64 adds an int64 field to the log event
func (lea *LogEventAdapter) Int64(key string, value int64) LogEvent {
	return &LogEventAdapter{event: lea.event.Int64(key, value), filter: lea.filter}
}

// Dur adds a duration field to the log event
func (lea *LogEventAdapter) Dur(key string, d time.Duration) LogEvent {
	return &LogEventAdapter{event: lea.event.Dur(key, d), filter: lea.filter}
}

// Interface adds an arbitrary field to the log event
func (lea *LogEventAdapter) Interface(key string, i any) LogEvent {
	if lea.filter != nil {
		i = lea.filter.FilterValue(key, i)
	}
	return &LogEventAdapter{event: lea.event.Interface(key, i), filter: lea.filter}
}

// Bytes adds a byte slice field to the log event
func (lea *LogEventAdapter) Bytes(key string, val []byte) LogEvent {
	return &LogEventAdapter{event: lea.event.Bytes(key, val), filter: lea.filter}
}
