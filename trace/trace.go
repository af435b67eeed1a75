// Package trace provides request-identifier generation and context
// propagation for outbound Muset API calls.
package trace

import (
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// contextKey is the type for context keys to avoid collisions
type contextKey string

const (
	// requestIDKey is the context key for request ID values
	requestIDKey contextKey = "request_id"
	// HeaderXRequestID is the header used to carry the per-request trace identifier
	HeaderXRequestID = "X-Request-ID"
	// HeaderTraceParent is the W3C trace context header name
	HeaderTraceParent = "traceparent"
)

// NewRequestID generates a fresh unique request identifier.
func NewRequestID() string {
	return uuid.New().String()
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns a request ID from context if present
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if id, ok := ctx.Value(requestIDKey).(string); ok && id != "" {
		return id, true
	}
	return "", false
}

// EnsureRequestID returns an existing request ID from context or generates a new one
func EnsureRequestID(ctx context.Context) string {
	if id, ok := RequestIDFromContext(ctx); ok {
		return id
	}
	return NewRequestID()
}

// GenerateTraceParent creates a minimal W3C traceparent header value.
// Format: version(2)-trace-id(32)-span-id(16)-flags(2), e.g., "00-<32>-<16>-01"
func GenerateTraceParent() string {
	traceID := make([]byte, 16)
	spanID := make([]byte, 8)
	if _, err := crand.Read(traceID); err != nil {
		traceID = []byte(strings.Repeat("\x00", 16))
	}
	if _, err := crand.Read(spanID); err != nil {
		spanID = []byte(strings.Repeat("\x00", 8))
	}
	if allZero(traceID) {
		traceID[len(traceID)-1] = 0x01
	}
	if allZero(spanID) {
		spanID[len(spanID)-1] = 0x01
	}
	return "00-" + strings.ToLower(hex.EncodeToString(traceID)) + "-" + strings.ToLower(hex.EncodeToString(spanID)) + "-01"
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
