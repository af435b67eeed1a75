package trace

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestIDContextRoundTrip(t *testing.T) {
	ctx := context.Background()

	_, ok := RequestIDFromContext(ctx)
	assert.False(t, ok)

	ctx = WithRequestID(ctx, "req-123")
	id, ok := RequestIDFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "req-123", id)
}

func TestRequestIDEmptyValueIgnored(t *testing.T) {
	ctx := WithRequestID(context.Background(), "")
	_, ok := RequestIDFromContext(ctx)
	assert.False(t, ok)
}

func TestEnsureRequestID(t *testing.T) {
	t.Run("returns existing ID", func(t *testing.T) {
		ctx := WithRequestID(context.Background(), "existing-456")
		assert.Equal(t, "existing-456", EnsureRequestID(ctx))
	})

	t.Run("generates new ID when absent", func(t *testing.T) {
		id := EnsureRequestID(context.Background())
		assert.NotEmpty(t, id)

		// Each call without a context value yields a distinct ID
		assert.NotEqual(t, id, EnsureRequestID(context.Background()))
	})
}

func TestNewRequestIDUniqueness(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id := NewRequestID()
		_, dup := seen[id]
		assert.False(t, dup, "duplicate request ID generated: %s", id)
		seen[id] = struct{}{}
	}
}

func TestGenerateTraceParent(t *testing.T) {
	pattern := regexp.MustCompile(`^00-[0-9a-f]{32}-[0-9a-f]{16}-01$`)

	for i := 0; i < 10; i++ {
		tp := GenerateTraceParent()
		assert.Regexp(t, pattern, tp)

		// trace-id and span-id must not be all zeros per W3C spec
		assert.NotContains(t, tp, "-00000000000000000000000000000000-")
	}
}
