package httpclient

import (
	"context"
	nethttp "net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/muset-ai/muset-go/session"
	"github.com/muset-ai/muset-go/trace"
)

const testExampleURL = "http://muset.test/api/v1/roadmaps"

func newTestRequest(t *testing.T) *nethttp.Request {
	t.Helper()
	req, err := nethttp.NewRequestWithContext(context.Background(), nethttp.MethodGet, testExampleURL, nethttp.NoBody)
	require.NoError(t, err)
	return req
}

func TestAuthInterceptor(t *testing.T) {
	t.Run("unauthenticated request gets trace ID only", func(t *testing.T) {
		store := session.New()
		interceptor := NewAuthInterceptor(store)
		req := newTestRequest(t)

		require.NoError(t, interceptor(context.Background(), req))

		assert.NotEmpty(t, req.Header.Get(HeaderXRequestID))
		assert.Empty(t, req.Header.Get(HeaderAuthorization))
		assert.Empty(t, req.Header.Get(HeaderXUserID))
	})

	t.Run("authenticated request gets bearer token and user header", func(t *testing.T) {
		store := session.New()
		store.SetCredentials("tok-123", "user-42")
		interceptor := NewAuthInterceptor(store)
		req := newTestRequest(t)

		require.NoError(t, interceptor(context.Background(), req))

		assert.Equal(t, "Bearer tok-123", req.Header.Get(HeaderAuthorization))
		assert.Equal(t, "user-42", req.Header.Get(HeaderXUserID))
		assert.NotEmpty(t, req.Header.Get(HeaderXRequestID))
	})

	t.Run("trace ID from context is propagated", func(t *testing.T) {
		interceptor := NewAuthInterceptor(session.New())
		req := newTestRequest(t)

		ctx := trace.WithRequestID(context.Background(), "ctx-trace-789")
		require.NoError(t, interceptor(ctx, req))

		assert.Equal(t, "ctx-trace-789", req.Header.Get(HeaderXRequestID))
	})

	t.Run("existing trace header preserved", func(t *testing.T) {
		interceptor := NewAuthInterceptor(session.New())
		req := newTestRequest(t)
		req.Header.Set(HeaderXRequestID, "preset-456")

		require.NoError(t, interceptor(context.Background(), req))

		assert.Equal(t, "preset-456", req.Header.Get(HeaderXRequestID))
	})

	t.Run("cleared session sends no credentials", func(t *testing.T) {
		store := session.New()
		store.SetCredentials("tok-123", "user-42")
		store.Clear()
		interceptor := NewAuthInterceptor(store)
		req := newTestRequest(t)

		require.NoError(t, interceptor(context.Background(), req))

		assert.Empty(t, req.Header.Get(HeaderAuthorization))
		assert.Empty(t, req.Header.Get(HeaderXUserID))
	})

	t.Run("each request gets a distinct generated trace ID", func(t *testing.T) {
		interceptor := NewAuthInterceptor(session.New())

		first := newTestRequest(t)
		second := newTestRequest(t)
		require.NoError(t, interceptor(context.Background(), first))
		require.NoError(t, interceptor(context.Background(), second))

		assert.NotEqual(t, first.Header.Get(HeaderXRequestID), second.Header.Get(HeaderXRequestID))
	})
}

func TestTraceParentInterceptor(t *testing.T) {
	interceptor := NewTraceParentInterceptor()
	req := newTestRequest(t)

	require.NoError(t, interceptor(context.Background(), req))
	assert.NotEmpty(t, req.Header.Get(trace.HeaderTraceParent))

	t.Run("existing header preserved", func(t *testing.T) {
		req := newTestRequest(t)
		req.Header.Set(trace.HeaderTraceParent, "00-abc-def-01")
		require.NoError(t, interceptor(context.Background(), req))
		assert.Equal(t, "00-abc-def-01", req.Header.Get(trace.HeaderTraceParent))
	})
}

func TestRateLimitInterceptor(t *testing.T) {
	t.Run("allows requests within burst", func(t *testing.T) {
		interceptor := NewRateLimitInterceptor(rate.NewLimiter(rate.Inf, 1))
		assert.NoError(t, interceptor(context.Background(), newTestRequest(t)))
	})

	t.Run("fails when context expires before a token is available", func(t *testing.T) {
		limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
		interceptor := NewRateLimitInterceptor(limiter)

		// Drain the burst
		require.NoError(t, interceptor(context.Background(), newTestRequest(t)))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		assert.Error(t, interceptor(ctx, newTestRequest(t)))
	})
}
