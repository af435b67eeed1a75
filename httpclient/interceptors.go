package httpclient

import (
	"context"
	nethttp "net/http"

	"golang.org/x/time/rate"

	"github.com/muset-ai/muset-go/session"
	"github.com/muset-ai/muset-go/trace"
)

// NewAuthInterceptor returns the request interceptor that augments every
// outbound request with a trace identifier and, when the session store
// holds credentials, the bearer token and the legacy user-id header.
//
// Pure augmentation: it never blocks and never fails the request. A
// missing token or user id simply leaves the request unauthenticated.
func NewAuthInterceptor(store *session.Store) RequestInterceptor {
	return func(ctx context.Context, req *nethttp.Request) error {
		if req.Header.Get(HeaderXRequestID) == "" {
			req.Header.Set(HeaderXRequestID, trace.EnsureRequestID(ctx))
		}

		if token, ok := store.Token(); ok {
			req.Header.Set(HeaderAuthorization, "Bearer "+token)
		}
		if userID, ok := store.UserID(); ok {
			req.Header.Set(HeaderXUserID, userID)
		}
		return nil
	}
}

// NewTraceParentInterceptor returns an interceptor that adds a W3C
// traceparent header when none is present.
func NewTraceParentInterceptor() RequestInterceptor {
	return func(_ context.Context, req *nethttp.Request) error {
		if req.Header.Get(trace.HeaderTraceParent) == "" {
			req.Header.Set(trace.HeaderTraceParent, trace.GenerateTraceParent())
		}
		return nil
	}
}

// NewRateLimitInterceptor returns an interceptor that waits on the given
// limiter before dispatch, honoring context cancellation. Retried
// attempts count against the limiter like any other request.
func NewRateLimitInterceptor(limiter *rate.Limiter) RequestInterceptor {
	return func(ctx context.Context, _ *nethttp.Request) error {
		return limiter.Wait(ctx)
	}
}
