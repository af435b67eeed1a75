// Package httpclient provides the resilient REST client used for every
// outbound Muset API call. Requests pass through a request-interceptor
// chain (trace ID, auth headers, throttling), then the transport; failed
// responses pass through the retry policy and, once surfaced, through the
// failure hooks (error normalization, session invalidation on 401).
package httpclient

import (
	"context"
	nethttp "net/http"
	"time"

	musettrace "github.com/muset-ai/muset-go/trace"
)

const (
	// HeaderXRequestID is the header carrying the per-request trace identifier
	HeaderXRequestID = musettrace.HeaderXRequestID
	// HeaderXUserID is the legacy compatibility header carrying the user id
	HeaderXUserID = "X-User-Id"
	// HeaderAuthorization carries the bearer token
	HeaderAuthorization = "Authorization"
)

// Client defines the REST client interface for making HTTP requests
type Client interface {
	Get(ctx context.Context, req *Request) (*Response, error)
	Post(ctx context.Context, req *Request) (*Response, error)
	Put(ctx context.Context, req *Request) (*Response, error)
	Patch(ctx context.Context, req *Request) (*Response, error)
	Delete(ctx context.Context, req *Request) (*Response, error)
	Do(ctx context.Context, method string, req *Request) (*Response, error)
}

// Request represents an outbound HTTP request
type Request struct {
	URL     string
	Headers map[string]string
	Body    []byte
}

// Response represents an HTTP response with tracking information
type Response struct {
	StatusCode int
	Body       []byte
	Headers    nethttp.Header
	Stats      Stats
}

// Stats contains request execution statistics
type Stats struct {
	// ElapsedTime covers the whole logical call, retries included
	ElapsedTime time.Duration
	// CallCount is the client-wide logical call counter
	CallCount int64
	// Attempts is the number of requests issued for this call (1 = no retry)
	Attempts int
}

// RequestInterceptor is called before sending each attempt of a request.
// Retried attempts re-run the full chain.
type RequestInterceptor func(ctx context.Context, req *nethttp.Request) error

// ResponseInterceptor is called after receiving each response
type ResponseInterceptor func(ctx context.Context, req *nethttp.Request, resp *nethttp.Response) error

// FailureHook is called exactly once per logical call when the final
// outcome is an error, after the retry policy has given up. status is the
// final HTTP status code, or 0 when no response was received. Hooks must
// not swallow the error; the client returns it to the caller unchanged.
type FailureHook func(ctx context.Context, req *nethttp.Request, status int, err error)

// RetryPolicy bounds retry behavior for idempotent requests.
// Delay for the n-th retry (n starting at 1) is
// min(InitialDelay × Multiplier^n, MaxDelay).
type RetryPolicy struct {
	MaxRetries   int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
}

// Config holds the REST client configuration
type Config struct {
	Timeout              time.Duration
	Retry                RetryPolicy
	RequestInterceptors  []RequestInterceptor
	ResponseInterceptors []ResponseInterceptor
	FailureHooks         []FailureHook
	DefaultHeaders       map[string]string
	// LogPayloads enables debug-level logging of headers and body payloads
	LogPayloads bool
	// MaxPayloadLogBytes caps the number of body bytes logged when LogPayloads is enabled
	MaxPayloadLogBytes int
}

// idempotentMethods are the methods the retry policy may re-issue.
// POST and PATCH are deliberately absent.
var idempotentMethods = map[string]struct{}{
	nethttp.MethodGet:     {},
	nethttp.MethodHead:    {},
	nethttp.MethodOptions: {},
	nethttp.MethodPut:     {},
	nethttp.MethodDelete:  {},
}

// IsIdempotent reports whether the retry policy may re-issue the method.
func IsIdempotent(method string) bool {
	_, ok := idempotentMethods[method]
	return ok
}
