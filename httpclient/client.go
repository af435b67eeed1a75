package httpclient

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"net"
	nethttp "net/http"
	"sync/atomic"
	"time"

	"github.com/muset-ai/muset-go/config"
	"github.com/muset-ai/muset-go/logger"
)

const (
	// DefaultTimeout is the default request timeout duration
	DefaultTimeout = 30 * time.Second

	// DefaultMaxRetries is the default maximum number of retries for failed requests
	DefaultMaxRetries = 0

	// DefaultInitialDelay is the default base delay between retries
	DefaultInitialDelay = 500 * time.Millisecond

	// DefaultMultiplier is the default backoff multiplier
	DefaultMultiplier = 2.0

	// DefaultMaxDelay caps the computed backoff delay
	DefaultMaxDelay = 10 * time.Second

	// DefaultMaxPayloadLogBytes caps logged body payloads
	DefaultMaxPayloadLogBytes = 2048
)

// client implements the Client interface
type client struct {
	httpClient           *nethttp.Client
	logger               logger.Logger
	config               *Config
	requestInterceptors  []RequestInterceptor
	responseInterceptors []ResponseInterceptor
	failureHooks         []FailureHook
	callCount            int64
}

func defaultConfig() *Config {
	return &Config{
		Timeout: DefaultTimeout,
		Retry: RetryPolicy{
			MaxRetries:   DefaultMaxRetries,
			InitialDelay: DefaultInitialDelay,
			Multiplier:   DefaultMultiplier,
			MaxDelay:     DefaultMaxDelay,
		},
		RequestInterceptors:  []RequestInterceptor{},
		ResponseInterceptors: []ResponseInterceptor{},
		FailureHooks:         []FailureHook{},
		DefaultHeaders:       make(map[string]string),
		MaxPayloadLogBytes:   DefaultMaxPayloadLogBytes,
	}
}

// NewClient creates a new REST client with default configuration
func NewClient(log logger.Logger) Client {
	return NewBuilder(log).Build()
}

// Builder provides a fluent interface for configuring the REST client
type Builder struct {
	config     *Config
	logger     logger.Logger
	httpClient *nethttp.Client
}

// NewBuilder creates a new client builder
func NewBuilder(log logger.Logger) *Builder {
	return &Builder{
		config: defaultConfig(),
		logger: log,
	}
}

// WithTimeout sets the request timeout
func (b *Builder) WithTimeout(timeout time.Duration) *Builder {
	b.config.Timeout = timeout
	return b
}

// WithRetryPolicy sets the retry configuration
func (b *Builder) WithRetryPolicy(policy RetryPolicy) *Builder {
	if policy.InitialDelay <= 0 {
		policy.InitialDelay = DefaultInitialDelay
	}
	if policy.Multiplier < 1 {
		policy.Multiplier = DefaultMultiplier
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = DefaultMaxDelay
	}
	b.config.Retry = policy
	return b
}

// WithDefaultHeader adds a default header that will be sent with all requests
func (b *Builder) WithDefaultHeader(key, value string) *Builder {
	b.config.DefaultHeaders[key] = value
	return b
}

// WithRequestInterceptor adds a request interceptor
func (b *Builder) WithRequestInterceptor(interceptor RequestInterceptor) *Builder {
	b.config.RequestInterceptors = append(b.config.RequestInterceptors, interceptor)
	return b
}

// WithResponseInterceptor adds a response interceptor
func (b *Builder) WithResponseInterceptor(interceptor ResponseInterceptor) *Builder {
	b.config.ResponseInterceptors = append(b.config.ResponseInterceptors, interceptor)
	return b
}

// WithFailureHook adds a failure hook
func (b *Builder) WithFailureHook(hook FailureHook) *Builder {
	b.config.FailureHooks = append(b.config.FailureHooks, hook)
	return b
}

// WithPayloadLogging enables debug logging of headers and bodies,
// capping logged bodies at maxBytes.
func (b *Builder) WithPayloadLogging(maxBytes int) *Builder {
	b.config.LogPayloads = true
	if maxBytes > 0 {
		b.config.MaxPayloadLogBytes = maxBytes
	}
	return b
}

// WithHTTPClient supplies a pre-configured *http.Client. A zero timeout
// on the supplied client is replaced with the builder's timeout.
func (b *Builder) WithHTTPClient(hc *nethttp.Client) *Builder {
	b.httpClient = hc
	return b
}

// WithTransport sets a custom transport on the client
func (b *Builder) WithTransport(rt nethttp.RoundTripper) *Builder {
	if b.httpClient == nil {
		b.httpClient = &nethttp.Client{}
	}
	b.httpClient.Transport = rt
	return b
}

// FromConfig applies the loaded client configuration (timeout, retry
// policy, payload logging).
func (b *Builder) FromConfig(cfg *config.Config) *Builder {
	b.WithTimeout(cfg.API.Timeout)
	b.WithRetryPolicy(RetryPolicy{
		MaxRetries:   cfg.Retry.MaxRetries,
		InitialDelay: cfg.Retry.InitialDelay,
		Multiplier:   cfg.Retry.Multiplier,
		MaxDelay:     cfg.Retry.MaxDelay,
	})
	if cfg.Log.Payloads {
		b.WithPayloadLogging(cfg.Log.MaxPayloadBytes)
	}
	return b
}

// Build creates the REST client with the configured options
func (b *Builder) Build() Client {
	hc := b.httpClient
	if hc == nil {
		hc = &nethttp.Client{}
	}
	if hc.Timeout == 0 {
		hc.Timeout = b.config.Timeout
	}
	return &client{
		httpClient:           hc,
		logger:               b.logger,
		config:               b.config,
		requestInterceptors:  b.config.RequestInterceptors,
		responseInterceptors: b.config.ResponseInterceptors,
		failureHooks:         b.config.FailureHooks,
	}
}

// Get performs a GET request
func (c *client) Get(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, nethttp.MethodGet, req)
}

// Post performs a POST request
func (c *client) Post(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, nethttp.MethodPost, req)
}

// Put performs a PUT request
func (c *client) Put(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, nethttp.MethodPut, req)
}

// Patch performs a PATCH request
func (c *client) Patch(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, nethttp.MethodPatch, req)
}

// Delete performs a DELETE request
func (c *client) Delete(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, nethttp.MethodDelete, req)
}

// Do performs an HTTP request with the specified method. Failed attempts
// are re-issued per the retry policy; each attempt rebuilds the request
// and re-runs the interceptor chain. Retries are strictly sequential.
func (c *client) Do(ctx context.Context, method string, req *Request) (*Response, error) {
	if err := c.validateRequest(req); err != nil {
		return nil, err
	}

	start := time.Now()
	callCount := atomic.AddInt64(&c.callCount, 1)
	retryable := IsIdempotent(method)

	for attempt := 0; ; {
		httpReq, err := c.buildRequest(ctx, method, req)
		if err != nil {
			return nil, err
		}

		c.logRequest(method, httpReq, req)

		httpResp, err := c.httpClient.Do(httpReq)
		if err != nil {
			clientErr := c.classifyTransportError(err)
			// A failure with no response is always retry-eligible for
			// idempotent methods.
			if retryable && attempt < c.config.Retry.MaxRetries {
				attempt++
				if waitErr := c.waitBackoff(ctx, attempt, clientErr); waitErr != nil {
					return nil, waitErr
				}
				continue
			}
			c.notifyFailure(ctx, httpReq, 0, clientErr)
			return nil, clientErr
		}

		resp, err := c.buildResponse(ctx, start, callCount, attempt+1, httpReq, httpResp)
		if err != nil {
			c.notifyFailure(ctx, httpReq, 0, err)
			return nil, err
		}

		if IsSuccessStatus(resp.StatusCode) {
			c.logResponse(resp)
			return resp, nil
		}

		// Response failures are eligible only in the server-error range.
		if retryable && IsRetryableStatus(resp.StatusCode) && attempt < c.config.Retry.MaxRetries {
			attempt++
			statusErr := NewHTTPError("server error", resp.StatusCode, resp.Body)
			if waitErr := c.waitBackoff(ctx, attempt, statusErr); waitErr != nil {
				return nil, waitErr
			}
			continue
		}

		c.logResponse(resp)
		httpErr := NewHTTPError("request failed", resp.StatusCode, resp.Body)
		c.notifyFailure(ctx, httpReq, resp.StatusCode, httpErr)
		return resp, httpErr
	}
}

// retryDelay computes the backoff delay for the given retry number
// (1-based): min(InitialDelay × Multiplier^n, MaxDelay). The sequence is
// monotonically non-decreasing and capped.
func (c *client) retryDelay(retry int) time.Duration {
	policy := c.config.Retry
	base := policy.InitialDelay
	if base <= 0 {
		base = DefaultInitialDelay
	}
	mult := policy.Multiplier
	if mult < 1 {
		mult = DefaultMultiplier
	}
	maxDelay := policy.MaxDelay
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}

	d := time.Duration(float64(base) * math.Pow(mult, float64(retry)))
	if d <= 0 || d > maxDelay {
		// Overflow from large exponents lands here too.
		return maxDelay
	}
	return d
}

// waitBackoff logs the retry attempt and sleeps for the computed delay,
// honoring context cancellation.
func (c *client) waitBackoff(ctx context.Context, retry int, cause error) error {
	delay := c.retryDelay(retry)

	c.logger.Warn().
		Err(cause).
		Int("attempt", retry).
		Int("max_retries", c.config.Retry.MaxRetries).
		Dur("delay", delay).
		Msg("REST client retrying request")

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return NewNetworkError("request cancelled during backoff", ctx.Err())
	case <-timer.C:
		return nil
	}
}

// validateRequest validates the request before sending
func (c *client) validateRequest(req *Request) error {
	if req == nil {
		return NewValidationError("request cannot be nil", "request")
	}
	if req.URL == "" {
		return NewValidationError("URL cannot be empty", "url")
	}
	return nil
}

// applyHeaders applies default and request-specific headers
func (c *client) applyHeaders(httpReq *nethttp.Request, req *Request) {
	for key, value := range c.config.DefaultHeaders {
		httpReq.Header.Set(key, value)
	}

	// Request-specific headers override defaults
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	if httpReq.Header.Get("Content-Type") == "" && req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
}

// buildRequest constructs an *http.Request, applies headers, and runs the
// request interceptor chain.
func (c *client) buildRequest(ctx context.Context, method string, req *Request) (*nethttp.Request, error) {
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := nethttp.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, NewValidationError("failed to create HTTP request: "+err.Error(), "url")
	}

	c.applyHeaders(httpReq, req)

	if err := c.runRequestInterceptors(ctx, httpReq); err != nil {
		return nil, NewInterceptorError("request interceptor failed", "request", err)
	}
	return httpReq, nil
}

// buildResponse runs response interceptors, reads the body, and builds a Response.
func (c *client) buildResponse(ctx context.Context, start time.Time, callCount int64, attempts int, httpReq *nethttp.Request, httpResp *nethttp.Response) (*Response, error) {
	defer httpResp.Body.Close()

	if err := c.runResponseInterceptors(ctx, httpReq, httpResp); err != nil {
		return nil, NewInterceptorError("response interceptor failed", "response", err)
	}

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, NewNetworkError("failed to read response body", err)
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Body:       respBody,
		Headers:    httpResp.Header,
		Stats: Stats{
			ElapsedTime: time.Since(start),
			CallCount:   callCount,
			Attempts:    attempts,
		},
	}, nil
}

// classifyTransportError maps transport failures to the error taxonomy.
func (c *client) classifyTransportError(err error) ClientError {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewTimeoutError("request timeout", c.config.Timeout)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewTimeoutError("request timeout", c.config.Timeout)
	}
	return NewNetworkError("request execution failed", err)
}

// notifyFailure invokes the failure hooks exactly once per logical call.
func (c *client) notifyFailure(ctx context.Context, req *nethttp.Request, status int, err error) {
	for _, hook := range c.failureHooks {
		hook(ctx, req, status, err)
	}
}

// runRequestInterceptors executes all request interceptors
func (c *client) runRequestInterceptors(ctx context.Context, req *nethttp.Request) error {
	for _, interceptor := range c.requestInterceptors {
		if err := interceptor(ctx, req); err != nil {
			return err
		}
	}
	return nil
}

// runResponseInterceptors executes all response interceptors
func (c *client) runResponseInterceptors(ctx context.Context, req *nethttp.Request, resp *nethttp.Response) error {
	for _, interceptor := range c.responseInterceptors {
		if err := interceptor(ctx, req, resp); err != nil {
			return err
		}
	}
	return nil
}

// logRequest logs the outgoing request. Payload details are debug-level
// and gated by LogPayloads; they carry no production behavior.
func (c *client) logRequest(method string, httpReq *nethttp.Request, req *Request) {
	if !c.config.LogPayloads {
		return
	}

	headers := make(map[string]string, len(httpReq.Header))
	for key := range httpReq.Header {
		headers[key] = httpReq.Header.Get(key)
	}

	logEvent := c.logger.Debug().
		Str("direction", "outbound").
		Str("method", method).
		Str("url", req.URL).
		Interface("headers", headers)

	if len(req.Body) > 0 {
		logEvent = logEvent.Bytes("body", c.capPayload(req.Body))
	}

	logEvent.Msg("REST client request")
}

// logResponse logs the incoming response with latency
func (c *client) logResponse(resp *Response) {
	if !c.config.LogPayloads {
		return
	}

	logEvent := c.logger.Debug().
		Str("direction", "inbound").
		Int("status", resp.StatusCode).
		Dur("elapsed", resp.Stats.ElapsedTime).
		Int64("call_count", resp.Stats.CallCount).
		Int("attempts", resp.Stats.Attempts)

	if len(resp.Body) > 0 {
		logEvent = logEvent.Bytes("body", c.capPayload(resp.Body))
	}

	logEvent.Msg("REST client response")
}

func (c *client) capPayload(body []byte) []byte {
	maxBytes := c.config.MaxPayloadLogBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxPayloadLogBytes
	}
	if len(body) > maxBytes {
		return body[:maxBytes]
	}
	return body
}
