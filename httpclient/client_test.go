package httpclient

import (
	"context"
	"fmt"
	nethttp "net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muset-ai/muset-go/config"
	"github.com/muset-ai/muset-go/logger"
)

// Test constants to avoid string duplication
const (
	testAPIKey     = "X-API-Key"
	testAPIValue   = "test-key"
	testTaskPath   = "/api/v1/tasks/abc"
	testFastRetries = 3
)

func createTestLogger() logger.Logger {
	return logger.New("error", false)
}

// fastRetryPolicy keeps test sleeps in the low milliseconds
func fastRetryPolicy(maxRetries int) RetryPolicy {
	return RetryPolicy{
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Millisecond,
	}
}

type roundTripperFunc func(*nethttp.Request) (*nethttp.Response, error)

func (f roundTripperFunc) RoundTrip(req *nethttp.Request) (*nethttp.Response, error) {
	return f(req)
}

func TestNewClient(t *testing.T) {
	client := NewClient(createTestLogger())
	assert.NotNil(t, client)
}

func TestBuilder(t *testing.T) {
	log := createTestLogger()

	t.Run("default configuration", func(t *testing.T) {
		built := NewBuilder(log).Build()
		clientImpl := built.(*client)
		assert.Equal(t, DefaultTimeout, clientImpl.config.Timeout)
		assert.Equal(t, DefaultMaxRetries, clientImpl.config.Retry.MaxRetries)
	})

	t.Run("with retry policy defaults zero values", func(t *testing.T) {
		built := NewBuilder(log).
			WithRetryPolicy(RetryPolicy{MaxRetries: 2}).
			Build()
		clientImpl := built.(*client)
		assert.Equal(t, 2, clientImpl.config.Retry.MaxRetries)
		assert.Equal(t, DefaultInitialDelay, clientImpl.config.Retry.InitialDelay)
		assert.InDelta(t, DefaultMultiplier, clientImpl.config.Retry.Multiplier, 0.001)
		assert.Equal(t, DefaultMaxDelay, clientImpl.config.Retry.MaxDelay)
	})

	t.Run("with custom http client zero timeout uses builder timeout", func(t *testing.T) {
		custom := &nethttp.Client{}
		built := NewBuilder(log).
			WithHTTPClient(custom).
			WithTimeout(2 * time.Second).
			Build()

		clientImpl := built.(*client)
		assert.Equal(t, 2*time.Second, clientImpl.httpClient.Timeout)
	})

	t.Run("from loaded config", func(t *testing.T) {
		cfg, err := config.Load(config.WithYAML([]byte(`
api:
  base_url: https://api.muset.test
  timeout: 7s
retry:
  max_retries: 5
  initial_delay: 50ms
  multiplier: 1.5
  max_delay: 3s
log:
  payloads: true
  max_payload_bytes: 64
`)), config.WithoutEnv())
		require.NoError(t, err)

		built := NewBuilder(log).FromConfig(cfg).Build()
		clientImpl := built.(*client)
		assert.Equal(t, 7*time.Second, clientImpl.config.Timeout)
		assert.Equal(t, 5, clientImpl.config.Retry.MaxRetries)
		assert.Equal(t, 50*time.Millisecond, clientImpl.config.Retry.InitialDelay)
		assert.True(t, clientImpl.config.LogPayloads)
		assert.Equal(t, 64, clientImpl.config.MaxPayloadLogBytes)
	})
}

func TestRequestValidation(t *testing.T) {
	built := NewBuilder(createTestLogger()).Build()

	t.Run("nil request", func(t *testing.T) {
		_, err := built.Get(context.Background(), nil)
		assert.True(t, IsErrorType(err, ValidationError))
	})

	t.Run("empty URL", func(t *testing.T) {
		_, err := built.Get(context.Background(), &Request{})
		assert.True(t, IsErrorType(err, ValidationError))
	})
}

func TestSuccessfulRequest(t *testing.T) {
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		assert.Equal(t, testAPIValue, r.Header.Get(testAPIKey))
		w.WriteHeader(nethttp.StatusOK)
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer server.Close()

	built := NewBuilder(createTestLogger()).
		WithDefaultHeader(testAPIKey, testAPIValue).
		Build()

	resp, err := built.Get(context.Background(), &Request{URL: server.URL + testTaskPath})
	require.NoError(t, err)
	assert.Equal(t, nethttp.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"ok":true}`, string(resp.Body))
	assert.Equal(t, 1, resp.Stats.Attempts)
	assert.Positive(t, resp.Stats.ElapsedTime)
}

func TestRetryOnServerError(t *testing.T) {
	t.Run("GET retried until success", func(t *testing.T) {
		var hits int32
		server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, _ *nethttp.Request) {
			if atomic.AddInt32(&hits, 1) < 3 {
				w.WriteHeader(nethttp.StatusInternalServerError)
				return
			}
			w.WriteHeader(nethttp.StatusOK)
		}))
		defer server.Close()

		built := NewBuilder(createTestLogger()).
			WithRetryPolicy(fastRetryPolicy(testFastRetries)).
			Build()

		resp, err := built.Get(context.Background(), &Request{URL: server.URL})
		require.NoError(t, err)
		assert.Equal(t, nethttp.StatusOK, resp.StatusCode)
		assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
		assert.Equal(t, 3, resp.Stats.Attempts)
	})

	t.Run("GET exhausts retries then surfaces last failure", func(t *testing.T) {
		var hits int32
		server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, _ *nethttp.Request) {
			atomic.AddInt32(&hits, 1)
			w.WriteHeader(nethttp.StatusBadGateway)
		}))
		defer server.Close()

		built := NewBuilder(createTestLogger()).
			WithRetryPolicy(fastRetryPolicy(2)).
			Build()

		resp, err := built.Get(context.Background(), &Request{URL: server.URL})
		require.Error(t, err)
		assert.True(t, IsHTTPStatusError(err, nethttp.StatusBadGateway))
		assert.Equal(t, nethttp.StatusBadGateway, resp.StatusCode)
		// initial attempt + 2 retries
		assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
	})

	t.Run("client error status is never retried", func(t *testing.T) {
		var hits int32
		server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, _ *nethttp.Request) {
			atomic.AddInt32(&hits, 1)
			w.WriteHeader(nethttp.StatusNotFound)
		}))
		defer server.Close()

		built := NewBuilder(createTestLogger()).
			WithRetryPolicy(fastRetryPolicy(testFastRetries)).
			Build()

		_, err := built.Get(context.Background(), &Request{URL: server.URL})
		require.Error(t, err)
		assert.True(t, IsHTTPStatusError(err, nethttp.StatusNotFound))
		assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	})
}

func TestMutatingMethodsNeverRetried(t *testing.T) {
	methods := []struct {
		name string
		call func(Client, context.Context, *Request) (*Response, error)
	}{
		{nethttp.MethodPost, func(c Client, ctx context.Context, r *Request) (*Response, error) { return c.Post(ctx, r) }},
		{nethttp.MethodPatch, func(c Client, ctx context.Context, r *Request) (*Response, error) { return c.Patch(ctx, r) }},
	}

	for _, m := range methods {
		t.Run(m.name+" with 500", func(t *testing.T) {
			var hits int32
			server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, _ *nethttp.Request) {
				atomic.AddInt32(&hits, 1)
				w.WriteHeader(nethttp.StatusInternalServerError)
			}))
			defer server.Close()

			built := NewBuilder(createTestLogger()).
				WithRetryPolicy(fastRetryPolicy(testFastRetries)).
				Build()

			_, err := built.Do(context.Background(), m.name, &Request{URL: server.URL, Body: []byte(`{}`)})
			require.Error(t, err)
			assert.Equal(t, int32(1), atomic.LoadInt32(&hits), "mutating method must not be re-issued")
		})

		t.Run(m.name+" with network error", func(t *testing.T) {
			var hits int32
			transport := roundTripperFunc(func(_ *nethttp.Request) (*nethttp.Response, error) {
				atomic.AddInt32(&hits, 1)
				return nil, fmt.Errorf("connection refused")
			})

			built := NewBuilder(createTestLogger()).
				WithTransport(transport).
				WithRetryPolicy(fastRetryPolicy(testFastRetries)).
				Build()

			_, err := built.Do(context.Background(), m.name, &Request{URL: "http://muset.test"})
			require.Error(t, err)
			assert.True(t, IsErrorType(err, NetworkError))
			assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
		})
	}
}

func TestNetworkErrorRetriedForIdempotentMethods(t *testing.T) {
	var hits int32
	cause := fmt.Errorf("connection refused")
	transport := roundTripperFunc(func(_ *nethttp.Request) (*nethttp.Response, error) {
		atomic.AddInt32(&hits, 1)
		return nil, cause
	})

	built := NewBuilder(createTestLogger()).
		WithTransport(transport).
		WithRetryPolicy(fastRetryPolicy(2)).
		Build()

	_, err := built.Get(context.Background(), &Request{URL: "http://muset.test/users/42/profile"})
	require.Error(t, err)
	assert.True(t, IsErrorType(err, NetworkError))
	// Network errors are always eligible: initial attempt + 2 retries
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
	// The final rejection carries the original network error
	assert.ErrorIs(t, err, cause)
}

func TestRetryDelaySequence(t *testing.T) {
	built := NewBuilder(createTestLogger()).
		WithRetryPolicy(RetryPolicy{
			MaxRetries:   10,
			InitialDelay: 100 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     time.Second,
		}).
		Build()
	clientImpl := built.(*client)

	var prev time.Duration
	for retry := 1; retry <= 10; retry++ {
		d := clientImpl.retryDelay(retry)
		assert.GreaterOrEqual(t, d, prev, "backoff must be monotonically non-decreasing")
		assert.LessOrEqual(t, d, time.Second, "backoff must be capped at MaxDelay")
		prev = d
	}

	// Formula check: min(initial × multiplier^n, max)
	assert.Equal(t, 200*time.Millisecond, clientImpl.retryDelay(1))
	assert.Equal(t, 400*time.Millisecond, clientImpl.retryDelay(2))
	assert.Equal(t, 800*time.Millisecond, clientImpl.retryDelay(3))
	assert.Equal(t, time.Second, clientImpl.retryDelay(4))
	assert.Equal(t, time.Second, clientImpl.retryDelay(20))
}

func TestRetryDelayOverflowCapped(t *testing.T) {
	built := NewBuilder(createTestLogger()).
		WithRetryPolicy(RetryPolicy{
			MaxRetries:   1000,
			InitialDelay: time.Second,
			Multiplier:   10,
			MaxDelay:     30 * time.Second,
		}).
		Build()
	clientImpl := built.(*client)

	assert.Equal(t, 30*time.Second, clientImpl.retryDelay(500))
}

func TestBackoffHonorsContextCancellation(t *testing.T) {
	transport := roundTripperFunc(func(_ *nethttp.Request) (*nethttp.Response, error) {
		return nil, fmt.Errorf("connection refused")
	})

	built := NewBuilder(createTestLogger()).
		WithTransport(transport).
		WithRetryPolicy(RetryPolicy{
			MaxRetries:   5,
			InitialDelay: time.Hour, // would stall without cancellation
			Multiplier:   2,
			MaxDelay:     time.Hour,
		}).
		Build()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := built.Get(ctx, &Request{URL: "http://muset.test"})
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestInterceptorChainRunsPerAttempt(t *testing.T) {
	var hits int32
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(nethttp.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(nethttp.StatusOK)
	}))
	defer server.Close()

	var interceptorRuns int32
	built := NewBuilder(createTestLogger()).
		WithRetryPolicy(fastRetryPolicy(testFastRetries)).
		WithRequestInterceptor(func(_ context.Context, req *nethttp.Request) error {
			atomic.AddInt32(&interceptorRuns, 1)
			req.Header.Set("X-Attempt-Stamp", time.Now().String())
			return nil
		}).
		Build()

	_, err := built.Get(context.Background(), &Request{URL: server.URL})
	require.NoError(t, err)
	// Re-issued requests go through the full pipeline again
	assert.Equal(t, int32(2), atomic.LoadInt32(&interceptorRuns))
}

func TestRequestInterceptorErrorAborts(t *testing.T) {
	built := NewBuilder(createTestLogger()).
		WithRequestInterceptor(func(_ context.Context, _ *nethttp.Request) error {
			return fmt.Errorf("no token source")
		}).
		Build()

	_, err := built.Get(context.Background(), &Request{URL: "http://muset.test"})
	require.Error(t, err)
	assert.True(t, IsErrorType(err, InterceptorError))
}

func TestResponseInterceptorError(t *testing.T) {
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		w.WriteHeader(nethttp.StatusOK)
	}))
	defer server.Close()

	built := NewBuilder(createTestLogger()).
		WithResponseInterceptor(func(_ context.Context, _ *nethttp.Request, _ *nethttp.Response) error {
			return fmt.Errorf("schema drift")
		}).
		Build()

	_, err := built.Get(context.Background(), &Request{URL: server.URL})
	require.Error(t, err)
	assert.True(t, IsErrorType(err, InterceptorError))
}

func TestFailureHookInvokedExactlyOnce(t *testing.T) {
	t.Run("on final HTTP failure", func(t *testing.T) {
		server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, _ *nethttp.Request) {
			w.WriteHeader(nethttp.StatusInternalServerError)
		}))
		defer server.Close()

		var hookCalls int32
		var lastStatus int
		built := NewBuilder(createTestLogger()).
			WithRetryPolicy(fastRetryPolicy(2)).
			WithFailureHook(func(_ context.Context, _ *nethttp.Request, status int, err error) {
				atomic.AddInt32(&hookCalls, 1)
				lastStatus = status
				assert.Error(t, err)
			}).
			Build()

		_, err := built.Get(context.Background(), &Request{URL: server.URL})
		require.Error(t, err)
		assert.Equal(t, int32(1), atomic.LoadInt32(&hookCalls), "hook fires once per logical call, not per attempt")
		assert.Equal(t, nethttp.StatusInternalServerError, lastStatus)
	})

	t.Run("on network failure with status zero", func(t *testing.T) {
		transport := roundTripperFunc(func(_ *nethttp.Request) (*nethttp.Response, error) {
			return nil, fmt.Errorf("connection refused")
		})

		var hookCalls int32
		var lastStatus int
		built := NewBuilder(createTestLogger()).
			WithTransport(transport).
			WithFailureHook(func(_ context.Context, _ *nethttp.Request, status int, _ error) {
				atomic.AddInt32(&hookCalls, 1)
				lastStatus = status
			}).
			Build()

		_, err := built.Get(context.Background(), &Request{URL: "http://muset.test"})
		require.Error(t, err)
		assert.Equal(t, int32(1), atomic.LoadInt32(&hookCalls))
		assert.Equal(t, 0, lastStatus)
	})

	t.Run("not invoked on success", func(t *testing.T) {
		server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, _ *nethttp.Request) {
			w.WriteHeader(nethttp.StatusOK)
		}))
		defer server.Close()

		var hookCalls int32
		built := NewBuilder(createTestLogger()).
			WithFailureHook(func(_ context.Context, _ *nethttp.Request, _ int, _ error) {
				atomic.AddInt32(&hookCalls, 1)
			}).
			Build()

		_, err := built.Get(context.Background(), &Request{URL: server.URL})
		require.NoError(t, err)
		assert.Equal(t, int32(0), atomic.LoadInt32(&hookCalls))
	})
}

func TestIsIdempotent(t *testing.T) {
	for _, method := range []string{nethttp.MethodGet, nethttp.MethodHead, nethttp.MethodOptions, nethttp.MethodPut, nethttp.MethodDelete} {
		assert.True(t, IsIdempotent(method), method)
	}
	for _, method := range []string{nethttp.MethodPost, nethttp.MethodPatch} {
		assert.False(t, IsIdempotent(method), method)
	}
}

func TestCapPayload(t *testing.T) {
	built := NewBuilder(createTestLogger()).WithPayloadLogging(4).Build()
	clientImpl := built.(*client)

	assert.Equal(t, []byte("abcd"), clientImpl.capPayload([]byte("abcdefgh")))
	assert.Equal(t, []byte("ab"), clientImpl.capPayload([]byte("ab")))
}
