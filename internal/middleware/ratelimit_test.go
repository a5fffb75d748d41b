package middleware_test

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"mime/multipart"
	"net/url"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/serroba/tierlink/internal/middleware"
	"github.com/serroba/tierlink/internal/ratelimit"
	"github.com/serroba/tierlink/internal/store"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const (
	testHostAddr       = "192.168.1.1:12345"
	testUserAgent      = "TestAgent/1.0"
	testUserAgentShort = "TestAgent"
)

var errMultipartNotSupported = errors.New("multipart not supported in mock")

func newTestAPI() huma.API {
	return humachi.New(chi.NewMux(), huma.DefaultConfig("Test", "1.0.0"))
}

// capturingLimiter records the client key of every call.
type capturingLimiter struct {
	exceeded *ratelimit.Exceeded
	err      error
	keys     []string
}

func (c *capturingLimiter) Allow(_ context.Context, key string, _ *huma.Operation) (*ratelimit.Exceeded, error) {
	c.keys = append(c.keys, key)

	return c.exceeded, c.err
}

func (c *capturingLimiter) lastKey() string {
	if len(c.keys) == 0 {
		return ""
	}

	return c.keys[len(c.keys)-1]
}

// mockHumaContext implements huma.Context for testing.
type mockHumaContext struct {
	headers    map[string]string
	host       string
	remoteAddr string
	written    []byte
	statusCode int
	method     string
	operation  *huma.Operation
}

func newMockHumaContext() *mockHumaContext {
	return &mockHumaContext{
		headers: make(map[string]string),
		method:  "GET",
	}
}

func (m *mockHumaContext) Operation() *huma.Operation {
	return m.operation
}
func (m *mockHumaContext) Context() context.Context              { return context.Background() }
func (m *mockHumaContext) TLS() *tls.ConnectionState             { return nil }
func (m *mockHumaContext) Version() huma.ProtoVersion            { return huma.ProtoVersion{} }
func (m *mockHumaContext) Method() string                        { return m.method }
func (m *mockHumaContext) Host() string                          { return m.host }
func (m *mockHumaContext) RemoteAddr() string                    { return m.remoteAddr }
func (m *mockHumaContext) URL() url.URL                          { return url.URL{} }
func (m *mockHumaContext) Param(_ string) string                 { return "" }
func (m *mockHumaContext) Query(_ string) string                 { return "" }
func (m *mockHumaContext) Header(name string) string             { return m.headers[name] }
func (m *mockHumaContext) EachHeader(_ func(name, value string)) {}
func (m *mockHumaContext) BodyReader() io.Reader                 { return nil }
func (m *mockHumaContext) GetMultipartForm() (*multipart.Form, error) {
	return nil, errMultipartNotSupported
}
func (m *mockHumaContext) SetReadDeadline(_ time.Time) error { return nil }
func (m *mockHumaContext) SetStatus(code int)                { m.statusCode = code }
func (m *mockHumaContext) Status() int                       { return m.statusCode }
func (m *mockHumaContext) AppendHeader(_, _ string)          {}
func (m *mockHumaContext) SetHeader(_, _ string)             {}
func (m *mockHumaContext) BodyWriter() io.Writer             { return &mockBodyWriter{ctx: m} }

type mockBodyWriter struct {
	ctx *mockHumaContext
}

func (w *mockBodyWriter) Write(p []byte) (n int, err error) {
	w.ctx.written = append(w.ctx.written, p...)

	return len(p), nil
}

func newRequest(host, userAgent string) *mockHumaContext {
	ctx := newMockHumaContext()
	ctx.host = host
	ctx.headers["User-Agent"] = userAgent
	ctx.operation = &huma.Operation{Path: "/api/v1/shorten"}

	return ctx
}

func TestRateLimiter(t *testing.T) {
	t.Run("allows request when limiter allows", func(t *testing.T) {
		mw := middleware.RateLimiter(newTestAPI(), &capturingLimiter{}, zap.NewNop())

		nextCalled := false

		mw(newRequest(testHostAddr, testUserAgent), func(_ huma.Context) {
			nextCalled = true
		})

		assert.True(t, nextCalled, "next should be called when allowed")
	})

	t.Run("returns 429 when rate limited", func(t *testing.T) {
		limiter := &capturingLimiter{exceeded: &ratelimit.Exceeded{
			Limit: ratelimit.LimitConfig{Window: time.Minute, Max: 10},
			Count: 11,
		}}
		mw := middleware.RateLimiter(newTestAPI(), limiter, zap.NewNop())

		ctx := newRequest(testHostAddr, testUserAgent)
		nextCalled := false

		mw(ctx, func(_ huma.Context) {
			nextCalled = true
		})

		assert.False(t, nextCalled, "next should not be called when rate limited")
		assert.Equal(t, 429, ctx.statusCode)
		assert.Contains(t, string(ctx.written), "rate limit exceeded: 11/10 requests in 1m0s")
	})

	t.Run("uses IP and User-Agent for client key", func(t *testing.T) {
		limiter := &capturingLimiter{}
		mw := middleware.RateLimiter(newTestAPI(), limiter, zap.NewNop())

		mw(newRequest(testHostAddr, testUserAgent), func(_ huma.Context) {})
		key1 := limiter.lastKey()

		mw(newRequest(testHostAddr, testUserAgent), func(_ huma.Context) {})
		key2 := limiter.lastKey()

		assert.Equal(t, key1, key2, "same IP and User-Agent should produce same key")

		mw(newRequest(testHostAddr, "DifferentAgent/2.0"), func(_ huma.Context) {})
		key3 := limiter.lastKey()

		assert.NotEqual(t, key1, key3, "different User-Agent should produce different key")
		assert.Len(t, key1, 64)
	})

	t.Run("extracts IP from X-Forwarded-For header", func(t *testing.T) {
		limiter := &capturingLimiter{}
		mw := middleware.RateLimiter(newTestAPI(), limiter, zap.NewNop())

		ctx := newRequest("10.0.0.1:12345", testUserAgentShort)
		ctx.headers["X-Forwarded-For"] = "203.0.113.195, 70.41.3.18, 150.172.238.178"

		mw(ctx, func(_ huma.Context) {})
		keyWithXFF := limiter.lastKey()

		ctx2 := newRequest("10.0.0.2:54321", testUserAgentShort)
		ctx2.headers["X-Forwarded-For"] = "203.0.113.195"

		mw(ctx2, func(_ huma.Context) {})

		assert.Equal(t, keyWithXFF, limiter.lastKey(), "should use first IP from X-Forwarded-For")
	})

	t.Run("prefers remote address over host", func(t *testing.T) {
		limiter := &capturingLimiter{}
		mw := middleware.RateLimiter(newTestAPI(), limiter, zap.NewNop())

		ctx := newRequest("example.com", testUserAgentShort)
		ctx.remoteAddr = "203.0.113.7:4000"

		mw(ctx, func(_ huma.Context) {})
		key1 := limiter.lastKey()

		ctx2 := newRequest("other.example.com", testUserAgentShort)
		ctx2.remoteAddr = "203.0.113.7:5000"

		mw(ctx2, func(_ huma.Context) {})

		assert.Equal(t, key1, limiter.lastKey(), "should ignore the port of the remote address")
	})
}

func TestRateLimiter_LimiterError(t *testing.T) {
	limiter := &capturingLimiter{err: errors.New("limiter error")}
	mw := middleware.RateLimiter(newTestAPI(), limiter, zap.NewNop())

	ctx := newRequest(testHostAddr, testUserAgent)
	nextCalled := false

	mw(ctx, func(_ huma.Context) {
		nextCalled = true
	})

	assert.False(t, nextCalled, "next should not be called when limiter errors")
	assert.Equal(t, 500, ctx.statusCode)
}

func TestRateLimiter_LimiterErrorFailOpen(t *testing.T) {
	limiter := &capturingLimiter{err: errors.New("redis: connection refused")}
	core, logs := observer.New(zapcore.ErrorLevel)
	mw := middleware.RateLimiter(newTestAPI(), limiter, zap.New(core))

	ctx := newRequest(testHostAddr, testUserAgent)
	ctx.operation = &huma.Operation{
		Path:     "/r/{id}",
		Metadata: map[string]any{ratelimit.MetadataKey: ratelimit.EndpointConfig{FailOpen: true}},
	}
	nextCalled := false

	mw(ctx, func(_ huma.Context) {
		nextCalled = true
	})

	assert.True(t, nextCalled, "fail-open operations should reach the handler")
	assert.Zero(t, ctx.statusCode)
	assert.Equal(t, 1, logs.FilterMessage("rate limit check failed").Len())
}

func TestClientIP_XRealIP(t *testing.T) {
	limiter := &capturingLimiter{}
	mw := middleware.RateLimiter(newTestAPI(), limiter, zap.NewNop())

	ctx := newRequest("10.0.0.1:12345", testUserAgentShort)
	ctx.headers["X-Real-IP"] = "203.0.113.100"

	mw(ctx, func(_ huma.Context) {})
	keyWithXRI := limiter.lastKey()

	ctx2 := newRequest("10.0.0.2:54321", testUserAgentShort)
	ctx2.headers["X-Real-IP"] = "203.0.113.100"

	mw(ctx2, func(_ huma.Context) {})

	assert.Equal(t, keyWithXRI, limiter.lastKey(), "should use X-Real-IP when present")
}

func TestClientIP_HostWithoutPort(t *testing.T) {
	limiter := &capturingLimiter{}
	mw := middleware.RateLimiter(newTestAPI(), limiter, zap.NewNop())

	mw(newRequest("192.168.1.1", testUserAgentShort), func(_ huma.Context) {})
	key1 := limiter.lastKey()

	mw(newRequest("192.168.1.1", testUserAgentShort), func(_ huma.Context) {})

	assert.Equal(t, key1, limiter.lastKey(), "should use host as-is when SplitHostPort fails")
}

func TestRateLimiter_WithLimiter(t *testing.T) {
	t.Run("denies requests over the operation limit", func(t *testing.T) {
		limiter := ratelimit.NewLimiter(store.NewRateLimitMemoryStore())
		mw := middleware.RateLimiter(newTestAPI(), limiter, zap.NewNop())

		op := &huma.Operation{
			Path: "/api/v1/shorten",
			Metadata: map[string]any{
				ratelimit.MetadataKey: ratelimit.EndpointConfig{
					Limits: []ratelimit.LimitConfig{{Window: time.Minute, Max: 2}},
				},
			},
		}

		for i := range 2 {
			ctx := newRequest(testHostAddr, testUserAgent)
			ctx.operation = op
			nextCalled := false

			mw(ctx, func(_ huma.Context) {
				nextCalled = true
			})

			assert.True(t, nextCalled, "request %d should be allowed", i+1)
		}

		ctx := newRequest(testHostAddr, testUserAgent)
		ctx.operation = op
		nextCalled := false

		mw(ctx, func(_ huma.Context) {
			nextCalled = true
		})

		assert.False(t, nextCalled, "3rd request should be denied")
		assert.Equal(t, 429, ctx.statusCode)
		assert.Contains(t, string(ctx.written), "3/2")
	})

	t.Run("counts clients separately", func(t *testing.T) {
		limiter := ratelimit.NewLimiter(store.NewRateLimitMemoryStore(), ratelimit.LimitConfig{Window: time.Minute, Max: 1})
		mw := middleware.RateLimiter(newTestAPI(), limiter, zap.NewNop())

		for _, ua := range []string{"AgentA", "AgentB"} {
			nextCalled := false

			mw(newRequest(testHostAddr, ua), func(_ huma.Context) {
				nextCalled = true
			})

			assert.True(t, nextCalled, "first request of %s should be allowed", ua)
		}
	})

	t.Run("skips disabled operations", func(t *testing.T) {
		limiter := ratelimit.NewLimiter(store.NewRateLimitMemoryStore(), ratelimit.LimitConfig{Window: time.Minute, Max: 1})
		mw := middleware.RateLimiter(newTestAPI(), limiter, zap.NewNop())

		op := &huma.Operation{
			Path:     "/health",
			Metadata: map[string]any{ratelimit.MetadataKey: ratelimit.EndpointConfig{Disabled: true}},
		}

		for range 3 {
			ctx := newRequest(testHostAddr, testUserAgent)
			ctx.operation = op
			nextCalled := false

			mw(ctx, func(_ huma.Context) {
				nextCalled = true
			})

			assert.True(t, nextCalled)
		}
	})
}
