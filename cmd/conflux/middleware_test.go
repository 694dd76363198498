package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/conflux/internal/ctxkeys"
)

func TestRequestIDMiddleware(t *testing.T) {
	var gotID, gotActor string
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID, _ = ctxkeys.RequestID(r.Context())
		gotActor, _ = ctxkeys.Actor(r.Context())
	}), RequestID())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/configs", nil)
	req.Header.Set("X-Actor", "ops")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.NotEmpty(t, gotID)
	assert.Equal(t, gotID, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "ops", gotActor)

	// A client-supplied ID is preserved.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/configs", nil)
	req.Header.Set("X-Request-ID", "req-fixed")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "req-fixed", gotID)
}

func TestRecoveryMiddleware(t *testing.T) {
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}), Recovery(zaptest.NewLogger(t)))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAPIKeyAuth(t *testing.T) {
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}), APIKeyAuth([]string{"secret"}, []string{"/health"}, zaptest.NewLogger(t)))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/configs", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Health probes bypass auth.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}), RateLimiter(ctx, 1, 2, zaptest.NewLogger(t)))

	codes := make([]int, 0, 4)
	for range 4 {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/configs", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, http.StatusOK, codes[0])
	assert.Equal(t, http.StatusOK, codes[1])
	assert.Equal(t, http.StatusTooManyRequests, codes[2])
	assert.Equal(t, http.StatusTooManyRequests, codes[3])

	// A different client gets its own bucket.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/configs", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNormalizePath(t *testing.T) {
	cases := map[string]string{
		"/api/v1/configs":                     "/api/v1/configs",
		"/api/v1/configs/cpa_level_amounts":   "/api/v1/configs/:key",
		"/api/v1/configs/session_ttl/history": "/api/v1/configs/:key/history",
		"/api/v1/configs/session_ttl/value":   "/api/v1/configs/:key/value",
		"/ws":                                 "/ws",
		"/health":                             "/health",
		"/api/v1/subscriptions/stats":         "/api/v1/subscriptions/stats",
	}
	for in, want := range cases {
		assert.Equal(t, want, normalizePath(in), in)
	}
}
