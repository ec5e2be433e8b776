package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimitMiddleware_HealthEndpoint_Bypass(t *testing.T) {
	handler := RateLimit()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitMiddleware_GET_StandardTier(t *testing.T) {
	handler := RateLimit()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/scans", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, strconv.Itoa(rateLimitStandardPerMin), rec.Header().Get("X-RateLimit-Limit"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Remaining"))
}

func TestRateLimitMiddleware_GET_ExceedsLimit(t *testing.T) {
	handler := RateLimit()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	ip := "192.168.1.2"
	for i := 0; i < rateLimitStandardBurst+1; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/scans", nil)
		req.RemoteAddr = ip + ":12345"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if i >= rateLimitStandardBurst {
			assert.Equal(t, http.StatusTooManyRequests, rec.Code, "request %d", i)
			assert.Contains(t, rec.Body.String(), "too many requests")
			assert.NotEmpty(t, rec.Header().Get("Retry-After"))
		}
	}
}

func TestRateLimitMiddleware_Webhook_HigherTier(t *testing.T) {
	handler := RateLimit()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/github", nil)
	req.RemoteAddr = "192.168.1.3:12345"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, strconv.Itoa(rateLimitWebhookPerMin), rec.Header().Get("X-RateLimit-Limit"))
}

func TestRateLimitMiddleware_DifferentIPs_Independent(t *testing.T) {
	handler := RateLimit()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}))

	ip1 := "192.168.1.5"
	for i := 0; i < rateLimitStandardBurst+1; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/scans", nil)
		req.RemoteAddr = ip1 + ":12345"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
	}

	ip2 := "192.168.1.6"
	req := httptest.NewRequest(http.MethodGet, "/api/v1/scans", nil)
	req.RemoteAddr = ip2 + ":12345"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code, "expected a different IP to have its own independent bucket")
}

func TestRateLimitMiddleware_XForwardedFor_IP(t *testing.T) {
	handler := RateLimit()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}))

	ip := "10.0.0.1"
	for i := 0; i < rateLimitStandardBurst+1; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/scans", nil)
		req.Header.Set("X-Forwarded-For", ip)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if i >= rateLimitStandardBurst {
			assert.Equal(t, http.StatusTooManyRequests, rec.Code, "request %d", i)
		}
	}
}

func TestRateLimitMiddleware_XRealIP_IP(t *testing.T) {
	handler := RateLimit()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/scans", nil)
	req.Header.Set("X-Real-IP", "10.0.0.2")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitMiddleware_ResetHeader(t *testing.T) {
	handler := RateLimit()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/scans", nil)
	req.RemoteAddr = "192.168.1.7:12345"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	reset := rec.Header().Get("X-RateLimit-Reset")
	require.NotEmpty(t, reset)

	resetTime, err := strconv.ParseInt(reset, 10, 64)
	require.NoError(t, err)

	expectedReset := time.Now().Add(time.Minute).Unix()
	assert.InDelta(t, expectedReset, resetTime, 5, "reset time should be ~1 minute from now")
}
