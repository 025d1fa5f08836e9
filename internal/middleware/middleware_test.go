package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
})

func TestAPIKeyAuth(t *testing.T) {
	h := APIKeyAuth([]string{"k1", " k2 "})(okHandler)

	cases := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"missing", "", "", http.StatusUnauthorized},
		{"bearer", "Authorization", "Bearer k1", http.StatusNoContent},
		{"plain", "Authorization", "k2", http.StatusNoContent},
		{"x-api-key", "X-API-Key", "k2", http.StatusNoContent},
		{"wrong", "X-API-Key", "nope", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/dumps", nil)
			if tc.header != "" {
				req.Header.Set(tc.header, tc.value)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestAPIKeyAuthOpenWithoutKeys(t *testing.T) {
	h := APIKeyAuth([]string{"", "  "})(okHandler)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/dumps", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRateLimiterPerClient(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))

	now = now.Add(time.Second)
	assert.True(t, rl.Allow("a"))
}

func TestRateLimiterDropsIdleClients(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.Allow("a")
	now = now.Add(limiterTTL + time.Minute)
	rl.Allow("b")

	assert.NotContains(t, rl.clients, "a")
	assert.Contains(t, rl.clients, "b")
}

func TestRateLimitMiddleware(t *testing.T) {
	h := RateLimitMiddleware(0.001, 1)(okHandler)

	req := httptest.NewRequest(http.MethodPost, "/v1/predict", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "rate limit exceeded")

	// another port on the same host shares the bucket
	req.RemoteAddr = "10.0.0.1:9999"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRateLimitIgnoresUncheckedKeys(t *testing.T) {
	h := APIKeyAuth(nil)(RateLimitMiddleware(0.001, 1)(okHandler))

	allowed := 0
	for i := 0; i < 20; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/predict", nil)
		req.RemoteAddr = "10.0.0.2:1234"
		req.Header.Set("Authorization", fmt.Sprintf("Bearer junk-%d", i))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code == http.StatusNoContent {
			allowed++
		}
	}
	assert.Equal(t, 1, allowed)
}

func TestRateLimitKeysByAcceptedKey(t *testing.T) {
	h := APIKeyAuth([]string{"k1", "k2"})(RateLimitMiddleware(0.001, 1)(okHandler))

	send := func(key string) int {
		req := httptest.NewRequest(http.MethodPost, "/v1/predict", nil)
		req.RemoteAddr = "10.0.0.3:1234"
		req.Header.Set("X-API-Key", key)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusNoContent, send("k1"))
	assert.Equal(t, http.StatusTooManyRequests, send("k1"))
	assert.Equal(t, http.StatusNoContent, send("k2"))
	// rejected keys never reach the limiter
	assert.Equal(t, http.StatusUnauthorized, send("junk"))
}

func TestAcceptedAPIKey(t *testing.T) {
	var seen string
	capture := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = AcceptedAPIKey(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/api/dumps", nil)
	req.Header.Set("Authorization", "Bearer k1")
	APIKeyAuth([]string{"k1"})(capture).ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "k1", seen)

	APIKeyAuth(nil)(capture).ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "", seen)
}

func TestLoggingAssignsRequestID(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	var seen string
	h := Logging(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
		w.WriteHeader(http.StatusCreated)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/dumps", nil))

	require.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))
	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, seen, fields["request_id"])
	assert.EqualValues(t, http.StatusCreated, fields["status"])
	assert.Equal(t, "/api/dumps", fields["path"])

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc", seen)
}

func TestHealthHandler(t *testing.T) {
	healthy := PingChecker(func(context.Context) error { return nil })
	broken := PingChecker(func(context.Context) error { return errors.New("db down") })

	rec := httptest.NewRecorder()
	HealthHandler(map[string]HealthChecker{"store": healthy})(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	HealthHandler(map[string]HealthChecker{"store": broken})(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body HealthReport
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, "db down", body.Checks["store"].Message)
}

func TestLivenessHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	LivenessHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetricsCountAnalyses(t *testing.T) {
	before := Snapshot()

	done := StartAnalysis()
	assert.Equal(t, before["analyses_running"].(int64)+1, Snapshot()["analyses_running"])
	done(errors.New("boom"))

	after := Snapshot()
	assert.Equal(t, before["analyses_total"].(uint64)+1, after["analyses_total"])
	assert.Equal(t, before["analyses_failed"].(uint64)+1, after["analyses_failed"])
	assert.Equal(t, before["analyses_running"], after["analyses_running"])
}

func TestMetricsMiddlewareCountsFailures(t *testing.T) {
	before := Snapshot()["requests_failed"].(uint64)
	h := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad", http.StatusBadRequest)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, before+1, Snapshot()["requests_failed"])
}

func TestValidateRecordID(t *testing.T) {
	assert.NoError(t, ValidateRecordID("DUMP-2024-0001"))
	assert.Error(t, ValidateRecordID(" "))
	assert.Error(t, ValidateRecordID("a\nb"))
	assert.Error(t, ValidateRecordID(strings.Repeat("x", 192)))
}

func TestValidateLimit(t *testing.T) {
	assert.Equal(t, 50, ValidateLimit(0))
	assert.Equal(t, 50, ValidateLimit(-3))
	assert.Equal(t, 7, ValidateLimit(7))
	assert.Equal(t, 200, ValidateLimit(1000))
}
