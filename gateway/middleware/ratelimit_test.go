package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRateLimiterThrottlesBeyondBurst(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"partner": {RequestsPerMinute: 60, Burst: 2},
	})
	handler := limiter.Middleware("partner")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("GET", "/v1/vault", nil)
		req.Header.Set("X-Api-Key", "pk_test")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		statuses = append(statuses, rec.Code)
	}
	if statuses[0] != http.StatusOK || statuses[1] != http.StatusOK {
		t.Fatalf("first two requests should pass: %v", statuses)
	}
	if statuses[2] != http.StatusTooManyRequests {
		t.Fatalf("third request should be throttled: %v", statuses)
	}
}

func TestRateLimiterSeparatesClients(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"partner": {RequestsPerMinute: 60, Burst: 1},
	})
	handler := limiter.Middleware("partner")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, key := range []string{"pk_a", "pk_b"} {
		req := httptest.NewRequest("GET", "/v1/vault", nil)
		req.Header.Set("X-Api-Key", key)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("client %s should have its own budget, got %d", key, rec.Code)
		}
	}
}

func TestRateLimiterIgnoresUnknownScope(t *testing.T) {
	limiter := NewRateLimiter(nil)
	handler := limiter.Middleware("partner")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	for i := 0; i < 10; i++ {
		req := httptest.NewRequest("GET", "/v1/vault", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("unlimited scope should pass, got %d", rec.Code)
		}
	}
}
