package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	gatewayauth "nectar/gateway/auth"
)

func corsHandler(cfg CORSConfig) http.Handler {
	return CORS(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestCORSDefaultsAllowSigningHeaders(t *testing.T) {
	handler := corsHandler(CORSConfig{})
	req := httptest.NewRequest(http.MethodOptions, "/v1/points/issue", nil)
	req.Header.Set("Origin", "https://console.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("unexpected allow-origin %q", got)
	}
	allowed := rec.Header().Get("Access-Control-Allow-Headers")
	for _, header := range []string{
		gatewayauth.HeaderAPIKey,
		gatewayauth.HeaderTimestamp,
		gatewayauth.HeaderNonce,
		gatewayauth.HeaderSignature,
	} {
		if !strings.Contains(allowed, header) {
			t.Fatalf("allow-headers %q missing %s", allowed, header)
		}
	}
}

func TestCORSMatchesConfiguredOrigins(t *testing.T) {
	handler := corsHandler(CORSConfig{AllowedOrigins: []string{"https://console.example.com"}})

	req := httptest.NewRequest(http.MethodGet, "/v1/supply", nil)
	req.Header.Set("Origin", "https://console.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://console.example.com" {
		t.Fatalf("unexpected allow-origin %q", got)
	}
	if got := rec.Header().Get("Vary"); got != "Origin" {
		t.Fatalf("unexpected vary %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/supply", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unlisted origin should not be echoed, got %q", got)
	}
}
