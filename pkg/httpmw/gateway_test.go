package httpmw

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"atelier/pkg/config"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestCORSHeadersForAllowedOrigin(t *testing.T) {
	var sec config.SecurityConfig
	sec.CORS.AllowedOrigins = []string{"https://app.example.com"}
	h := Gateway(sec)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/agents", nil)
	req.RemoteAddr = "10.0.0.1:4000"
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("allow-origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/agents", nil)
	req.RemoteAddr = "10.0.0.1:4000"
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("disallowed origin got header %q", got)
	}
}

func TestPreflightShortCircuits(t *testing.T) {
	var sec config.SecurityConfig
	sec.CORS.AllowedOrigins = []string{"*"}
	called := false
	h := Gateway(sec)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	req := httptest.NewRequest(http.MethodOptions, "/v1/turn", nil)
	req.RemoteAddr = "10.0.0.2:4000"
	req.Header.Set("Origin", "https://anything.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", rec.Code)
	}
	if called {
		t.Fatalf("preflight must not reach the inner handler")
	}
}

func TestRateLimitPerClient(t *testing.T) {
	var sec config.SecurityConfig
	sec.RateLimit.RPS = 1
	sec.RateLimit.Burst = 2
	h := Gateway(sec)(okHandler())

	limited := false
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/v1/history", nil)
		req.RemoteAddr = "10.0.0.3:4000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			limited = true
		}
	}
	if !limited {
		t.Fatalf("burst of 5 with limit 1/2 never hit 429")
	}

	// a different client has its own bucket
	req := httptest.NewRequest(http.MethodGet, "/v1/history", nil)
	req.RemoteAddr = "10.0.0.4:4000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("fresh client got %d, want 200", rec.Code)
	}
}

func TestHealthBypassesLimiter(t *testing.T) {
	var sec config.SecurityConfig
	sec.RateLimit.RPS = 1
	sec.RateLimit.Burst = 1
	h := Gateway(sec)(okHandler())

	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = "10.0.0.5:4000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("healthz request %d got %d, want 200", i, rec.Code)
		}
	}
}
