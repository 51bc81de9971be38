package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func nextOK() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestCORSPermissive(t *testing.T) {
	h := withCORSConfig(nextOK(), &corsConfig{permissive: true})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Origin", "https://anything.example")
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("allow-origin = %q, want *", got)
	}
}

func TestCORSRestricted(t *testing.T) {
	cfg := &corsConfig{allowedOrigins: []string{"https://ops.example.com", "*.relay.example"}}
	h := withCORSConfig(nextOK(), cfg)

	cases := []struct {
		origin  string
		allowed bool
	}{
		{"https://ops.example.com", true},
		{"https://evil.example.com", false},
		{"https://dash.relay.example", true},
		{"", false},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/status", nil)
		if tc.origin != "" {
			req.Header.Set("Origin", tc.origin)
		}
		h.ServeHTTP(rec, req)
		got := rec.Header().Get("Access-Control-Allow-Origin")
		if tc.allowed && got != tc.origin {
			t.Errorf("origin %q: allow-origin = %q, want echoed", tc.origin, got)
		}
		if !tc.allowed && got != "" {
			t.Errorf("origin %q: allow-origin = %q, want blocked", tc.origin, got)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	h := withCORSConfig(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("preflight reached inner handler")
	}), &corsConfig{permissive: true})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/status", nil)
	req.Header.Set("Origin", "https://ops.example.com")
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", rec.Code)
	}
}

func TestLoadCORSConfigOverrides(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	cfg := loadCORSConfig()
	if cfg.permissive {
		t.Error("production config is permissive")
	}
	if len(cfg.allowedOrigins) != 2 {
		t.Errorf("allowed origins = %v, want 2 entries", cfg.allowedOrigins)
	}

	t.Setenv("CORS_PERMISSIVE", "1")
	if cfg := loadCORSConfig(); !cfg.permissive {
		t.Error("CORS_PERMISSIVE=1 did not force permissive mode")
	}
}
