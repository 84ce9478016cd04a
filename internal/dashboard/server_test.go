package dashboard

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sergeknystautas/githistory/internal/config"
)

func TestIsAllowedOrigin(t *testing.T) {
	t.Run("empty origin returns false", func(t *testing.T) {
		s := &Server{config: &config.Config{}}

		if s.isAllowedOrigin("") {
			t.Error("empty origin should return false")
		}
	})

	t.Run("localhost allowed on configured port", func(t *testing.T) {
		cfg := &config.Config{
			Network: &config.NetworkConfig{Port: 9100},
		}
		s := &Server{config: cfg}

		if !s.isAllowedOrigin("http://localhost:9100") {
			t.Error("http://localhost:9100 should be allowed")
		}
		if !s.isAllowedOrigin("http://127.0.0.1:9100") {
			t.Error("http://127.0.0.1:9100 should be allowed")
		}
		if s.isAllowedOrigin("http://localhost:7338") {
			t.Error("other port should be rejected")
		}
	})

	t.Run("random origin rejected on loopback bind", func(t *testing.T) {
		s := &Server{config: &config.Config{}}

		if s.isAllowedOrigin("http://evil.com") {
			t.Error("random origin should be rejected")
		}
		if s.isAllowedOrigin("http://192.168.1.100:7338") {
			t.Error("LAN IP should be rejected")
		}
	})

	t.Run("any origin allowed when bound to all interfaces", func(t *testing.T) {
		cfg := &config.Config{
			Network: &config.NetworkConfig{BindAddress: "0.0.0.0"},
		}
		s := &Server{config: cfg}

		if !s.isAllowedOrigin("http://192.168.1.100:7338") {
			t.Error("LAN IP should be allowed")
		}
	})

	t.Run("default port used when not configured", func(t *testing.T) {
		s := &Server{config: &config.Config{}}

		if !s.isAllowedOrigin("http://localhost:7338") {
			t.Error("localhost with default port should be allowed")
		}
	})
}

func TestWithCORS(t *testing.T) {
	s := &Server{config: &config.Config{}}
	called := false
	h := s.withCORS(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusTeapot)
	})

	tests := []struct {
		name       string
		method     string
		origin     string
		wantStatus int
		wantCalled bool
		wantAllow  string
	}{
		{"no origin passes", http.MethodGet, "", http.StatusTeapot, true, ""},
		{"allowed origin echoed", http.MethodGet, "http://localhost:7338", http.StatusTeapot, true, "http://localhost:7338"},
		{"foreign origin forbidden", http.MethodGet, "http://evil.com", http.StatusForbidden, false, ""},
		{"preflight answered", http.MethodOptions, "http://localhost:7338", http.StatusOK, false, "http://localhost:7338"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called = false
			req := httptest.NewRequest(tt.method, "/api/log", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rr := httptest.NewRecorder()

			h(rr, req)

			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if called != tt.wantCalled {
				t.Errorf("handler called = %v, want %v", called, tt.wantCalled)
			}
			if got := rr.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllow {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.wantAllow)
			}
		})
	}
}

func TestAddr(t *testing.T) {
	s := NewServer(&config.Config{Network: &config.NetworkConfig{BindAddress: "::1", Port: 8000}}, nil, nil, nil)
	if got := s.Addr(); got != "[::1]:8000" {
		t.Errorf("Addr() = %q", got)
	}
}

func TestStopWithoutStart(t *testing.T) {
	hub := NewHub(nil)
	s := NewServer(&config.Config{}, nil, hub, nil)
	if err := s.Stop(); err != nil {
		t.Errorf("Stop() = %v", err)
	}
}
