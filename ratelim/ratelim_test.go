package ratelim

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"
)

func TestRateLimitPerClient(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return fixed }

	h := rl.RateLimit(func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
		w.WriteHeader(http.StatusNoContent)
	})
	hit := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h(rec, req, nil)
		return rec.Code
	}

	for i, want := range []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests} {
		if got := hit("10.0.0.1:5000"); got != want {
			t.Errorf("request %d: status = %d, want %d", i, got, want)
		}
	}
	if got := hit("10.0.0.2:5000"); got != http.StatusNoContent {
		t.Errorf("second client: status = %d, want 204", got)
	}

	fixed = fixed.Add(time.Second)
	if got := hit("10.0.0.1:6000"); got != http.StatusNoContent {
		t.Errorf("after refill: status = %d, want 204", got)
	}
}

func TestCleanupForgetsIdleVisitors(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.Allow("a")
	now = now.Add(idleTTL + time.Second)
	rl.Allow("b")
	rl.Cleanup()

	if _, ok := rl.visitors["a"]; ok {
		t.Error("idle visitor a was kept")
	}
	if _, ok := rl.visitors["b"]; !ok {
		t.Error("active visitor b was dropped")
	}
}

func TestClientIPForwardedFor(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	if err := rl.TrustProxies([]string{"10.0.0.0/8", "192.0.2.1"}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		remote string
		xff    string
		want   string
	}{
		{"untrusted peer spoofing the header", "198.51.100.9:4000", "203.0.113.7", "198.51.100.9"},
		{"trusted proxy", "10.0.0.1:1234", "203.0.113.7", "203.0.113.7"},
		{"client prepends a fake hop", "10.0.0.1:1234", "1.2.3.4, 203.0.113.7", "203.0.113.7"},
		{"chain of trusted proxies", "192.0.2.1:80", "203.0.113.7, 10.1.2.3", "203.0.113.7"},
		{"trusted proxy without header", "10.0.0.1:1234", "", "10.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := rl.clientIP(req); got != tt.want {
				t.Errorf("clientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSpoofedForwardedForShareOneBucket(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return fixed }
	h := rl.RateLimit(func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
		w.WriteHeader(http.StatusNoContent)
	})

	for i, fake := range []string{"203.0.113.1", "203.0.113.2"} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
		req.RemoteAddr = "198.51.100.9:4000"
		req.Header.Set("X-Forwarded-For", fake)
		rec := httptest.NewRecorder()
		h(rec, req, nil)
		want := http.StatusNoContent
		if i > 0 {
			want = http.StatusTooManyRequests
		}
		if rec.Code != want {
			t.Errorf("request %d: status = %d, want %d", i, rec.Code, want)
		}
	}
}

func TestTrustProxiesRejectsGarbage(t *testing.T) {
	if err := NewRateLimiter(1, 1).TrustProxies([]string{"not-an-ip"}); err == nil {
		t.Error("TrustProxies accepted an invalid entry")
	}
}
