package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiterAllowsWithinBudget(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !rl.Allow("10.0.0.1") {
			t.Fatalf("request %d rejected within budget", i+1)
		}
	}
	if rl.Allow("10.0.0.1") {
		t.Fatal("request over budget allowed")
	}
	// other clients have their own bucket
	if !rl.Allow("10.0.0.2") {
		t.Fatal("distinct IP rejected")
	}
}

func TestRateLimiterMiddlewareRejectsWith429(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	handler := rl.Middleware(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/call/end", nil)
	req.RemoteAddr = "10.0.0.3:54321"

	rec := httptest.NewRecorder()
	handler(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("first request status = %d, want 204", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", rec.Code)
	}
}
