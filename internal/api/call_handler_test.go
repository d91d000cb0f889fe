package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/tejassgg/teamlabs-calls/internal/config"
	"github.com/tejassgg/teamlabs-calls/internal/controller"
	"github.com/tejassgg/teamlabs-calls/internal/signaling"
)

func newTestMux(t *testing.T) *http.ServeMux {
	t.Helper()
	cfg := config.NewDefaultConfig()
	local, _ := signaling.NewLoopbackPair()
	ctrl := controller.New(cfg, local, nil, clock.NewMock(), zap.NewNop())
	t.Cleanup(ctrl.Close)

	mux := http.NewServeMux()
	h := &callHandler{ctrl: ctrl, logger: zap.NewNop()}
	h.registerRoutes(mux, NewRateLimiter(100, time.Minute))
	return mux
}

func TestProjectionEndpointIdle(t *testing.T) {
	mux := newTestMux(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/call", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var p map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if p["currentStatus"] != "idle" {
		t.Fatalf("currentStatus = %v, want idle", p["currentStatus"])
	}
	if p["connectionPhase"] != "unstarted" {
		t.Fatalf("connectionPhase = %v, want unstarted", p["connectionPhase"])
	}
}

func TestActionRoutesRequirePost(t *testing.T) {
	mux := newTestMux(t)

	for _, route := range []string{
		"/api/v1/call/answer",
		"/api/v1/call/decline",
		"/api/v1/call/end",
		"/api/v1/call/dismiss",
	} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, route, nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("GET %s status = %d, want 405", route, rec.Code)
		}
	}
}

func TestPlaceCallRejectsMissingPeer(t *testing.T) {
	mux := newTestMux(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/call", strings.NewReader(`{"peerName":"x"}`))
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestMuteWithoutCallConflicts(t *testing.T) {
	mux := newTestMux(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/call/mute", nil))
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestQualityEndpointEmptyWhileIdle(t *testing.T) {
	mux := newTestMux(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/call/quality?n=5", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if string(body["samples"]) != "[]" {
		t.Fatalf("samples = %s, want []", body["samples"])
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/call/quality?n=bogus", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad n status = %d, want 400", rec.Code)
	}
}
