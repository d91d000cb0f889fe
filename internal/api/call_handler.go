package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/tejassgg/teamlabs-calls/internal/controller"
	"github.com/tejassgg/teamlabs-calls/internal/rtc"
	"github.com/tejassgg/teamlabs-calls/internal/session"
)

const defaultQualitySamples = 12

// callHandler exposes the controller over HTTP.
type callHandler struct {
	ctrl   *controller.Controller
	logger *zap.Logger
}

type placeCallRequest struct {
	PeerID   string `json:"peerId"`
	PeerName string `json:"peerName"`
}

type toggleResponse struct {
	Enabled bool `json:"enabled"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *callHandler) registerRoutes(mux *http.ServeMux, limiter *RateLimiter) {
	mux.HandleFunc("/api/v1/call", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.handleProjection(w, r)
		case http.MethodPost:
			limiter.Middleware(h.handlePlaceCall)(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/v1/call/quality", h.handleQuality)

	actions := map[string]http.HandlerFunc{
		"/api/v1/call/answer":  h.handleAnswer,
		"/api/v1/call/decline": h.handleDecline,
		"/api/v1/call/end":     h.handleEnd,
		"/api/v1/call/mute":    h.handleMute,
		"/api/v1/call/camera":  h.handleCamera,
		"/api/v1/call/speaker": h.handleSpeaker,
		"/api/v1/call/dismiss": h.handleDismiss,
	}
	for route, fn := range actions {
		handler := fn
		mux.HandleFunc(route, limiter.Middleware(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
				return
			}
			handler(w, r)
		}))
	}
}

func (h *callHandler) handleProjection(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.ctrl.Projection())
}

func (h *callHandler) handlePlaceCall(w http.ResponseWriter, r *http.Request) {
	var req placeCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.PeerID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "peerId is required"})
		return
	}

	if err := h.ctrl.PlaceCall(r.Context(), req.PeerID, req.PeerName); err != nil {
		h.writeActionError(w, "place call", err)
		return
	}
	writeJSON(w, http.StatusAccepted, h.ctrl.Projection())
}

func (h *callHandler) handleAnswer(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.Answer(r.Context()); err != nil {
		h.writeActionError(w, "answer", err)
		return
	}
	writeJSON(w, http.StatusOK, h.ctrl.Projection())
}

func (h *callHandler) handleDecline(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.Decline(r.Context()); err != nil {
		h.writeActionError(w, "decline", err)
		return
	}
	writeJSON(w, http.StatusOK, h.ctrl.Projection())
}

func (h *callHandler) handleEnd(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.End(r.Context()); err != nil {
		h.writeActionError(w, "end", err)
		return
	}
	writeJSON(w, http.StatusOK, h.ctrl.Projection())
}

func (h *callHandler) handleMute(w http.ResponseWriter, _ *http.Request) {
	muted, err := h.ctrl.ToggleMute()
	if err != nil {
		h.writeActionError(w, "mute", err)
		return
	}
	writeJSON(w, http.StatusOK, toggleResponse{Enabled: muted})
}

func (h *callHandler) handleCamera(w http.ResponseWriter, _ *http.Request) {
	off, err := h.ctrl.ToggleCamera()
	if err != nil {
		h.writeActionError(w, "camera", err)
		return
	}
	writeJSON(w, http.StatusOK, toggleResponse{Enabled: off})
}

func (h *callHandler) handleSpeaker(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, toggleResponse{Enabled: h.ctrl.ToggleSpeaker()})
}

func (h *callHandler) handleDismiss(w http.ResponseWriter, _ *http.Request) {
	if err := h.ctrl.Dismiss(); err != nil {
		h.writeActionError(w, "dismiss", err)
		return
	}
	writeJSON(w, http.StatusOK, h.ctrl.Projection())
}

func (h *callHandler) handleQuality(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	n := defaultQualitySamples
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "n must be a positive integer"})
			return
		}
		n = parsed
	}

	samples := h.ctrl.QualitySamples(n)
	if samples == nil {
		samples = []rtc.Sample{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"samples": samples})
}

func (h *callHandler) writeActionError(w http.ResponseWriter, action string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrCallActive):
		status = http.StatusConflict
	case errors.Is(err, session.ErrNoSession),
		errors.Is(err, session.ErrInvalidTransition),
		errors.Is(err, controller.ErrNoConnection):
		status = http.StatusConflict
	}

	h.logger.Warn("call action failed", zap.String("action", action), zap.Error(err))
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
