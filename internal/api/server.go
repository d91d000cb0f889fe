// Package api serves the local HTTP surface the UI layer polls: the call
// projection, the call actions and recent quality metrics.
package api

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/tejassgg/teamlabs-calls/internal/controller"
)

// mutations per minute per IP on the action routes
const actionRateLimit = 30

// Server is the local HTTP API server.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

// NewServer wires the call routes onto a fresh mux.
func NewServer(addr string, ctrl *controller.Controller, logger *zap.Logger) *Server {
	s := &Server{logger: logger.Named("api")}

	mux := http.NewServeMux()
	h := &callHandler{ctrl: ctrl, logger: s.logger}
	limiter := NewRateLimiter(actionRateLimit, time.Minute)
	h.registerRoutes(mux, limiter)

	mux.HandleFunc("/api/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	s.httpServer = &http.Server{
		Addr:           addr,
		Handler:        corsMiddleware(mux),
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
	return s
}

// Start blocks serving requests until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("api server listening", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// StartInBackground serves on a goroutine.
func (s *Server) StartInBackground() {
	go func() {
		if err := s.Start(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("api server", zap.Error(err))
		}
	}()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("api server shutting down")
	return s.httpServer.Shutdown(ctx)
}

// corsMiddleware allows the local UI origins only.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:3000": true,
		"http://localhost:8080": true,
		"http://127.0.0.1:3000": true,
		"http://127.0.0.1:8080": true,
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
