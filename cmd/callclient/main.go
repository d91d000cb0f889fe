// Command callclient runs the call core as a local daemon: it dials the
// signaling service, attaches to one conversation and serves the HTTP
// surface a UI polls to render and drive calls.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tejassgg/teamlabs-calls/internal/api"
	"github.com/tejassgg/teamlabs-calls/internal/config"
	"github.com/tejassgg/teamlabs-calls/internal/controller"
	"github.com/tejassgg/teamlabs-calls/internal/media"
	"github.com/tejassgg/teamlabs-calls/internal/signaling"
	"github.com/tejassgg/teamlabs-calls/internal/validate"
)

const shutdownTimeout = 10 * time.Second

// Application holds every long-lived component of the call client.
type Application struct {
	cfg       *config.Config
	logger    *zap.Logger
	transport *signaling.Client
	ctrl      *controller.Controller
	apiServer *api.Server
}

func main() {
	cfg := config.Load()

	var conversationID string
	flag.StringVar(&cfg.Signaling.URL, "signaling", cfg.Signaling.URL, "signaling server websocket URL")
	flag.StringVar(&cfg.Signaling.ClientID, "client-id", cfg.Signaling.ClientID, "client id presented to the signaling server")
	flag.StringVar(&cfg.API.Addr, "api-addr", cfg.API.Addr, "address of the local HTTP API")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	flag.StringVar(&conversationID, "conversation", "", "conversation id to attach to")
	flag.Parse()

	if conversationID == "" {
		fmt.Fprintln(os.Stderr, "missing required -conversation flag")
		os.Exit(2)
	}

	app, err := NewApplication(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup failed: %v\n", err)
		os.Exit(1)
	}
	defer app.Cleanup()

	if err := app.Run(conversationID); err != nil {
		app.logger.Fatal("run failed", zap.Error(err))
	}
}

// NewApplication validates configuration and constructs the component graph.
func NewApplication(cfg *config.Config) (*Application, error) {
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("logger setup: %w", err)
	}

	if err := validate.ValidateConfig(cfg); err != nil {
		return nil, err
	}

	for _, url := range cfg.ICE.URLs {
		if !strings.HasPrefix(url, "stun:") {
			continue
		}
		if err := validate.ProbeSTUN(url, 3*time.Second); err != nil {
			logger.Warn("STUN server unreachable", zap.String("url", url), zap.Error(err))
		}
	}

	engine, err := media.NewEngine(cfg.Media, logger)
	if err != nil {
		return nil, fmt.Errorf("media engine: %w", err)
	}

	clk := clock.New()
	transport := signaling.NewClient(cfg.Signaling, logger)
	factory := controller.NewManagerFactory(cfg, engine, clk, logger)
	ctrl := controller.New(cfg, transport, factory, clk, logger)

	return &Application{
		cfg:       cfg,
		logger:    logger,
		transport: transport,
		ctrl:      ctrl,
		apiServer: api.NewServer(cfg.API.Addr, ctrl, logger),
	}, nil
}

// Run connects signaling, attaches the conversation and serves until SIGINT.
func (app *Application) Run(conversationID string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.transport.Connect(ctx); err != nil {
		return err
	}
	app.ctrl.Attach(conversationID)
	app.apiServer.StartInBackground()

	app.logger.Info("call client ready",
		zap.String("conversation_id", conversationID),
		zap.String("api_addr", app.cfg.API.Addr))

	<-ctx.Done()
	app.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return app.apiServer.Shutdown(shutdownCtx)
}

// Cleanup releases every component. Safe after a partial startup.
func (app *Application) Cleanup() {
	if app.ctrl != nil {
		app.ctrl.Close()
	}
	if app.transport != nil {
		if err := app.transport.Close(); err != nil {
			app.logger.Warn("transport close", zap.Error(err))
		}
	}
	if app.logger != nil {
		_ = app.logger.Sync()
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}
