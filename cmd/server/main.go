package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/volcengine/veadk-go/apps"
	"github.com/volcengine/veadk-go/apps/a2a_app"
	"google.golang.org/adk/agent"

	"github.com/zhengjr9/edgechat/internal/a2a"
	"github.com/zhengjr9/edgechat/internal/config"
	"github.com/zhengjr9/edgechat/internal/gateway"
	"github.com/zhengjr9/edgechat/internal/runtime"
	"github.com/zhengjr9/edgechat/internal/server"
	"github.com/zhengjr9/edgechat/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// The flag set has already printed the problem and usage.
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	_, logCloser, err := telemetry.InitLogger(cfg.Log)
	if err != nil {
		slog.Error("failed to init logger", "error", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cleanup, err := telemetry.InitTelemetry(ctx, cfg.TelemetryDir, "edgechat", server.Version)
	if err != nil {
		slog.Error("failed to init telemetry", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	slog.Info("starting edgechat gateway",
		"listen", cfg.ListenAddr,
		"runtime", cfg.RuntimeKind,
		"runtime_url", cfg.RuntimeURL,
		"model", cfg.Model,
		"a2a_enabled", cfg.A2AEnabled,
	)

	rt, err := runtime.New(cfg.RuntimeKind, cfg.RuntimeURL, cfg.RuntimeProxyURL)
	if err != nil {
		slog.Error("failed to create runtime client", "error", err)
		os.Exit(1)
	}
	gw := gateway.New(gateway.Config{
		Model:          cfg.Model,
		Temperature:    cfg.Temperature,
		MaxTokens:      cfg.MaxTokens,
		RequestTimeout: cfg.RequestTimeout,
		HealthTimeout:  cfg.HealthTimeout,
		ModelsTimeout:  cfg.ModelsTimeout,
	}, rt)

	// Always start the gateway server.
	srv := server.New(cfg, gw)
	srvErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()

	// Optionally start the A2A server.
	a2aErr := make(chan error, 1)
	if cfg.A2AEnabled {
		chatAgent, err := a2a.New(a2a.AgentConfig{
			Name:        cfg.AgentName,
			Description: cfg.AgentDesc,
			Gateway:     gw,
		})
		if err != nil {
			slog.Error("failed to create A2A agent", "error", err)
			os.Exit(1)
		}

		slog.Info("starting A2A server", "port", cfg.A2APort, "agent_name", cfg.AgentName)

		inner := a2a_app.NewAgentkitA2AServerApp(
			apps.DefaultApiConfig().SetPort(cfg.A2APort),
		)
		wrapped := &loggingApp{BasicApp: inner}

		go func() {
			if err := wrapped.Run(ctx, &apps.RunConfig{
				AgentLoader: agent.NewSingleLoader(chatAgent),
			}); err != nil {
				a2aErr <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
		shutCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			slog.Error("gateway shutdown error", "error", err)
		}
	case err := <-srvErr:
		slog.Error("gateway server error", "error", err)
		os.Exit(1)
	case err := <-a2aErr:
		slog.Error("A2A server error", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped")
}

// loggingApp wraps a BasicApp so that A2A requests are logged the same way as
// gateway requests.
type loggingApp struct {
	apps.BasicApp
}

// Run passes w itself to apps.Run; the embedded Run would hand over the inner
// app and SetupRouters below would never be called.
func (w *loggingApp) Run(ctx context.Context, config *apps.RunConfig) error {
	return apps.Run(ctx, config, w)
}

func (w *loggingApp) SetupRouters(router *mux.Router, config *apps.RunConfig) error {
	if err := w.BasicApp.SetupRouters(router, config); err != nil {
		return err
	}
	router.Use(requestLogMiddleware)
	return nil
}

func requestLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Info("a2a request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start).String(),
			"remote", r.RemoteAddr,
		)
	})
}
