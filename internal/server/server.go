// Package server exposes a Gateway over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	metrics "github.com/slok/go-http-metrics/metrics/prometheus"
	"github.com/slok/go-http-metrics/middleware"
	"github.com/slok/go-http-metrics/middleware/std"

	"github.com/zhengjr9/edgechat/internal/api"
	"github.com/zhengjr9/edgechat/internal/config"
	"github.com/zhengjr9/edgechat/internal/httputil"
)

// Version is reported by GET /.
var Version = "1.0.0"

const serviceName = "edgechat-gateway"

// Completions is the gateway behavior the HTTP surface needs.
type Completions interface {
	ChatCompletion(ctx context.Context, req *api.ChatCompletionRequest) (*api.ChatCompletionResponse, error)
	Complete(ctx context.Context, req *api.CompletionRequest) (*api.CompletionResponse, error)
	ListModels(ctx context.Context) ([]string, error)
	Health(ctx context.Context) api.HealthStatus
}

// Server is the gateway HTTP server.
type Server struct {
	httpServer *http.Server
	gw         Completions
	timeout    time.Duration
}

// New constructs a Server from the given config. Each server registers its
// metrics in a private Prometheus registry.
func New(cfg *config.Config, gw Completions) *Server {
	s := &Server{gw: gw, timeout: cfg.RequestTimeout}

	router := mux.NewRouter()
	var mdlw *middleware.Middleware
	if cfg.MetricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		m := middleware.New(middleware.Config{
			Recorder: metrics.NewRecorder(metrics.Config{Registry: reg}),
		})
		mdlw = &m
		router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	handle := func(path string, h http.HandlerFunc, method string) {
		var handler http.Handler = h
		if mdlw != nil {
			handler = std.Handler(path, *mdlw, handler)
		}
		router.Handle(path, handler).Methods(method)
	}
	handle("/", s.handleInfo, http.MethodGet)
	handle("/health", s.handleHealth, http.MethodGet)
	handle("/v1/chat/completions", s.handleChatCompletion, http.MethodPost)
	handle("/v1/completions", s.handleCompletion, http.MethodPost)
	handle("/v1/models", s.handleModels, http.MethodGet)

	router.NotFoundHandler = http.HandlerFunc(notFound)
	router.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)

	// CORS sits outside the router so preflight requests for any path get an
	// answer before route matching.
	var handler http.Handler = router
	handler = loggingMiddleware(handler)
	handler = httputil.CORS(cfg.CORSOrigins)(handler)
	handler = recoveryMiddleware(handler)

	s.httpServer = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start begins listening and blocks until the server is stopped.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Handler returns the underlying http.Handler (for use in tests with httptest.NewServer).
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
