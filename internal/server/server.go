// Package server exposes the gateway over HTTP: the streaming chat endpoint,
// model listing, classification hints, and health.
package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ttrawick-ondo/ondo-ai-sub000/internal/classify"
	"github.com/ttrawick-ondo/ondo-ai-sub000/internal/orchestrator"
	"github.com/ttrawick-ondo/ondo-ai-sub000/internal/provider"
	"github.com/ttrawick-ondo/ondo-ai-sub000/internal/storage"
	"github.com/ttrawick-ondo/ondo-ai-sub000/internal/tool"
)

// Deps carries the wired components the server serves.
type Deps struct {
	Registry   *provider.Registry
	Loop       *orchestrator.Loop
	Classifier *classify.Classifier
	Tools      *tool.Registry
	Log        storage.InteractionLog

	// ConfidenceThreshold gates auto-routing on classifier confidence.
	ConfidenceThreshold float64
}

type Server struct {
	Router *chi.Mux
	Port   int

	deps   Deps
	logger *slog.Logger
}

// New builds the router with the standard middleware chain and routes.
func New(port int, requestTimeout time.Duration, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}

	s := &Server{Port: port, deps: deps, logger: logger}

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(TimeoutMiddleware(requestTimeout))
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "ondo-ai-gateway")
	})

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/chat", s.handleChat)
		r.Post("/classify", s.handleClassify)
		r.Get("/models", s.handleModels)
		r.Get("/interactions", s.handleInteractions)
	})

	s.Router = r
	return s
}

// Start blocks serving HTTP on the configured port.
func (s *Server) Start() error {
	s.logger.Info("starting server", slog.Int("port", s.Port))
	return http.ListenAndServe(fmt.Sprintf(":%d", s.Port), s.Router)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
