package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/securepay-ai/sentinel/internal/domain"
	"github.com/securepay-ai/sentinel/internal/ensemble"
	"github.com/securepay-ai/sentinel/internal/metrics"
	"github.com/securepay-ai/sentinel/internal/pipeline"
	"github.com/securepay-ai/sentinel/internal/rules"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server with all routes configured.
func NewServer(cfg *domain.Config, orch *pipeline.Orchestrator, repo domain.Repository, cache domain.Cache, engine *rules.Engine, scorer *ensemble.Scorer, registry *ensemble.Registry, version string) *Server {
	handler := NewHandler(cfg, orch, repo, cache, engine, scorer, registry, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for dashboard clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(metrics.Middleware)     // Prometheus instrumentation
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Operational endpoints
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	router.Method(http.MethodGet, "/metrics", metrics.Handler())

	// API routes
	router.Route("/api/v1", func(r chi.Router) {
		// Transaction analysis
		r.Post("/transactions/analyze", handler.Analyze)
		r.Post("/transactions/analyze/batch", handler.AnalyzeBatch)
		r.Get("/transactions/{txID}", handler.GetTransaction)

		// Assessment retrieval
		r.Get("/assessments", handler.ListAssessments)
		r.Get("/assessments/{txID}", handler.GetAssessment)

		// Alert workflow
		r.Get("/alerts", handler.ListAlerts)
		r.Get("/alerts/{id}", handler.GetAlert)
		r.Post("/alerts/{id}/acknowledge", handler.AcknowledgeAlert)
		r.Post("/alerts/{id}/resolve", handler.ResolveAlert)
		r.Post("/alerts/{id}/dismiss", handler.DismissAlert)

		// Analytics
		r.Get("/analytics/dashboard", handler.Dashboard)
		r.Get("/analytics/risk-distribution", handler.RiskDistribution)
		r.Get("/analytics/trends", handler.Trends)

		// Rule management
		r.Get("/rules", handler.ListRules)
		r.Get("/rules/{id}", handler.GetRule)
		r.Post("/rules", handler.CreateRule)
		r.Put("/rules/{id}", handler.UpdateRule)
		r.Delete("/rules/{id}", handler.DeleteRule)
		r.Post("/rules/reload", handler.ReloadRules)

		// Model management
		r.Get("/models", handler.ListModels)
		r.Post("/models/reload", handler.ReloadModels)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg.Server,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
