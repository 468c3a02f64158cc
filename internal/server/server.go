// Package server provides the HTTP API for Naosu.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hyperjump/naosu/internal/access"
	"github.com/hyperjump/naosu/internal/config"
	"github.com/hyperjump/naosu/internal/evaluation"
	"github.com/hyperjump/naosu/internal/history"
	"github.com/hyperjump/naosu/internal/metrics"
	"github.com/hyperjump/naosu/internal/queue"
	"github.com/hyperjump/naosu/internal/review"
	"github.com/hyperjump/naosu/internal/storage"
)

// Server is the HTTP server for the Naosu API.
type Server struct {
	db       *storage.Store
	ledger   *evaluation.Ledger
	queue    *queue.Queue
	history  *history.Store
	review   *review.Handler
	access   access.Resolver
	config   *config.Config
	logger   *zap.Logger
	metrics  *metrics.Metrics
	registry *prometheus.Registry
	validate *validator.Validate
	server   *http.Server
}

// NewServer creates a server with the given dependencies. registry may be nil
// when the /metrics endpoint is not wanted (tests).
func NewServer(
	db *storage.Store,
	ledger *evaluation.Ledger,
	q *queue.Queue,
	hist *history.Store,
	rev *review.Handler,
	resolver access.Resolver,
	cfg *config.Config,
	logger *zap.Logger,
	m *metrics.Metrics,
	registry *prometheus.Registry,
) *Server {
	return &Server{
		db:       db,
		ledger:   ledger,
		queue:    q,
		history:  hist,
		review:   rev,
		access:   resolver,
		config:   cfg,
		logger:   logger,
		metrics:  m,
		registry: registry,
		validate: validator.New(),
	}
}

// Router builds the chi router with all API routes mounted.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))
	r.Use(s.observeDuration)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/suggestions", s.handleCreateSuggestion)
		r.Delete("/suggestions/{id}", s.handleDeleteSuggestion)
		r.Post("/evaluations", s.handleCastEvaluation)
		r.Delete("/evaluations/{suggestionID}", s.handleWithdrawEvaluation)
		r.Get("/documents/{id}/queue", s.handleListQueue)
		r.Post("/queue/{id}/decision", s.handleDecision)
		r.Get("/paragraphs/{id}/versions", s.handleListVersions)
		r.Post("/paragraphs/{id}/rollback", s.handleRollback)
		r.Get("/status", s.handleStatus)
	})
	r.Get("/health", s.handleHealth)
	if s.registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// UpdateConfig swaps in hot-reloaded settings. Only review and history
// tuning takes effect without a restart; address changes need one.
func (s *Server) UpdateConfig(cfg *config.Config) {
	s.queue.UpdateGate(cfg.Review.MinEvaluations, cfg.Review.DefaultThreshold)
	s.logger.Info("review settings updated",
		zap.Float64("default_threshold", cfg.Review.DefaultThreshold),
		zap.Int("min_evaluations", cfg.Review.MinEvaluations))
}

func (s *Server) observeDuration(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		s.metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
