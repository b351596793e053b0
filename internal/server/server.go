// Package server provides the HTTP read API: latest and historical
// risk metrics, alert status, and system health.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/AndreChuabio/NoSQL-Portfolio-Risk-Analytics/internal/cache"
	"github.com/AndreChuabio/NoSQL-Portfolio-Risk-Analytics/internal/database"
	"github.com/AndreChuabio/NoSQL-Portfolio-Risk-Analytics/internal/modules/alerts"
	"github.com/AndreChuabio/NoSQL-Portfolio-Risk-Analytics/internal/modules/metrics"
	"github.com/AndreChuabio/NoSQL-Portfolio-Risk-Analytics/internal/modules/snapshots"
	"github.com/AndreChuabio/NoSQL-Portfolio-Risk-Analytics/internal/scheduler"
)

// Config holds server configuration
type Config struct {
	Log         zerolog.Logger
	Port        int
	DevMode     bool
	HistoryDB   *database.DB
	PortfolioDB *database.DB
	Snapshots   *snapshots.Repository
	Metrics     *metrics.Repository
	Cache       *cache.Manager
}

// Server represents the HTTP server
type Server struct {
	router      *chi.Mux
	server      *http.Server
	log         zerolog.Logger
	historyDB   *database.DB
	portfolioDB *database.DB
	snapshots   *snapshots.Repository
	metrics     *metrics.Repository
	cache       *cache.Manager
	evaluator   *alerts.Evaluator
	backfillJob scheduler.Job
	startupTime time.Time
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		log:         cfg.Log.With().Str("component", "server").Logger(),
		historyDB:   cfg.HistoryDB,
		portfolioDB: cfg.PortfolioDB,
		snapshots:   cfg.Snapshots,
		metrics:     cfg.Metrics,
		cache:       cfg.Cache,
		evaluator:   alerts.NewEvaluator(alerts.DefaultThresholds()),
		startupTime: time.Now(),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// SetBackfillJob registers the backfill job for manual triggering
func (s *Server) SetBackfillJob(job scheduler.Job) {
	s.backfillJob = job
}

// Router exposes the router for tests
func (s *Server) Router() http.Handler {
	return s.router
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/portfolios", s.handleListPortfolios)

		r.Route("/portfolios/{portfolioID}", func(r chi.Router) {
			r.Get("/metrics/latest", s.handleLatestMetrics)
			r.Get("/metrics/history", s.handleMetricHistory)
			r.Get("/alerts", s.handleAlerts)
			r.Get("/snapshots", s.handleListSnapshots)
		})

		r.Post("/jobs/backfill", s.handleTriggerBackfill)
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
