// Package readapi is the Read API (E1): a thin, read-only HTTP surface
// exposing /performance, /health, /mutations, and /bypass, plus the
// standard /healthz, /readyz, and /metrics operational endpoints.
package readapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eyeinthesky6/indexpilot/internal/domain"
)

// QueryStatsSource reports observed query-shape performance data for the
// /performance endpoint.
type QueryStatsSource interface {
	All() []domain.QueryStat
}

// MaintenanceSource reports the most recent maintenance pass for the
// /health endpoint.
type MaintenanceSource interface {
	LastReport() MaintenanceSnapshot
}

// MaintenanceSnapshot is the JSON-facing view of a maintenance pass.
type MaintenanceSnapshot struct {
	RanAt          time.Time           `json:"ran_at"`
	UnusedIndexes  []domain.LiveIndex  `json:"unused_indexes,omitempty"`
	RebuiltIndexes []string            `json:"rebuilt_indexes,omitempty"`
	ReapedIndexes  []string            `json:"reaped_indexes,omitempty"`
	Errors         []string            `json:"errors,omitempty"`
}

// MutationSource reads the mutation log for the /mutations endpoint.
type MutationSource interface {
	Since(ctx context.Context, afterMID int64, limit int) ([]domain.Mutation, error)
}

// BypassSource reports the effective bypass set for the /bypass endpoint.
// It mirrors rollback.Entry without importing the rollback package, which
// in turn depends on the executor — this keeps readapi's dependency
// surface to read-only data shapes only.
type BypassSource interface {
	Entries() []BypassEntry
}

// BypassEntry is one active bypass toggle.
type BypassEntry struct {
	Level string `json:"level"`
	Name  string `json:"name,omitempty"`
}

// Server wires the Read API's router and dependencies.
type Server struct {
	Router    *chi.Mux
	log       *slog.Logger
	db        *pgxpool.Pool
	metrics   *prometheus.Registry
	stats     QueryStatsSource
	maint     MaintenanceSource
	mutations MutationSource
	bypass    BypassSource
	startedAt time.Time
}

// Options configures the Read API server. Fields left nil disable the
// endpoint that depends on them (e.g. a nil MaintenanceSource makes
// /health report only DB connectivity).
type Options struct {
	CORSAllowedOrigins []string
	Stats              QueryStatsSource
	Maintenance        MaintenanceSource
	Mutations          MutationSource
	Bypass             BypassSource
}

// New creates a Read API Server with middleware and every read-only
// endpoint mounted.
func New(log *slog.Logger, db *pgxpool.Pool, metricsReg *prometheus.Registry, opts Options) *Server {
	s := &Server{
		Router:    chi.NewRouter(),
		log:       log,
		db:        db,
		metrics:   metricsReg,
		stats:     opts.Stats,
		maint:     opts.Maintenance,
		mutations: opts.Mutations,
		bypass:    opts.Bypass,
		startedAt: time.Now(),
	}

	s.Router.Use(RequestID)
	s.Router.Use(RequestLogger(log))
	s.Router.Use(Metrics)
	s.Router.Use(middleware.Recoverer)
	s.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET"},
		AllowedHeaders:   []string{"Accept", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	s.Router.Get("/healthz", s.handleHealthz)
	s.Router.Get("/readyz", s.handleReadyz)
	s.Router.Handle("/metrics", promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))

	s.Router.Get("/performance", s.handlePerformance)
	s.Router.Get("/health", s.handleHealth)
	s.Router.Get("/mutations", s.handleMutations)
	s.Router.Get("/bypass", s.handleBypass)

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	Respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		s.log.Error("readiness check: database ping failed", "error", err)
		RespondError(w, http.StatusServiceUnavailable, "unavailable", "database not ready")
		return
	}
	Respond(w, http.StatusOK, map[string]string{"status": "ready"})
}
