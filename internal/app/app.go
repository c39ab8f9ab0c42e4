// Package app wires a Runtime together and drives it in either daemon mode
// (scheduler + Read API, both running until the context is cancelled) or
// one of the CLI's single-pass modes.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/eyeinthesky6/indexpilot/internal/config"
	"github.com/eyeinthesky6/indexpilot/internal/platform"
	"github.com/eyeinthesky6/indexpilot/internal/readapi"
	"github.com/eyeinthesky6/indexpilot/internal/runtime"
	"github.com/eyeinthesky6/indexpilot/internal/scheduler"
	"github.com/eyeinthesky6/indexpilot/internal/telemetry"
)

// Run is the daemon's main entry point: it builds a Runtime, applies
// global migrations, and then runs the Decision Engine and Maintenance
// Loop on their configured schedules alongside the Read API, until ctx is
// cancelled.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)

	logger.Info("starting indexpilot", "mode", cfg.Mode, "listen", cfg.ListenAddr())

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running global migrations: %w", err)
	}
	logger.Info("global migrations applied")

	rt, err := runtime.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("constructing runtime: %w", err)
	}
	defer rt.Close()
	rt.Start(ctx)

	metricsReg := telemetry.NewMetricsRegistry()

	switch cfg.Mode {
	case "daemon":
		return runDaemon(ctx, cfg, logger, rt, metricsReg)
	case "analyze":
		_ = runtime.NewIngestPass(rt).Run(ctx)
		return runtime.NewDecisionPass(rt).Run(ctx)
	case "maintain":
		return runtime.NewMaintenancePass(rt).Run(ctx)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

// runDaemon starts the Read API HTTP server and the cron scheduler, running
// both concurrently until ctx is cancelled or either fails.
func runDaemon(ctx context.Context, cfg *config.Config, logger *slog.Logger, rt *runtime.Runtime, metricsReg *prometheus.Registry) error {
	srv := readapi.New(logger, rt.Pool, metricsReg, readapi.Options{
		CORSAllowedOrigins: []string{"*"},
		Stats:              rt.Stats,
		Maintenance:        rt,
		Mutations:          rt.MutationsSource(),
		Bypass:             rt,
	})

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sched := scheduler.New(ctx, logger)
	if err := sched.AddJob(scheduler.EveryExpr(cfg.IngestInterval), runtime.NewIngestPass(rt)); err != nil {
		return fmt.Errorf("scheduling ingest pass: %w", err)
	}
	if err := sched.AddJob(scheduler.EveryExpr(cfg.DecisionInterval), runtime.NewDecisionPass(rt)); err != nil {
		return fmt.Errorf("scheduling decision pass: %w", err)
	}
	if err := sched.AddJob(scheduler.EveryExpr(cfg.MaintenanceInterval), runtime.NewMaintenancePass(rt)); err != nil {
		return fmt.Errorf("scheduling maintenance pass: %w", err)
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Info("read api listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("read api server: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		sched.Start()
		<-groupCtx.Done()
		logger.Info("stopping scheduler")
		sched.Stop()
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("shutting down read api")
		return httpSrv.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
