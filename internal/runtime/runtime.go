// Package runtime assembles every component into one Runtime value,
// replacing the module-level globals a simpler daemon might reach for:
// config, the bypass set, and every component handle are constructed once
// at startup and passed by reference to every subsystem. A reload
// constructs a new Runtime and swaps it in atomically.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eyeinthesky6/indexpilot/internal/catalog"
	"github.com/eyeinthesky6/indexpilot/internal/config"
	"github.com/eyeinthesky6/indexpilot/internal/dbadapter"
	"github.com/eyeinthesky6/indexpilot/internal/decision"
	"github.com/eyeinthesky6/indexpilot/internal/decision/scorer/correlation"
	"github.com/eyeinthesky6/indexpilot/internal/decision/scorer/sampledcardinality"
	"github.com/eyeinthesky6/indexpilot/internal/domain"
	"github.com/eyeinthesky6/indexpilot/internal/executor"
	"github.com/eyeinthesky6/indexpilot/internal/exprprofile"
	"github.com/eyeinthesky6/indexpilot/internal/maintenance"
	"github.com/eyeinthesky6/indexpilot/internal/mutationlog"
	"github.com/eyeinthesky6/indexpilot/internal/notify"
	"github.com/eyeinthesky6/indexpilot/internal/planner"
	"github.com/eyeinthesky6/indexpilot/internal/platform"
	"github.com/eyeinthesky6/indexpilot/internal/querystats"
	"github.com/eyeinthesky6/indexpilot/internal/rollback"
	"github.com/eyeinthesky6/indexpilot/internal/safeguards"
)

// Runtime is every constructed component, held by reference and passed
// explicitly to the daemon's goroutines and the CLI's single-pass
// subcommands alike.
type Runtime struct {
	Config *config.Config
	Log    *slog.Logger
	Pool   *pgxpool.Pool

	DB          *dbadapter.Adapter
	Catalog     *catalog.Catalog
	Profile     *exprprofile.Profile
	Stats       *querystats.Store
	Planner     *planner.Client
	Decision    *decision.Engine
	MutationLog *mutationlog.Writer
	Maintenance *maintenance.Loop
	Rollback    *rollback.Manager
	Notifier    *notify.Notifier
	Bypass      *rollback.BypassSet

	RateLimit *safeguards.TokenBucket
	Throttle  *safeguards.ResourceThrottle
	Budgets   *safeguards.BudgetTracker
	Breaker   *safeguards.CircuitBreaker
	Window    safeguards.MaintenanceWindow
	Executor  *executor.Executor

	mutations *mutationStore

	mu              sync.Mutex
	lastMaintenance maintenance.Report
}

// defaultBucketCapacity is the rate limiter's starting token bucket size
// when no operator override is wired in (a future config field).
const defaultBucketCapacity = 20

// New constructs every component from cfg and returns a fully wired
// Runtime. The caller is responsible for starting the long-lived
// goroutines (Stats.Run, MutationLog.Start) and the Scheduler separately.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Runtime, error) {
	pool, err := platform.NewPostgresPool(ctx, platform.PostgresOptions{
		DatabaseURL:           cfg.DatabaseURL,
		PoolMax:               cfg.PoolMax,
		ConnectAcquireTimeout: cfg.ConnectAcquireTimeout,
		StatementTimeoutMS:    cfg.StatementTimeoutMS,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to watched database: %w", err)
	}

	db, err := dbadapter.New(pool, dbadapter.Options{
		LongDDLTimeoutS: int(cfg.LongDDLTimeout.Seconds()),
	})
	if err != nil {
		return nil, fmt.Errorf("constructing db adapter: %w", err)
	}

	cat := catalog.New(db)

	var profile *exprprofile.Profile
	if cfg.DeclarativeDir != "" {
		profile, err = exprprofile.Load(cfg.DeclarativeDir)
		if err != nil {
			return nil, fmt.Errorf("loading expression profile: %w", err)
		}
	}

	stats := querystats.New(log, querystats.Options{
		SpikeParams: querystats.SpikeParams{
			K:          cfg.SpikeK,
			N:          cfg.SpikeN,
			Multiplier: cfg.SpikeMultiplier,
		},
	})
	planClient := planner.New(db)

	scorers := []decision.Scorer{
		correlation.New(&numericSampler{db: db}),
		sampledcardinality.New(db, 0),
	}
	decisionEngine := decision.New(scorers, nil)

	mutWriter := mutationlog.NewWriter(pool, log)
	mutStore := &mutationStore{pool: pool}

	window, err := safeguards.ParseWindow(cfg.MaintenanceWindow)
	if err != nil {
		return nil, fmt.Errorf("parsing maintenance window: %w", err)
	}

	budgets := safeguards.NewBudgetTracker(defaultBudgets(cfg))
	breaker := safeguards.NewCircuitBreaker()
	rateLimit := safeguards.NewTokenBucket(float64(defaultBucketCapacity), float64(defaultBucketCapacity)/10)
	throttle := safeguards.NewResourceThrottle(&writeLatencyProbe{bucket: rateLimit})

	bypass := rollback.NewBypassSet()
	if err := applyBypassMode(bypass, cfg.BypassMode); err != nil {
		return nil, fmt.Errorf("applying configured bypass mode: %w", err)
	}

	gates := []executor.Gate{
		safeguards.RateLimitGate{Bucket: rateLimit},
		safeguards.CircuitBreakerGate{Breaker: breaker},
		safeguards.BudgetGate{Budgets: budgets},
		safeguards.ThrottleGate{Throttle: throttle},
	}

	exec := executor.New(&builderAdapter{db: db}, gates, mutWriter, &validatorAdapter{db: db}, log, executor.Options{})

	maintLoop := maintenance.New(db, mutWriter, window, maintenance.DefaultTaskConfig(), log)

	notifier := notify.New(cfg.SlackBotToken, cfg.SlackAlertChannel, log)
	rollbackMgr := rollback.New(mutStore, exec, notifier, bypass, log)

	return &Runtime{
		Config:      cfg,
		Log:         log,
		Pool:        pool,
		DB:          db,
		Catalog:     cat,
		Profile:     profile,
		Stats:       stats,
		Planner:     planClient,
		Decision:    decisionEngine,
		MutationLog: mutWriter,
		Maintenance: maintLoop,
		Rollback:    rollbackMgr,
		Notifier:    notifier,
		Bypass:      bypass,
		RateLimit:   rateLimit,
		Throttle:    throttle,
		Budgets:     budgets,
		Breaker:     breaker,
		Window:      window,
		Executor:    exec,
		mutations:   mutStore,
	}, nil
}

// Start launches the Query Stats Store's aggregation loop and the Mutation
// Log's background flush loop. Both stop when ctx is canceled; callers must
// still call Close afterward to drain the Mutation Log and release the pool.
func (rt *Runtime) Start(ctx context.Context) {
	go rt.Stats.Run(ctx)
	rt.MutationLog.Start(ctx)
}

// Close drains the Mutation Log and releases the database pool. Callers
// must stop calling Append (directly or via the Executor/Maintenance Loop)
// before calling Close.
func (rt *Runtime) Close() {
	rt.MutationLog.Close()
	rt.Pool.Close()
}

// defaultBudgets seeds the storage budget tracker from config, with the
// global tenant's limit acting as the fallback for tenants without their
// own entry.
func defaultBudgets(cfg *config.Config) map[domain.TenantID]domain.Budget {
	const mb = 1 << 20
	return map[domain.TenantID]domain.Budget{
		domain.GlobalTenant: {Tenant: domain.GlobalTenant, LimitB: cfg.StorageBudgetGlobalMB * mb},
	}
}
