package platform

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresOptions configures the control-plane connection pool. IndexPilot
// co-resides with the watched database, so the pool is intentionally small
// relative to the application pool it shares a host with.
type PostgresOptions struct {
	DatabaseURL           string
	PoolMax               int
	ConnectAcquireTimeout time.Duration
	StatementTimeoutMS    int
}

// NewPostgresPool creates and pings a pgxpool.Pool sized per opts. Every
// acquired connection gets a session-level statement_timeout so a runaway
// introspection query cannot wedge the pool.
func NewPostgresPool(ctx context.Context, opts PostgresOptions) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(opts.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}

	if opts.PoolMax > 0 {
		cfg.MaxConns = int32(opts.PoolMax)
	}
	if opts.ConnectAcquireTimeout > 0 {
		cfg.ConnConfig.ConnectTimeout = opts.ConnectAcquireTimeout
	}

	statementTimeoutMS := opts.StatementTimeoutMS
	if statementTimeoutMS <= 0 {
		statementTimeoutMS = 30000
	}
	cfg.ConnConfig.RuntimeParams["statement_timeout"] = fmt.Sprintf("%d", statementTimeoutMS)
	cfg.ConnConfig.RuntimeParams["application_name"] = "indexpilot"

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}
