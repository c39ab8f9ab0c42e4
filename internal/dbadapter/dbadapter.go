// Package dbadapter is the sole component that talks SQL to the watched
// PostgreSQL database. Every other component reaches the database through
// this adapter so identifier validation, DDL non-blocking semantics, and the
// EXPLAIN cache apply uniformly.
package dbadapter

import (
	"context"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5/pgxpool"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/semaphore"
)

// identifierPattern matches a bare, unquoted Postgres identifier. Anything
// else is rejected rather than quoted-and-passed-through: IndexPilot never
// builds DDL from untrusted strings without validating them first.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateIdentifier returns an error if name is not safe to interpolate
// into DDL text. Postgres has no way to bind identifiers as query
// parameters, so every DDL-building path in the executor and maintenance
// packages must call this first.
func ValidateIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("identifier validation: empty identifier")
	}
	if len(name) > 63 {
		return fmt.Errorf("identifier validation: %q exceeds 63 bytes", name)
	}
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("identifier validation: %q is not a bare identifier", name)
	}
	return nil
}

// Adapter wraps a pgxpool.Pool with the operations the rest of IndexPilot
// needs: DDL execution, EXPLAIN with caching, schema introspection, value
// sampling, and serialized maintenance operations.
type Adapter struct {
	pool *pgxpool.Pool

	explainCache *lru.Cache[string, explainCacheEntry]

	// maintSem serializes VACUUM/ANALYZE/REINDEX so the Maintenance Loop
	// never runs two of them concurrently against the same database.
	maintSem *semaphore.Weighted

	longDDLTimeout int // seconds, applied as statement_timeout override for index builds
}

// Options configures a new Adapter.
type Options struct {
	ExplainCacheSize int
	LongDDLTimeoutS  int
}

// New wraps pool in an Adapter.
func New(pool *pgxpool.Pool, opts Options) (*Adapter, error) {
	size := opts.ExplainCacheSize
	if size <= 0 {
		size = 2048
	}
	cache, err := lru.New[string, explainCacheEntry](size)
	if err != nil {
		return nil, fmt.Errorf("creating explain cache: %w", err)
	}

	ddlTimeout := opts.LongDDLTimeoutS
	if ddlTimeout <= 0 {
		ddlTimeout = 1800
	}

	return &Adapter{
		pool:           pool,
		explainCache:   cache,
		maintSem:       semaphore.NewWeighted(1),
		longDDLTimeout: ddlTimeout,
	}, nil
}

// Pool exposes the underlying pool for components that need direct raw-SQL
// access not covered by a dedicated Adapter method (e.g. per-package
// stores).
func (a *Adapter) Pool() *pgxpool.Pool { return a.pool }

// Close releases the pool.
func (a *Adapter) Close() { a.pool.Close() }

// Ping verifies connectivity.
func (a *Adapter) Ping(ctx context.Context) error {
	return a.pool.Ping(ctx)
}
