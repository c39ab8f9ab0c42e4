//go:build integration

package dbadapter

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/eyeinthesky6/indexpilot/internal/domain"
)

// newTestAdapter starts a disposable Postgres container, seeds a minimal
// orders table, and returns an Adapter wired to it. Building DDL against a
// mocked connection can't tell a syntactically valid CREATE INDEX
// CONCURRENTLY apart from one Postgres actually rejects, so this suite runs
// the generated DDL against a real server instead of asserting on the
// rendered string.
func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("indexpilot_test"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("testpassword"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, `
		CREATE TABLE orders (
			id BIGSERIAL PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			status TEXT NOT NULL
		)`)
	require.NoError(t, err)

	adapter, err := New(pool, Options{LongDDLTimeoutS: 30})
	require.NoError(t, err)
	return adapter
}

// TestCreateIndexConcurrentlyBuildsValidIndex drives BuildDDL's output
// through a real server: CREATE INDEX CONCURRENTLY outside a transaction
// block, then IsIndexValid confirming pg_index marks it valid.
func TestCreateIndexConcurrentlyBuildsValidIndex(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := context.Background()

	spec := BuildIndexSpec{
		Name:    "idx_orders_tenant_id",
		Table:   "orders",
		Columns: []string{"tenant_id", "created_at"},
		Method:  domain.MethodOrdered,
	}

	require.NoError(t, adapter.CreateIndexConcurrently(ctx, spec))

	valid, err := adapter.IsIndexValid(ctx, spec.Name)
	require.NoError(t, err)
	require.True(t, valid)
}

// TestCreateIndexConcurrentlyRejectsUnknownColumn confirms a candidate
// naming a column the table doesn't have surfaces as a Postgres error
// through the adapter rather than silently building a malformed index.
func TestCreateIndexConcurrentlyRejectsUnknownColumn(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := context.Background()

	spec := BuildIndexSpec{
		Name:    "idx_orders_bogus",
		Table:   "orders",
		Columns: []string{"does_not_exist"},
		Method:  domain.MethodOrdered,
	}

	err := adapter.CreateIndexConcurrently(ctx, spec)
	require.Error(t, err)
}

// TestDropIndexConcurrentlyIsIdempotent confirms DROP INDEX CONCURRENTLY IF
// EXISTS tolerates being run against a name that was never built, which the
// executor's rollback and failed-build paths both rely on.
func TestDropIndexConcurrentlyIsIdempotent(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := context.Background()

	require.NoError(t, adapter.DropIndexConcurrently(ctx, "idx_never_built"))
}
