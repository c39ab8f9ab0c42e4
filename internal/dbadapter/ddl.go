package dbadapter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/eyeinthesky6/indexpilot/internal/domain"
)

// BuildIndexSpec describes the index an executor wants created. Every
// string field must already have passed ValidateIdentifier (table, columns)
// or be an operator-authored expression/predicate fragment.
type BuildIndexSpec struct {
	Name       string
	Table      string
	Columns    []string
	Expression string
	Predicate  string
	Method     domain.IndexMethod
}

func methodSQL(m domain.IndexMethod) string {
	switch m {
	case domain.MethodHash:
		return "hash"
	case domain.MethodGeo:
		return "gist"
	case domain.MethodBRIN:
		return "brin"
	case domain.MethodFulltext:
		return "gin"
	default:
		return "btree"
	}
}

// BuildDDL renders the CREATE INDEX CONCURRENTLY statement for spec. It does
// not execute it; CreateIndexConcurrently does.
func BuildDDL(spec BuildIndexSpec) (string, error) {
	if err := ValidateIdentifier(spec.Name); err != nil {
		return "", err
	}
	if err := ValidateIdentifier(spec.Table); err != nil {
		return "", err
	}
	for _, c := range spec.Columns {
		if err := ValidateIdentifier(c); err != nil {
			return "", err
		}
	}

	var target string
	if spec.Expression != "" {
		target = spec.Expression
	} else {
		target = strings.Join(spec.Columns, ", ")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE INDEX CONCURRENTLY %s ON %s USING %s (%s)",
		spec.Name, spec.Table, methodSQL(spec.Method), target)
	if spec.Predicate != "" {
		fmt.Fprintf(&b, " WHERE %s", spec.Predicate)
	}
	return b.String(), nil
}

// CreateIndexConcurrently runs CREATE INDEX CONCURRENTLY outside any
// transaction (the Postgres requirement for concurrent builds). It returns
// only an error; whether the resulting index was left INVALID is checked
// separately with IsIndexValid.
func (a *Adapter) CreateIndexConcurrently(ctx context.Context, spec BuildIndexSpec) error {
	ddl, err := BuildDDL(spec)
	if err != nil {
		return err
	}

	conn, err := a.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection for concurrent build: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, fmt.Sprintf("SET statement_timeout = %d", a.longDDLTimeout*1000)); err != nil {
		return fmt.Errorf("setting long ddl timeout: %w", err)
	}

	_, err = conn.Exec(ctx, ddl)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			return fmt.Errorf("create index concurrently %s: %s (%s): %w", spec.Name, pgErr.Message, pgErr.Code, err)
		}
		return fmt.Errorf("create index concurrently %s: %w", spec.Name, err)
	}
	return nil
}

// DropIndexConcurrently drops an index without holding a blocking lock.
func (a *Adapter) DropIndexConcurrently(ctx context.Context, name string) error {
	if err := ValidateIdentifier(name); err != nil {
		return err
	}
	_, err := a.pool.Exec(ctx, fmt.Sprintf("DROP INDEX CONCURRENTLY IF EXISTS %s", name))
	if err != nil {
		return fmt.Errorf("drop index concurrently %s: %w", name, err)
	}
	return nil
}

// IsIndexValid reports whether the named index is marked valid in pg_index,
// used by the executor's VALIDATING state and by the maintenance loop's
// hanging-build reaper.
func (a *Adapter) IsIndexValid(ctx context.Context, name string) (bool, error) {
	if err := ValidateIdentifier(name); err != nil {
		return false, err
	}
	var valid bool
	err := a.pool.QueryRow(ctx, `
		SELECT indisvalid
		FROM pg_index
		JOIN pg_class ON pg_class.oid = pg_index.indexrelid
		WHERE pg_class.relname = $1`, name).Scan(&valid)
	if err != nil {
		return false, fmt.Errorf("checking index validity for %s: %w", name, err)
	}
	return valid, nil
}

// Analyze runs ANALYZE on table, serialized against any concurrent VACUUM or
// REINDEX through maintSem.
func (a *Adapter) Analyze(ctx context.Context, table string) error {
	if err := ValidateIdentifier(table); err != nil {
		return err
	}
	if err := a.maintSem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquiring maintenance semaphore: %w", err)
	}
	defer a.maintSem.Release(1)

	if _, err := a.pool.Exec(ctx, fmt.Sprintf("ANALYZE %s", table)); err != nil {
		return fmt.Errorf("analyze %s: %w", table, err)
	}
	return nil
}

// VacuumAnalyze runs VACUUM (ANALYZE) on table.
func (a *Adapter) VacuumAnalyze(ctx context.Context, table string) error {
	if err := ValidateIdentifier(table); err != nil {
		return err
	}
	if err := a.maintSem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquiring maintenance semaphore: %w", err)
	}
	defer a.maintSem.Release(1)

	if _, err := a.pool.Exec(ctx, fmt.Sprintf("VACUUM (ANALYZE) %s", table)); err != nil {
		return fmt.Errorf("vacuum analyze %s: %w", table, err)
	}
	return nil
}

// ReindexConcurrently rebuilds an index in place without an exclusive lock,
// used by the Maintenance Loop's bloat-triggered rebuild task.
func (a *Adapter) ReindexConcurrently(ctx context.Context, name string) error {
	if err := ValidateIdentifier(name); err != nil {
		return err
	}
	if err := a.maintSem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquiring maintenance semaphore: %w", err)
	}
	defer a.maintSem.Release(1)

	if _, err := a.pool.Exec(ctx, fmt.Sprintf("REINDEX INDEX CONCURRENTLY %s", name)); err != nil {
		return fmt.Errorf("reindex concurrently %s: %w", name, err)
	}
	return nil
}
