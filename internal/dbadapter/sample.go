package dbadapter

import (
	"context"
	"fmt"
)

// largeTableRowThreshold is the pg_class.reltuples estimate above which
// SampleValues switches from a full scan to TABLESAMPLE SYSTEM, to keep
// cardinality sampling cheap on large tables.
const largeTableRowThreshold = 100_000

// SampleValues returns up to limit sample values for table.column, used by
// the decision engine's selectivity estimation and the query stats store's
// cardinality checks. Large tables are sampled via TABLESAMPLE SYSTEM
// rather than scanned in full.
func (a *Adapter) SampleValues(ctx context.Context, table, column string, limit int) ([]string, error) {
	if err := ValidateIdentifier(table); err != nil {
		return nil, err
	}
	if err := ValidateIdentifier(column); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 200
	}

	var estRows float64
	err := a.pool.QueryRow(ctx, `
		SELECT COALESCE(reltuples, 0)
		FROM pg_class
		WHERE relname = $1`, table).Scan(&estRows)
	if err != nil {
		return nil, fmt.Errorf("estimating row count for %s: %w", table, err)
	}

	var query string
	if estRows > largeTableRowThreshold {
		samplePct := (float64(limit) * 50.0) / estRows
		if samplePct > 100 {
			samplePct = 100
		}
		if samplePct < 0.01 {
			samplePct = 0.01
		}
		query = fmt.Sprintf(
			"SELECT %s::text FROM %s TABLESAMPLE SYSTEM (%f) WHERE %s IS NOT NULL LIMIT %d",
			column, table, samplePct, column, limit,
		)
	} else {
		query = fmt.Sprintf(
			"SELECT %s::text FROM %s WHERE %s IS NOT NULL LIMIT %d",
			column, table, column, limit,
		)
	}

	rows, err := a.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("sampling %s.%s: %w", table, column, err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scanning sample value: %w", err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sample rows: %w", err)
	}
	return values, nil
}

// RowEstimate returns the planner's row-count estimate for table, used by
// the Planner Client's heuristic fallback when EXPLAIN itself is unreliable.
func (a *Adapter) RowEstimate(ctx context.Context, table string) (int64, error) {
	if err := ValidateIdentifier(table); err != nil {
		return 0, err
	}
	var est float64
	err := a.pool.QueryRow(ctx, `
		SELECT COALESCE(reltuples, 0)
		FROM pg_class
		WHERE relname = $1`, table).Scan(&est)
	if err != nil {
		return 0, fmt.Errorf("estimating row count for %s: %w", table, err)
	}
	return int64(est), nil
}
