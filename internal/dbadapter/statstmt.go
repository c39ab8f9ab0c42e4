package dbadapter

import (
	"context"
	"fmt"
	"time"

	"github.com/eyeinthesky6/indexpilot/internal/domain"
)

// PollQueryStatements reads the pg_stat_statements extension and returns one
// QuerySample per distinct statement, using each statement's mean execution
// time as a representative duration. pg_stat_statements must be loaded via
// shared_preload_libraries on the watched database; when it isn't, this
// returns an error the caller should treat as "ingestion disabled" rather
// than fatal.
func (a *Adapter) PollQueryStatements(ctx context.Context, minCalls int64) ([]domain.QuerySample, error) {
	rows, err := a.pool.Query(ctx, `
		SELECT
			query,
			calls,
			COALESCE(mean_exec_time, 0)
		FROM pg_stat_statements
		WHERE calls >= $1
		ORDER BY calls DESC
		LIMIT 2000`, minCalls)
	if err != nil {
		return nil, fmt.Errorf("polling pg_stat_statements: %w", err)
	}
	defer rows.Close()

	now := time.Now()
	var out []domain.QuerySample
	for rows.Next() {
		var query string
		var calls int64
		var meanExecMS float64
		if err := rows.Scan(&query, &calls, &meanExecMS); err != nil {
			return nil, fmt.Errorf("scanning pg_stat_statements row: %w", err)
		}
		out = append(out, domain.QuerySample{
			RawSQL:    query,
			Duration:  time.Duration(meanExecMS * float64(time.Millisecond)),
			Timestamp: now,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating pg_stat_statements rows: %w", err)
	}
	return out, nil
}
