// Package mutationlog is the Mutation Log (L6): the append-only record of
// every index lifecycle event. Unlike the audit writer this daemon
// inherits its batching shape from, the mutation log may never drop a
// record — append-only completeness is a hard invariant callers rely on to
// reconstruct state and to drive rollback, so the ingest channel here
// blocks the caller instead of discarding entries under load.
package mutationlog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eyeinthesky6/indexpilot/internal/domain"
	"github.com/eyeinthesky6/indexpilot/internal/telemetry"
)

const (
	bufferSize    = 256
	flushInterval = 2 * time.Second
	flushBatch    = 32
)

// Writer is the single ordered writer of mutation_log rows. All callers
// submit through Append, which blocks rather than drops when the buffer is
// saturated.
type Writer struct {
	pool   *pgxpool.Pool
	log    *slog.Logger
	submit chan submission
	wg     sync.WaitGroup
}

type submission struct {
	mutation domain.Mutation
	result   chan appendResult
}

type appendResult struct {
	mid int64
	err error
}

// NewWriter creates a Writer. Call Start to begin the background flush loop.
func NewWriter(pool *pgxpool.Pool, log *slog.Logger) *Writer {
	return &Writer{
		pool:   pool,
		log:    log,
		submit: make(chan submission, bufferSize),
	}
}

// Start begins the background goroutine that batches and flushes
// submissions. It returns immediately; the goroutine exits once ctx is
// canceled (after flushing what is already buffered) or Close is called.
func (w *Writer) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
}

// Close waits for the background goroutine to drain and exit. Callers must
// stop calling Append before calling Close.
func (w *Writer) Close() {
	close(w.submit)
	w.wg.Wait()
}

// Append records one mutation and returns its assigned MID once the record
// is durably written. It blocks if the internal buffer is full rather than
// silently dropping the record, since every Mutation is part of the
// system's audit trail and must land.
func (w *Writer) Append(ctx context.Context, m domain.Mutation) (int64, error) {
	result := make(chan appendResult, 1)
	select {
	case w.submit <- submission{mutation: m, result: result}:
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	select {
	case r := <-result:
		if r.err == nil {
			telemetry.MutationsTotal.WithLabelValues(string(m.Action)).Inc()
		}
		return r.mid, r.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (w *Writer) run(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]submission, 0, flushBatch)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		w.flush(batch)
		batch = batch[:0]
	}

	for {
		select {
		case s, ok := <-w.submit:
			if !ok {
				flush()
				return
			}
			batch = append(batch, s)
			if len(batch) >= flushBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			for {
				select {
				case s, ok := <-w.submit:
					if !ok {
						flush()
						return
					}
					batch = append(batch, s)
				default:
					flush()
					return
				}
			}
		}
	}
}

// flush writes every submission in order within one transaction, so the
// bigserial mid sequence stays gapless with respect to this batch, and
// reports the assigned MID back to each waiting caller.
func (w *Writer) flush(batch []submission) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		w.log.Error("beginning mutation log transaction", "error", err)
		failAll(batch, fmt.Errorf("beginning mutation log transaction: %w", err))
		return
	}
	defer tx.Rollback(ctx)

	for i, s := range batch {
		var mid int64
		err := tx.QueryRow(ctx, `
			INSERT INTO mutation_log (tenant, action, table_name, index_name, rationale, prev_mid)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING mid`,
			s.mutation.Tenant, s.mutation.Action, s.mutation.Table, s.mutation.Index,
			s.mutation.Rationale, s.mutation.PrevMID,
		).Scan(&mid)
		if err != nil {
			w.log.Error("writing mutation log entry", "error", err, "action", s.mutation.Action)
			// The transaction rolls back, so no entry of the batch landed.
			failAll(batch, fmt.Errorf("writing mutation log entry: %w", err))
			return
		}
		batch[i].mutation.MID = mid
	}

	if err := tx.Commit(ctx); err != nil {
		w.log.Error("committing mutation log batch", "error", err)
		failAll(batch, fmt.Errorf("committing mutation log batch: %w", err))
		return
	}

	for _, s := range batch {
		s.result <- appendResult{mid: s.mutation.MID}
	}
}

func failAll(batch []submission, err error) {
	for _, s := range batch {
		s.result <- appendResult{err: err}
	}
}

// Since reads every mutation log entry with mid > afterMID, used by the
// Read API's /mutations endpoint and by the rollback component to locate
// the record being reversed.
func Since(ctx context.Context, pool *pgxpool.Pool, afterMID int64, limit int) ([]domain.Mutation, error) {
	rows, err := pool.Query(ctx, `
		SELECT mid, ts, tenant, action, table_name, index_name, rationale, prev_mid
		FROM mutation_log
		WHERE mid > $1
		ORDER BY mid ASC
		LIMIT $2`, afterMID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying mutation log: %w", err)
	}
	defer rows.Close()

	var out []domain.Mutation
	for rows.Next() {
		var m domain.Mutation
		if err := rows.Scan(&m.MID, &m.Timestamp, &m.Tenant, &m.Action, &m.Table, &m.Index, &m.Rationale, &m.PrevMID); err != nil {
			return nil, fmt.Errorf("scanning mutation log row: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating mutation log rows: %w", err)
	}
	return out, nil
}

// Get returns a single mutation log record by MID.
func Get(ctx context.Context, pool *pgxpool.Pool, mid int64) (domain.Mutation, error) {
	var m domain.Mutation
	err := pool.QueryRow(ctx, `
		SELECT mid, ts, tenant, action, table_name, index_name, rationale, prev_mid
		FROM mutation_log
		WHERE mid = $1`, mid).Scan(&m.MID, &m.Timestamp, &m.Tenant, &m.Action, &m.Table, &m.Index, &m.Rationale, &m.PrevMID)
	if err != nil {
		return domain.Mutation{}, fmt.Errorf("getting mutation %d: %w", mid, err)
	}
	return m, nil
}

// FindRollbackOf reports whether a ROLLBACK record already references mid,
// so the rollback component can refuse to reverse the same mutation twice.
func FindRollbackOf(ctx context.Context, pool *pgxpool.Pool, mid int64) (bool, error) {
	var exists bool
	err := pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM mutation_log
			WHERE action = $1 AND prev_mid = $2
		)`, domain.ActionRollback, mid).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking for existing rollback of %d: %w", mid, err)
	}
	return exists, nil
}
