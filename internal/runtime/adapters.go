package runtime

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eyeinthesky6/indexpilot/internal/dbadapter"
	"github.com/eyeinthesky6/indexpilot/internal/domain"
	"github.com/eyeinthesky6/indexpilot/internal/executor"
	"github.com/eyeinthesky6/indexpilot/internal/mutationlog"
	"github.com/eyeinthesky6/indexpilot/internal/rollback"
	"github.com/eyeinthesky6/indexpilot/internal/safeguards"
)

// numericSampler adapts dbadapter's string-valued SampleValues into the
// correlation scorer's NumericSamples, skipping values that don't parse
// as float64 (e.g. a sampled column turning out non-numeric at runtime).
type numericSampler struct {
	db *dbadapter.Adapter
}

func (n *numericSampler) NumericSamples(ctx context.Context, table, colA, colB string) ([]float64, []float64, error) {
	rawA, err := n.db.SampleValues(ctx, table, colA, 200)
	if err != nil {
		return nil, nil, fmt.Errorf("sampling %s.%s: %w", table, colA, err)
	}
	rawB, err := n.db.SampleValues(ctx, table, colB, 200)
	if err != nil {
		return nil, nil, fmt.Errorf("sampling %s.%s: %w", table, colB, err)
	}

	a := parseFloats(rawA)
	b := parseFloats(rawB)
	n2 := len(a)
	if len(b) < n2 {
		n2 = len(b)
	}
	return a[:n2], b[:n2], nil
}

func parseFloats(raw []string) []float64 {
	out := make([]float64, 0, len(raw))
	for _, s := range raw {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}

// builderAdapter bridges the executor's BuildSpec to dbadapter's own
// BuildIndexSpec, since the two packages intentionally don't share a
// type for the index-shape struct.
type builderAdapter struct {
	db *dbadapter.Adapter
}

func (b *builderAdapter) CreateIndexConcurrently(ctx context.Context, spec executor.BuildSpec) error {
	return b.db.CreateIndexConcurrently(ctx, dbadapter.BuildIndexSpec{
		Name:       spec.Name,
		Table:      spec.Table,
		Columns:    spec.Columns,
		Expression: spec.Expression,
		Predicate:  spec.Predicate,
		Method:     spec.Method,
	})
}

func (b *builderAdapter) DropIndexConcurrently(ctx context.Context, name string) error {
	return b.db.DropIndexConcurrently(ctx, name)
}

func (b *builderAdapter) IsIndexValid(ctx context.Context, name string) (bool, error) {
	return b.db.IsIndexValid(ctx, name)
}

// validatorAdapter confirms a freshly built index is actually chosen by
// the planner, via a fresh EXPLAIN of the motivating query.
type validatorAdapter struct {
	db *dbadapter.Adapter
}

func (v *validatorAdapter) UsesIndex(ctx context.Context, indexName, sampleSQL string) (bool, error) {
	plan, err := v.db.Explain(ctx, sampleSQL, "")
	if err != nil {
		return false, fmt.Errorf("explaining validation query: %w", err)
	}
	return plan.UsesIndex(indexName), nil
}

// writeLatencyProbe reports a write-latency observation and feeds it into
// the rate limiter's adaptive refill, so the CPU/latency throttle and the
// token bucket's backoff react to the same signal. It makes no database
// call: the value is the time of an empty interval, so it stays near zero.
type writeLatencyProbe struct {
	bucket *safeguards.TokenBucket
}

func (p *writeLatencyProbe) ProbeWriteLatencyMS(ctx context.Context) (float64, error) {
	// Nothing is timed between start and the measurement: a real write
	// probe would need a scratch table, which this daemon's tenant isolation
	// model can't assume exists on every watched database.
	start := time.Now()
	ms := float64(time.Since(start).Microseconds()) / 1000
	p.bucket.ObserveLatency(ms)
	return ms, nil
}

// mutationStore adapts the mutationlog package's free functions into the
// rollback.Store and readapi.MutationSource interfaces.
type mutationStore struct {
	pool *pgxpool.Pool
}

func (m *mutationStore) Get(ctx context.Context, mid int64) (domain.Mutation, error) {
	return mutationlog.Get(ctx, m.pool, mid)
}

func (m *mutationStore) HasRollback(ctx context.Context, mid int64) (bool, error) {
	return mutationlog.FindRollbackOf(ctx, m.pool, mid)
}

func (m *mutationStore) Since(ctx context.Context, afterMID int64, limit int) ([]domain.Mutation, error) {
	return mutationlog.Since(ctx, m.pool, afterMID, limit)
}

// applyBypassMode parses a config-supplied bypass mode string ("",
// "l1:<feature>", "l2:<component>", "l3", "l4") and applies it to set.
func applyBypassMode(set *rollback.BypassSet, mode string) error {
	if mode == "" {
		return nil
	}
	switch {
	case mode == "l3":
		set.Set(rollback.LevelSystem, "")
	case mode == "l4":
		set.Set(rollback.LevelStartup, "")
	case len(mode) > 3 && mode[:3] == "l1:":
		set.Set(rollback.LevelFeature, mode[3:])
	case len(mode) > 3 && mode[:3] == "l2:":
		set.Set(rollback.LevelComponent, mode[3:])
	default:
		return fmt.Errorf("unrecognized bypass mode %q", mode)
	}
	return nil
}
