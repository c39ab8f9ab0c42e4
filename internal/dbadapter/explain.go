package dbadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
)

// PlanNode is the subset of an EXPLAIN (FORMAT JSON) plan node IndexPilot's
// decision engine reasons about.
type PlanNode struct {
	NodeType      string     `json:"Node Type"`
	RelationName  string     `json:"Relation Name,omitempty"`
	IndexName     string     `json:"Index Name,omitempty"`
	StartupCost   float64    `json:"Startup Cost"`
	TotalCost     float64    `json:"Total Cost"`
	PlanRows      int64      `json:"Plan Rows"`
	ActualRows    *int64     `json:"Actual Rows,omitempty"`
	ActualLoops   *int64     `json:"Actual Loops,omitempty"`
	ActualTimeMS  *float64   `json:"Actual Total Time,omitempty"`
	Plans         []PlanNode `json:"Plans,omitempty"`
}

// Plan is one EXPLAIN result.
type Plan struct {
	Root           PlanNode
	PlanningTimeMS float64
	ExecutionTimeMS float64
}

type explainCacheEntry struct {
	plan      Plan
	cachedAt  time.Time
}

// explainCacheKey hashes the SQL text together with a parameter-type
// signature so two statements that differ only in literal values but share
// a shape do not collide, while statements with different parameter types
// (which can produce different plans) do not share a cache entry either.
func explainCacheKey(sql string, paramTypes string) string {
	h := xxhash.New()
	_, _ = h.WriteString(sql)
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(paramTypes)
	return fmt.Sprintf("%x", h.Sum64())
}

// ExplainCacheTTL bounds how long a cached plan is trusted before a fresh
// EXPLAIN is required; the planner's cost estimates drift as table
// statistics change.
const ExplainCacheTTL = 10 * time.Minute

// Explain runs EXPLAIN (FORMAT JSON) for sql (no ANALYZE, so it never
// executes side effects) and caches the result keyed by statement shape.
func (a *Adapter) Explain(ctx context.Context, sql string, paramTypes string) (Plan, error) {
	key := explainCacheKey(sql, paramTypes)
	if entry, ok := a.explainCache.Get(key); ok {
		if time.Since(entry.cachedAt) < ExplainCacheTTL {
			return entry.plan, nil
		}
		a.explainCache.Remove(key)
	}

	plan, err := a.runExplain(ctx, sql, false)
	if err != nil {
		return Plan{}, err
	}

	a.explainCache.Add(key, explainCacheEntry{plan: plan, cachedAt: time.Now()})
	return plan, nil
}

// ExplainAnalyze runs EXPLAIN (ANALYZE, FORMAT JSON), executing the
// statement. It is never cached: callers (the canary/promotion path) use it
// specifically to observe real execution behavior.
func (a *Adapter) ExplainAnalyze(ctx context.Context, sql string) (Plan, error) {
	return a.runExplain(ctx, sql, true)
}

func (a *Adapter) runExplain(ctx context.Context, sql string, analyze bool) (Plan, error) {
	verb := "EXPLAIN (FORMAT JSON)"
	if analyze {
		verb = "EXPLAIN (ANALYZE, FORMAT JSON, TIMING)"
	}

	var raw []byte
	err := a.pool.QueryRow(ctx, fmt.Sprintf("%s %s", verb, sql)).Scan(&raw)
	if err != nil {
		return Plan{}, fmt.Errorf("running %s: %w", verb, err)
	}

	var decoded []struct {
		Plan            PlanNode `json:"Plan"`
		PlanningTime    float64  `json:"Planning Time"`
		ExecutionTime   float64  `json:"Execution Time"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return Plan{}, fmt.Errorf("decoding explain output: %w", err)
	}
	if len(decoded) == 0 {
		return Plan{}, fmt.Errorf("explain returned no plan rows")
	}

	return Plan{
		Root:            decoded[0].Plan,
		PlanningTimeMS:  decoded[0].PlanningTime,
		ExecutionTimeMS: decoded[0].ExecutionTime,
	}, nil
}

// TotalCost returns the root node's total cost, the figure the decision
// engine uses as "estimated cost" for a query shape.
func (p Plan) TotalCost() float64 { return p.Root.TotalCost }

// UsesIndex reports whether any node in the plan scanned via the named
// index, used to confirm a newly built index is actually being chosen
// during the executor's VALIDATING state.
func (p Plan) UsesIndex(name string) bool {
	return nodeUsesIndex(p.Root, name)
}

func nodeUsesIndex(n PlanNode, name string) bool {
	if n.IndexName == name {
		return true
	}
	for _, child := range n.Plans {
		if nodeUsesIndex(child, name) {
			return true
		}
	}
	return false
}
