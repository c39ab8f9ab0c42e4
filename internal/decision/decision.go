// Package decision is the Decision Engine (M1): it turns observed query
// statistics into scored, budget-constrained index candidates.
package decision

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/eyeinthesky6/indexpilot/internal/domain"
)

// Scorer is a pluggable, pure-function contribution to a candidate's final
// score. Scorers never mutate shared state and return a bounded additive
// adjustment rather than replacing the base score outright.
type Scorer interface {
	Name() string
	Score(ctx context.Context, candidate domain.IndexCandidate, workload domain.WorkloadProfile) (domain.ScorerAdjustment, error)
}

// maxScorerAdjustment bounds how much a single scorer can move a
// candidate's score, positive or negative, so no one plugin can dominate
// the base cost-benefit calculation.
const maxScorerAdjustment = 0.25

// CostEstimator is the subset of the planner client the decision engine
// needs: the estimated cost of running a query class against current
// indexes.
type CostEstimator interface {
	EstimateCost(ctx context.Context, fp domain.QueryFingerprint, sql, table, paramTypes string) (float64, error)
}

// ConstraintSolver is an optional pluggable replacement for the engine's
// default greedy knapsack optimizer. The engine uses its result when it
// returns without error before the caller's context is done; otherwise the
// greedy result is used.
type ConstraintSolver interface {
	Solve(ctx context.Context, candidates []domain.IndexCandidate, budgets map[domain.TenantID]domain.Budget, limits Limits) ([]domain.IndexCandidate, error)
}

// Limits bounds a Select pass beyond raw storage budget with per-table and
// per-tenant cardinality ceilings. Zero means unconstrained.
type Limits struct {
	// MaxIndexesPerTable caps how many candidates targeting the same table
	// may be selected in one pass.
	MaxIndexesPerTable int
	// MaxCandidatesPerTenant caps how many candidates belonging to the same
	// tenant may be selected in one pass.
	MaxCandidatesPerTenant int
}

// Engine scores and selects index candidates.
type Engine struct {
	scorers []Scorer
	solver  ConstraintSolver
}

// New creates an Engine with the given scorers and an optional
// ConstraintSolver (nil uses only the built-in greedy optimizer).
func New(scorers []Scorer, solver ConstraintSolver) *Engine {
	return &Engine{scorers: scorers, solver: solver}
}

// benefit computes freq * (full_scan_cost - estimated_indexed_cost), the
// base cost-benefit score before any scorer adjustment.
func benefit(freq int64, fullScanCost, estimatedIndexedCost float64) float64 {
	delta := fullScanCost - estimatedIndexedCost
	if delta < 0 {
		delta = 0
	}
	return float64(freq) * delta
}

// Score computes the base benefit/score for candidate and applies every
// registered scorer's bounded adjustment, recording each in the
// candidate's Rationale.
func (e *Engine) Score(ctx context.Context, candidate domain.IndexCandidate, stat domain.QueryStat, workload domain.WorkloadProfile, fullScanCost, estimatedIndexedCost float64) (domain.IndexCandidate, error) {
	candidate.Benefit = benefit(stat.Count, fullScanCost, estimatedIndexedCost)
	base := candidate.Benefit - candidate.BuildCost

	adjustments := make(map[string]float64, len(e.scorers))
	total := base
	var warnings []string

	for _, s := range e.scorers {
		adj, err := s.Score(ctx, candidate, workload)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("scorer %s failed: %v", s.Name(), err))
			continue
		}
		bounded := clampAdjustment(adj.Adjustment)
		adjustments[s.Name()] = bounded
		total += bounded * baseOrOne(base)
	}

	candidate.Score = total
	candidate.Rationale = domain.Rationale{
		Benefit:           candidate.Benefit,
		BuildCost:         candidate.BuildCost,
		Score:             candidate.Score,
		ReadWriteRatio:    workload.ReadRatio(),
		ScorerAdjustments: adjustments,
		Warnings:          warnings,
		Notes:             candidate.Rationale.Notes,
	}
	return candidate, nil
}

// baseOrOne avoids a zero-magnitude base score silencing every scorer
// adjustment; scorers still move an otherwise-zero score by a small fixed
// unit rather than nothing at all.
func baseOrOne(base float64) float64 {
	if base == 0 {
		return 1
	}
	if base < 0 {
		return -base
	}
	return base
}

func clampAdjustment(v float64) float64 {
	if v > maxScorerAdjustment {
		return maxScorerAdjustment
	}
	if v < -maxScorerAdjustment {
		return -maxScorerAdjustment
	}
	return v
}

// Select applies budget and cardinality constraints to rank candidates,
// preferring the pluggable ConstraintSolver when one is configured and it
// responds within ctx's deadline, falling back to the built-in greedy
// knapsack otherwise. budgets must carry an entry keyed by
// domain.GlobalTenant for the global storage ceiling; any other entry is
// treated as that tenant's own ceiling, checked in addition to the global
// one. A tenant absent from budgets is only bound by the global ceiling.
func (e *Engine) Select(ctx context.Context, candidates []domain.IndexCandidate, budgets map[domain.TenantID]domain.Budget, limits Limits) ([]domain.IndexCandidate, error) {
	pruned := pruneRedundant(candidates)

	if e.solver != nil {
		result, err := e.raceSolver(ctx, pruned, budgets, limits)
		if err == nil {
			return result, nil
		}
	}

	return greedyKnapsack(pruned, budgets, limits), nil
}

func (e *Engine) raceSolver(ctx context.Context, candidates []domain.IndexCandidate, budgets map[domain.TenantID]domain.Budget, limits Limits) ([]domain.IndexCandidate, error) {
	type result struct {
		cands []domain.IndexCandidate
		err   error
	}
	ch := make(chan result, 1)

	go func() {
		cands, err := e.solver.Solve(ctx, candidates, budgets, limits)
		ch <- result{cands: cands, err: err}
	}()

	select {
	case r := <-ch:
		return r.cands, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// pruneRedundant drops candidates whose column list is prefix-equivalent
// to another candidate on the same table with the same predicate — a
// composite index on (a, b) makes a standalone index on (a) redundant. The
// longer of any prefix-equivalent pair always wins regardless of score, so
// grouping happens by column-list length, not by score order.
func pruneRedundant(candidates []domain.IndexCandidate) []domain.IndexCandidate {
	byTable := make(map[string][]domain.IndexCandidate)
	for _, c := range candidates {
		byTable[c.Table] = append(byTable[c.Table], c)
	}

	var out []domain.IndexCandidate
	for _, group := range byTable {
		sort.SliceStable(group, func(i, j int) bool {
			if len(group[i].Columns) != len(group[j].Columns) {
				return len(group[i].Columns) > len(group[j].Columns)
			}
			return group[i].Score > group[j].Score
		})

		var kept []domain.IndexCandidate
		for _, c := range group {
			redundant := false
			for _, k := range kept {
				if k.Predicate != c.Predicate {
					continue
				}
				if isColumnPrefix(c.Columns, k.Columns) || isColumnPrefix(k.Columns, c.Columns) {
					redundant = true
					break
				}
			}
			if !redundant {
				kept = append(kept, c)
			}
		}
		out = append(out, kept...)
	}
	return out
}

func isColumnPrefix(prefix, full []string) bool {
	if len(prefix) == 0 || len(prefix) > len(full) {
		return false
	}
	for i, c := range prefix {
		if full[i] != c {
			return false
		}
	}
	return true
}

// greedyKnapsack selects candidates by descending score/size_estimate
// ratio, the default constraint optimizer when no pluggable
// ConstraintSolver is configured. For every candidate considered in ratio
// order it enforces: the global storage budget, the candidate's own
// tenant's storage budget (when budgets carries an entry for it), a
// per-table index-count ceiling, and a per-tenant candidate-count ceiling.
func greedyKnapsack(candidates []domain.IndexCandidate, budgets map[domain.TenantID]domain.Budget, limits Limits) []domain.IndexCandidate {
	sorted := make([]domain.IndexCandidate, len(candidates))
	copy(sorted, candidates)

	sort.Slice(sorted, func(i, j int) bool {
		ri := ratio(sorted[i])
		rj := ratio(sorted[j])
		return ri > rj
	})

	globalRemaining := int64(math.MaxInt64)
	if b, ok := budgets[domain.GlobalTenant]; ok {
		globalRemaining = b.Available()
	}
	tenantRemaining := make(map[domain.TenantID]int64, len(budgets))
	for tenant, b := range budgets {
		if tenant == domain.GlobalTenant {
			continue
		}
		tenantRemaining[tenant] = b.Available()
	}

	tableCount := make(map[string]int)
	tenantCount := make(map[domain.TenantID]int)

	var selected []domain.IndexCandidate
	for _, c := range sorted {
		if c.Score <= 0 {
			continue
		}
		if c.SizeEstimate > globalRemaining {
			continue
		}
		if remaining, tracked := tenantRemaining[c.Tenant]; tracked && c.SizeEstimate > remaining {
			continue
		}
		if limits.MaxIndexesPerTable > 0 && tableCount[c.Table] >= limits.MaxIndexesPerTable {
			continue
		}
		if limits.MaxCandidatesPerTenant > 0 && tenantCount[c.Tenant] >= limits.MaxCandidatesPerTenant {
			continue
		}

		selected = append(selected, c)
		globalRemaining -= c.SizeEstimate
		if _, tracked := tenantRemaining[c.Tenant]; tracked {
			tenantRemaining[c.Tenant] -= c.SizeEstimate
		}
		tableCount[c.Table]++
		tenantCount[c.Tenant]++
	}
	return selected
}

func ratio(c domain.IndexCandidate) float64 {
	if c.SizeEstimate <= 0 {
		return c.Score
	}
	return c.Score / float64(c.SizeEstimate)
}
