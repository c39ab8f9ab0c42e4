package runtime

import (
	"context"
	"fmt"

	"github.com/eyeinthesky6/indexpilot/internal/decision"
	"github.com/eyeinthesky6/indexpilot/internal/domain"
	"github.com/eyeinthesky6/indexpilot/internal/readapi"
)

// indexedCostDiscount approximates how much cheaper an indexed lookup is
// than the full-scan cost the planner client's row-count fallback
// reports, when no real candidate index exists yet to EXPLAIN against.
const indexedCostDiscount = 0.05

// DecisionPass is the scheduler.Job that runs one Decision Engine pass:
// for every observed, non-spike query shape, it generates candidates,
// scores them, selects a budget-constrained set, and drives each through
// the Executor.
type DecisionPass struct {
	rt *Runtime
}

// NewDecisionPass creates a DecisionPass bound to rt.
func NewDecisionPass(rt *Runtime) *DecisionPass { return &DecisionPass{rt: rt} }

// Name implements scheduler.Job.
func (p *DecisionPass) Name() string { return "decision" }

// Run implements scheduler.Job.
func (p *DecisionPass) Run(ctx context.Context) error {
	if !p.rt.Bypass.Allowed("decision", "") {
		p.rt.Log.Debug("decision pass skipped: bypassed")
		return nil
	}

	var selected []domain.IndexCandidate
	for _, stat := range p.rt.Stats.All() {
		if p.rt.Stats.Classification(stat.Tenant, stat.Fingerprint) == domain.ClassSpike {
			p.recordSpikeSuppressed(ctx, stat)
			continue
		}

		candidates := p.candidatesFor(ctx, stat)
		if len(candidates) == 0 {
			continue
		}
		selected = append(selected, candidates...)
	}

	selected = append(selected, p.fkCandidates(ctx)...)

	budgets := map[domain.TenantID]domain.Budget{domain.GlobalTenant: p.rt.Budgets.Snapshot(domain.GlobalTenant)}
	seenTenants := make(map[domain.TenantID]bool)
	for _, c := range selected {
		if c.Tenant == domain.GlobalTenant || seenTenants[c.Tenant] {
			continue
		}
		seenTenants[c.Tenant] = true
		budgets[c.Tenant] = p.rt.Budgets.Snapshot(c.Tenant)
	}

	limits := decision.Limits{
		MaxIndexesPerTable:     p.rt.Config.MaxIndexesPerTable,
		MaxCandidatesPerTenant: p.rt.Config.MaxCandidatesPerTenant,
	}

	chosen, err := p.rt.Decision.Select(ctx, selected, budgets, limits)
	if err != nil {
		return fmt.Errorf("selecting candidates: %w", err)
	}

	for _, candidate := range chosen {
		if p.rt.Catalog.NeverIndex(candidate.Table, firstColumn(candidate)) {
			continue
		}
		if !p.rt.Bypass.Allowed("executor", "") {
			continue
		}
		if _, err := p.rt.Executor.Run(ctx, candidate, ""); err != nil {
			p.rt.Log.Error("executor run failed", "table", candidate.Table, "error", err)
		}
	}

	return nil
}

// recordSpikeSuppressed writes an advisory ActionSpikeSuppress mutation for
// a fingerprint classified as a load spike. These candidates are never
// proposed to the Executor at all — this is the only record of why.
func (p *DecisionPass) recordSpikeSuppressed(ctx context.Context, stat domain.QueryStat) {
	var table string
	if len(stat.ColumnsRead) > 0 {
		table = stat.ColumnsRead[0].Table
	}
	rationale := domain.Rationale{Notes: fmt.Sprintf("fingerprint %s classified as load spike", stat.Fingerprint)}
	if _, err := p.rt.MutationLog.Append(ctx, domain.Mutation{
		Tenant:    stat.Tenant,
		Action:    domain.ActionSpikeSuppress,
		Table:     table,
		Rationale: rationale.ToJSON(),
	}); err != nil {
		p.rt.Log.Warn("recording spike suppression failed", "fingerprint", stat.Fingerprint, "error", err)
	}
}

// fkCandidates proposes single-column candidates for foreign-key columns
// lacking a covering live index, independent of any observed query
// activity.
func (p *DecisionPass) fkCandidates(ctx context.Context) []domain.IndexCandidate {
	entries := p.rt.Catalog.All()
	live, err := p.rt.DB.IntrospectIndexes(ctx)
	if err != nil {
		p.rt.Log.Warn("introspecting live indexes for fk candidates failed", "error", err)
		return nil
	}

	rowsCache := make(map[string]int64)
	estimatedRows := func(table string) int64 {
		if rows, ok := rowsCache[table]; ok {
			return rows
		}
		rows, err := p.rt.DB.RowEstimate(ctx, table)
		if err != nil {
			p.rt.Log.Warn("estimating row count for fk candidate failed", "table", table, "error", err)
			return 0
		}
		rowsCache[table] = rows
		return rows
	}

	var out []domain.IndexCandidate
	for _, candidate := range decision.FKCandidates(entries, live, estimatedRows) {
		if p.rt.Catalog.NeverIndex(candidate.Table, firstColumn(candidate)) {
			continue
		}

		est, err := p.rt.Planner.EstimateCost(ctx, "", "", candidate.Table, "")
		if err != nil {
			p.rt.Log.Warn("estimating cost for fk candidate failed", "table", candidate.Table, "error", err)
			continue
		}

		// FK-motivated candidates carry no observed fingerprint to supply a
		// frequency count; their benefit comes from join correctness rather
		// than measured load, so they are scored against a nominal single
		// occurrence.
		stat := domain.QueryStat{Count: 1}
		workload := domain.WorkloadProfile{Table: candidate.Table}
		scored, err := p.rt.Decision.Score(ctx, candidate, stat, workload, est.TotalCost, est.TotalCost*indexedCostDiscount)
		if err != nil {
			p.rt.Log.Warn("scoring fk candidate failed", "table", candidate.Table, "error", err)
			continue
		}
		out = append(out, scored)
	}
	return out
}

// candidatesFor proposes and scores index candidates for one observed
// query shape. The Planner Client needs literal SQL to EXPLAIN, but the
// Query Stats Store deliberately discards raw SQL and keeps only the
// normalized fingerprint and column references — so EstimateCost is
// called with an empty SQL string, which always misses the planner's
// live-EXPLAIN path and falls through to its row-count heuristic. This
// intentionally runs the decision pass entirely off the cheaper fallback
// cost model rather than ever executing a stored query verbatim.
func (p *DecisionPass) candidatesFor(ctx context.Context, stat domain.QueryStat) []domain.IndexCandidate {
	if len(stat.ColumnsRead) == 0 {
		return nil
	}

	rows, err := p.rt.DB.RowEstimate(ctx, stat.ColumnsRead[0].Table)
	if err != nil {
		p.rt.Log.Warn("estimating row count failed", "table", stat.ColumnsRead[0].Table, "error", err)
		return nil
	}

	var out []domain.IndexCandidate
	for _, candidate := range decision.GenerateCandidates(stat, rows) {
		if p.rt.Catalog.NeverIndex(candidate.Table, firstColumn(candidate)) {
			continue
		}

		est, err := p.rt.Planner.EstimateCost(ctx, stat.Fingerprint, "", candidate.Table, "")
		if err != nil {
			p.rt.Log.Warn("estimating cost failed", "table", candidate.Table, "error", err)
			continue
		}

		workload := domain.WorkloadProfile{Tenant: stat.Tenant, Table: candidate.Table}
		scored, err := p.rt.Decision.Score(ctx, candidate, stat, workload, est.TotalCost, est.TotalCost*indexedCostDiscount)
		if err != nil {
			p.rt.Log.Warn("scoring candidate failed", "table", candidate.Table, "error", err)
			continue
		}
		out = append(out, scored)
	}
	return out
}

func firstColumn(c domain.IndexCandidate) string {
	if len(c.Columns) == 0 {
		return ""
	}
	return c.Columns[0]
}

// MaintenancePass is the scheduler.Job that runs one Maintenance Loop pass.
type MaintenancePass struct {
	rt *Runtime
}

// NewMaintenancePass creates a MaintenancePass bound to rt.
func NewMaintenancePass(rt *Runtime) *MaintenancePass { return &MaintenancePass{rt: rt} }

// Name implements scheduler.Job.
func (p *MaintenancePass) Name() string { return "maintenance" }

// Run implements scheduler.Job.
func (p *MaintenancePass) Run(ctx context.Context) error {
	if !p.rt.Bypass.Allowed("maintenance", "") {
		p.rt.Log.Debug("maintenance pass skipped: bypassed")
		return nil
	}

	report := p.rt.Maintenance.Run(ctx)
	p.rt.mu.Lock()
	p.rt.lastMaintenance = report
	p.rt.mu.Unlock()

	if len(report.Errors) > 0 {
		p.rt.Log.Warn("maintenance pass reported errors", "count", len(report.Errors))
	}
	return nil
}

// LastReport implements readapi.MaintenanceSource.
func (rt *Runtime) LastReport() readapi.MaintenanceSnapshot {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return readapi.MaintenanceSnapshot{
		RanAt:          rt.lastMaintenance.RanAt,
		UnusedIndexes:  rt.lastMaintenance.UnusedIndexes,
		RebuiltIndexes: rt.lastMaintenance.RebuiltIndexes,
		ReapedIndexes:  rt.lastMaintenance.ReapedIndexes,
		Errors:         rt.lastMaintenance.Errors,
	}
}

// Entries implements readapi.BypassSource.
func (rt *Runtime) Entries() []readapi.BypassEntry {
	entries := rt.Bypass.Entries()
	out := make([]readapi.BypassEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, readapi.BypassEntry{Level: string(e.Level), Name: e.Name})
	}
	return out
}

// MutationsSource exposes the runtime's mutation store as a
// readapi.MutationSource without making the field itself exported.
func (rt *Runtime) MutationsSource() *mutationStore {
	return rt.mutations
}

// minStatementCalls is the pg_stat_statements call-count floor a statement
// must clear before it is considered a candidate-worthy query shape,
// filtering out one-off migrations and admin queries.
const minStatementCalls = 5

// IngestPass is the scheduler.Job that polls pg_stat_statements and feeds
// observed statements into the Query Stats Store.
type IngestPass struct {
	rt *Runtime
}

// NewIngestPass creates an IngestPass bound to rt.
func NewIngestPass(rt *Runtime) *IngestPass { return &IngestPass{rt: rt} }

// Name implements scheduler.Job.
func (p *IngestPass) Name() string { return "ingest" }

// Run implements scheduler.Job.
func (p *IngestPass) Run(ctx context.Context) error {
	samples, err := p.rt.DB.PollQueryStatements(ctx, minStatementCalls)
	if err != nil {
		p.rt.Log.Warn("polling pg_stat_statements failed, skipping this cycle", "error", err)
		return nil
	}
	for _, s := range samples {
		p.rt.Stats.Offer(s)
	}
	return nil
}
