package decision

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eyeinthesky6/indexpilot/internal/domain"
)

type fixedScorer struct {
	name string
	adj  float64
	err  error
}

func (f fixedScorer) Name() string { return f.name }
func (f fixedScorer) Score(ctx context.Context, c domain.IndexCandidate, w domain.WorkloadProfile) (domain.ScorerAdjustment, error) {
	if f.err != nil {
		return domain.ScorerAdjustment{}, f.err
	}
	return domain.ScorerAdjustment{Name: f.name, Adjustment: f.adj}, nil
}

func TestScoreAppliesBenefitFormula(t *testing.T) {
	e := New(nil, nil)
	c := domain.IndexCandidate{Table: "orders", BuildCost: 10}
	stat := domain.QueryStat{Count: 100}

	scored, err := e.Score(context.Background(), c, stat, domain.WorkloadProfile{}, 1000, 10)
	require.NoError(t, err)
	assert.Equal(t, float64(100*(1000-10)), scored.Benefit)
}

func TestScoreClampsScorerAdjustment(t *testing.T) {
	e := New([]Scorer{fixedScorer{name: "aggressive", adj: 10}}, nil)
	c := domain.IndexCandidate{Table: "orders", BuildCost: 1}
	stat := domain.QueryStat{Count: 1}

	scored, err := e.Score(context.Background(), c, stat, domain.WorkloadProfile{}, 100, 10)
	require.NoError(t, err)
	assert.Equal(t, maxScorerAdjustment, scored.Rationale.ScorerAdjustments["aggressive"])
}

func TestScoreRecordsFailingScorerAsWarning(t *testing.T) {
	e := New([]Scorer{fixedScorer{name: "flaky", err: assertErr}}, nil)
	c := domain.IndexCandidate{Table: "orders"}
	stat := domain.QueryStat{Count: 1}

	scored, err := e.Score(context.Background(), c, stat, domain.WorkloadProfile{}, 10, 1)
	require.NoError(t, err)
	assert.Len(t, scored.Rationale.Warnings, 1)
}

var assertErr = errTest("scorer exploded")

type errTest string

func (e errTest) Error() string { return string(e) }

func TestSelectGreedyKnapsackRespectsBudget(t *testing.T) {
	e := New(nil, nil)
	candidates := []domain.IndexCandidate{
		{Table: "orders", Columns: []string{"a"}, Score: 100, SizeEstimate: 50},
		{Table: "orders", Columns: []string{"b"}, Score: 90, SizeEstimate: 60},
		{Table: "orders", Columns: []string{"c"}, Score: 10, SizeEstimate: 5},
	}
	budgets := map[domain.TenantID]domain.Budget{domain.GlobalTenant: {LimitB: 100}}

	selected, err := e.Select(context.Background(), candidates, budgets, Limits{})
	require.NoError(t, err)

	var totalSize int64
	for _, c := range selected {
		totalSize += c.SizeEstimate
	}
	assert.LessOrEqual(t, totalSize, int64(100))
	assert.NotEmpty(t, selected)
}

func TestSelectExcludesNonPositiveScore(t *testing.T) {
	e := New(nil, nil)
	candidates := []domain.IndexCandidate{
		{Table: "orders", Columns: []string{"a"}, Score: -5, SizeEstimate: 10},
	}
	budgets := map[domain.TenantID]domain.Budget{domain.GlobalTenant: {LimitB: 1000}}
	selected, err := e.Select(context.Background(), candidates, budgets, Limits{})
	require.NoError(t, err)
	assert.Empty(t, selected)
}

func TestSelectEnforcesPerTenantBudgetAlongsideGlobal(t *testing.T) {
	e := New(nil, nil)
	candidates := []domain.IndexCandidate{
		{Tenant: "acme", Table: "orders", Columns: []string{"a"}, Score: 100, SizeEstimate: 80},
		{Tenant: "acme", Table: "orders", Columns: []string{"b"}, Score: 90, SizeEstimate: 80},
	}
	budgets := map[domain.TenantID]domain.Budget{
		domain.GlobalTenant: {LimitB: 1000},
		"acme":              {LimitB: 80},
	}

	selected, err := e.Select(context.Background(), candidates, budgets, Limits{})
	require.NoError(t, err)
	assert.Len(t, selected, 1, "acme's own 80-byte budget admits only one of the two candidates despite ample global headroom")
}

func TestSelectEnforcesMaxIndexesPerTable(t *testing.T) {
	e := New(nil, nil)
	candidates := []domain.IndexCandidate{
		{Table: "orders", Columns: []string{"a"}, Score: 100, SizeEstimate: 1},
		{Table: "orders", Columns: []string{"b"}, Score: 90, SizeEstimate: 1},
		{Table: "orders", Columns: []string{"c"}, Score: 80, SizeEstimate: 1},
	}
	budgets := map[domain.TenantID]domain.Budget{domain.GlobalTenant: {LimitB: 1000}}

	selected, err := e.Select(context.Background(), candidates, budgets, Limits{MaxIndexesPerTable: 2})
	require.NoError(t, err)
	assert.Len(t, selected, 2)
}

func TestSelectEnforcesMaxCandidatesPerTenant(t *testing.T) {
	e := New(nil, nil)
	candidates := []domain.IndexCandidate{
		{Tenant: "acme", Table: "orders", Columns: []string{"a"}, Score: 100, SizeEstimate: 1},
		{Tenant: "acme", Table: "users", Columns: []string{"b"}, Score: 90, SizeEstimate: 1},
	}
	budgets := map[domain.TenantID]domain.Budget{domain.GlobalTenant: {LimitB: 1000}}

	selected, err := e.Select(context.Background(), candidates, budgets, Limits{MaxCandidatesPerTenant: 1})
	require.NoError(t, err)
	assert.Len(t, selected, 1)
}

func TestPruneRedundantDropsPrefixCoveredCandidate(t *testing.T) {
	candidates := []domain.IndexCandidate{
		{Table: "orders", Columns: []string{"tenant_id", "status"}, Score: 100},
		{Table: "orders", Columns: []string{"tenant_id"}, Score: 50},
	}
	pruned := pruneRedundant(candidates)
	assert.Len(t, pruned, 1)
	assert.Equal(t, []string{"tenant_id", "status"}, pruned[0].Columns)
}

func TestPruneRedundantAlwaysKeepsLongerCandidateRegardlessOfScore(t *testing.T) {
	candidates := []domain.IndexCandidate{
		{Table: "orders", Columns: []string{"a"}, Score: 10},
		{Table: "orders", Columns: []string{"a", "b"}, Score: 8},
	}
	pruned := pruneRedundant(candidates)
	assert.Len(t, pruned, 1)
	assert.Equal(t, []string{"a", "b"}, pruned[0].Columns, "the longer candidate wins even when it scores lower")
}

func TestPruneRedundantKeepsDifferentPredicates(t *testing.T) {
	candidates := []domain.IndexCandidate{
		{Table: "orders", Columns: []string{"status"}, Predicate: "status = 'open'", Score: 100},
		{Table: "orders", Columns: []string{"status"}, Predicate: "status = 'closed'", Score: 90},
	}
	pruned := pruneRedundant(candidates)
	assert.Len(t, pruned, 2)
}
