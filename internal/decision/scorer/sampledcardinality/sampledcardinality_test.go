package sampledcardinality

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eyeinthesky6/indexpilot/internal/domain"
)

type fakeSampler struct {
	values []string
	err    error
}

func (f fakeSampler) SampleValues(ctx context.Context, table, column string, limit int) ([]string, error) {
	return f.values, f.err
}

func TestScorePenalizesLowCardinality(t *testing.T) {
	values := make([]string, 1000)
	for i := range values {
		values[i] = "constant"
	}
	s := New(fakeSampler{values: values}, 1000)

	adj, err := s.Score(context.Background(), domain.IndexCandidate{Table: "orders", Columns: []string{"status"}}, domain.WorkloadProfile{})
	require.NoError(t, err)
	assert.Less(t, adj.Adjustment, 0.0)
}

func TestScoreRewardsHighCardinality(t *testing.T) {
	values := make([]string, 1000)
	for i := range values {
		values[i] = fmt.Sprintf("v-%d", i)
	}
	s := New(fakeSampler{values: values}, 1000)

	adj, err := s.Score(context.Background(), domain.IndexCandidate{Table: "orders", Columns: []string{"id"}}, domain.WorkloadProfile{})
	require.NoError(t, err)
	assert.Greater(t, adj.Adjustment, 0.0)
}

func TestScoreEmptySampleIsNeutral(t *testing.T) {
	s := New(fakeSampler{}, 100)
	adj, err := s.Score(context.Background(), domain.IndexCandidate{Table: "orders", Columns: []string{"id"}}, domain.WorkloadProfile{})
	require.NoError(t, err)
	assert.Equal(t, 0.0, adj.Adjustment)
}
