// Package sampledcardinality implements a decision.Scorer that penalizes
// candidates over low-cardinality columns, since an index whose values are
// mostly duplicates gives the planner little to discriminate on.
package sampledcardinality

import (
	"context"
	"fmt"

	"github.com/eyeinthesky6/indexpilot/internal/domain"
)

// lowCardinalityRatio is the distinct/total ratio below which a column is
// considered low-cardinality enough to penalize.
const lowCardinalityRatio = 0.05

// highCardinalityRatio is the ratio above which a column is rewarded as
// highly selective.
const highCardinalityRatio = 0.6

// Sampler estimates column cardinality from a sample of rows.
type Sampler interface {
	SampleValues(ctx context.Context, table, column string, limit int) ([]string, error)
}

// Scorer penalizes low-selectivity leading columns and rewards
// high-selectivity ones, judged by the distinct-value ratio of a sample of
// the leading column against fixed thresholds. It does not compare the
// sample against the planner's row estimate.
type Scorer struct {
	sampler    Sampler
	sampleSize int
}

// New creates a sampledcardinality Scorer.
func New(sampler Sampler, sampleSize int) *Scorer {
	if sampleSize <= 0 {
		sampleSize = 500
	}
	return &Scorer{sampler: sampler, sampleSize: sampleSize}
}

// Name implements decision.Scorer.
func (s *Scorer) Name() string { return "sampled_cardinality" }

// Score implements decision.Scorer.
func (s *Scorer) Score(ctx context.Context, candidate domain.IndexCandidate, workload domain.WorkloadProfile) (domain.ScorerAdjustment, error) {
	if len(candidate.Columns) == 0 {
		return domain.ScorerAdjustment{Name: s.Name()}, nil
	}

	leading := candidate.Columns[0]
	values, err := s.sampler.SampleValues(ctx, candidate.Table, leading, s.sampleSize)
	if err != nil {
		return domain.ScorerAdjustment{}, fmt.Errorf("sampling %s.%s for cardinality score: %w", candidate.Table, leading, err)
	}
	if len(values) == 0 {
		return domain.ScorerAdjustment{Name: s.Name()}, nil
	}

	distinct := make(map[string]bool, len(values))
	for _, v := range values {
		distinct[v] = true
	}
	ratio := float64(len(distinct)) / float64(len(values))

	var adjustment float64
	var note string
	switch {
	case ratio < lowCardinalityRatio:
		adjustment = -0.15
		note = fmt.Sprintf("low cardinality ratio %.3f", ratio)
	case ratio > highCardinalityRatio:
		adjustment = 0.15
		note = fmt.Sprintf("high cardinality ratio %.3f", ratio)
	default:
		note = fmt.Sprintf("cardinality ratio %.3f", ratio)
	}

	return domain.ScorerAdjustment{
		Name:       s.Name(),
		Adjustment: adjustment,
		Confidence: ratio,
		Note:       note,
	}, nil
}
