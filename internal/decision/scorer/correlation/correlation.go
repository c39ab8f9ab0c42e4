// Package correlation implements a decision.Scorer that rewards composite
// index candidates whose columns are statistically correlated in sampled
// data, since a correlated composite key compresses better and is more
// selective than its Pearson coefficient alone would suggest.
package correlation

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/eyeinthesky6/indexpilot/internal/domain"
)

// Sampler returns parallel numeric samples for two columns of the same
// table, used to compute their Pearson correlation.
type Sampler interface {
	NumericSamples(ctx context.Context, table, colA, colB string) ([]float64, []float64, error)
}

// Scorer rewards a composite candidate proportional to how correlated its
// leading two columns are.
type Scorer struct {
	sampler Sampler
}

// New creates a correlation Scorer backed by sampler.
func New(sampler Sampler) *Scorer {
	return &Scorer{sampler: sampler}
}

// Name implements decision.Scorer.
func (s *Scorer) Name() string { return "correlation" }

// Score implements decision.Scorer. It only contributes for composite
// candidates (two or more columns); single-column candidates get a zero
// adjustment.
func (s *Scorer) Score(ctx context.Context, candidate domain.IndexCandidate, workload domain.WorkloadProfile) (domain.ScorerAdjustment, error) {
	if len(candidate.Columns) < 2 {
		return domain.ScorerAdjustment{Name: s.Name()}, nil
	}

	xs, ys, err := s.sampler.NumericSamples(ctx, candidate.Table, candidate.Columns[0], candidate.Columns[1])
	if err != nil {
		return domain.ScorerAdjustment{}, fmt.Errorf("sampling for correlation score: %w", err)
	}
	if len(xs) < 2 || len(xs) != len(ys) {
		return domain.ScorerAdjustment{Name: s.Name()}, nil
	}

	corr := stat.Correlation(xs, ys, nil)
	if corr < -1 || corr > 1 {
		return domain.ScorerAdjustment{Name: s.Name()}, nil
	}

	// Strong correlation (either sign) mildly boosts the score and weak
	// correlation mildly lowers it: |corr| = 0.5 is neutral, 1 gives +0.1,
	// 0 gives -0.1.
	adjustment := (absFloat(corr) - 0.5) * 0.2

	return domain.ScorerAdjustment{
		Name:       s.Name(),
		Adjustment: adjustment,
		Confidence: absFloat(corr),
		Note:       fmt.Sprintf("pearson correlation %.3f", corr),
	}, nil
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
