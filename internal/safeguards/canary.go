package safeguards

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// CanarySample is one observed latency under the canary (new index) or
// control (old plan) arm of an A/B split.
type CanarySample struct {
	Control []float64
	Canary  []float64
}

// PromotionVerdict is the outcome of comparing canary and control arms.
type PromotionVerdict struct {
	Promote    bool
	MeanDeltaMS float64
	PValueProxy float64 // signed two-sample z-score (positive: canary faster), not a calibrated p-value
	Reason     string
}

// minSamplesForPromotion is the smallest sample size per arm the canary
// evaluator trusts before recommending promotion either way.
const minSamplesForPromotion = 30

// Evaluate compares canary and control latency samples using a two-sample
// mean/variance z-test and recommends promotion only when the canary is
// not slower (within noise) and both arms have enough samples to trust.
func Evaluate(s CanarySample) (PromotionVerdict, error) {
	if len(s.Control) < minSamplesForPromotion || len(s.Canary) < minSamplesForPromotion {
		return PromotionVerdict{
			Promote: false,
			Reason:  fmt.Sprintf("insufficient samples: control=%d canary=%d, need %d", len(s.Control), len(s.Canary), minSamplesForPromotion),
		}, nil
	}

	controlMean, controlVar := stat.MeanVariance(s.Control, nil)
	canaryMean, canaryVar := stat.MeanVariance(s.Canary, nil)

	se := math.Sqrt(controlVar/float64(len(s.Control)) + canaryVar/float64(len(s.Canary)))
	if se == 0 {
		se = 1e-9
	}
	z := (controlMean - canaryMean) / se

	verdict := PromotionVerdict{
		MeanDeltaMS: controlMean - canaryMean,
		PValueProxy: z,
	}

	// z > 1.64 is roughly a one-sided 95% confidence that canary is
	// faster than control; z between -1.64 and 1.64 is "no clear signal
	// either way", which we treat as safe-to-promote since the canary is
	// not demonstrably worse.
	switch {
	case z >= 1.64:
		verdict.Promote = true
		verdict.Reason = "canary faster than control with high confidence"
	case z <= -1.64:
		verdict.Promote = false
		verdict.Reason = "canary slower than control with high confidence"
	default:
		verdict.Promote = true
		verdict.Reason = "no statistically significant difference"
	}

	return verdict, nil
}
