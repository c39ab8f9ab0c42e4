package safeguards

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func repeatedSamples(n int, value float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = value
	}
	return out
}

func TestEvaluateInsufficientSamples(t *testing.T) {
	v, err := Evaluate(CanarySample{Control: repeatedSamples(5, 10), Canary: repeatedSamples(5, 10)})
	require.NoError(t, err)
	assert.False(t, v.Promote)
}

func TestEvaluatePromotesFasterCanary(t *testing.T) {
	control := make([]float64, 100)
	canary := make([]float64, 100)
	for i := range control {
		control[i] = 100 + float64(i%5)
		canary[i] = 20 + float64(i%5)
	}
	v, err := Evaluate(CanarySample{Control: control, Canary: canary})
	require.NoError(t, err)
	assert.True(t, v.Promote)
}

func TestEvaluateRejectsSlowerCanary(t *testing.T) {
	control := make([]float64, 100)
	canary := make([]float64, 100)
	for i := range control {
		control[i] = 20 + float64(i%5)
		canary[i] = 200 + float64(i%5)
	}
	v, err := Evaluate(CanarySample{Control: control, Canary: canary})
	require.NoError(t, err)
	assert.False(t, v.Promote)
}
