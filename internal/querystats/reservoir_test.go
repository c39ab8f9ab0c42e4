package querystats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReservoirPercentileEmpty(t *testing.T) {
	r := NewReservoir(10)
	assert.Equal(t, float64(0), r.Percentile(95))
}

func TestReservoirTracksCount(t *testing.T) {
	r := NewReservoir(10)
	for i := 0; i < 5; i++ {
		r.Add(float64(i))
	}
	assert.Equal(t, int64(5), r.Count())
}

func TestReservoirPercentileApproximatesUniform(t *testing.T) {
	r := NewReservoir(1000)
	for i := 1; i <= 1000; i++ {
		r.Add(float64(i))
	}
	p50 := r.Percentile(50)
	assert.InDelta(t, 500, p50, 60)
}

func TestReservoirBoundedCapacityBeyondCount(t *testing.T) {
	r := NewReservoir(10)
	for i := 0; i < 1000; i++ {
		r.Add(float64(i))
	}
	assert.Equal(t, int64(1000), r.Count())
	assert.LessOrEqual(t, len(r.samples), 10)
}
