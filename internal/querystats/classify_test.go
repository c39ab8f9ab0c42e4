package querystats

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/eyeinthesky6/indexpilot/internal/domain"
)

func TestClassifyInsufficientHistoryIsSustained(t *testing.T) {
	assert.Equal(t, domain.ClassSustained, Classify(nil))
	assert.Equal(t, domain.ClassSustained, Classify([]int64{10}))
}

func TestClassifySteadyLoadIsSustained(t *testing.T) {
	buckets := []int64{100, 105, 98, 102, 101, 99, 103}
	assert.Equal(t, domain.ClassSustained, Classify(buckets))
}

func TestClassifyShortBurstIsSpike(t *testing.T) {
	// The magnitude outlier must land in the current (last, most recent)
	// bucket to be judged a spike — the classifier only ever compares the
	// current bucket against the historical median, never scans the whole
	// window for an outlier.
	buckets := []int64{10, 12, 11, 9, 10, 11, 500}
	assert.Equal(t, domain.ClassSpike, Classify(buckets))
}

func TestClassifySustainedGrowthAcrossWindowIsSustained(t *testing.T) {
	buckets := []int64{10, 50, 60, 70, 80, 90, 100}
	assert.Equal(t, domain.ClassSustained, Classify(buckets))
}

func TestClassifyInfrequentPresenceIsSpikeEvenWithUniformCounts(t *testing.T) {
	// Present in only 3 of 7 buckets; no bucket is a magnitude outlier, but
	// the K=5-of-7 presence requirement alone fails, so this is a Spike.
	buckets := []int64{0, 0, 100, 0, 100, 0, 100}
	assert.Equal(t, domain.ClassSpike, Classify(buckets))
}
