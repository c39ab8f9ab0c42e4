package querystats

import (
	"math"
	"math/bits"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// As with the percentile sketch, no pack dependency offers a Postgres-aware
// cardinality estimator, so this is a small hand-rolled HyperLogLog-style
// register array. 2048 registers (11 bits of the hash select the bucket)
// keeps standard error around 2%, adequate for deciding whether a column's
// distinct-parameter cardinality justifies an index.
const registerBits = 11
const registerCount = 1 << registerBits // 2048

// CardinalityEstimator tracks the approximate distinct-value count of a
// stream of uint64 keys (typically a hash of a query parameter value).
type CardinalityEstimator struct {
	mu        sync.Mutex
	registers [registerCount]uint8
}

// NewCardinalityEstimator creates an empty estimator.
func NewCardinalityEstimator() *CardinalityEstimator {
	return &CardinalityEstimator{}
}

// Add records one observed value.
func (c *CardinalityEstimator) Add(value string) {
	h := xxhash.Sum64String(value)
	c.AddHash(h)
}

// AddHash records a pre-hashed observation, used when the caller already
// has an xxhash-computed key (e.g. a parameter hash from QuerySample).
func (c *CardinalityEstimator) AddHash(h uint64) {
	idx := h >> (64 - registerBits)
	rest := h << registerBits
	rank := uint8(bits.LeadingZeros64(rest)) + 1

	c.mu.Lock()
	defer c.mu.Unlock()
	if rank > c.registers[idx] {
		c.registers[idx] = rank
	}
}

// Estimate returns the approximate number of distinct values observed.
func (c *CardinalityEstimator) Estimate() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	sum := 0.0
	zeros := 0
	for _, r := range c.registers {
		sum += 1.0 / math.Pow(2, float64(r))
		if r == 0 {
			zeros++
		}
	}

	m := float64(registerCount)
	alpha := 0.7213 / (1 + 1.079/m)
	raw := alpha * m * m / sum

	// small-range correction via linear counting
	if raw <= 2.5*m && zeros > 0 {
		return uint64(m * math.Log(m/float64(zeros)))
	}
	if raw < 0 {
		return 0
	}
	return uint64(raw)
}
