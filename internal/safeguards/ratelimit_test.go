package safeguards

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/eyeinthesky6/indexpilot/internal/domain"
)

func TestTokenBucketAllowsUntilEmpty(t *testing.T) {
	b := NewTokenBucket(2, 0)
	assert.Equal(t, domain.GateAllow, b.Allow().Outcome)
	assert.Equal(t, domain.GateAllow, b.Allow().Outcome)
	assert.Equal(t, domain.GateDefer, b.Allow().Outcome)
}

func TestTokenBucketAdaptsRefillToLatency(t *testing.T) {
	b := NewTokenBucket(10, 100)
	for i := 0; i < 300; i++ {
		b.ObserveLatency(500)
	}
	assert.Less(t, b.refillRate(), 100.0)
}

func TestTokenBucketFullRefillAtLowLatency(t *testing.T) {
	b := NewTokenBucket(10, 100)
	for i := 0; i < 10; i++ {
		b.ObserveLatency(5)
	}
	assert.Equal(t, 100.0, b.refillRate())
}
