package safeguards

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/eyeinthesky6/indexpilot/internal/domain"
)

func TestRateLimitGateDeniesWhenBucketEmpty(t *testing.T) {
	bucket := NewTokenBucket(0, 0)
	gate := RateLimitGate{Bucket: bucket}

	result, err := gate.Check(context.Background(), domain.IndexCandidate{})
	assert.NoError(t, err)
	assert.Equal(t, domain.GateDefer, result.Outcome)
}

func TestBudgetGateReservesCandidateSize(t *testing.T) {
	budgets := NewBudgetTracker(map[domain.TenantID]domain.Budget{
		domain.GlobalTenant: {Tenant: domain.GlobalTenant, LimitB: 1000},
	})
	gate := BudgetGate{Budgets: budgets}

	result, err := gate.Check(context.Background(), domain.IndexCandidate{SizeEstimate: 2000})
	assert.NoError(t, err)
	assert.Equal(t, domain.GateDeny, result.Outcome)
}

func TestCircuitBreakerGateAllowsByDefault(t *testing.T) {
	gate := CircuitBreakerGate{Breaker: NewCircuitBreaker()}

	result, err := gate.Check(context.Background(), domain.IndexCandidate{Table: "orders"})
	assert.NoError(t, err)
	assert.Equal(t, domain.GateAllow, result.Outcome)
}

func TestMaintenanceWindowGateAllowsAllDayByDefault(t *testing.T) {
	w, err := ParseWindow("")
	assert.NoError(t, err)
	gate := MaintenanceWindowGate{Window: w}

	result, checkErr := gate.Check(context.Background(), domain.IndexCandidate{})
	assert.NoError(t, checkErr)
	assert.Equal(t, domain.GateAllow, result.Outcome)
}
