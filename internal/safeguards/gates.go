package safeguards

import (
	"context"
	"time"

	"github.com/eyeinthesky6/indexpilot/internal/domain"
)

// The adapters in this file give every safeguard the same
// Check(ctx, candidate) (domain.GateResult, error) shape the Executor's
// Gate interface expects, without the safeguards package importing the
// executor package — Go's structural interface satisfaction needs only
// the matching method set.

// RateLimitGate adapts a TokenBucket.
type RateLimitGate struct{ Bucket *TokenBucket }

// Check implements the Gate interface.
func (g RateLimitGate) Check(_ context.Context, _ domain.IndexCandidate) (domain.GateResult, error) {
	return g.Bucket.Allow(), nil
}

// ThrottleGate adapts a ResourceThrottle.
type ThrottleGate struct{ Throttle *ResourceThrottle }

// Check implements the Gate interface.
func (g ThrottleGate) Check(ctx context.Context, _ domain.IndexCandidate) (domain.GateResult, error) {
	return g.Throttle.Check(ctx)
}

// BudgetGate adapts a BudgetTracker, reserving the candidate's estimated
// size against its tenant's budget.
type BudgetGate struct{ Budgets *BudgetTracker }

// Check implements the Gate interface.
func (g BudgetGate) Check(_ context.Context, candidate domain.IndexCandidate) (domain.GateResult, error) {
	return g.Budgets.Reserve(candidate.Tenant, candidate.SizeEstimate), nil
}

// CircuitBreakerGate adapts a CircuitBreaker, keyed by the candidate's
// target table.
type CircuitBreakerGate struct{ Breaker *CircuitBreaker }

// Check implements the Gate interface.
func (g CircuitBreakerGate) Check(_ context.Context, candidate domain.IndexCandidate) (domain.GateResult, error) {
	return g.Breaker.Allow(candidate.Table), nil
}

// MaintenanceWindowGate adapts a MaintenanceWindow so the Executor can
// also be gated to run DDL only inside the configured window, independent
// of the Maintenance Loop's own use of the same window.
type MaintenanceWindowGate struct{ Window MaintenanceWindow }

// Check implements the Gate interface.
func (g MaintenanceWindowGate) Check(_ context.Context, _ domain.IndexCandidate) (domain.GateResult, error) {
	return g.Window.Open(time.Now()), nil
}
