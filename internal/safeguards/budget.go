package safeguards

import (
	"fmt"
	"sync"

	"github.com/eyeinthesky6/indexpilot/internal/domain"
	"github.com/eyeinthesky6/indexpilot/internal/telemetry"
)

// BudgetTracker holds live storage budget accounting per tenant, with
// explicit reservation so a build in progress counts against the budget
// before its actual size is known.
type BudgetTracker struct {
	mu      sync.Mutex
	budgets map[domain.TenantID]*domain.Budget
}

// NewBudgetTracker creates a tracker seeded with the given budgets.
func NewBudgetTracker(budgets map[domain.TenantID]domain.Budget) *BudgetTracker {
	bt := &BudgetTracker{budgets: make(map[domain.TenantID]*domain.Budget, len(budgets))}
	for tenant, b := range budgets {
		cp := b
		bt.budgets[tenant] = &cp
	}
	return bt
}

func (bt *BudgetTracker) get(tenant domain.TenantID) *domain.Budget {
	b, ok := bt.budgets[tenant]
	if !ok {
		b = &domain.Budget{Tenant: tenant, LimitB: bt.budgets[domain.GlobalTenant].LimitB}
		bt.budgets[tenant] = b
	}
	return b
}

// Reserve attempts to reserve sizeBytes against tenant's budget, returning
// a Deny GateResult if it would exceed the limit.
func (bt *BudgetTracker) Reserve(tenant domain.TenantID, sizeBytes int64) domain.GateResult {
	bt.mu.Lock()
	defer bt.mu.Unlock()

	b := bt.get(tenant)
	if sizeBytes > b.Available() {
		return domain.GateResult{Outcome: domain.GateDeny, Reason: fmt.Sprintf("storage budget exceeded for tenant %s", tenant)}
	}
	b.Reserved += sizeBytes
	telemetry.BudgetUsedBytes.WithLabelValues(string(tenant)).Set(float64(b.UsedB + b.Reserved))
	return domain.GateResult{Outcome: domain.GateAllow}
}

// Commit converts a reservation into used space once a build actually
// lands, replacing the estimated size with actualSizeBytes.
func (bt *BudgetTracker) Commit(tenant domain.TenantID, reservedSizeBytes, actualSizeBytes int64) {
	bt.mu.Lock()
	defer bt.mu.Unlock()

	b := bt.get(tenant)
	b.Reserved -= reservedSizeBytes
	if b.Reserved < 0 {
		b.Reserved = 0
	}
	b.UsedB += actualSizeBytes
	telemetry.BudgetUsedBytes.WithLabelValues(string(tenant)).Set(float64(b.UsedB + b.Reserved))
}

// Release frees a reservation without committing it, used when a build
// fails or is rolled back before completion.
func (bt *BudgetTracker) Release(tenant domain.TenantID, sizeBytes int64) {
	bt.mu.Lock()
	defer bt.mu.Unlock()

	b := bt.get(tenant)
	b.Reserved -= sizeBytes
	if b.Reserved < 0 {
		b.Reserved = 0
	}
	telemetry.BudgetUsedBytes.WithLabelValues(string(tenant)).Set(float64(b.UsedB + b.Reserved))
}

// ReleaseUsed frees previously-used space, used when an index is dropped.
func (bt *BudgetTracker) ReleaseUsed(tenant domain.TenantID, sizeBytes int64) {
	bt.mu.Lock()
	defer bt.mu.Unlock()

	b := bt.get(tenant)
	b.UsedB -= sizeBytes
	if b.UsedB < 0 {
		b.UsedB = 0
	}
	telemetry.BudgetUsedBytes.WithLabelValues(string(tenant)).Set(float64(b.UsedB + b.Reserved))
}

// Snapshot returns a copy of tenant's current budget state.
func (bt *BudgetTracker) Snapshot(tenant domain.TenantID) domain.Budget {
	bt.mu.Lock()
	defer bt.mu.Unlock()
	return *bt.get(tenant)
}
