package safeguards

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/eyeinthesky6/indexpilot/internal/domain"
)

func TestBudgetTrackerReserveAndCommit(t *testing.T) {
	bt := NewBudgetTracker(map[domain.TenantID]domain.Budget{
		"t1": {Tenant: "t1", LimitB: 1000},
	})

	result := bt.Reserve("t1", 400)
	assert.Equal(t, domain.GateAllow, result.Outcome)

	snap := bt.Snapshot("t1")
	assert.Equal(t, int64(400), snap.Reserved)

	bt.Commit("t1", 400, 350)
	snap = bt.Snapshot("t1")
	assert.Equal(t, int64(0), snap.Reserved)
	assert.Equal(t, int64(350), snap.UsedB)
}

func TestBudgetTrackerDeniesOverLimit(t *testing.T) {
	bt := NewBudgetTracker(map[domain.TenantID]domain.Budget{
		"t1": {Tenant: "t1", LimitB: 100},
	})
	result := bt.Reserve("t1", 200)
	assert.Equal(t, domain.GateDeny, result.Outcome)
}

func TestBudgetTrackerRelease(t *testing.T) {
	bt := NewBudgetTracker(map[domain.TenantID]domain.Budget{
		"t1": {Tenant: "t1", LimitB: 100},
	})
	bt.Reserve("t1", 50)
	bt.Release("t1", 50)
	snap := bt.Snapshot("t1")
	assert.Equal(t, int64(0), snap.Reserved)
}
