package querystats

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/eyeinthesky6/indexpilot/internal/domain"
)

func TestExtractColumnRefsEquality(t *testing.T) {
	refs := ExtractColumnRefs("SELECT * FROM orders WHERE tenant_id = 'abc' AND status = 'open'", "orders")
	var gotEq int
	for _, r := range refs {
		if r.Role == domain.RoleEquality {
			gotEq++
		}
	}
	assert.GreaterOrEqual(t, gotEq, 2)
}

func TestExtractColumnRefsRange(t *testing.T) {
	refs := ExtractColumnRefs("SELECT * FROM orders WHERE amount > 100", "orders")
	found := false
	for _, r := range refs {
		if r.Col == "amount" && r.Role == domain.RoleRange {
			found = true
		}
	}
	assert.True(t, found)
}

func TestExtractColumnRefsOrderBy(t *testing.T) {
	refs := ExtractColumnRefs("SELECT * FROM orders WHERE status = 'open' ORDER BY created_at", "orders")
	found := false
	for _, r := range refs {
		if r.Col == "created_at" && r.Role == domain.RoleOrder {
			found = true
		}
	}
	assert.True(t, found)
}

func TestExtractColumnRefsJoin(t *testing.T) {
	refs := ExtractColumnRefs("SELECT * FROM orders o JOIN customers c ON o.customer_id = c.id WHERE c.active = true", "orders")
	found := false
	for _, r := range refs {
		if r.Col == "customer_id" && r.Role == domain.RoleJoin {
			found = true
		}
	}
	assert.True(t, found)
}
