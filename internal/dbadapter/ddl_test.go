package dbadapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eyeinthesky6/indexpilot/internal/domain"
)

func TestValidateIdentifier(t *testing.T) {
	valid := []string{"orders", "order_id", "_hidden", "a1"}
	for _, v := range valid {
		assert.NoError(t, ValidateIdentifier(v), v)
	}

	invalid := []string{"", "orders;drop table x", "1orders", "order-id", "order id"}
	for _, v := range invalid {
		assert.Error(t, ValidateIdentifier(v), v)
	}
}

func TestValidateIdentifierLengthLimit(t *testing.T) {
	long := ""
	for i := 0; i < 64; i++ {
		long += "a"
	}
	assert.Error(t, ValidateIdentifier(long))
}

func TestBuildDDLBasic(t *testing.T) {
	ddl, err := BuildDDL(BuildIndexSpec{
		Name:    "idx_orders_tenant_id",
		Table:   "orders",
		Columns: []string{"tenant_id", "created_at"},
		Method:  domain.MethodOrdered,
	})
	require.NoError(t, err)
	assert.Equal(t, "CREATE INDEX CONCURRENTLY idx_orders_tenant_id ON orders USING btree (tenant_id, created_at)", ddl)
}

func TestBuildDDLWithPredicate(t *testing.T) {
	ddl, err := BuildDDL(BuildIndexSpec{
		Name:      "idx_orders_pending",
		Table:     "orders",
		Columns:   []string{"status"},
		Predicate: "status = 'pending'",
		Method:    domain.MethodOrdered,
	})
	require.NoError(t, err)
	assert.Contains(t, ddl, "WHERE status = 'pending'")
}

func TestBuildDDLRejectsBadIdentifier(t *testing.T) {
	_, err := BuildDDL(BuildIndexSpec{
		Name:    "idx; DROP TABLE orders; --",
		Table:   "orders",
		Columns: []string{"id"},
	})
	assert.Error(t, err)
}

func TestBuildDDLExpressionIndex(t *testing.T) {
	ddl, err := BuildDDL(BuildIndexSpec{
		Name:       "idx_orders_lower_email",
		Table:      "orders",
		Expression: "lower(email)",
		Method:     domain.MethodOrdered,
	})
	require.NoError(t, err)
	assert.Contains(t, ddl, "(lower(email))")
}

func TestMethodSQL(t *testing.T) {
	cases := map[domain.IndexMethod]string{
		domain.MethodOrdered:  "btree",
		domain.MethodHash:     "hash",
		domain.MethodGeo:      "gist",
		domain.MethodBRIN:     "brin",
		domain.MethodFulltext: "gin",
	}
	for method, want := range cases {
		assert.Equal(t, want, methodSQL(method))
	}
}
