package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eyeinthesky6/indexpilot/internal/domain"
)

type fakeIntrospector struct {
	entries []domain.CatalogEntry
}

func (f *fakeIntrospector) IntrospectSchema(ctx context.Context) ([]domain.CatalogEntry, error) {
	return f.entries, nil
}

func TestBootstrapFirstCallReportsAllAdded(t *testing.T) {
	fi := &fakeIntrospector{entries: []domain.CatalogEntry{
		{Table: "orders", Column: "id", PrimaryKey: true},
		{Table: "orders", Column: "tenant_id"},
	}}
	c := New(fi)

	changes, err := c.Bootstrap(context.Background())
	require.NoError(t, err)
	assert.Len(t, changes, 2)
	for _, ch := range changes {
		assert.Equal(t, ChangeAdded, ch.Kind)
	}
}

func TestBootstrapDetectsRemovalAndAlteration(t *testing.T) {
	fi := &fakeIntrospector{entries: []domain.CatalogEntry{
		{Table: "orders", Column: "id", PrimaryKey: true},
		{Table: "orders", Column: "status", Type: "text"},
	}}
	c := New(fi)
	_, err := c.Bootstrap(context.Background())
	require.NoError(t, err)

	fi.entries = []domain.CatalogEntry{
		{Table: "orders", Column: "id", PrimaryKey: true},
		{Table: "orders", Column: "status", Type: "varchar"},
	}
	changes, err := c.Bootstrap(context.Background())
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, ChangeAltered, changes[0].Kind)
	assert.Equal(t, "varchar", changes[0].Entry.Type)
}

func TestNeverIndexOverlay(t *testing.T) {
	fi := &fakeIntrospector{entries: []domain.CatalogEntry{{Table: "orders", Column: "internal_note"}}}
	c := New(fi)
	_, _ = c.Bootstrap(context.Background())

	assert.False(t, c.NeverIndex("orders", "internal_note"))

	c.SetOverlays([]Overlay{{Table: "orders", Column: "internal_note", NeverIndex: true}})
	assert.True(t, c.NeverIndex("orders", "internal_note"))
}

func TestForcedMethodOverlay(t *testing.T) {
	fi := &fakeIntrospector{entries: []domain.CatalogEntry{{Table: "places", Column: "location"}}}
	c := New(fi)
	_, _ = c.Bootstrap(context.Background())

	c.SetOverlays([]Overlay{{Table: "places", Column: "location", ForceMethod: domain.MethodGeo}})
	method, ok := c.ForcedMethod("places", "location")
	assert.True(t, ok)
	assert.Equal(t, domain.MethodGeo, method)
}

func TestLookupAndEntries(t *testing.T) {
	fi := &fakeIntrospector{entries: []domain.CatalogEntry{
		{Table: "orders", Column: "id"},
		{Table: "orders", Column: "status"},
		{Table: "customers", Column: "id"},
	}}
	c := New(fi)
	_, _ = c.Bootstrap(context.Background())

	_, ok := c.Lookup("orders", "status")
	assert.True(t, ok)
	assert.Len(t, c.Entries("orders"), 2)
	assert.Len(t, c.All(), 3)
}
