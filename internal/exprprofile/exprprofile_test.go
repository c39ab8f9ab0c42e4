package exprprofile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eyeinthesky6/indexpilot/internal/domain"
)

func writeProfile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadEmptyPathDefaultsAllActive(t *testing.T) {
	p, err := Load("")
	require.NoError(t, err)
	assert.True(t, p.Current().IsActive("any-tenant"))
}

func TestLoadEmptyActiveListDefaultsAllActive(t *testing.T) {
	path := writeProfile(t, "active_tenants: []\n")
	p, err := Load(path)
	require.NoError(t, err)
	assert.True(t, p.Current().IsActive(domain.TenantID("t1")))
}

func TestLoadRestrictsToListedTenants(t *testing.T) {
	path := writeProfile(t, "active_tenants:\n  - t1\n  - t2\n")
	p, err := Load(path)
	require.NoError(t, err)

	snap := p.Current()
	assert.True(t, snap.IsActive("t1"))
	assert.True(t, snap.IsActive("t2"))
	assert.False(t, snap.IsActive("t3"))
}

func TestLoadTenantOverrides(t *testing.T) {
	path := writeProfile(t, `
active_tenants:
  - t1
tenant_overrides:
  - tenant: t1
    overlays:
      - table: orders
        column: internal_note
        never_index: true
`)
	p, err := Load(path)
	require.NoError(t, err)

	overrides := p.Current().Overrides[domain.TenantID("t1")]
	require.Len(t, overrides, 1)
	assert.Equal(t, "orders", overrides[0].Table)
	assert.True(t, overrides[0].NeverIndex)
}
