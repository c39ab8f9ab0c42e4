package rollback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevelAcceptsKnownLevels(t *testing.T) {
	for _, s := range []string{"feature", "component", "system", "startup", "SYSTEM"} {
		_, err := ParseLevel(s)
		assert.NoError(t, err, s)
	}
	_, err := ParseLevel("bogus")
	assert.Error(t, err)
}

func TestBypassSetFeatureAndComponent(t *testing.T) {
	b := NewBypassSet()
	assert.True(t, b.Allowed("executor", "redundancy_pruning"))

	b.Set(LevelFeature, "redundancy_pruning")
	assert.False(t, b.Allowed("executor", "redundancy_pruning"))
	assert.True(t, b.Allowed("executor", "other_feature"))

	b.Unset(LevelFeature, "redundancy_pruning")
	assert.True(t, b.Allowed("executor", "redundancy_pruning"))
}

func TestBypassSetComponentOff(t *testing.T) {
	b := NewBypassSet()
	b.Set(LevelComponent, "executor")
	assert.False(t, b.Allowed("executor", ""))
	assert.True(t, b.Allowed("decision", ""))
}

func TestBypassSetSystemOverridesEverything(t *testing.T) {
	b := NewBypassSet()
	b.Set(LevelSystem, "")
	assert.False(t, b.Allowed("anything", "anything"))
	assert.True(t, b.SystemBypass())
}

func TestBypassSetStartup(t *testing.T) {
	b := NewBypassSet()
	assert.False(t, b.StartupBypass())
	b.Set(LevelStartup, "")
	assert.True(t, b.StartupBypass())
}

func TestBypassSetEntriesAndSnapshot(t *testing.T) {
	b := NewBypassSet()
	b.Set(LevelFeature, "foo")
	b.Set(LevelComponent, "executor")

	entries := b.Entries()
	require.Len(t, entries, 2)

	snap := b.Snapshot()
	b.Unset(LevelFeature, "foo")
	assert.False(t, b.FeatureBypassed("foo"))
	assert.True(t, snap.FeatureBypassed("foo"))
}
