// Package rollback implements the Rollback & Bypass component (M5): the
// four-level kill switch and the rollback(mid) operation that reverses a
// committed mutation.
package rollback

import (
	"fmt"
	"strings"
	"sync"
)

// Level is one of the four bypass levels, ordered from narrowest to
// broadest effect.
type Level string

const (
	// LevelFeature disables a single named feature while leaving the
	// rest of its owning component running (e.g. "redundancy pruning"
	// off while index creation continues).
	LevelFeature Level = "feature"
	// LevelComponent disables an entire M-level component (e.g. the
	// Executor off while the Decision Engine still logs proposals).
	LevelComponent Level = "component"
	// LevelSystem puts the whole daemon into read-only mode: no DDL
	// under any circumstance.
	LevelSystem Level = "system"
	// LevelStartup, set before the scheduler's first tick, boots the
	// daemon inert: initialization runs but no scheduled passes fire.
	LevelStartup Level = "startup"
)

// ParseLevel maps a CLI/config string onto a Level.
func ParseLevel(s string) (Level, error) {
	switch Level(strings.ToLower(s)) {
	case LevelFeature:
		return LevelFeature, nil
	case LevelComponent:
		return LevelComponent, nil
	case LevelSystem:
		return LevelSystem, nil
	case LevelStartup:
		return LevelStartup, nil
	default:
		return "", fmt.Errorf("unknown bypass level %q", s)
	}
}

// key identifies one toggle: a level plus the name it applies to (the
// feature name, the component name, or empty for system/startup which
// have no sub-name).
type key struct {
	level Level
	name  string
}

// BypassSet is the effective set of active bypass toggles. It is held by
// pointer inside Runtime and swapped atomically on reload; callers that
// need to mutate it in place (the CLI's "bypass set/unset", the Read
// API's bypass report) go through its own internal mutex instead.
type BypassSet struct {
	mu     sync.RWMutex
	active map[key]bool
}

// NewBypassSet creates an empty (fully permissive) BypassSet.
func NewBypassSet() *BypassSet {
	return &BypassSet{active: make(map[key]bool)}
}

// Set activates a bypass toggle.
func (b *BypassSet) Set(level Level, name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.active[key{level, name}] = true
}

// Unset deactivates a bypass toggle.
func (b *BypassSet) Unset(level Level, name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.active, key{level, name})
}

// SystemBypass reports whether the whole daemon is in read-only mode.
func (b *BypassSet) SystemBypass() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.active[key{LevelSystem, ""}]
}

// StartupBypass reports whether the daemon should boot inert.
func (b *BypassSet) StartupBypass() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.active[key{LevelStartup, ""}]
}

// ComponentBypassed reports whether an entire component is disabled.
func (b *BypassSet) ComponentBypassed(component string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.active[key{LevelComponent, component}]
}

// FeatureBypassed reports whether a single named feature is disabled.
func (b *BypassSet) FeatureBypassed(feature string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.active[key{LevelFeature, feature}]
}

// Allowed is the composite check the Executor and Decision Engine use
// before acting: false if the system is in read-only mode, the named
// component is off, or the named feature is off.
func (b *BypassSet) Allowed(component, feature string) bool {
	if b.SystemBypass() {
		return false
	}
	if component != "" && b.ComponentBypassed(component) {
		return false
	}
	if feature != "" && b.FeatureBypassed(feature) {
		return false
	}
	return true
}

// Entry is one active toggle, reported to the Read API's /bypass endpoint.
type Entry struct {
	Level Level  `json:"level"`
	Name  string `json:"name,omitempty"`
}

// Entries lists every currently active toggle.
func (b *BypassSet) Entries() []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Entry, 0, len(b.active))
	for k := range b.active {
		out = append(out, Entry{Level: k.level, Name: k.name})
	}
	return out
}

// Snapshot returns a standalone copy with the same active toggles, used
// when constructing a new Runtime on reload without sharing the mutex.
func (b *BypassSet) Snapshot() *BypassSet {
	b.mu.RLock()
	defer b.mu.RUnlock()
	clone := NewBypassSet()
	for k := range b.active {
		clone.active[k] = true
	}
	return clone
}
