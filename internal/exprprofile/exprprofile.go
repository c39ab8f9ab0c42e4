// Package exprprofile loads the per-tenant expression profile: which
// tenants IndexPilot is actively managing indexes for, and any per-tenant
// overrides of the global catalog overlay. The profile is declared as YAML
// on disk and hot-reloaded via fsnotify. The catalog package does no file
// watching of its own; its overlays are handed in through SetOverlays.
package exprprofile

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/eyeinthesky6/indexpilot/internal/catalog"
	"github.com/eyeinthesky6/indexpilot/internal/domain"
)

// TenantOverride is one tenant's deviation from the global catalog overlay.
type TenantOverride struct {
	Tenant   domain.TenantID `yaml:"tenant"`
	Overlays []catalog.Overlay `yaml:"overlays"`
}

// fileSchema is the on-disk shape of the expression profile YAML document.
type fileSchema struct {
	ActiveTenants []domain.TenantID `yaml:"active_tenants"`
	Overrides     []TenantOverride  `yaml:"tenant_overrides"`
}

// Snapshot is an immutable point-in-time view of the expression profile.
type Snapshot struct {
	ActiveTenants map[domain.TenantID]bool
	Overrides     map[domain.TenantID][]catalog.Overlay
}

// IsActive reports whether tenant is under active index management. An
// empty ActiveTenants list means every tenant is active by default, the
// spec's resolved default-all-active semantics for single-tenant and
// not-yet-configured deployments.
func (s *Snapshot) IsActive(tenant domain.TenantID) bool {
	if len(s.ActiveTenants) == 0 {
		return true
	}
	return s.ActiveTenants[tenant]
}

// Profile holds the current Snapshot behind an atomic pointer so readers
// never observe a torn reload.
type Profile struct {
	path    string
	current atomic.Pointer[Snapshot]
	watcher *fsnotify.Watcher
}

// Load reads path once and returns a Profile ready for Watch. An empty path
// yields an empty, default-all-active Snapshot (the single-tenant case).
func Load(path string) (*Profile, error) {
	p := &Profile{path: path}
	snap := &Snapshot{
		ActiveTenants: make(map[domain.TenantID]bool),
		Overrides:     make(map[domain.TenantID][]catalog.Overlay),
	}
	p.current.Store(snap)

	if path == "" {
		return p, nil
	}
	if err := p.reload(); err != nil {
		return nil, err
	}
	return p, nil
}

// Current returns the latest loaded Snapshot.
func (p *Profile) Current() *Snapshot {
	return p.current.Load()
}

func (p *Profile) reload() error {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return fmt.Errorf("reading expression profile %s: %w", p.path, err)
	}

	var fs fileSchema
	if err := yaml.Unmarshal(data, &fs); err != nil {
		return fmt.Errorf("parsing expression profile %s: %w", p.path, err)
	}

	snap := &Snapshot{
		ActiveTenants: make(map[domain.TenantID]bool, len(fs.ActiveTenants)),
		Overrides:     make(map[domain.TenantID][]catalog.Overlay, len(fs.Overrides)),
	}
	for _, t := range fs.ActiveTenants {
		snap.ActiveTenants[t] = true
	}
	for _, o := range fs.Overrides {
		snap.Overrides[o.Tenant] = o.Overlays
	}

	p.current.Store(snap)
	return nil
}

// Watch starts a single goroutine that reloads the profile whenever path
// changes on disk, until ctx is canceled. It is a no-op when Load was
// called with an empty path.
func (p *Profile) Watch(ctx context.Context, onReload func(*Snapshot)) error {
	if p.path == "" {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	if err := w.Add(p.path); err != nil {
		w.Close()
		return fmt.Errorf("watching %s: %w", p.path, err)
	}
	p.watcher = w

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := p.reload(); err != nil {
					continue
				}
				if onReload != nil {
					onReload(p.current.Load())
				}
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return nil
}
