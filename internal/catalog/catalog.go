// Package catalog maintains IndexPilot's view of the watched schema: the
// live introspected shape from PostgreSQL, reconciled against an optional
// declarative YAML overlay that lets operators pin columns as never-index
// or force an index method.
package catalog

import (
	"context"
	"fmt"

	"github.com/eyeinthesky6/indexpilot/internal/domain"
)

// Introspector is the subset of dbadapter.Adapter the catalog needs.
type Introspector interface {
	IntrospectSchema(ctx context.Context) ([]domain.CatalogEntry, error)
}

// Overlay is one operator-authored rule from the declarative catalog file.
type Overlay struct {
	Table      string       `yaml:"table"`
	Column     string       `yaml:"column"`
	NeverIndex bool         `yaml:"never_index"`
	ForceMethod domain.IndexMethod `yaml:"force_method"`
}

// ChangeKind classifies a catalog diff entry.
type ChangeKind string

const (
	ChangeAdded   ChangeKind = "added"
	ChangeRemoved ChangeKind = "removed"
	ChangeAltered ChangeKind = "altered"
)

// Change is one detected difference between two catalog snapshots, the
// input to a CATALOG_CHANGE mutation record.
type Change struct {
	Kind  ChangeKind
	Entry domain.CatalogEntry
}

// Catalog holds the current reconciled schema view plus overlay rules.
type Catalog struct {
	introspector Introspector

	entries  map[string]domain.CatalogEntry // keyed by CatalogEntry.Key()
	overlays map[string]Overlay
}

// New creates an empty Catalog backed by introspector.
func New(introspector Introspector) *Catalog {
	return &Catalog{
		introspector: introspector,
		entries:      make(map[string]domain.CatalogEntry),
		overlays:     make(map[string]Overlay),
	}
}

// SetOverlays replaces the declarative overlay rule set, as loaded by the
// exprprofile package's YAML watcher.
func (c *Catalog) SetOverlays(overlays []Overlay) {
	m := make(map[string]Overlay, len(overlays))
	for _, o := range overlays {
		m[o.Table+"."+o.Column] = o
	}
	c.overlays = m
}

// Bootstrap introspects the live schema, applies overlay rules, and returns
// the diff against the previously held snapshot. The first call against an
// empty Catalog reports every entry as Added.
func (c *Catalog) Bootstrap(ctx context.Context) ([]Change, error) {
	live, err := c.introspector.IntrospectSchema(ctx)
	if err != nil {
		return nil, fmt.Errorf("introspecting schema: %w", err)
	}

	next := make(map[string]domain.CatalogEntry, len(live))
	for _, e := range live {
		if ov, ok := c.overlays[e.Key()]; ok && ov.ForceMethod != "" {
			// Overlay method preference is read by the decision engine via
			// Overlay lookups, not mutated into CatalogEntry itself: the
			// catalog entry always reflects what postgres actually has.
			_ = ov
		}
		next[e.Key()] = e
	}

	var changes []Change
	for key, e := range next {
		if _, existed := c.entries[key]; !existed {
			changes = append(changes, Change{Kind: ChangeAdded, Entry: e})
			continue
		}
		if prev := c.entries[key]; prev != e {
			changes = append(changes, Change{Kind: ChangeAltered, Entry: e})
		}
	}
	for key, prev := range c.entries {
		if _, stillThere := next[key]; !stillThere {
			changes = append(changes, Change{Kind: ChangeRemoved, Entry: prev})
		}
	}

	c.entries = next
	return changes, nil
}

// NeverIndex reports whether the declarative overlay excludes table.column
// from candidate generation.
func (c *Catalog) NeverIndex(table, column string) bool {
	ov, ok := c.overlays[table+"."+column]
	return ok && ov.NeverIndex
}

// ForcedMethod returns the overlay-pinned index method for table.column, if
// any.
func (c *Catalog) ForcedMethod(table, column string) (domain.IndexMethod, bool) {
	ov, ok := c.overlays[table+"."+column]
	if !ok || ov.ForceMethod == "" {
		return "", false
	}
	return ov.ForceMethod, true
}

// Entries returns every currently known catalog entry for table.
func (c *Catalog) Entries(table string) []domain.CatalogEntry {
	var out []domain.CatalogEntry
	for _, e := range c.entries {
		if e.Table == table {
			out = append(out, e)
		}
	}
	return out
}

// All returns the full current snapshot.
func (c *Catalog) All() []domain.CatalogEntry {
	out := make([]domain.CatalogEntry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	return out
}

// Lookup returns a single entry by table and column.
func (c *Catalog) Lookup(table, column string) (domain.CatalogEntry, bool) {
	e, ok := c.entries[table+"."+column]
	return e, ok
}
