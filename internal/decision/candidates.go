package decision

import (
	"fmt"

	"github.com/eyeinthesky6/indexpilot/internal/domain"
)

// bytesPerRowEstimate is a coarse per-row index size estimate used when no
// real size sample is available, tuned for a typical single-column btree
// entry plus page overhead.
const bytesPerRowEstimate = 48

// GenerateCandidates inspects a QueryStat's column references and proposes
// single-column, composite, and covering-index candidates. Callers filter
// the result through a Catalog's NeverIndex/ForcedMethod overlay and
// dedupe against LiveIndexes before scoring.
func GenerateCandidates(stat domain.QueryStat, estimatedRows int64) []domain.IndexCandidate {
	byTable := make(map[string][]domain.ColumnRef)
	for _, ref := range stat.ColumnsRead {
		byTable[ref.Table] = append(byTable[ref.Table], ref)
	}

	var out []domain.IndexCandidate
	for table, refs := range byTable {
		out = append(out, singleColumnCandidates(table, refs, stat, estimatedRows)...)
		out = append(out, compositeCandidate(table, refs, stat, estimatedRows))
		out = append(out, coveringCandidate(table, refs, stat, estimatedRows))
	}

	var filtered []domain.IndexCandidate
	for _, c := range out {
		if len(c.Columns) == 0 && c.Expression == "" {
			continue
		}
		filtered = append(filtered, c)
	}
	return filtered
}

// FKCandidates proposes one single-column candidate per foreign-key column
// that has no covering live index yet. This runs off the Catalog's
// constraint data alone — it does not require the column to have ever
// appeared in an observed query shape.
func FKCandidates(entries []domain.CatalogEntry, live []domain.LiveIndex, estimatedRows func(table string) int64) []domain.IndexCandidate {
	covered := make(map[string]bool, len(live))
	for _, idx := range live {
		if len(idx.Columns) == 0 {
			continue
		}
		covered[idx.Table+"."+idx.Columns[0]] = true
	}

	var out []domain.IndexCandidate
	for _, e := range entries {
		if e.FKTargetTable == "" || covered[e.Key()] {
			continue
		}
		rows := estimatedRows(e.Table)
		out = append(out, domain.IndexCandidate{
			Table:        e.Table,
			Columns:      []string{e.Column},
			Method:       domain.MethodOrdered,
			SizeEstimate: rows * bytesPerRowEstimate,
			Rationale: domain.Rationale{
				Notes: fmt.Sprintf("foreign key to %s.%s lacking a covering index", e.FKTargetTable, e.FKTargetCol),
			},
		})
	}
	return out
}

func singleColumnCandidates(table string, refs []domain.ColumnRef, stat domain.QueryStat, rows int64) []domain.IndexCandidate {
	var out []domain.IndexCandidate
	for _, r := range refs {
		if r.Role != domain.RoleEquality && r.Role != domain.RoleRange && r.Role != domain.RoleJoin {
			continue
		}
		out = append(out, domain.IndexCandidate{
			Tenant:        stat.Tenant,
			Table:         table,
			Columns:       []string{r.Col},
			Method:        methodForRole(r.Role),
			SizeEstimate:  rows * bytesPerRowEstimate,
			MotivatingFPs: []domain.QueryFingerprint{stat.Fingerprint},
		})
	}
	return out
}

// compositeCandidate orders referenced columns equality-first (matching
// Postgres's own leftmost-column-selectivity guidance), then range, then
// order, producing one multi-column candidate per table per query shape.
func compositeCandidate(table string, refs []domain.ColumnRef, stat domain.QueryStat, rows int64) domain.IndexCandidate {
	cols := orderColumnsBySelectivity(refs)
	if len(cols) < 2 {
		return domain.IndexCandidate{}
	}
	return domain.IndexCandidate{
		Tenant:        stat.Tenant,
		Table:         table,
		Columns:       cols,
		Method:        domain.MethodOrdered,
		SizeEstimate:  rows * bytesPerRowEstimate * int64(len(cols)),
		MotivatingFPs: []domain.QueryFingerprint{stat.Fingerprint},
	}
}

// coveringCandidate adds project-role columns onto the composite key so the
// index can satisfy the query without a heap fetch.
func coveringCandidate(table string, refs []domain.ColumnRef, stat domain.QueryStat, rows int64) domain.IndexCandidate {
	filterCols := orderColumnsBySelectivity(refs)
	var projectCols []string
	for _, r := range refs {
		if r.Role == domain.RoleProject {
			projectCols = append(projectCols, r.Col)
		}
	}
	if len(filterCols) == 0 || len(projectCols) == 0 {
		return domain.IndexCandidate{}
	}
	cols := append(append([]string{}, filterCols...), projectCols...)
	return domain.IndexCandidate{
		Tenant:        stat.Tenant,
		Table:         table,
		Columns:       cols,
		Method:        domain.MethodOrdered,
		SizeEstimate:  rows * bytesPerRowEstimate * int64(len(cols)),
		MotivatingFPs: []domain.QueryFingerprint{stat.Fingerprint},
		Rationale:     domain.Rationale{Notes: "covering index"},
	}
}

func orderColumnsBySelectivity(refs []domain.ColumnRef) []string {
	var eq, rng, ord []string
	seen := make(map[string]bool)
	for _, r := range refs {
		if seen[r.Col] {
			continue
		}
		switch r.Role {
		case domain.RoleEquality:
			eq = append(eq, r.Col)
			seen[r.Col] = true
		case domain.RoleRange:
			rng = append(rng, r.Col)
			seen[r.Col] = true
		case domain.RoleOrder:
			ord = append(ord, r.Col)
			seen[r.Col] = true
		}
	}
	out := append(append([]string{}, eq...), rng...)
	return append(out, ord...)
}

func methodForRole(role domain.ColumnRole) domain.IndexMethod {
	return domain.MethodOrdered
}
