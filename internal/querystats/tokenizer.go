package querystats

import (
	"regexp"
	"strings"

	"github.com/eyeinthesky6/indexpilot/internal/domain"
)

// No SQL-dialect parser in the available ecosystem targets Postgres
// specifically without pulling in an entire unrelated database driver's
// parser package, so column-reference extraction here is a small
// hand-written heuristic scanner rather than a full grammar. It extracts
// clause-scoped column references well enough to drive candidate
// generation; it does not need to be a complete SQL parser.

var (
	whereClauseRE  = regexp.MustCompile(`(?is)\bwhere\b(.*?)(?:\bgroup\s+by\b|\border\s+by\b|\blimit\b|$)`)
	joinClauseRE   = regexp.MustCompile(`(?is)\bjoin\s+\S+\s+(?:(?:as\s+)?\S+\s+)?on\b(.*?)(?:\bjoin\b|\bwhere\b|\bgroup\s+by\b|\border\s+by\b|$)`)
	orderByRE      = regexp.MustCompile(`(?is)\border\s+by\b(.*?)(?:\blimit\b|$)`)
	condTermRE     = regexp.MustCompile(`(?i)([a-z_][a-z0-9_]*)\.([a-z_][a-z0-9_]*)\s*(=|>|<|>=|<=|<>|!=|like|in)`)
	bareCondTermRE = regexp.MustCompile(`(?i)\b([a-z_][a-z0-9_]*)\s*(=|>|<|>=|<=|<>|!=|like|in)`)
	orderTermRE    = regexp.MustCompile(`(?i)([a-z_][a-z0-9_]*)(?:\.([a-z_][a-z0-9_]*))?`)
)

// ExtractColumnRefs scans sql (pre-fingerprint, original text) for column
// references in WHERE, JOIN...ON, and ORDER BY clauses, tagging each with
// the role it played. table is the primary table the statement targets,
// used to resolve unqualified column references.
func ExtractColumnRefs(sql, table string) []domain.ColumnRef {
	var refs []domain.ColumnRef
	seen := make(map[string]bool)

	add := func(tbl, col string, role domain.ColumnRole) {
		if tbl == "" {
			tbl = table
		}
		key := tbl + "." + col + "#" + string(role)
		if seen[key] {
			return
		}
		seen[key] = true
		refs = append(refs, domain.ColumnRef{Table: tbl, Col: col, Role: role})
	}

	if m := whereClauseRE.FindStringSubmatch(sql); m != nil {
		clause := m[1]
		for _, cm := range condTermRE.FindAllStringSubmatch(clause, -1) {
			op := strings.ToLower(cm[3])
			add(cm[1], cm[2], roleForOperator(op))
		}
		for _, cm := range bareCondTermRE.FindAllStringSubmatch(clause, -1) {
			op := strings.ToLower(cm[2])
			add("", cm[1], roleForOperator(op))
		}
	}

	if m := joinClauseRE.FindStringSubmatch(sql); m != nil {
		clause := m[1]
		for _, cm := range condTermRE.FindAllStringSubmatch(clause, -1) {
			add(cm[1], cm[2], domain.RoleJoin)
		}
	}

	if m := orderByRE.FindStringSubmatch(sql); m != nil {
		clause := m[1]
		for _, part := range strings.Split(clause, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if cm := orderTermRE.FindStringSubmatch(part); cm != nil {
				if cm[2] != "" {
					add(cm[1], cm[2], domain.RoleOrder)
				} else {
					add("", cm[1], domain.RoleOrder)
				}
			}
		}
	}

	return refs
}

func roleForOperator(op string) domain.ColumnRole {
	switch op {
	case "=":
		return domain.RoleEquality
	case "in":
		return domain.RoleEquality
	default:
		return domain.RoleRange
	}
}
