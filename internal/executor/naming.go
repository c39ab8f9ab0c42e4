package executor

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// nameDataLen is Postgres's NAMEDATALEN limit minus one, the maximum bare
// identifier length it will store without silent truncation.
const nameDataLen = 63

// hashSuffixLen is how many hex characters of the xxhash digest are
// appended to disambiguate names truncated to fit nameDataLen.
const hashSuffixLen = 8

// BuildIndexName derives a deterministic, collision-resistant index name
// from table and columns, truncating to nameDataLen and appending an
// xxhash-based suffix whenever truncation would otherwise risk a
// collision between two differently-shaped candidates on the same table.
func BuildIndexName(table string, columns []string) string {
	base := "idx_" + table + "_" + strings.Join(columns, "_")
	if len(base) <= nameDataLen {
		return base
	}

	h := xxhash.Sum64String(base)
	suffix := fmt.Sprintf("_%08x", uint32(h))
	keep := nameDataLen - len(suffix)
	if keep < 0 {
		keep = 0
	}
	return base[:keep] + suffix
}
