// Package schema derives the canonical shape of a loaded dataset: the join-key
// column rename and the table name it is stored under.
package schema

import (
	"strings"

	"mirnadb/internal/tabular"
)

// JoinKey is the canonical name of the column that correlates rows across
// otherwise unrelated tables.
const JoinKey = "miRNA_ID"

// joinKeySpellings are the accepted spellings after trimming and lower-casing.
var joinKeySpellings = []string{"mirna_id", "mirnaid"}

// IsJoinKeySpelling reports whether a raw column name denotes the join key.
func IsJoinKeySpelling(name string) bool {
	n := strings.ToLower(strings.TrimSpace(name))
	for _, s := range joinKeySpellings {
		if n == s {
			return true
		}
	}
	return false
}

// JoinKeyIndex returns the position of the first column denoting the join key,
// or -1.
func JoinKeyIndex(columns []string) int {
	for i, c := range columns {
		if IsJoinKeySpelling(c) {
			return i
		}
	}
	return -1
}

// HasJoinKey reports whether columns carry the canonical join key verbatim.
func HasJoinKey(columns []string) bool {
	for _, c := range columns {
		if c == JoinKey {
			return true
		}
	}
	return false
}

// Normalize renames the first join-key column to JoinKey and returns the
// result. Later matches are left untouched. The input is not modified: the
// returned table has its own column slice and shares rows and types.
func Normalize(raw tabular.Table) tabular.Table {
	cols := make([]string, len(raw.Columns))
	copy(cols, raw.Columns)

	if i := JoinKeyIndex(cols); i >= 0 {
		cols[i] = JoinKey
	}

	return tabular.Table{
		Columns: cols,
		Types:   raw.Types,
		Rows:    raw.Rows,
	}
}
