package schema

import (
	"sort"
	"strings"
)

// tabularExtensions are stripped from the end of a source name.
var tabularExtensions = []string{".csv", ".tsv", ".txt"}

// TableName derives the table a source is stored under.
//
// The name is category + "_" + source, lower-cased, with a trailing tabular
// file extension removed and every rune outside [a-z0-9_] (hyphens included)
// replaced by '_'. The result depends on nothing but the inputs, because it is
// the identity under which a rebuild replaces the table.
func TableName(category, source string) string {
	s := strings.ToLower(category + "_" + source)
	for _, ext := range tabularExtensions {
		if strings.HasSuffix(s, ext) {
			s = strings.TrimSuffix(s, ext)
			break
		}
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
			continue
		}
		b.WriteByte('_')
	}
	return b.String()
}

// GroupKey returns the first two underscore-separated segments of a table name
// (e.g. "core_disease" for "core_disease_hmdd"). Tables are browsed by this
// key. A name with fewer segments is its own key.
func GroupKey(table string) string {
	parts := strings.SplitN(table, "_", 3)
	if len(parts) < 2 {
		return table
	}
	return parts[0] + "_" + parts[1]
}

// Group is a set of tables sharing a GroupKey.
type Group struct {
	Key    string
	Tables []string
}

// GroupTables buckets table names by GroupKey. Groups are sorted by key and
// tables within a group keep their input order.
func GroupTables(tables []string) []Group {
	idx := make(map[string]int)
	var out []Group
	for _, t := range tables {
		k := GroupKey(t)
		i, ok := idx[k]
		if !ok {
			i = len(out)
			idx[k] = i
			out = append(out, Group{Key: k})
		}
		out[i].Tables = append(out[i].Tables, t)
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Key < out[b].Key })
	return out
}
