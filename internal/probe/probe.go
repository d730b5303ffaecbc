// Package probe profiles a parsed dataset before (or instead of) loading it:
// inferred column types, NULL and distinct counts, and how the loader will
// name and key it.
package probe

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"mirnadb/internal/schema"
	"mirnadb/internal/tabular"
)

// distinctCapPerColumn bounds the memory spent on distinct counting.
const distinctCapPerColumn = 10000

// Column describes one column of a profiled table.
type Column struct {
	Name string
	Type tabular.Type

	// Values counts non-NULL cells; Nulls counts the rest.
	Values int
	Nulls  int

	// Distinct is the number of distinct non-NULL values, or
	// distinctCapPerColumn when Capped.
	Distinct int
	Capped   bool
}

// Uniqueness is Distinct over Values, or 0 for an all-NULL column.
func (c Column) Uniqueness() float64 {
	if c.Values == 0 {
		return 0
	}
	return float64(c.Distinct) / float64(c.Values)
}

// Result is the profile of one dataset.
type Result struct {
	Source string
	Table  string
	Rows   int

	// KeyColumn is the raw column the loader renames to the join key, or "".
	KeyColumn string

	Columns []Column
}

// Joinable reports whether the table will carry the canonical join key.
func (r Result) Joinable() bool { return r.KeyColumn != "" }

// Profile computes a Result for t as loaded from source under category.
func Profile(category, source string, t tabular.Table) Result {
	res := Result{
		Source: category + "/" + source,
		Table:  schema.TableName(category, source),
		Rows:   t.Len(),
	}
	if i := schema.JoinKeyIndex(t.Columns); i >= 0 {
		res.KeyColumn = t.Columns[i]
	}

	res.Columns = make([]Column, len(t.Columns))
	for i, name := range t.Columns {
		res.Columns[i] = profileColumn(name, t.TypeOf(i), t.Rows, i)
	}
	return res
}

func profileColumn(name string, typ tabular.Type, rows [][]any, i int) Column {
	c := Column{Name: name, Type: typ}
	seen := make(map[string]struct{})

	for _, r := range rows {
		if i >= len(r) || r[i] == nil {
			c.Nulls++
			continue
		}
		c.Values++
		if c.Capped {
			continue
		}
		seen[tabular.FormatValue(r[i])] = struct{}{}
		if len(seen) >= distinctCapPerColumn {
			c.Capped = true
			seen = nil
		}
	}

	if c.Capped {
		c.Distinct = distinctCapPerColumn
	} else {
		c.Distinct = len(seen)
	}
	return c
}

// CandidateKeys returns columns whose non-NULL values are all distinct and
// that have no NULLs, sorted by name.
func (r Result) CandidateKeys() []string {
	var out []Column
	for _, c := range r.Columns {
		if c.Values > 0 && c.Nulls == 0 && !c.Capped && c.Distinct == c.Values {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	names := make([]string, len(out))
	for i, c := range out {
		names[i] = c.Name
	}
	return names
}

// WriteReport renders r for a terminal.
func WriteReport(w io.Writer, r Result) error {
	fmt.Fprintf(w, "source:   %s\n", r.Source)
	fmt.Fprintf(w, "table:    %s\n", r.Table)
	fmt.Fprintf(w, "rows:     %d\n", r.Rows)
	switch {
	case r.KeyColumn == schema.JoinKey:
		fmt.Fprintf(w, "join key: %s\n", schema.JoinKey)
	case r.KeyColumn != "":
		fmt.Fprintf(w, "join key: %s (renamed to %s)\n", r.KeyColumn, schema.JoinKey)
	default:
		fmt.Fprintln(w, "join key: none")
	}
	if keys := r.CandidateKeys(); len(keys) > 0 {
		fmt.Fprintf(w, "unique:   %s\n", strings.Join(keys, ", "))
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "COLUMN\tTYPE\tVALUES\tNULLS\tDISTINCT\tUNIQUE")
	for _, c := range r.Columns {
		distinct := fmt.Sprint(c.Distinct)
		if c.Capped {
			distinct = ">=" + distinct
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%.1f%%\n", c.Name, c.Type, c.Values, c.Nulls, distinct, c.Uniqueness()*100)
	}
	return tw.Flush()
}
