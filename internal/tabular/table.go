// Package tabular holds the loosely-typed table container that flows from
// acquisition through normalization into storage, plus the CSV reader and
// writer for it.
package tabular

import "fmt"

// Type is the storage affinity inferred for a column.
type Type int

const (
	Text Type = iota
	Integer
	Real
)

func (t Type) String() string {
	switch t {
	case Integer:
		return "INTEGER"
	case Real:
		return "REAL"
	default:
		return "TEXT"
	}
}

// Table is an ordered set of columns plus positional rows.
//
// Each row has exactly len(Columns) values; a value is one of string, int64,
// float64 or nil. Types is either nil (unknown, treat as Text) or aligned with
// Columns.
type Table struct {
	Columns []string
	Types   []Type
	Rows    [][]any
}

// Len returns the number of rows.
func (t Table) Len() int { return len(t.Rows) }

// Index returns the position of the column with exactly this name, or -1.
func (t Table) Index(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// TypeOf returns the inferred type of column i, defaulting to Text.
func (t Table) TypeOf(i int) Type {
	if i < 0 || i >= len(t.Types) {
		return Text
	}
	return t.Types[i]
}

// Value returns the value of column name in row r.
func (t Table) Value(r int, name string) (any, bool) {
	i := t.Index(name)
	if i < 0 || r < 0 || r >= len(t.Rows) {
		return nil, false
	}
	return t.Rows[r][i], true
}

// Validate checks that every row matches the column count.
func (t Table) Validate() error {
	if t.Types != nil && len(t.Types) != len(t.Columns) {
		return fmt.Errorf("tabular: %d types for %d columns", len(t.Types), len(t.Columns))
	}
	for i, r := range t.Rows {
		if len(r) != len(t.Columns) {
			return fmt.Errorf("tabular: row %d has %d values, want %d", i+1, len(r), len(t.Columns))
		}
	}
	return nil
}
