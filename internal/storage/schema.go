package storage

import (
	"strings"

	"mirnadb/internal/tabular"
)

// Dialect is what the shared DDL builders need to know about a backend.
type Dialect struct {
	// Quote returns a quoted identifier.
	Quote func(string) string
	// Column types for tabular.Integer, tabular.Real and tabular.Text.
	Integer, Real, Text string

	// MaxColumns is the engine's column limit per table. Zero means none.
	MaxColumns int
	// MaxIdentifier is the longest table or column name the engine keeps
	// intact, measured by IdentifierLen. Zero means none.
	MaxIdentifier int
	// IdentifierLen measures a name against MaxIdentifier; nil counts bytes.
	IdentifierLen func(string) int
}

func (d Dialect) identifierLen(id string) int {
	if d.IdentifierLen == nil {
		return len(id)
	}
	return d.IdentifierLen(id)
}

// TypeName maps a tabular type onto the dialect's column type.
func (d Dialect) TypeName(t tabular.Type) string {
	switch t {
	case tabular.Integer:
		return d.Integer
	case tabular.Real:
		return d.Real
	default:
		return d.Text
	}
}

// CreateTableSQL renders CREATE TABLE for data's columns. Every column is
// nullable; there is no primary key, matching a plain dataframe dump.
func (d Dialect) CreateTableSQL(table string, data tabular.Table) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	b.WriteString(d.Quote(table))
	b.WriteString(" (")
	for i, c := range data.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(d.Quote(c))
		b.WriteByte(' ')
		b.WriteString(d.TypeName(data.TypeOf(i)))
	}
	b.WriteString(")")
	return b.String()
}

// QuoteList quotes and comma-joins columns.
func (d Dialect) QuoteList(columns []string) string {
	parts := make([]string, len(columns))
	for i, c := range columns {
		parts[i] = d.Quote(c)
	}
	return strings.Join(parts, ", ")
}

// DoubleQuote quotes with ANSI double quotes (SQLite, Postgres).
func DoubleQuote(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

// BracketQuote quotes with SQL Server brackets.
func BracketQuote(id string) string {
	return "[" + strings.ReplaceAll(id, "]", "]]") + "]"
}
