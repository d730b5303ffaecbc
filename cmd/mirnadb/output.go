package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"mirnadb/internal/tabular"
)

// printTable renders t as aligned columns. NULL shows as an empty cell.
func printTable(w io.Writer, t tabular.Table) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(t.Columns, "\t"))

	cells := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for i := range cells {
			cells[i] = ""
			if i < len(row) {
				cells[i] = cleanCell(tabular.FormatValue(row[i]))
			}
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "(%d rows)\n", t.Len())
	return err
}

// cleanCell keeps one value on one line and inside its column.
func cleanCell(s string) string {
	return strings.NewReplacer("\t", " ", "\r\n", " ", "\n", " ").Replace(s)
}
