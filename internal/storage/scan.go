package storage

import (
	"database/sql"
	"fmt"
	"time"

	"mirnadb/internal/tabular"
)

// ScanRows drains rows into a Table. Values are normalised to the scalar set
// tabular uses (string, int64, float64, bool, time.Time, nil). rows is closed.
func ScanRows(rows *sql.Rows) (tabular.Table, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return tabular.Table{}, fmt.Errorf("columns: %w", err)
	}

	out := tabular.Table{Columns: cols, Rows: [][]any{}}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return tabular.Table{}, fmt.Errorf("scan: %w", err)
		}
		for i, v := range vals {
			vals[i] = NormalizeValue(v)
		}
		out.Rows = append(out.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return tabular.Table{}, err
	}
	return out, nil
}

// NormalizeValue maps driver values onto tabular's scalar set.
func NormalizeValue(v any) any {
	switch t := v.(type) {
	case nil, string, int64, float64, bool, time.Time:
		return t
	case []byte:
		return string(t)
	case int:
		return int64(t)
	case int8:
		return int64(t)
	case int16:
		return int64(t)
	case int32:
		return int64(t)
	case uint8:
		return int64(t)
	case uint16:
		return int64(t)
	case uint32:
		return int64(t)
	case float32:
		return float64(t)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}
