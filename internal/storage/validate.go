package storage

import (
	"fmt"
	"strings"

	"mirnadb/internal/apperr"
	"mirnadb/internal/tabular"
)

// ValidateTable checks that data can be written as table before any DDL runs.
// SQL identifiers compare case-insensitively, so "mirna_id" next to "miRNA_ID"
// is rejected here instead of failing halfway through a transaction. Tables
// wider than the engine allows, or names it would truncate, are rejected the
// same way.
func (d Dialect) ValidateTable(table string, data tabular.Table) error {
	if strings.TrimSpace(table) == "" {
		return fmt.Errorf("%w: empty table name", apperr.ErrFormat)
	}
	if d.MaxIdentifier > 0 && d.identifierLen(table) > d.MaxIdentifier {
		return fmt.Errorf("%w: table name %s exceeds %d characters", apperr.ErrFormat, table, d.MaxIdentifier)
	}
	if len(data.Columns) == 0 {
		return fmt.Errorf("%w: %s: no columns", apperr.ErrFormat, table)
	}
	if d.MaxColumns > 0 && len(data.Columns) > d.MaxColumns {
		return fmt.Errorf("%w: %s: %d columns, limit is %d", apperr.ErrFormat, table, len(data.Columns), d.MaxColumns)
	}

	seen := make(map[string]string, len(data.Columns))
	for _, c := range data.Columns {
		if c == "" {
			return fmt.Errorf("%w: %s: empty column name", apperr.ErrFormat, table)
		}
		if d.MaxIdentifier > 0 && d.identifierLen(c) > d.MaxIdentifier {
			return fmt.Errorf("%w: %s: column %q exceeds %d characters", apperr.ErrFormat, table, c, d.MaxIdentifier)
		}
		k := strings.ToLower(c)
		if prev, dup := seen[k]; dup {
			return fmt.Errorf("%w: %s: columns %q and %q collide", apperr.ErrFormat, table, prev, c)
		}
		seen[k] = c
	}

	if err := data.Validate(); err != nil {
		return fmt.Errorf("%w: %s: %v", apperr.ErrFormat, table, err)
	}
	return nil
}

// Wrap marks err as a store failure during op. nil stays nil.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", apperr.ErrStorage, op, err)
}
