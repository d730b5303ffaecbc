package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"mirnadb/internal/storage"
	"mirnadb/internal/tabular"
)

/*
Repo implements storage.Repository for Postgres.

Tables live in the connection's current schema. Each ReplaceTable runs
DROP, CREATE and a COPY in one transaction, so readers see either the old
table or the complete new one.
*/
type Repo struct {
	pool *pgxpool.Pool
}

var dialect = storage.Dialect{
	Quote:   func(id string) string { return pgx.Identifier{id}.Sanitize() },
	Integer: "BIGINT",
	Real:    "DOUBLE PRECISION",
	Text:    "TEXT",

	// Postgres silently truncates identifiers to NAMEDATALEN-1 bytes.
	MaxColumns:    1600,
	MaxIdentifier: 63,
}

// New creates a pooled Postgres repository. ReadOnly sessions default every
// transaction to read-only.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, storage.Wrap("parse postgres dsn", err)
	}
	if cfg.ReadOnly {
		pc.ConnConfig.RuntimeParams["default_transaction_read_only"] = "on"
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, storage.Wrap("connect postgres", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, storage.Wrap("ping postgres", err)
	}
	return &Repo{pool: pool}, nil
}

// Close closes the connection pool.
func (r *Repo) Close() {
	r.pool.Close()
}

func (r *Repo) ReplaceTable(ctx context.Context, table string, data tabular.Table) (int64, error) {
	if err := dialect.ValidateTable(table, data); err != nil {
		return 0, err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, storage.Wrap("begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, stmt := range replaceDDL(table, data) {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return 0, storage.Wrap(stmt, err)
		}
	}

	n, err := tx.CopyFrom(ctx, pgx.Identifier{table}, data.Columns, pgx.CopyFromRows(data.Rows))
	if err != nil {
		return 0, storage.Wrap("copy into "+table, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, storage.Wrap("commit "+table, err)
	}
	return n, nil
}

// replaceDDL is the statement pair that resets table before the COPY.
func replaceDDL(table string, data tabular.Table) []string {
	return []string{
		"DROP TABLE IF EXISTS " + dialect.Quote(table),
		dialect.CreateTableSQL(table, data),
	}
}

func (r *Repo) Query(ctx context.Context, q string) (tabular.Table, error) {
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return tabular.Table{}, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	out := tabular.Table{Columns: make([]string, len(fields)), Rows: [][]any{}}
	for i, f := range fields {
		out.Columns[i] = f.Name
	}

	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return tabular.Table{}, fmt.Errorf("query: %w", err)
		}
		for i, v := range vals {
			vals[i] = normalize(v)
		}
		out.Rows = append(out.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return tabular.Table{}, fmt.Errorf("query: %w", err)
	}
	return out, nil
}

// normalize maps pgx values onto tabular scalars. NUMERIC results (AVG, SUM
// over BIGINT) become float64.
func normalize(v any) any {
	if n, ok := v.(pgtype.Numeric); ok {
		if !n.Valid {
			return nil
		}
		f, err := n.Float64Value()
		if err == nil && f.Valid {
			return f.Float64
		}
	}
	return storage.NormalizeValue(v)
}

func (r *Repo) Tables(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
SELECT table_name
FROM information_schema.tables
WHERE table_schema = current_schema() AND table_type = 'BASE TABLE'
ORDER BY table_name`)
	if err != nil {
		return nil, storage.Wrap("list tables", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, storage.Wrap("list tables", err)
	}
	return names, nil
}
