package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"mirnadb/internal/storage"
	"mirnadb/internal/tabular"
)

// Repo implements storage.Repository over a single SQLite file.
//
// The whole store is one file so that its existence can act as the build gate.
// WAL mode is therefore not used: it would add -wal/-shm side files.
type Repo struct {
	db *sql.DB
}

// maxVariables bounds the bound parameters in one INSERT. SQLite's default
// SQLITE_MAX_VARIABLE_NUMBER is 32766.
const maxVariables = 32000

var dialect = storage.Dialect{
	Quote:   storage.DoubleQuote,
	Integer: "INTEGER",
	Real:    "REAL",
	Text:    "TEXT",

	// SQLITE_MAX_COLUMN as compiled into modernc.org/sqlite.
	MaxColumns: 2000,
}

func init() {
	storage.Register("sqlite", New)
}

// New opens (creating if needed) the SQLite database at cfg.DSN.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlite", withPragmas(cfg.DSN, cfg.ReadOnly))
	if err != nil {
		return nil, storage.Wrap("open sqlite", err)
	}
	// One writer, and ":memory:" databases are per-connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, storage.Wrap("ping sqlite", err)
	}
	return &Repo{db: db}, nil
}

// withPragmas appends connection pragmas as DSN parameters so the driver
// applies them to every connection it opens.
func withPragmas(dsn string, readOnly bool) string {
	pragmas := []string{"busy_timeout(10000)", "synchronous(NORMAL)"}
	if readOnly {
		pragmas = append(pragmas, "query_only(1)")
	}

	var b strings.Builder
	b.WriteString(dsn)
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	for _, p := range pragmas {
		b.WriteString(sep)
		b.WriteString("_pragma=")
		b.WriteString(p)
		sep = "&"
	}
	return b.String()
}

func (r *Repo) Close() { _ = r.db.Close() }

// ReplaceTable drops and recreates table, then inserts data in batched
// multi-row INSERT statements inside one transaction.
func (r *Repo) ReplaceTable(ctx context.Context, table string, data tabular.Table) (int64, error) {
	if err := dialect.ValidateTable(table, data); err != nil {
		return 0, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storage.Wrap("begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+dialect.Quote(table)); err != nil {
		return 0, storage.Wrap("drop table "+table, err)
	}
	if _, err := tx.ExecContext(ctx, dialect.CreateTableSQL(table, data)); err != nil {
		return 0, storage.Wrap("create table "+table, err)
	}

	var total int64
	for _, batch := range batches(data.Rows, len(data.Columns)) {
		q, args := buildInsertSQL(table, data.Columns, batch)
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return total, storage.Wrap("insert into "+table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, storage.Wrap("commit "+table, err)
	}
	return total, nil
}

// batches splits rows so that no INSERT exceeds maxVariables parameters.
func batches(rows [][]any, ncols int) [][][]any {
	if len(rows) == 0 || ncols == 0 {
		return nil
	}
	size := maxVariables / ncols
	if size < 1 {
		size = 1
	}
	out := make([][][]any, 0, (len(rows)+size-1)/size)
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		out = append(out, rows[start:end])
	}
	return out
}

// buildInsertSQL renders one multi-row INSERT and its flattened args.
func buildInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	placeholders := "(" + strings.TrimRight(strings.Repeat("?,", len(columns)), ",") + ")"

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(dialect.Quote(table))
	b.WriteString(" (")
	b.WriteString(dialect.QuoteList(columns))
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(placeholders)
		args = append(args, row...)
	}
	return b.String(), args
}

func (r *Repo) Query(ctx context.Context, q string) (tabular.Table, error) {
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return tabular.Table{}, fmt.Errorf("query: %w", err)
	}
	t, err := storage.ScanRows(rows)
	if err != nil {
		return tabular.Table{}, fmt.Errorf("query: %w", err)
	}
	return t, nil
}

func (r *Repo) Tables(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, storage.Wrap("list tables", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, storage.Wrap("list tables", err)
		}
		out = append(out, name)
	}
	return out, storage.Wrap("list tables", rows.Err())
}
