package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"unicode/utf8"

	mssql "github.com/microsoft/go-mssqldb"

	"mirnadb/internal/storage"
	"mirnadb/internal/tabular"
)

// Repo implements storage.Repository for Microsoft SQL Server.
//
// Tables are replaced with DROP TABLE IF EXISTS (SQL Server 2016+) and loaded
// through the driver's bulk copy, which streams rows instead of building
// parameterised INSERTs (SQL Server caps those at 2100 parameters).
type Repo struct {
	db dbConn
}

var dialect = storage.Dialect{
	Quote:   storage.BracketQuote,
	Integer: "BIGINT",
	Real:    "FLOAT",
	Text:    "NVARCHAR(MAX)",

	// Non-wide tables; sysname holds 128 characters.
	MaxColumns:    1024,
	MaxIdentifier: 128,
	IdentifierLen: utf8.RuneCountInString,
}

func init() {
	storage.Register("mssql", New)
}

// New opens a SQL Server connection using the "sqlserver" driver registered by
// go-mssqldb and validates it with a ping.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	raw, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, storage.Wrap("open sqlserver", err)
	}
	if err := raw.PingContext(ctx); err != nil {
		_ = raw.Close()
		return nil, storage.Wrap("ping sqlserver", err)
	}
	r := &Repo{db: &sqlDB{db: raw}}
	if cfg.ReadOnly {
		r.db = readOnlyDB{r.db}
	}
	return r, nil
}

// Close releases database resources held by this repository.
func (r *Repo) Close() {
	if r == nil || r.db == nil {
		return
	}
	_ = r.db.Close()
}

// ReplaceTable drops and recreates table, then bulk copies data in the same
// transaction.
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

	n, err := bulkCopy(ctx, tx, table, data)
	if err != nil {
		return 0, storage.Wrap("bulk copy into "+table, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, storage.Wrap("commit "+table, err)
	}
	return n, nil
}

// bulkCopy streams rows through a CopyIn statement. Each ExecContext with
// arguments buffers a row; the final argument-less ExecContext flushes.
func bulkCopy(ctx context.Context, tx txConn, table string, data tabular.Table) (int64, error) {
	if len(data.Rows) == 0 {
		return 0, nil
	}

	stmt, err := tx.PrepareContext(ctx, copyInSQL(table, data.Columns))
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for i, row := range data.Rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return 0, fmt.Errorf("row %d: %w", i+1, err)
		}
	}
	res, err := stmt.ExecContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("flush: %w", err)
	}
	return res.RowsAffected()
}

// copyInSQL is the driver's bulk-insert pseudo statement. NULLs are kept as
// NULL rather than replaced by column defaults.
func copyInSQL(table string, columns []string) string {
	return mssql.CopyIn(dialect.Quote(table), mssql.BulkOptions{KeepNulls: true, Tablock: true}, columns...)
}

// Query runs q and returns its full result. On a read-only repository q runs
// inside a transaction that is always rolled back, so writes it attempts are
// undone.
func (r *Repo) Query(ctx context.Context, q string) (tabular.Table, error) {
	if ro, ok := r.db.(readOnlyDB); ok {
		return ro.query(ctx, q)
	}
	return query(ctx, r.db, q)
}

func query(ctx context.Context, db querier, q string) (tabular.Table, error) {
	rows, err := db.QueryContext(ctx, q)
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
	rows, err := r.db.QueryContext(ctx, `
SELECT TABLE_NAME
FROM INFORMATION_SCHEMA.TABLES
WHERE TABLE_TYPE = 'BASE TABLE' AND TABLE_SCHEMA = SCHEMA_NAME()
ORDER BY TABLE_NAME`)
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
