package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"mirnadb/internal/tabular"
)

// querier runs a statement that returns rows.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// dbConn is the part of *sql.DB this package uses; tests substitute it.
type dbConn interface {
	querier
	BeginTx(ctx context.Context, opts *sql.TxOptions) (txConn, error)
	Close() error
}

// txConn is the part of *sql.Tx used by ReplaceTable and read-only queries.
type txConn interface {
	querier
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	PrepareContext(ctx context.Context, query string) (stmtConn, error)
	Commit() error
	Rollback() error
}

// stmtConn is the part of *sql.Stmt used by the bulk copy.
type stmtConn interface {
	ExecContext(ctx context.Context, args ...any) (sql.Result, error)
	Close() error
}

type sqlDB struct {
	db *sql.DB
}

func (s *sqlDB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

func (s *sqlDB) BeginTx(ctx context.Context, opts *sql.TxOptions) (txConn, error) {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &sqlTx{tx: tx}, nil
}

func (s *sqlDB) Close() error { return s.db.Close() }

type sqlTx struct {
	tx *sql.Tx
}

func (s *sqlTx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.tx.QueryContext(ctx, query, args...)
}

func (s *sqlTx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.tx.ExecContext(ctx, query, args...)
}

func (s *sqlTx) PrepareContext(ctx context.Context, query string) (stmtConn, error) {
	return s.tx.PrepareContext(ctx, query)
}

func (s *sqlTx) Commit() error   { return s.tx.Commit() }
func (s *sqlTx) Rollback() error { return s.tx.Rollback() }

// errReadOnly is returned by writes on a read-only repository.
var errReadOnly = errors.New("repository opened read-only")

// readOnlyDB refuses transactions to callers; its query method runs user SQL
// inside a transaction that is always rolled back. SQL Server has no
// session-level read-only switch comparable to Postgres'
// default_transaction_read_only. A batch that issues its own COMMIT still
// escapes the rollback.
type readOnlyDB struct {
	dbConn
}

func (readOnlyDB) BeginTx(context.Context, *sql.TxOptions) (txConn, error) {
	return nil, errReadOnly
}

func (ro readOnlyDB) query(ctx context.Context, q string) (tabular.Table, error) {
	tx, err := ro.dbConn.BeginTx(ctx, nil)
	if err != nil {
		return tabular.Table{}, fmt.Errorf("query: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	return query(ctx, tx, q)
}

var (
	_ dbConn   = (*sqlDB)(nil)
	_ dbConn   = readOnlyDB{}
	_ txConn   = (*sqlTx)(nil)
	_ stmtConn = (*sql.Stmt)(nil)
)
