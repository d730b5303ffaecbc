package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"mirnadb/internal/tabular"
)

// Config is the minimal configuration needed to open a Repository.
//
// When to use:
//   - Build a Config from the process configuration and pass it to New.
//
// Edge cases:
//   - Kind must match a registered backend ("sqlite", "postgres", "mssql").
//   - DSN is backend-specific: a file path for SQLite, a connection string for
//     server backends.
//   - ReadOnly opens the store for the query surface; ReplaceTable then fails.
type Config struct {
	Kind     string
	DSN      string
	ReadOnly bool
}

// Repository is the relational store the schema builder writes into and the
// query surface reads from.
//
// Each backend implements these semantics in its own idiomatic way (SQLite
// multi-row INSERT, Postgres COPY, SQL Server bulk copy).
type Repository interface {
	// Close releases backend resources. Call once.
	Close()

	// ReplaceTable drops table if it exists, recreates it from data's columns and
	// inferred types, and loads every row, all in one transaction.
	//
	// When to use:
	//   - Once per source item during a build.
	//
	// Edge cases:
	//   - A table with zero rows is still created.
	//   - Column names are quoted, never rewritten.
	//
	// Errors:
	//   - apperr.ErrFormat if data cannot be represented as a table (no columns,
	//     ragged rows, names that collide case-insensitively). The store is
	//     untouched.
	//   - apperr.ErrStorage for any failure of the store itself.
	ReplaceTable(ctx context.Context, table string, data tabular.Table) (int64, error)

	// Query runs one read statement and returns its full result.
	Query(ctx context.Context, q string) (tabular.Table, error)

	// Tables lists user tables in name order.
	Tables(ctx context.Context) ([]string, error)
}

// Factory opens a Repository for one backend kind.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers a backend under a kind (e.g. "postgres", "sqlite").
//
// When to use:
//   - Call Register from an init() function in a backend package. Import
//     storage/all to get every backend.
//
// Panics:
//   - If kind is empty, f is nil, or kind is already registered.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// New opens a Repository using the registered backend factory.
//
// Errors:
//   - If cfg.Kind is empty or not registered.
//   - Whatever the backend factory returns (already wrapped with
//     apperr.ErrStorage by the backends).
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("storage: unsupported kind=%s (registered: %v)", cfg.Kind, Kinds())
	}
	return f(ctx, cfg)
}

// Kinds lists registered backend kinds.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()

	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
