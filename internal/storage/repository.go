package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Config is the minimal configuration needed to open a repository.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; validation is backend-specific.
type Config struct {
	Kind string
	DSN  string
}

// Writer appends rows to a relation.
//
// InsertRows returns the number of rows written. Backends split rows into
// statements that respect their bind-parameter limits; callers may pass any
// number of rows.
type Writer interface {
	InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)
}

// Query describes a full-relation read.
type Query struct {
	Table   string
	Columns []string
	// OrderBy lists columns for a deterministic scan order (ascending).
	OrderBy []string
}

// Repository is the backend-agnostic interface used by the warehouse.
//
// The set of operations is deliberately small: the warehouse reads whole
// relations into memory, computes what is missing and appends it. Nothing is
// ever updated or deleted.
type Repository interface {
	Writer

	// Close releases backend resources. Call once.
	Close()

	// EnsureTables creates the given relations if they do not exist.
	EnsureTables(ctx context.Context, tables []TableSpec) error

	// CountRows returns the number of rows currently in table.
	CountRows(ctx context.Context, table string) (int64, error)

	// ScanRows streams every row of q.Table to fn. The row slice is only valid
	// for the duration of the callback. fn must not call back into the
	// repository (single-connection backends would deadlock).
	ScanRows(ctx context.Context, q Query, fn func(row []any) error) error

	// InTx runs fn inside one transaction. The transaction commits when fn
	// returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(w Writer) error) error
}

type factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a backend under kind (e.g. "postgres", "sqlite").
//
// Call Register from an init() function in a backend package.
//
// Panics:
//   - If kind is empty.
//   - If f is nil.
//   - If kind is already registered.
func Register(kind string, f factory) {
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

// New constructs a Repository using the registered backend factory.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or unsupported.
//   - Returns whatever error the registered factory returns.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage.kind=%s (registered: %v)", cfg.Kind, Kinds())
	}
	return f(ctx, cfg)
}

// Kinds returns the registered backend kinds, sorted.
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

// ChunkRows splits rows so that no chunk binds more than maxParams values.
// A chunk always holds at least one row.
func ChunkRows(rows [][]any, columns int, maxParams int) [][][]any {
	if len(rows) == 0 {
		return nil
	}
	per := len(rows)
	if columns > 0 && maxParams > 0 {
		per = maxParams / columns
		if per < 1 {
			per = 1
		}
	}

	out := make([][][]any, 0, (len(rows)+per-1)/per)
	for start := 0; start < len(rows); start += per {
		end := start + per
		if end > len(rows) {
			end = len(rows)
		}
		out = append(out, rows[start:end])
	}
	return out
}
