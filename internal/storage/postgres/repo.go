package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"olxwarehouse/internal/storage"
)

// Postgres caps a statement at 65535 bind parameters.
const maxParams = 65535

func init() {
	storage.Register("postgres", New)
}

/*
Repo implements storage.Repository for Postgres on top of a pgx pool.

Writes are plain multi-row INSERTs; the warehouse only ever appends rows it has
already diffed against the target, so no ON CONFLICT clause is needed and a
unique violation surfaces as an error instead of being silently swallowed.
*/
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a pool for cfg.DSN and verifies connectivity.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Repo{pool: pool}, nil
}

// Close closes the connection pool.
func (r *Repo) Close() {
	r.pool.Close()
}

// execer is satisfied by both *pgxpool.Pool and pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// EnsureTables creates schemas and tables that do not exist yet.
func (r *Repo) EnsureTables(ctx context.Context, tables []storage.TableSpec) error {
	for _, t := range tables {
		schemaSQL, baseSQL, err := buildCreateSQL(t)
		if err != nil {
			return err
		}
		if schemaSQL != "" {
			if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
				return fmt.Errorf("create schema for %s: %w", t.Name, err)
			}
		}
		if _, err := r.pool.Exec(ctx, baseSQL); err != nil {
			return fmt.Errorf("create table %s: %w", t.Name, err)
		}
	}
	return nil
}

// InsertRows inserts rows outside of any explicit transaction.
func (r *Repo) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	return insertRows(ctx, r.pool, table, columns, rows)
}

// CountRows returns SELECT COUNT(*) for table.
func (r *Repo) CountRows(ctx context.Context, table string) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, buildCountSQL(table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// ScanRows streams q to fn using pgx's dynamic Values decoding.
func (r *Repo) ScanRows(ctx context.Context, q storage.Query, fn func(row []any) error) error {
	rows, err := r.pool.Query(ctx, buildSelectSQL(q))
	if err != nil {
		return fmt.Errorf("scan %s: %w", q.Table, err)
	}
	defer rows.Close()

	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return fmt.Errorf("scan %s: %w", q.Table, err)
		}
		if err := fn(vals); err != nil {
			return err
		}
	}
	return rows.Err()
}

// InTx runs fn inside a single pgx transaction.
func (r *Repo) InTx(ctx context.Context, fn func(w storage.Writer) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(&txWriter{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type txWriter struct {
	tx pgx.Tx
}

func (w *txWriter) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	return insertRows(ctx, w.tx, table, columns, rows)
}

func insertRows(ctx context.Context, db execer, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	var total int64
	for _, chunk := range storage.ChunkRows(rows, len(columns), maxParams) {
		sql, args, err := buildInsertSQL(table, columns, chunk)
		if err != nil {
			return total, err
		}
		cmd, err := db.Exec(ctx, sql, args...)
		if err != nil {
			return total, fmt.Errorf("insert %s: %w", table, err)
		}
		total += cmd.RowsAffected()
	}
	return total, nil
}
