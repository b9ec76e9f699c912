package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"olxwarehouse/internal/storage"
)

// SQLITE_MAX_VARIABLE_NUMBER for modernc.org/sqlite builds.
const maxParams = 32766

func init() {
	storage.Register("sqlite", New)
}

// Repo implements storage.Repository for SQLite.
//
// Key design points vs Postgres:
//   - The pool is pinned to one connection. SQLite serializes writers anyway,
//     and ":memory:" databases only exist per connection.
//   - SQLite has no native timestamp type; time.Time values are written as
//     RFC3339Nano TEXT and read back through storage.AsTime.
//   - Foreign keys are only enforced after PRAGMA foreign_keys=ON, which is
//     issued once on the pinned connection.
type Repo struct {
	db *sql.DB
}

func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: enable foreign keys: %w", err)
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

// EnsureTables creates missing tables; existing ones are left untouched.
func (r *Repo) EnsureTables(ctx context.Context, tables []storage.TableSpec) error {
	for _, t := range tables {
		ddl, err := buildCreateTableSQL(t)
		if err != nil {
			return err
		}
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create table %s: %w", t.Name, err)
		}
	}
	return nil
}

func (r *Repo) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	return insertRows(ctx, r.db, table, columns, rows)
}

func (r *Repo) CountRows(ctx context.Context, table string) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+sqlTable(table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

func (r *Repo) ScanRows(ctx context.Context, q storage.Query, fn func(row []any) error) error {
	rows, err := r.db.QueryContext(ctx, buildSelectSQL(q))
	if err != nil {
		return fmt.Errorf("scan %s: %w", q.Table, err)
	}
	defer rows.Close()

	out := make([]any, len(q.Columns))
	dests := make([]any, len(q.Columns))
	for i := range out {
		dests[i] = &out[i]
	}
	for rows.Next() {
		if err := rows.Scan(dests...); err != nil {
			return fmt.Errorf("scan %s: %w", q.Table, err)
		}
		if err := fn(out); err != nil {
			return err
		}
	}
	return rows.Err()
}

// InTx runs fn in one transaction. With a single pooled connection, fn must
// only write through w; any other repository call would block until commit.
func (r *Repo) InTx(ctx context.Context, fn func(w storage.Writer) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(&txWriter{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

type txWriter struct {
	tx *sql.Tx
}

func (w *txWriter) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	return insertRows(ctx, w.tx, table, columns, rows)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertRows(ctx context.Context, db execer, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	var total int64
	for _, chunk := range storage.ChunkRows(rows, len(columns), maxParams) {
		q, args, err := buildInsertSQL(table, columns, chunk)
		if err != nil {
			return total, err
		}
		res, err := db.ExecContext(ctx, q, args...)
		if err != nil {
			return total, fmt.Errorf("insert %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// formatSQLiteTime formats a time as RFC3339Nano in UTC.
func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// bindValue converts values SQLite cannot store natively.
func bindValue(v any) any {
	switch t := v.(type) {
	case time.Time:
		return formatSQLiteTime(t)
	case *time.Time:
		if t == nil {
			return nil
		}
		return formatSQLiteTime(*t)
	default:
		return v
	}
}
