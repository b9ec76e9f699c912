package warehouse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"olxwarehouse/internal/storage"
)

// ErrPartialRun means a step's target relation holds rows although the
// ledger has no completed entry for the step: the warehouse was written
// outside a recorded run or a previous run was edited by hand.
var ErrPartialRun = errors.New("target relation populated without a completed ledger entry")

// Ledger entry statuses.
const (
	StatusStarted   = "started"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusPending   = "pending" // no entry yet; never stored
)

// LedgerEntry is one etl_run_ledger row.
type LedgerEntry struct {
	Key         int64
	RunID       string
	Step        string
	Status      string
	RowsWritten int64
	RecordedAt  time.Time
}

var ledgerColumns = []string{colRunID, colStep, colStatus, colRowsWritten, colRecordedAt}

// Ledger records step outcomes of one run in the run ledger relation.
type Ledger struct {
	repo  storage.Repository
	table string
	runID string
	now   func() time.Time
}

// NewLedger returns a ledger writing under runID; an empty runID gets a
// fresh UUID.
func NewLedger(repo storage.Repository, table, runID string) *Ledger {
	if runID == "" {
		runID = uuid.NewString()
	}
	return &Ledger{repo: repo, table: table, runID: runID, now: time.Now}
}

// RunID is the identifier stamped on every entry this ledger writes.
func (l *Ledger) RunID() string { return l.runID }

// Latest returns the most recent entry per step.
func (l *Ledger) Latest(ctx context.Context) (map[string]LedgerEntry, error) {
	q := storage.Query{
		Table:   l.table,
		Columns: append([]string{colLedgerKey}, ledgerColumns...),
		OrderBy: []string{colLedgerKey},
	}

	out := make(map[string]LedgerEntry)
	err := l.repo.ScanRows(ctx, q, func(row []any) error {
		var c cells
		e := LedgerEntry{
			Key:         c.asInt(row[0], colLedgerKey),
			RunID:       c.asStr(row[1], colRunID),
			Step:        c.asStr(row[2], colStep),
			Status:      c.asStr(row[3], colStatus),
			RowsWritten: c.asInt(row[4], colRowsWritten),
		}
		ts, ok := storage.AsTime(row[5])
		if !ok {
			c.fail(colRecordedAt, row[5])
		}
		e.RecordedAt = ts
		if c.err != nil {
			return fmt.Errorf("%s: %w", l.table, c.err)
		}
		out[e.Step] = e
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	return out, nil
}

// Guard decides whether step must run. It returns skip=true when the step
// already completed, and ErrPartialRun when table has rows without a
// completed entry.
func (l *Ledger) Guard(ctx context.Context, step, table string) (skip bool, err error) {
	latest, err := l.Latest(ctx)
	if err != nil {
		return false, err
	}
	if e, ok := latest[step]; ok && e.Status == StatusCompleted {
		return true, nil
	}

	n, err := l.repo.CountRows(ctx, table)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, fmt.Errorf("step %s: %s has %d rows: %w", step, table, n, ErrPartialRun)
	}
	return false, nil
}

// Started records that step began.
func (l *Ledger) Started(ctx context.Context, step string) error {
	return l.record(ctx, l.repo, step, StatusStarted, 0)
}

// Completed records step completion through w, so it commits or rolls back
// together with the step's rows.
func (l *Ledger) Completed(ctx context.Context, w storage.Writer, step string, rows int64) error {
	return l.record(ctx, w, step, StatusCompleted, rows)
}

// Failed records a failed step. It ignores ctx cancellation so a canceled
// run still leaves a trace.
func (l *Ledger) Failed(ctx context.Context, step string) error {
	return l.record(context.WithoutCancel(ctx), l.repo, step, StatusFailed, 0)
}

func (l *Ledger) record(ctx context.Context, w storage.Writer, step, status string, rows int64) error {
	row := []any{l.runID, step, status, rows, l.now().UTC()}
	if _, err := w.InsertRows(ctx, l.table, ledgerColumns, [][]any{row}); err != nil {
		return fmt.Errorf("ledger %s %s: %w", step, status, err)
	}
	return nil
}
