package warehouse

import (
	"context"
	"testing"

	"olxwarehouse/internal/storage"
)

func TestLedger_LatestEntryDecides(t *testing.T) {
	ctx := context.Background()
	repo := openWarehouse(t)
	l := NewLedger(repo, "etl_run_ledger", "run-1")

	skip, err := l.Guard(ctx, StepMarket, "dim_market")
	if err != nil || skip {
		t.Fatalf("fresh guard skip=%v err=%v", skip, err)
	}

	if err := l.Started(ctx, StepMarket); err != nil {
		t.Fatalf("Started: %v", err)
	}
	if err := l.Failed(ctx, StepMarket); err != nil {
		t.Fatalf("Failed: %v", err)
	}
	latest, err := l.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest[StepMarket].Status != StatusFailed {
		t.Fatalf("after failure: %+v", latest[StepMarket])
	}
	if skip, err := l.Guard(ctx, StepMarket, "dim_market"); err != nil || skip {
		t.Fatalf("failed step should rerun: skip=%v err=%v", skip, err)
	}

	if err := l.Started(ctx, StepMarket); err != nil {
		t.Fatalf("Started: %v", err)
	}
	if err := repo.InTx(ctx, func(w storage.Writer) error {
		return l.Completed(ctx, w, StepMarket, 3)
	}); err != nil {
		t.Fatalf("Completed: %v", err)
	}

	latest, err = l.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	e := latest[StepMarket]
	if e.Status != StatusCompleted || e.RowsWritten != 3 || e.RunID != "run-1" || e.RecordedAt.IsZero() {
		t.Fatalf("completed entry=%+v", e)
	}
	if _, ok := latest[StepOffer]; ok {
		t.Fatalf("no entry expected for %s", StepOffer)
	}
	if skip, err := l.Guard(ctx, StepMarket, "dim_market"); err != nil || !skip {
		t.Fatalf("completed step should skip: skip=%v err=%v", skip, err)
	}
}

func TestNewLedger_GeneratesRunID(t *testing.T) {
	a := NewLedger(nil, "etl_run_ledger", "")
	b := NewLedger(nil, "etl_run_ledger", "")
	if len(a.RunID()) != 36 || a.RunID() == b.RunID() {
		t.Fatalf("run ids %q %q", a.RunID(), b.RunID())
	}
}
