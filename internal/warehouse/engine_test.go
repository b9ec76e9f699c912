package warehouse

import (
	"context"
	"errors"
	"testing"

	"olxwarehouse/internal/citystatus"
	"olxwarehouse/internal/config"
	"olxwarehouse/internal/normalize"
	"olxwarehouse/internal/staging"
	"olxwarehouse/internal/storage"
	"olxwarehouse/internal/storage/sqlite"
)

func openWarehouse(t *testing.T) storage.Repository {
	t.Helper()
	repo, err := sqlite.New(context.Background(), storage.Config{Kind: "sqlite", DSN: ":memory:"})
	if err != nil {
		t.Fatalf("sqlite.New: %v", err)
	}
	t.Cleanup(repo.Close)

	if err := NewEngine(repo, Options{}, nil).Provision(context.Background()); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	return repo
}

func newTestEngine(t *testing.T, repo storage.Repository, opts Options) *Engine {
	t.Helper()
	if opts.Lookup == nil {
		lookup, err := citystatus.Default()
		if err != nil {
			t.Fatalf("citystatus.Default: %v", err)
		}
		opts.Lookup = lookup
	}
	return NewEngine(repo, opts, nil)
}

func stageRecords(t *testing.T, repo storage.Repository, recs ...staging.Record) {
	t.Helper()
	rows := make([][]any, len(recs))
	for i, r := range recs {
		rows[i] = []any{
			r.Price, r.PricePerMeter, r.OfferType, ptrValue(r.Floor), ptrValue(r.Area), r.Rooms,
			ptrValue(r.OfferTypeOfBuilding), r.Market, r.CityName, r.Voivodeship, r.Month, r.Year,
			r.Population, r.Longitude, r.Latitude,
		}
	}
	tables := config.DefaultTableNames()
	if _, err := repo.InsertRows(context.Background(), tables.Staging, staging.Columns(), rows); err != nil {
		t.Fatalf("stage: %v", err)
	}
}

func count(t *testing.T, repo storage.Repository, table string) int64 {
	t.Helper()
	n, err := repo.CountRows(context.Background(), table)
	if err != nil {
		t.Fatalf("CountRows(%s): %v", table, err)
	}
	return n
}

func readFacts(t *testing.T, repo storage.Repository) [][]any {
	t.Helper()
	var out [][]any
	q := storage.Query{Table: "fact_offer_snapshot", Columns: factColumns, OrderBy: []string{colFactKey}}
	err := repo.ScanRows(context.Background(), q, func(row []any) error {
		out = append(out, append([]any(nil), row...))
		return nil
	})
	if err != nil {
		t.Fatalf("scan facts: %v", err)
	}
	return out
}

func TestEngine_WarszawaScenario(t *testing.T) {
	ctx := context.Background()
	repo := openWarehouse(t)
	stageRecords(t, repo, listing(0))

	e := newTestEngine(t, repo, Options{})
	rep, err := e.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Facts.Inserted != 1 || rep.Facts.Seen != 1 || len(rep.Steps) != len(Steps) {
		t.Fatalf("report=%+v", rep)
	}

	dims, err := e.ReadDimensions(ctx)
	if err != nil {
		t.Fatalf("ReadDimensions: %v", err)
	}
	wantDate := DateRow{Key: 1, Year: 2022, YearMonth: 202203, Month: 3, MonthLabel: "March", Label: "March 2022", Quarter: 1, QuarterLabel: "Q1 2022"}
	if len(dims.Dates) != 1 || dims.Dates[0] != wantDate {
		t.Fatalf("dates=%+v", dims.Dates)
	}
	loc := dims.Locations[0]
	if loc.City != "Warszawa" || loc.StatusCode != 1 || loc.StatusLabel != "National Capital" || loc.Country != "Poland" {
		t.Fatalf("location=%+v", loc)
	}
	p := dims.Properties[0]
	if *p.AreaCategory != "40-49" || *p.AreaCode != 4 || p.RoomsCategory != "3" || *p.PropertyType != "flat" || *p.Floor != 2 {
		t.Fatalf("property=%+v", p)
	}

	facts := readFacts(t, repo)
	if len(facts) != 1 {
		t.Fatalf("facts=%d, want 1", len(facts))
	}
	area, _ := storage.AsFloat64(facts[0][5])
	price, _ := storage.AsFloat64(facts[0][6])
	if area != 45.23 || price != 500000 {
		t.Fatalf("fact area=%v price=%v", area, price)
	}
	keys := []int64{dims.Offers[0].Key, dims.Markets[0].Key, dims.Dates[0].Key, loc.Key, p.Key}
	for i, want := range keys {
		if got, _ := storage.AsInt64(facts[0][i]); got != want {
			t.Fatalf("fact key %s=%d, want %d", factColumns[i], got, want)
		}
	}
}

func TestEngine_OutlierAreas(t *testing.T) {
	repo := openWarehouse(t)
	a, b := listing(0), listing(0)
	a.Area = f64(3000)
	b.Area = f64(16000)
	stageRecords(t, repo, a, b)

	if _, err := newTestEngine(t, repo, Options{}).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	facts := readFacts(t, repo)
	if len(facts) != 2 {
		t.Fatalf("facts=%d, want 2", len(facts))
	}
	got0, _ := storage.AsFloat64(facts[0][5])
	got1, _ := storage.AsFloat64(facts[1][5])
	if got0 != 30 || got1 != 160 {
		t.Fatalf("areas=%v,%v want 30,160", got0, got1)
	}
}

func TestEngine_RerunIsNoop(t *testing.T) {
	ctx := context.Background()
	repo := openWarehouse(t)
	b := listing(0)
	b.CityName, b.Market = "Kraków", "aftermarket"
	stageRecords(t, repo, listing(0), b, listing(0))

	if _, err := newTestEngine(t, repo, Options{}).Run(ctx); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	before := count(t, repo, "fact_offer_snapshot")
	if before != 3 {
		t.Fatalf("facts=%d, want 3", before)
	}

	e2 := newTestEngine(t, repo, Options{})
	rep, err := e2.Run(ctx)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	for _, s := range rep.Steps {
		if !s.Skipped {
			t.Fatalf("step %s ran again", s.Step)
		}
	}
	if after := count(t, repo, "fact_offer_snapshot"); after != before {
		t.Fatalf("facts after rerun=%d, want %d", after, before)
	}
	if n := count(t, repo, "dim_market"); n != 2 {
		t.Fatalf("dim_market=%d, want 2", n)
	}

	st, err := e2.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	for _, s := range st {
		if s.Status != StatusCompleted {
			t.Fatalf("step %s status=%s", s.Step, s.Status)
		}
	}
	if st[len(st)-1].Entry.RowsWritten != 3 {
		t.Fatalf("fact ledger rows=%d, want 3", st[len(st)-1].Entry.RowsWritten)
	}
}

func TestDimensionWork_Idempotent(t *testing.T) {
	ctx := context.Background()
	repo := openWarehouse(t)
	b := listing(0)
	b.Floor = nil
	stageRecords(t, repo, listing(0), b)

	e := newTestEngine(t, repo, Options{})
	work := dimensionWork(e, propertyTable("dim_property"), func(recs []staging.Record) ([]PropertyRow, error) {
		return BuildProperties(recs), nil
	})

	apply := func() int64 {
		write, err := work(ctx)
		if err != nil {
			t.Fatalf("work: %v", err)
		}
		var n int64
		if err := repo.InTx(ctx, func(w storage.Writer) error {
			n, err = write(w)
			return err
		}); err != nil {
			t.Fatalf("write: %v", err)
		}
		return n
	}

	if n := apply(); n != 2 {
		t.Fatalf("first pass wrote %d, want 2", n)
	}
	if n := apply(); n != 0 {
		t.Fatalf("second pass wrote %d, want 0", n)
	}
	if n := count(t, repo, "dim_property"); n != 2 {
		t.Fatalf("dim_property=%d, want 2", n)
	}
}

func TestEngine_PartialRunDetected(t *testing.T) {
	ctx := context.Background()
	repo := openWarehouse(t)
	stageRecords(t, repo, listing(0))

	if _, err := repo.InsertRows(ctx, "dim_offer", []string{colOfferType}, [][]any{{"manual"}}); err != nil {
		t.Fatalf("seed dim_offer: %v", err)
	}

	_, err := newTestEngine(t, repo, Options{}).Run(ctx)
	if !errors.Is(err, ErrPartialRun) {
		t.Fatalf("err=%v, want ErrPartialRun", err)
	}
	if n := count(t, repo, "fact_offer_snapshot"); n != 0 {
		t.Fatalf("facts=%d, want 0", n)
	}
}

func TestEngine_UnparseableMonthAbortsRun(t *testing.T) {
	ctx := context.Background()
	repo := openWarehouse(t)
	bad := listing(0)
	bad.Month = "Smarch"
	stageRecords(t, repo, listing(0), bad)

	e := newTestEngine(t, repo, Options{})
	_, err := e.Run(ctx)
	if !errors.Is(err, normalize.ErrUnparseableMonth) {
		t.Fatalf("err=%v, want ErrUnparseableMonth", err)
	}
	if n := count(t, repo, "dim_date"); n != 0 {
		t.Fatalf("dim_date=%d, want 0", n)
	}

	st, err := e.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	got := map[string]string{}
	for _, s := range st {
		got[s.Step] = s.Status
	}
	if got[StepDate] != StatusFailed || got[StepFact] != StatusPending || got[StepMarket] != StatusCompleted {
		t.Fatalf("status=%v", got)
	}
}

func TestEngine_AmbiguousFactThenLenientRetry(t *testing.T) {
	ctx := context.Background()
	repo := openWarehouse(t)
	other := listing(0)
	other.Rooms = 1
	stageRecords(t, repo, listing(0), other)

	e := newTestEngine(t, repo, Options{})
	if _, err := e.runDimensions(ctx); err != nil {
		t.Fatalf("runDimensions: %v", err)
	}
	dup := []any{"flat", 2, "40-49", 4, "3"}
	if _, err := repo.InsertRows(ctx, "dim_property", propertyTable("").columns, [][]any{dup}); err != nil {
		t.Fatalf("duplicate property: %v", err)
	}

	_, err := e.Run(ctx)
	if !errors.Is(err, ErrAmbiguousMatch) {
		t.Fatalf("strict err=%v, want ErrAmbiguousMatch", err)
	}
	if n := count(t, repo, "fact_offer_snapshot"); n != 0 {
		t.Fatalf("facts after strict failure=%d, want 0", n)
	}

	rep, err := newTestEngine(t, repo, Options{Lenient: true}).Run(ctx)
	if err != nil {
		t.Fatalf("lenient Run: %v", err)
	}
	if rep.Facts.Inserted != 1 || rep.Facts.Skipped["ambiguous_property"] != 1 {
		t.Fatalf("lenient report=%+v", rep.Facts)
	}
	if n := count(t, repo, "fact_offer_snapshot"); n != 1 {
		t.Fatalf("facts=%d, want 1", n)
	}
}

func TestEngine_CanceledContextStopsRun(t *testing.T) {
	repo := openWarehouse(t)
	stageRecords(t, repo, listing(0))
	e := newTestEngine(t, repo, Options{})

	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := e.loadStaged(canceled); !errors.Is(err, context.Canceled) {
		t.Fatalf("loadStaged err=%v, want context.Canceled", err)
	}
	if _, err := e.Run(canceled); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run err=%v, want context.Canceled", err)
	}
	if n := count(t, repo, "dim_market"); n != 0 {
		t.Fatalf("dim_market=%d after canceled run, want 0", n)
	}

	// the canceled read must not be cached
	rep, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run after cancel: %v", err)
	}
	if rep.Facts.Inserted != 1 {
		t.Fatalf("facts inserted=%d, want 1", rep.Facts.Inserted)
	}
}

func TestEngine_ParallelDimensions(t *testing.T) {
	ctx := context.Background()
	repo := openWarehouse(t)

	var recs []staging.Record
	cities := []string{"Warszawa", "Kraków", "Gdańsk", "Sopot"}
	months := []string{"January", "February", "March"}
	for i := 0; i < 24; i++ {
		r := listing(0)
		r.CityName = cities[i%len(cities)]
		r.Month = months[i%len(months)]
		r.Rooms = i % 6
		r.Area = f64(float64(20 + i*5))
		recs = append(recs, r)
	}
	stageRecords(t, repo, recs...)

	rep, err := newTestEngine(t, repo, Options{DimensionWorkers: 5, BatchSize: 7}).Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Facts.Inserted != len(recs) {
		t.Fatalf("inserted=%d, want %d (report %+v)", rep.Facts.Inserted, len(recs), rep.Facts)
	}
	if n := count(t, repo, "dim_location"); n != 4 {
		t.Fatalf("dim_location=%d, want 4", n)
	}
	if n := count(t, repo, "dim_date"); n != 3 {
		t.Fatalf("dim_date=%d, want 3", n)
	}
}
