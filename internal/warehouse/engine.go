// Package warehouse builds the listings star schema from the staging
// relation: five dimensions, one fact relation and a run ledger that gates
// every step.
package warehouse

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"olxwarehouse/internal/citystatus"
	"olxwarehouse/internal/config"
	"olxwarehouse/internal/metrics"
	"olxwarehouse/internal/staging"
	"olxwarehouse/internal/storage"
)

// Logger is the logging surface the engine needs.
type Logger interface {
	Printf(format string, args ...any)
	Warnf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}
func (nopLogger) Warnf(string, ...any)  {}

// Options configures an Engine.
type Options struct {
	Tables config.TableNames
	Lookup citystatus.Lookup

	// RunID tags ledger entries; empty means a fresh UUID.
	RunID string

	BatchSize        int
	DimensionWorkers int
	Lenient          bool
}

// StepResult is the outcome of one step in a run.
type StepResult struct {
	Step     string
	Skipped  bool
	Rows     int64
	Duration time.Duration
}

// RunReport summarizes a transform run.
type RunReport struct {
	RunID string
	Steps []StepResult
	Facts LoadReport
}

// Engine runs the transform against one repository.
type Engine struct {
	repo   storage.Repository
	opts   Options
	log    Logger
	ledger *Ledger

	stagedMu sync.Mutex
	staged   *stagedSet
}

type stagedSet struct {
	records []staging.Record
	invalid int
}

// NewEngine prepares a run. Staging is read lazily, at most once.
func NewEngine(repo storage.Repository, opts Options, log Logger) *Engine {
	opts.Tables = opts.Tables.WithDefaults()
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1000
	}
	if opts.DimensionWorkers <= 0 {
		opts.DimensionWorkers = 1
	}
	if log == nil {
		log = nopLogger{}
	}

	return &Engine{
		repo:   repo,
		opts:   opts,
		log:    log,
		ledger: NewLedger(repo, opts.Tables.Ledger, opts.RunID),
	}
}

// loadStaged reads staging on first use and caches it for the remaining
// steps. The first caller's ctx bounds the read; a failed read is not
// cached.
func (e *Engine) loadStaged(ctx context.Context) (stagedSet, error) {
	e.stagedMu.Lock()
	defer e.stagedMu.Unlock()
	if e.staged != nil {
		return *e.staged, nil
	}
	recs, invalid, err := staging.ReadAll(ctx, e.repo, e.opts.Tables.Staging)
	if err != nil {
		return stagedSet{}, err
	}
	e.log.Printf("stage=staging ok rows=%d invalid=%d", len(recs), invalid)
	metrics.RecordRecords("staging_read", len(recs))
	e.staged = &stagedSet{records: recs, invalid: invalid}
	return *e.staged, nil
}

// RunID identifies this run in the ledger.
func (e *Engine) RunID() string { return e.ledger.RunID() }

// Provision creates every warehouse relation that does not exist yet.
func (e *Engine) Provision(ctx context.Context) error {
	start := time.Now()
	specs := TableSpecs(e.opts.Tables)
	for _, s := range specs {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	if err := e.repo.EnsureTables(ctx, specs); err != nil {
		metrics.RecordStep("provision", "failed", time.Since(start))
		return fmt.Errorf("provision: %w", err)
	}
	metrics.RecordStep("provision", "ok", time.Since(start))
	e.log.Printf("stage=provision ok tables=%d", len(specs))
	return nil
}

// stepWork prepares a step outside any transaction and returns the write
// to perform inside it.
type stepWork func(ctx context.Context) (write func(w storage.Writer) (int64, error), err error)

// Run executes every step in order. Dimension steps may run concurrently
// (DimensionWorkers > 1); the fact step starts only after all of them
// succeeded.
func (e *Engine) Run(ctx context.Context) (RunReport, error) {
	rep := RunReport{RunID: e.RunID()}
	e.log.Printf("stage=run start run_id=%s workers=%d lenient=%t", rep.RunID, e.opts.DimensionWorkers, e.opts.Lenient)

	steps, err := e.runDimensions(ctx)
	rep.Steps = steps
	if err != nil {
		return rep, err
	}

	var facts LoadReport
	res, err := e.runStep(ctx, StepFact, e.opts.Tables.Fact, e.factWork(&facts))
	rep.Steps = append(rep.Steps, res)
	if err != nil {
		facts.Inserted = 0
		rep.Facts = facts
		return rep, err
	}
	rep.Facts = facts
	if !res.Skipped {
		metrics.RecordRecords("fact_seen", facts.Seen)
		metrics.RecordRecords("fact_inserted", facts.Inserted)
	}

	e.log.Printf("stage=run ok run_id=%s", rep.RunID)
	return rep, nil
}

func (e *Engine) runDimensions(ctx context.Context) ([]StepResult, error) {
	t := e.opts.Tables
	dims := []struct {
		step, table string
		work        stepWork
	}{
		{StepMarket, t.Market, dimensionWork(e, marketTable(t.Market), func(recs []staging.Record) ([]MarketRow, error) {
			return BuildMarkets(recs), nil
		})},
		{StepOffer, t.Offer, dimensionWork(e, offerTable(t.Offer), func(recs []staging.Record) ([]OfferRow, error) {
			return BuildOffers(recs), nil
		})},
		{StepProperty, t.Property, dimensionWork(e, propertyTable(t.Property), func(recs []staging.Record) ([]PropertyRow, error) {
			return BuildProperties(recs), nil
		})},
		{StepDate, t.Date, dimensionWork(e, dateTable(t.Date), BuildDates)},
		{StepLocation, t.Location, dimensionWork(e, locationTable(t.Location), func(recs []staging.Record) ([]LocationRow, error) {
			return BuildLocations(recs, e.opts.Lookup), nil
		})},
	}

	results := make([]StepResult, len(dims))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.DimensionWorkers)
	for i, d := range dims {
		g.Go(func() error {
			res, err := e.runStep(gctx, d.step, d.table, d.work)
			results[i] = res
			return err
		})
	}
	return results, g.Wait()
}

func (e *Engine) runStep(ctx context.Context, step, table string, work stepWork) (StepResult, error) {
	start := time.Now()
	res := StepResult{Step: step}

	fail := func(err error) (StepResult, error) {
		res.Duration = time.Since(start)
		metrics.RecordStep(step, "failed", res.Duration)
		e.log.Warnf("stage=%s failed duration=%s err=%v", step, res.Duration, err)
		return res, fmt.Errorf("%s: %w", step, err)
	}

	skip, err := e.ledger.Guard(ctx, step, table)
	if err != nil {
		return fail(err)
	}
	if skip {
		res.Skipped = true
		res.Duration = time.Since(start)
		metrics.RecordStep(step, "skipped", res.Duration)
		e.log.Printf("stage=%s skipped reason=completed", step)
		return res, nil
	}

	if err := e.ledger.Started(ctx, step); err != nil {
		return fail(err)
	}

	err = func() error {
		write, err := work(ctx)
		if err != nil {
			return err
		}
		return e.repo.InTx(ctx, func(w storage.Writer) error {
			n, err := write(w)
			if err != nil {
				return err
			}
			res.Rows = n
			return e.ledger.Completed(ctx, w, step, n)
		})
	}()
	if err != nil {
		res.Rows = 0
		if lerr := e.ledger.Failed(ctx, step); lerr != nil {
			e.log.Warnf("stage=%s ledger=failed not recorded: %v", step, lerr)
		}
		return fail(err)
	}

	res.Duration = time.Since(start)
	metrics.RecordStep(step, "ok", res.Duration)
	e.log.Printf("stage=%s ok rows=%d duration=%s", step, res.Rows, res.Duration)
	return res, nil
}

// dimensionWork computes the dimension from staging and appends the rows
// the relation does not hold yet.
func dimensionWork[R any, K comparable](e *Engine, d dimTable[R, K], build func([]staging.Record) ([]R, error)) stepWork {
	return func(ctx context.Context) (func(storage.Writer) (int64, error), error) {
		st, err := e.loadStaged(ctx)
		if err != nil {
			return nil, err
		}
		desired, err := build(st.records)
		if err != nil {
			return nil, err
		}
		existing, err := d.read(ctx, e.repo)
		if err != nil {
			return nil, err
		}
		add := d.missing(existing, desired)
		return func(w storage.Writer) (int64, error) {
			return d.write(ctx, w, add, e.opts.BatchSize)
		}, nil
	}
}

// ReadDimensions loads the five dimension relations.
func (e *Engine) ReadDimensions(ctx context.Context) (Dimensions, error) {
	t := e.opts.Tables
	var d Dimensions
	var err error
	if d.Markets, err = marketTable(t.Market).read(ctx, e.repo); err != nil {
		return d, err
	}
	if d.Offers, err = offerTable(t.Offer).read(ctx, e.repo); err != nil {
		return d, err
	}
	if d.Dates, err = dateTable(t.Date).read(ctx, e.repo); err != nil {
		return d, err
	}
	if d.Locations, err = locationTable(t.Location).read(ctx, e.repo); err != nil {
		return d, err
	}
	if d.Properties, err = propertyTable(t.Property).read(ctx, e.repo); err != nil {
		return d, err
	}
	return d, nil
}

func (e *Engine) factWork(rep *LoadReport) stepWork {
	return func(ctx context.Context) (func(storage.Writer) (int64, error), error) {
		st, err := e.loadStaged(ctx)
		if err != nil {
			return nil, err
		}
		dims, err := e.ReadDimensions(ctx)
		if err != nil {
			return nil, err
		}
		ix, err := NewIndex(dims)
		if err != nil {
			return nil, err
		}

		facts, r, err := ResolveFacts(st.records, ix, e.opts.Lenient)
		r.Seen += st.invalid
		if st.invalid > 0 {
			r.Skipped["invalid_staging"] += st.invalid
		}
		*rep = r
		if err != nil {
			return nil, err
		}
		e.reportSkips(r)

		return func(w storage.Writer) (int64, error) {
			n, err := writeBatches(ctx, w, e.opts.Tables.Fact, factColumns, len(facts), e.opts.BatchSize, func(i int) []any {
				return facts[i].values()
			})
			if err != nil {
				return 0, err
			}
			rep.Inserted = int(n)
			return n, nil
		}, nil
	}
}

func (e *Engine) reportSkips(r LoadReport) {
	if len(r.Skipped) == 0 {
		return
	}
	reasons := make([]string, 0, len(r.Skipped))
	for k := range r.Skipped {
		reasons = append(reasons, k)
	}
	sort.Strings(reasons)

	parts := make([]string, len(reasons))
	for i, k := range reasons {
		parts[i] = fmt.Sprintf("%s=%d", k, r.Skipped[k])
		metrics.RecordFactSkipped(k, r.Skipped[k])
	}
	e.log.Warnf("stage=%s skipped_rows=%d %s", StepFact, r.SkippedTotal(), strings.Join(parts, " "))
}

// StepStatus is the ledger view of one step.
type StepStatus struct {
	Step   string
	Status string
	Entry  LedgerEntry // zero when Status is StatusPending
}

// Status returns the latest ledger state of every step, in run order.
func (e *Engine) Status(ctx context.Context) ([]StepStatus, error) {
	latest, err := e.ledger.Latest(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]StepStatus, len(Steps))
	for i, s := range Steps {
		out[i] = StepStatus{Step: s, Status: StatusPending}
		if entry, ok := latest[s]; ok {
			out[i].Entry = entry
			out[i].Status = entry.Status
		}
	}
	return out, nil
}
