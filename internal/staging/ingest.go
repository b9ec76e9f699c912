package staging

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"olxwarehouse/internal/config"
	"olxwarehouse/internal/metrics"
	csvparser "olxwarehouse/internal/parser/csv"
	jsonparser "olxwarehouse/internal/parser/json"
	"olxwarehouse/internal/storage"
	"olxwarehouse/internal/transformer"
)

// Logger is the logging surface used by the ingest.
type Logger interface {
	Printf(format string, args ...any)
	Warnf(format string, args ...any)
}

// MaxRejectSamples is how many rejected rows are kept in the report and logged.
const MaxRejectSamples = 20

// IngestOptions configures one export load.
type IngestOptions struct {
	Table         string
	ParserKind    string // "csv" | "json"
	Parser        config.Options
	BatchSize     int
	ChannelBuffer int
}

// Reject is one record that was not staged.
type Reject struct {
	Line   int
	Reason string
}

// IngestReport summarizes an export load.
type IngestReport struct {
	Staged   int
	Rejected int
	Samples  []Reject // first MaxRejectSamples rejects, in arrival order
}

type rejectLog struct {
	mu      sync.Mutex
	count   int
	samples []Reject
}

func (l *rejectLog) add(line int, reason string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.count++
	if len(l.samples) < MaxRejectSamples {
		l.samples = append(l.samples, Reject{Line: line, Reason: reason})
	}
}

// Ingest streams src through parse -> coerce -> validate and appends the
// surviving rows to opts.Table. Rows missing a required value are rejected
// and counted; values that fail conversion in optional columns are stored
// as NULL. Wrap the call in Repository.InTx for an all-or-nothing load.
func Ingest(ctx context.Context, w storage.Writer, src io.ReadCloser, opts IngestOptions, log Logger) (IngestReport, error) {
	if opts.Table == "" {
		return IngestReport{}, fmt.Errorf("staging ingest: missing table name")
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1000
	}
	if opts.ChannelBuffer <= 0 {
		opts.ChannelBuffer = 256
	}

	columns := Columns()
	spec := CoerceSpec()
	if err := transformer.ValidateSpecSanity(columns, spec); err != nil {
		return IngestReport{}, err
	}

	parse, err := parserFor(opts.ParserKind)
	if err != nil {
		return IngestReport{}, err
	}

	rejects := &rejectLog{}
	var coerceNotes int
	var notesMu sync.Mutex

	rawCh := make(chan *transformer.Row, opts.ChannelBuffer)
	coercedCh := make(chan *transformer.Row, opts.ChannelBuffer)
	validCh := make(chan *transformer.Row, opts.ChannelBuffer)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(rawCh)
		return parse(gctx, src, columns, opts.Parser, rawCh, func(line int, err error) {
			rejects.add(line, err.Error())
		})
	})
	g.Go(func() error {
		defer close(coercedCh)
		transformer.TransformLoopRows(gctx, columns, rawCh, coercedCh, spec, func(int, string) {
			notesMu.Lock()
			coerceNotes++
			notesMu.Unlock()
		})
		return nil
	})
	g.Go(func() error {
		defer close(validCh)
		transformer.ValidateLoopRows(gctx, columns, Required(), coercedCh, validCh, rejects.add)
		return nil
	})

	var staged int
	g.Go(func() error {
		n, err := loadRows(gctx, w, opts.Table, columns, opts.BatchSize, validCh)
		staged = n
		return err
	})

	if err := g.Wait(); err != nil {
		return IngestReport{Staged: staged}, fmt.Errorf("staging ingest: %w", err)
	}

	rep := IngestReport{Staged: staged, Rejected: rejects.count, Samples: rejects.samples}
	metrics.RecordRecords("staged", rep.Staged)
	metrics.RecordRecords("rejected", rep.Rejected)

	if log != nil {
		for _, s := range rep.Samples {
			log.Warnf("stage=ingest rejected line=%d reason=%s", s.Line, s.Reason)
		}
		log.Printf("stage=ingest ok table=%s staged=%d rejected=%d coerced_to_null=%d",
			opts.Table, rep.Staged, rep.Rejected, coerceNotes)
	}
	return rep, nil
}

type parseFunc func(ctx context.Context, src io.ReadCloser, columns []string, opt config.Options, out chan<- *transformer.Row, onErr func(int, error)) error

func parserFor(kind string) (parseFunc, error) {
	switch kind {
	case "", "csv":
		return csvparser.StreamCSVRows, nil
	case "json":
		return func(ctx context.Context, src io.ReadCloser, columns []string, opt config.Options, out chan<- *transformer.Row, onErr func(int, error)) error {
			defer src.Close()
			return jsonparser.StreamJSONRows(ctx, src, columns, opt, out, onErr)
		}, nil
	default:
		return nil, fmt.Errorf("staging ingest: unsupported parser kind %q", kind)
	}
}

// loadRows batches validated rows into INSERTs of at most batchSize rows.
// After it returns an error the errgroup context is canceled and upstream
// stages drop their rows.
func loadRows(ctx context.Context, w storage.Writer, table string, columns []string, batchSize int, in <-chan *transformer.Row) (int, error) {
	batch := make([][]any, 0, batchSize)
	total := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		start := time.Now()
		n, err := w.InsertRows(ctx, table, columns, batch)
		if err != nil {
			return fmt.Errorf("insert %s: %w", table, err)
		}
		metrics.RecordBatch(table, n, time.Since(start))
		total += int(n)
		batch = batch[:0]
		return nil
	}

	for r := range in {
		batch = append(batch, r.Release())
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return total, err
	}
	return total, flush()
}
