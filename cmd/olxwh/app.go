package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"olxwarehouse/internal/citystatus"
	"olxwarehouse/internal/config"
	"olxwarehouse/internal/logging"
	"olxwarehouse/internal/metrics"
	"olxwarehouse/internal/metrics/datadog"
	"olxwarehouse/internal/staging"
	"olxwarehouse/internal/storage"
	"olxwarehouse/internal/warehouse"

	// register all backends with the storage factory.
	_ "olxwarehouse/internal/storage/all"
)

// app holds what every data command needs: the validated config, a logger,
// an open repository and the metrics shutdown hook.
type app struct {
	cfg  *config.Pipeline
	log  *logging.Logger
	repo storage.Repository

	closeMetrics func()
}

// loadConfig reads and validates the pipeline file. Issues are written to
// stderr; any error-level issue fails the load.
func loadConfig(path string, stderr io.Writer) (*config.Pipeline, error) {
	p, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	issues := config.ValidatePipeline(*p)
	for _, iss := range issues {
		fmt.Fprintln(stderr, iss.String())
	}
	if config.HasErrors(issues) {
		return nil, fmt.Errorf("configuration is invalid: %s", path)
	}
	return p, nil
}

func openApp(ctx context.Context, g *globalFlags, stderr io.Writer) (*app, error) {
	p, err := loadConfig(g.configPath, stderr)
	if err != nil {
		return nil, err
	}

	log, err := logging.New(g.logMode, g.verbose)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	log = log.With("job", p.Job)

	closeMetrics, err := initMetrics(ctx, p, g.metricsBackend, log)
	if err != nil {
		log.Sync()
		return nil, err
	}

	repo, err := storage.New(ctx, storage.Config{Kind: p.Storage.Kind, DSN: p.Storage.DSN})
	if err != nil {
		closeMetrics()
		log.Sync()
		return nil, fmt.Errorf("open storage %s: %w", p.Storage.Kind, err)
	}
	log.Debugf("pipeline: storage=%s lookup=%s parser=%s", p.Storage.Kind, p.Lookup.Kind, p.Parser.Kind)

	return &app{cfg: p, log: log, repo: repo, closeMetrics: closeMetrics}, nil
}

// Close releases the repository, flushes metrics and syncs the logger.
func (a *app) Close() {
	a.repo.Close()
	a.closeMetrics()
	a.log.Sync()
}

func (a *app) engine(o transformOverrides) (*warehouse.Engine, error) {
	lookup, err := loadLookup(a.cfg.Lookup)
	if err != nil {
		return nil, err
	}
	opts := warehouse.Options{
		Tables:           a.cfg.Storage.Tables,
		Lookup:           lookup,
		BatchSize:        a.cfg.Runtime.BatchSize,
		DimensionWorkers: a.cfg.Runtime.DimensionWorkers,
		Lenient:          a.cfg.Runtime.Lenient || o.lenient,
	}
	if o.workers > 0 {
		opts.DimensionWorkers = o.workers
	}
	return warehouse.NewEngine(a.repo, opts, a.log), nil
}

// stage loads the export at path, or at source.file.path when path is
// empty, in one transaction. The file is closed here, not by Ingest, so it
// is released even when the transaction never starts.
func (a *app) stage(ctx context.Context, path string) (staging.IngestReport, error) {
	if path == "" && a.cfg.Source.File != nil {
		path = a.cfg.Source.File.Path
	}
	if strings.TrimSpace(path) == "" {
		return staging.IngestReport{}, errors.New("stage: no export configured (source.file.path or --file)")
	}

	f, err := os.Open(path)
	if err != nil {
		return staging.IngestReport{}, fmt.Errorf("stage: %w", err)
	}
	defer f.Close()

	opts := staging.IngestOptions{
		Table:         a.cfg.Storage.Tables.Staging,
		ParserKind:    a.cfg.Parser.Kind,
		Parser:        a.cfg.Parser.Options,
		BatchSize:     a.cfg.Runtime.BatchSize,
		ChannelBuffer: a.cfg.Runtime.ChannelBuffer,
	}
	var rep staging.IngestReport
	err = a.repo.InTx(ctx, func(w storage.Writer) error {
		var err error
		rep, err = staging.Ingest(ctx, w, io.NopCloser(f), opts, a.log)
		return err
	})
	if err != nil {
		return rep, fmt.Errorf("stage %s: %w", path, err)
	}
	return rep, nil
}

// loadLookup builds the city status reference selected by lookup.kind.
func loadLookup(l config.Lookup) (citystatus.Lookup, error) {
	switch l.Kind {
	case "", "embedded":
		return citystatus.Default()
	case "yaml":
		return citystatus.LoadYAMLFile(l.Path)
	case "html":
		return citystatus.LoadHTMLFile(l.Path, l.Selector)
	default:
		return nil, fmt.Errorf("lookup: unsupported kind %q", l.Kind)
	}
}

// initMetrics installs the configured backend and returns its shutdown hook.
// A backend that fails to initialize is logged and replaced by the nop one.
//
// Backend selection: --metrics-backend, then METRICS_BACKEND, then
// metrics.backend.
func initMetrics(ctx context.Context, p *config.Pipeline, override string, log *logging.Logger) (func(), error) {
	name := override
	if name == "" {
		name = os.Getenv("METRICS_BACKEND")
	}
	if name == "" {
		name = p.Metrics.Backend
	}

	switch name {
	case "", "none":
		log.Debugf("metrics: disabled")
		return func() {}, nil

	case "datadog":
		every := 60 * time.Second
		if p.Metrics.FlushEvery != "" {
			d, err := time.ParseDuration(p.Metrics.FlushEvery)
			if err != nil {
				return nil, fmt.Errorf("metrics.flush_every: %w", err)
			}
			every = d
		}
		tags := append(append([]string(nil), p.Metrics.Tags...), datadog.ParseTagsCSV(os.Getenv("METRICS_TAGS"))...)

		b, err := datadog.NewBackend(ctx, datadog.Options{JobName: p.Job, Tags: tags, FlushEvery: every})
		if err != nil {
			log.Warnf("metrics: failed to init datadog backend: %v; using nop", err)
			return func() {}, nil
		}
		log.Printf("metrics: backend=datadog job_name=%s tags=%v flush_every=%s", p.Job, tags, every)
		metrics.SetBackend(b)
		return func() {
			// Close stops the flush loop and submits what is still buffered.
			if err := b.Close(); err != nil {
				log.Warnf("metrics: datadog close/flush error: %v", err)
			}
			metrics.SetBackend(nil)
		}, nil

	default:
		return nil, fmt.Errorf("metrics: unknown backend %q", name)
	}
}
