package config

import (
	"fmt"
	"strings"
	"time"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one validation finding. Path is a dotted JSON path.
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

var knownStorage = map[string]bool{"postgres": true, "mssql": true, "sqlite": true}

// ValidatePipeline checks p (after ApplyDefaults) and returns every issue
// found. stage-only settings (source, parser) are validated only when a
// source is configured.
func ValidatePipeline(p Pipeline) []Issue {
	var out []Issue
	add := func(sev Severity, path, format string, args ...any) {
		out = append(out, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if !knownStorage[p.Storage.Kind] {
		add(SeverityError, "storage.kind", "unsupported backend %q (want postgres, mssql or sqlite)", p.Storage.Kind)
	}
	if strings.TrimSpace(p.Storage.DSN) == "" {
		add(SeverityError, "storage.dsn", "is required")
	}

	names := p.Storage.Tables.WithDefaults()
	seen := map[string]string{}
	for field, name := range map[string]string{
		"staging": names.Staging, "market": names.Market, "offer": names.Offer,
		"date": names.Date, "location": names.Location, "property": names.Property,
		"fact": names.Fact, "ledger": names.Ledger,
	} {
		key := strings.ToLower(name)
		if other, dup := seen[key]; dup {
			add(SeverityError, "storage.tables."+field, "relation %q is also used by storage.tables.%s", name, other)
			continue
		}
		seen[key] = field
	}

	switch p.Lookup.Kind {
	case "", "embedded":
	case "yaml", "html":
		if strings.TrimSpace(p.Lookup.Path) == "" {
			add(SeverityError, "lookup.path", "is required for lookup.kind=%s", p.Lookup.Kind)
		}
	default:
		add(SeverityError, "lookup.kind", "unsupported kind %q (want embedded, yaml or html)", p.Lookup.Kind)
	}
	if p.Lookup.Kind != "html" && p.Lookup.Selector != "" {
		add(SeverityWarning, "lookup.selector", "ignored for lookup.kind=%s", p.Lookup.Kind)
	}

	if p.Source.Kind != "" {
		if p.Source.Kind != "file" {
			add(SeverityError, "source.kind", "unsupported kind %q (want file)", p.Source.Kind)
		} else if p.Source.File == nil || strings.TrimSpace(p.Source.File.Path) == "" {
			add(SeverityError, "source.file.path", "is required for source.kind=file")
		}
		switch p.Parser.Kind {
		case "", "csv", "json":
		default:
			add(SeverityError, "parser.kind", "unsupported kind %q (want csv or json)", p.Parser.Kind)
		}
	}

	if p.Runtime.BatchSize < 0 {
		add(SeverityError, "runtime.batch_size", "must be >= 0")
	}
	if p.Runtime.DimensionWorkers > 5 {
		add(SeverityWarning, "runtime.dimension_workers", "%d exceeds the number of dimensions (5)", p.Runtime.DimensionWorkers)
	}
	if p.Runtime.Lenient {
		add(SeverityWarning, "runtime.lenient", "ambiguous fact matches will be skipped instead of failing the run")
	}

	switch p.Metrics.Backend {
	case "", "none", "datadog":
	default:
		add(SeverityError, "metrics.backend", "unsupported backend %q (want none or datadog)", p.Metrics.Backend)
	}
	if p.Metrics.FlushEvery != "" {
		if d, err := time.ParseDuration(p.Metrics.FlushEvery); err != nil || d <= 0 {
			add(SeverityError, "metrics.flush_every", "invalid duration %q", p.Metrics.FlushEvery)
		}
	}

	return out
}
