// Package config defines the pipeline configuration file and its loading and
// validation rules.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

type Pipeline struct {
	Job     string        `json:"job"`
	Source  Source        `json:"source"`
	Parser  Parser        `json:"parser"`
	Storage Storage       `json:"storage"`
	Lookup  Lookup        `json:"lookup"`
	Runtime RuntimeConfig `json:"runtime"`
	Metrics Metrics       `json:"metrics"`
}

// Source is the raw listings export consumed by the stage command.
type Source struct {
	Kind string      `json:"kind"` // "file"
	File *FileSource `json:"file,omitempty"`
}

type FileSource struct {
	Path string `json:"path"`
}

type Parser struct {
	Kind    string  `json:"kind"` // "csv" | "json"
	Options Options `json:"options"`
}

type Storage struct {
	// Backend kind: "postgres" | "mssql" | "sqlite"
	Kind   string     `json:"kind"`
	DSN    string     `json:"dsn"`
	Tables TableNames `json:"tables"`
}

// TableNames maps each warehouse relation to its physical (optionally
// schema-qualified) name. Empty fields take the defaults below.
type TableNames struct {
	Staging  string `json:"staging"`
	Market   string `json:"market"`
	Offer    string `json:"offer"`
	Date     string `json:"date"`
	Location string `json:"location"`
	Property string `json:"property"`
	Fact     string `json:"fact"`
	Ledger   string `json:"ledger"`
}

// DefaultTableNames returns the relation names used when none are configured.
func DefaultTableNames() TableNames {
	return TableNames{
		Staging:  "olx_house_price",
		Market:   "dim_market",
		Offer:    "dim_offer",
		Date:     "dim_date",
		Location: "dim_location",
		Property: "dim_property",
		Fact:     "fact_offer_snapshot",
		Ledger:   "etl_run_ledger",
	}
}

// WithDefaults fills empty names from DefaultTableNames.
func (t TableNames) WithDefaults() TableNames {
	d := DefaultTableNames()
	fill := func(dst *string, def string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = def
		}
	}
	fill(&t.Staging, d.Staging)
	fill(&t.Market, d.Market)
	fill(&t.Offer, d.Offer)
	fill(&t.Date, d.Date)
	fill(&t.Location, d.Location)
	fill(&t.Property, d.Property)
	fill(&t.Fact, d.Fact)
	fill(&t.Ledger, d.Ledger)
	return t
}

// Lookup selects the city status reference provider.
type Lookup struct {
	Kind     string `json:"kind"` // "embedded" | "yaml" | "html"
	Path     string `json:"path,omitempty"`
	Selector string `json:"selector,omitempty"`
}

// RuntimeConfig controls pipeline execution behavior.
type RuntimeConfig struct {
	// BatchSize is the number of rows per INSERT call.
	BatchSize int `json:"batch_size"`

	// ChannelBuffer sizes the parser -> coerce -> loader channels of the
	// stage command.
	ChannelBuffer int `json:"channel_buffer"`

	// DimensionWorkers > 1 builds the five dimensions concurrently.
	DimensionWorkers int `json:"dimension_workers"`

	// Lenient turns ambiguous fact matches into skipped rows instead of a
	// failed run.
	Lenient bool `json:"lenient"`
}

type Metrics struct {
	Backend string   `json:"backend"` // "none" | "datadog"
	Tags    []string `json:"tags,omitempty"`
	// FlushEvery is a Go duration string, e.g. "60s".
	FlushEvery string `json:"flush_every,omitempty"`
}

const (
	defaultBatchSize     = 1000
	defaultChannelBuffer = 256
)

// ApplyDefaults fills every optional field that was left empty.
func (p *Pipeline) ApplyDefaults() {
	if p.Job == "" {
		p.Job = "olx_warehouse"
	}
	if p.Parser.Kind == "" {
		p.Parser.Kind = "csv"
	}
	if p.Parser.Options == nil {
		p.Parser.Options = Options{}
	}
	p.Storage.Tables = p.Storage.Tables.WithDefaults()
	if p.Lookup.Kind == "" {
		p.Lookup.Kind = "embedded"
	}
	if p.Runtime.BatchSize <= 0 {
		p.Runtime.BatchSize = defaultBatchSize
	}
	if p.Runtime.ChannelBuffer <= 0 {
		p.Runtime.ChannelBuffer = defaultChannelBuffer
	}
	if p.Runtime.DimensionWorkers <= 0 {
		p.Runtime.DimensionWorkers = 1
	}
	if p.Metrics.Backend == "" {
		p.Metrics.Backend = "none"
	}
}

// Load reads a pipeline file.
//
// Steps:
//   - a .env file next to the working directory is loaded if present
//     (existing environment variables win)
//   - ${VAR} references in the file are expanded from the environment
//   - unknown JSON fields are rejected
//   - defaults are applied
func Load(path string) (*Pipeline, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(raw)
}

// Parse decodes a pipeline document after environment expansion.
func Parse(raw []byte) (*Pipeline, error) {
	expanded := os.ExpandEnv(string(raw))

	dec := json.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.DisallowUnknownFields()

	var p Pipeline
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	p.ApplyDefaults()
	return &p, nil
}
