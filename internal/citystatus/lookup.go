// Package citystatus provides the city -> administrative status reference data
// used by the location dimension.
//
// The reference data is injected through the Lookup interface so the embedded
// table can be swapped for a file export or another geo-reference source
// without touching the dimension code.
package citystatus

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"olxwarehouse/internal/normalize"
)

// Status codes.
const (
	CodeNationalCapital = 1
	CodeRegionalCapital = 2
	CodeOther           = 3
)

// Status is the administrative status assigned to a city.
type Status struct {
	Code  int    `yaml:"code"`
	Label string `yaml:"label"`
}

// Fallback is assigned to every city the lookup does not know.
var Fallback = Status{Code: CodeOther, Label: "Small town"}

// Lookup resolves a city name to its status. Implementations must match
// case- and diacritic-insensitively.
type Lookup interface {
	LookupStatus(city string) (Status, bool)
}

// Resolve returns the status for city, or Fallback when l has no entry.
// A nil Lookup resolves everything to Fallback.
func Resolve(l Lookup, city string) Status {
	if l == nil {
		return Fallback
	}
	if st, ok := l.LookupStatus(city); ok {
		return st
	}
	return Fallback
}

// Entry is one row of a reference table.
type Entry struct {
	City  string `yaml:"city"`
	Code  int    `yaml:"code"`
	Label string `yaml:"label"`
}

// Table is an in-memory Lookup keyed by normalize.FoldName(city).
type Table struct {
	byKey map[string]Status
}

// NewTable validates entries and builds a Table.
//
// Errors:
//   - empty city or label
//   - code outside 1..3
//   - two entries folding to the same name
func NewTable(entries []Entry) (*Table, error) {
	t := &Table{byKey: make(map[string]Status, len(entries))}
	for i, e := range entries {
		key := normalize.FoldName(e.City)
		if key == "" {
			return nil, fmt.Errorf("citystatus: entry %d: empty city", i)
		}
		if e.Code < CodeNationalCapital || e.Code > CodeOther {
			return nil, fmt.Errorf("citystatus: entry %d (%s): code %d out of range 1..3", i, e.City, e.Code)
		}
		if strings.TrimSpace(e.Label) == "" {
			return nil, fmt.Errorf("citystatus: entry %d (%s): empty label", i, e.City)
		}
		if _, dup := t.byKey[key]; dup {
			return nil, fmt.Errorf("citystatus: duplicate city %q", e.City)
		}
		t.byKey[key] = Status{Code: e.Code, Label: strings.TrimSpace(e.Label)}
	}
	return t, nil
}

// LookupStatus implements Lookup.
func (t *Table) LookupStatus(city string) (Status, bool) {
	if t == nil {
		return Status{}, false
	}
	st, ok := t.byKey[normalize.FoldName(city)]
	return st, ok
}

// Len returns the number of cities in the table.
func (t *Table) Len() int { return len(t.byKey) }

//go:embed cities.yaml
var embeddedCities []byte

type yamlDoc struct {
	Cities []Entry `yaml:"cities"`
}

// Default returns the embedded reference table (1 national capital and 17
// regional capitals).
func Default() (*Table, error) {
	return LoadYAML(strings.NewReader(string(embeddedCities)))
}

// LoadYAML reads a table in the embedded file's format.
func LoadYAML(r io.Reader) (*Table, error) {
	var doc yamlDoc
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("citystatus: decode yaml: %w", err)
	}
	return NewTable(doc.Cities)
}

// LoadYAMLFile reads a YAML table from path.
func LoadYAMLFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("citystatus: open %s: %w", path, err)
	}
	defer f.Close()
	return LoadYAML(f)
}
