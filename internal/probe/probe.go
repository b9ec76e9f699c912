// Package probe samples a listings export and reports how its header and
// values line up with the staging layout, before anything is loaded.
//
// Probing is best-effort: malformed records are skipped, and a report is
// produced for any readable header.
package probe

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	csvparser "olxwarehouse/internal/parser/csv"
	"olxwarehouse/internal/staging"
	"olxwarehouse/internal/transformer"
	"olxwarehouse/internal/transformer/builtin"
)

// DefaultMaxRows bounds the sample when Options.MaxRows is zero.
const DefaultMaxRows = 1000

// Options control sampling.
type Options struct {
	// MaxRows is the number of data records to sample.
	MaxRows int
	// Delimiter (single rune). Zero means ','.
	Delimiter rune
	// HeaderMap renames source headers, as the csv parser option header_map.
	HeaderMap map[string]string
}

// ColumnStats describes one staging column over the sample.
type ColumnStats struct {
	Column   string
	Kind     string
	Header   string // source header, "" when the column is missing
	Required bool

	Clean int
	Empty int
	Bad   int // values the stage converters would turn into NULL

	Inferred string // coarse type of the non-empty values: integer, float or text
}

// Result is a probe report.
type Result struct {
	Rows    int
	Skipped int // records with a field count different from the header

	Columns []ColumnStats // staging order
	Missing []string      // staging columns with no source header
	Extra   []string      // source headers that map to no staging column
}

// MissingRequired lists required staging columns absent from the export.
func (r Result) MissingRequired() []string {
	var out []string
	for _, c := range r.Columns {
		if c.Required && c.Header == "" {
			out = append(out, c.Column)
		}
	}
	return out
}

// Probe reads up to opt.MaxRows records from r.
func Probe(r io.Reader, opt Options) (Result, error) {
	if opt.MaxRows <= 0 {
		opt.MaxRows = DefaultMaxRows
	}
	if opt.Delimiter == 0 {
		opt.Delimiter = ','
	}

	headers, rows, skipped, err := readCSVSample(r, opt.Delimiter, opt.MaxRows)
	if err != nil {
		return Result{}, err
	}
	if len(headers) == 0 {
		return Result{}, fmt.Errorf("probe: empty export")
	}

	byColumn := make(map[string]int, len(headers))
	for i, h := range headers {
		name := csvparser.NormalizeHeader(h, opt.HeaderMap)
		if _, dup := byColumn[name]; !dup {
			byColumn[name] = i
		}
	}

	res := Result{Rows: len(rows), Skipped: skipped}
	kinds := staging.CoerceSpec().Types
	required := make(map[string]bool)
	for _, c := range staging.Required() {
		required[c] = true
	}

	known := make(map[int]bool)
	for _, col := range staging.Columns() {
		st := ColumnStats{Column: col, Kind: kinds[col], Required: required[col]}
		si, ok := byColumn[col]
		if !ok {
			res.Missing = append(res.Missing, col)
			res.Columns = append(res.Columns, st)
			continue
		}
		known[si] = true
		st.Header = strings.TrimSpace(strings.TrimPrefix(headers[si], "\uFEFF"))

		var values []string
		for _, rec := range rows {
			v := strings.TrimSpace(rec[si])
			if v == "" {
				st.Empty++
				continue
			}
			values = append(values, v)
			if converts(st.Kind, v) {
				st.Clean++
			} else {
				st.Bad++
			}
		}
		st.Inferred = inferType(values)
		res.Columns = append(res.Columns, st)
	}

	for i, h := range headers {
		if !known[i] {
			res.Extra = append(res.Extra, strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF")))
		}
	}
	sort.Strings(res.Extra)
	return res, nil
}

// converts reports whether v survives the stage converter for kind.
func converts(kind, v string) bool {
	var err error
	switch kind {
	case transformer.KindFloat:
		_, err = builtin.ParseDecimal(v)
	case transformer.KindTinyInt:
		_, err = builtin.ParseTinyInt(v)
	case transformer.KindInt, transformer.KindBigInt:
		_, err = builtin.ParseIntViaFloat(v)
	}
	return err == nil
}

// readCSVSample parses the header and up to maxRows well-formed records.
// Records with the wrong field count are skipped and counted.
func readCSVSample(r io.Reader, delimiter rune, maxRows int) ([]string, [][]string, int, error) {
	cr := csv.NewReader(r)
	cr.Comma = delimiter
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	headers, err := cr.Read()
	if err == io.EOF {
		return nil, nil, 0, nil
	}
	if err != nil {
		return nil, nil, 0, fmt.Errorf("probe: read header: %w", err)
	}

	var (
		rows    [][]string
		skipped int
	)
	for len(rows) < maxRows {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return headers, rows, skipped, fmt.Errorf("probe: read record: %w", err)
		}
		if len(rec) != len(headers) {
			skipped++
			continue
		}
		rows = append(rows, rec)
	}
	return headers, rows, skipped, nil
}

// inferType infers a coarse type from non-empty values. Decimal commas count
// as floats, matching the stage converter.
func inferType(values []string) string {
	if len(values) == 0 {
		return ""
	}
	allInt, allFloat := true, true
	for _, v := range values {
		f, err := builtin.ParseDecimal(v)
		if err != nil {
			allInt, allFloat = false, false
			break
		}
		if allInt && (f != float64(int64(f)) || strings.ContainsAny(v, ".,eE")) {
			allInt = false
		}
	}
	switch {
	case allInt:
		return "integer"
	case allFloat:
		return "float"
	default:
		return "text"
	}
}

// Summary renders the report as an aligned table.
func (r Result) Summary() string {
	var b bytes.Buffer
	fmt.Fprintf(&b, "sample_rows=%d skipped=%d\n", r.Rows, r.Skipped)

	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "column\theader\tkind\tinferred\tclean\tempty\tbad")
	for _, c := range r.Columns {
		header := c.Header
		if header == "" {
			header = "-"
			if c.Required {
				header = "MISSING"
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\n", c.Column, header, c.Kind, c.Inferred, c.Clean, c.Empty, c.Bad)
	}
	_ = tw.Flush()

	if len(r.Extra) > 0 {
		fmt.Fprintf(&b, "unmapped headers: %s\n", strings.Join(r.Extra, ", "))
	}
	return b.String()
}
