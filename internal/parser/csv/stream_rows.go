// Package csv streams delimited listing exports into pooled rows.
package csv

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"olxwarehouse/internal/config"
	"olxwarehouse/internal/transformer"
	"olxwarehouse/internal/transformer/builtin"
)

// StreamCSVRows reads src and emits one *transformer.Row per record, with
// values placed at the index of their target column. Missing and empty fields
// become nil.
//
// Options:
//   - has_header (default true): map columns by header name; otherwise by position
//   - comma (default ','), lazy_quotes, fields_per_record, trim_space (default true)
//   - header_map: source header -> target column
//
// Record-level read errors are reported through onErr and the record is
// skipped. On cancellation in-flight rows are dropped, not re-pooled.
func StreamCSVRows(
	ctx context.Context,
	src io.ReadCloser,
	columns []string,
	opt config.Options,
	out chan<- *transformer.Row,
	onErr func(line int, err error),
) error {
	defer src.Close()

	hasHeader := opt.Bool("has_header", true)
	trim := opt.Bool("trim_space", true)
	hm := opt.StringMap("header_map")

	cr := csv.NewReader(src)
	cr.Comma = opt.Rune("comma", ',')
	cr.ReuseRecord = true
	cr.LazyQuotes = opt.Bool("lazy_quotes", false)
	cr.FieldsPerRecord = -1
	if n := opt.Int("fields_per_record", 0); n != 0 {
		cr.FieldsPerRecord = n
	}

	var line int
	readRec := func() ([]string, error) {
		line++
		return cr.Read()
	}

	colIx := make([]int, len(columns))
	if hasHeader {
		hdr, err := readRec()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			if onErr != nil {
				onErr(line, fmt.Errorf("read header: %w", err))
			}
			return err
		}
		colIx = mapHeader(hdr, columns, hm)
	} else {
		for i := range colIx {
			colIx[i] = i
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rec, err := readRec()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if onErr != nil {
				onErr(line, fmt.Errorf("csv read: %w", err))
			}
			continue
		}

		row := transformer.GetRow(len(columns))
		row.Line = line
		for t, si := range colIx {
			if si < 0 || si >= len(rec) {
				continue
			}
			v := rec[si]
			if trim && builtin.HasEdgeSpace(v) {
				v = strings.TrimSpace(v)
			}
			if v != "" {
				row.V[t] = v
			}
		}

		select {
		case out <- row:
		case <-ctx.Done():
			row.Drop()
			return ctx.Err()
		}
	}
}

// NormalizeHeader maps one source header to its target column name: the
// header is BOM-stripped, trimmed, mapped through hm, or else lowercased with
// spaces replaced by underscores.
func NormalizeHeader(h string, hm map[string]string) string {
	h = strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF"))
	if mapped, ok := hm[h]; ok {
		return mapped
	}
	return strings.ReplaceAll(strings.ToLower(h), " ", "_")
}

// mapHeader returns, per target column, the source field index or -1.
func mapHeader(hdr []string, columns []string, hm map[string]string) []int {
	srcToIdx := make(map[string]int, len(hdr))
	for i, h := range hdr {
		h = NormalizeHeader(h, hm)
		if _, dup := srcToIdx[h]; !dup {
			srcToIdx[h] = i
		}
	}

	ix := make([]int, len(columns))
	for t, target := range columns {
		ix[t] = -1
		if si, ok := srcToIdx[target]; ok {
			ix[t] = si
		}
	}
	return ix
}
