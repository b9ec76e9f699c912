package warehouse

import (
	"context"
	"fmt"
	"time"

	"olxwarehouse/internal/metrics"
	"olxwarehouse/internal/storage"
)

// MarketRow is one dim_market row.
type MarketRow struct {
	Key   int64
	Label string
}

// OfferRow is one dim_offer row.
type OfferRow struct {
	Key       int64
	OfferType string
}

// DateRow is one dim_date row.
type DateRow struct {
	Key          int64
	Year         int
	YearMonth    int
	Month        int
	MonthLabel   string
	Label        string
	Quarter      int
	QuarterLabel string
}

// LocationRow is one dim_location row.
type LocationRow struct {
	Key         int64
	Country     string
	City        string
	Region      string
	Longitude   float64
	Latitude    float64
	Population  int64
	StatusCode  int
	StatusLabel string
}

// PropertyRow is one dim_property row. Nil fields are unknown.
type PropertyRow struct {
	Key           int64
	PropertyType  *string
	Floor         *int
	AreaCategory  *string
	AreaCode      *int
	RoomsCategory string
}

type dateKey struct {
	Year       int
	MonthLabel string
}

// propertyNaturalKey is the full distinctness tuple of dim_property.
type propertyNaturalKey struct {
	Type          Opt[string]
	Floor         Opt[int]
	AreaCategory  Opt[string]
	AreaCode      Opt[int]
	RoomsCategory string
}

func (p PropertyRow) naturalKey() propertyNaturalKey {
	return propertyNaturalKey{
		Type:          OptFromPtr(p.PropertyType),
		Floor:         OptFromPtr(p.Floor),
		AreaCategory:  OptFromPtr(p.AreaCategory),
		AreaCode:      OptFromPtr(p.AreaCode),
		RoomsCategory: p.RoomsCategory,
	}
}

// dimTable binds a row type to its relation: how to read it back, how to
// write it and what makes two rows the same.
type dimTable[R any, K comparable] struct {
	table   string
	keyCol  string
	columns []string
	natural func(R) K
	values  func(R) []any
	decode  func(key int64, vals []any) (R, error)
}

// read returns every row currently stored, in key order.
func (d dimTable[R, K]) read(ctx context.Context, repo storage.Repository) ([]R, error) {
	q := storage.Query{
		Table:   d.table,
		Columns: append([]string{d.keyCol}, d.columns...),
		OrderBy: []string{d.keyCol},
	}

	var out []R
	err := repo.ScanRows(ctx, q, func(row []any) error {
		key, ok := storage.AsInt64(row[0])
		if !ok {
			return fmt.Errorf("%s: unusable key %#v", d.table, row[0])
		}
		r, err := d.decode(key, row[1:])
		if err != nil {
			return fmt.Errorf("%s key=%d: %w", d.table, key, err)
		}
		out = append(out, r)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", d.table, err)
	}
	return out, nil
}

// missing returns the desired rows whose natural key is not in existing,
// keeping desired order.
func (d dimTable[R, K]) missing(existing, desired []R) []R {
	seen := make(map[K]struct{}, len(existing))
	for _, r := range existing {
		seen[d.natural(r)] = struct{}{}
	}

	var out []R
	for _, r := range desired {
		k := d.natural(r)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}

// write appends rows in batches of batchSize.
func (d dimTable[R, K]) write(ctx context.Context, w storage.Writer, rows []R, batchSize int) (int64, error) {
	return writeBatches(ctx, w, d.table, d.columns, len(rows), batchSize, func(i int) []any {
		return d.values(rows[i])
	})
}

// writeBatches inserts n rows, produced by row(i), in batches of batchSize.
func writeBatches(ctx context.Context, w storage.Writer, table string, columns []string, n, batchSize int, row func(i int) []any) (int64, error) {
	if batchSize <= 0 {
		batchSize = n
	}
	var total int64
	for start := 0; start < n; start += batchSize {
		end := min(start+batchSize, n)
		batch := make([][]any, 0, end-start)
		for i := start; i < end; i++ {
			batch = append(batch, row(i))
		}

		t0 := time.Now()
		written, err := w.InsertRows(ctx, table, columns, batch)
		if err != nil {
			return total, fmt.Errorf("insert %s: %w", table, err)
		}
		metrics.RecordBatch(table, written, time.Since(t0))
		total += written
	}
	return total, nil
}

func marketTable(name string) dimTable[MarketRow, string] {
	return dimTable[MarketRow, string]{
		table:   name,
		keyCol:  colMarketKey,
		columns: []string{colMarketLabel},
		natural: func(r MarketRow) string { return r.Label },
		values:  func(r MarketRow) []any { return []any{r.Label} },
		decode: func(key int64, v []any) (MarketRow, error) {
			s, ok := storage.AsString(v[0])
			if !ok {
				return MarketRow{}, fmt.Errorf("null %s", colMarketLabel)
			}
			return MarketRow{Key: key, Label: s}, nil
		},
	}
}

func offerTable(name string) dimTable[OfferRow, string] {
	return dimTable[OfferRow, string]{
		table:   name,
		keyCol:  colOfferKey,
		columns: []string{colOfferType},
		natural: func(r OfferRow) string { return r.OfferType },
		values:  func(r OfferRow) []any { return []any{r.OfferType} },
		decode: func(key int64, v []any) (OfferRow, error) {
			s, ok := storage.AsString(v[0])
			if !ok {
				return OfferRow{}, fmt.Errorf("null %s", colOfferType)
			}
			return OfferRow{Key: key, OfferType: s}, nil
		},
	}
}

func dateTable(name string) dimTable[DateRow, dateKey] {
	return dimTable[DateRow, dateKey]{
		table:   name,
		keyCol:  colDateKey,
		columns: []string{colYear, colYearMonth, colMonth, colMonthLabel, colDateLabel, colQuarter, colQuarterLabel},
		natural: func(r DateRow) dateKey { return dateKey{r.Year, r.MonthLabel} },
		values: func(r DateRow) []any {
			return []any{r.Year, r.YearMonth, r.Month, r.MonthLabel, r.Label, r.Quarter, r.QuarterLabel}
		},
		decode: func(key int64, v []any) (DateRow, error) {
			var c cells
			r := DateRow{
				Key:          key,
				Year:         int(c.asInt(v[0], colYear)),
				YearMonth:    int(c.asInt(v[1], colYearMonth)),
				Month:        int(c.asInt(v[2], colMonth)),
				MonthLabel:   c.asStr(v[3], colMonthLabel),
				Label:        c.asStr(v[4], colDateLabel),
				Quarter:      int(c.asInt(v[5], colQuarter)),
				QuarterLabel: c.asStr(v[6], colQuarterLabel),
			}
			return r, c.err
		},
	}
}

func locationTable(name string) dimTable[LocationRow, string] {
	return dimTable[LocationRow, string]{
		table:   name,
		keyCol:  colLocationKey,
		columns: []string{colCountry, colCity, colRegion, colLongitude, colLatitude, colPopulation, colStatusCode, colStatusLabel},
		natural: func(r LocationRow) string { return r.City },
		values: func(r LocationRow) []any {
			return []any{r.Country, r.City, r.Region, r.Longitude, r.Latitude, r.Population, r.StatusCode, r.StatusLabel}
		},
		decode: func(key int64, v []any) (LocationRow, error) {
			var c cells
			r := LocationRow{
				Key:         key,
				Country:     c.asStr(v[0], colCountry),
				City:        c.asStr(v[1], colCity),
				Region:      c.asStr(v[2], colRegion),
				Longitude:   c.asFloat(v[3], colLongitude),
				Latitude:    c.asFloat(v[4], colLatitude),
				Population:  c.asInt(v[5], colPopulation),
				StatusCode:  int(c.asInt(v[6], colStatusCode)),
				StatusLabel: c.asStr(v[7], colStatusLabel),
			}
			return r, c.err
		},
	}
}

func propertyTable(name string) dimTable[PropertyRow, propertyNaturalKey] {
	return dimTable[PropertyRow, propertyNaturalKey]{
		table:   name,
		keyCol:  colPropertyKey,
		columns: []string{colPropertyType, colFloor, colAreaCategory, colAreaCode, colRoomsCategory},
		natural: PropertyRow.naturalKey,
		values: func(r PropertyRow) []any {
			return []any{ptrValue(r.PropertyType), ptrValue(r.Floor), ptrValue(r.AreaCategory), ptrValue(r.AreaCode), r.RoomsCategory}
		},
		decode: func(key int64, v []any) (PropertyRow, error) {
			var c cells
			r := PropertyRow{
				Key:           key,
				PropertyType:  c.asOptStr(v[0], colPropertyType),
				Floor:         c.asOptInt(v[1], colFloor),
				AreaCategory:  c.asOptStr(v[2], colAreaCategory),
				AreaCode:      c.asOptInt(v[3], colAreaCode),
				RoomsCategory: c.asStr(v[4], colRoomsCategory),
			}
			return r, c.err
		},
	}
}

// ptrValue turns a nil pointer into an untyped nil so drivers bind NULL.
func ptrValue[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

// cells decodes scanned values, keeping the first failure.
type cells struct{ err error }

func (c *cells) fail(col string, v any) {
	if c.err == nil {
		c.err = fmt.Errorf("column %s: unusable value %#v", col, v)
	}
}

func (c *cells) asInt(v any, col string) int64 {
	n, ok := storage.AsInt64(v)
	if !ok {
		c.fail(col, v)
	}
	return n
}

func (c *cells) asFloat(v any, col string) float64 {
	f, ok := storage.AsFloat64(v)
	if !ok {
		c.fail(col, v)
	}
	return f
}

func (c *cells) asStr(v any, col string) string {
	s, ok := storage.AsString(v)
	if !ok {
		c.fail(col, v)
	}
	return s
}

func (c *cells) asOptStr(v any, col string) *string {
	if v == nil {
		return nil
	}
	s := c.asStr(v, col)
	return &s
}

func (c *cells) asOptInt(v any, col string) *int {
	if v == nil {
		return nil
	}
	n := int(c.asInt(v, col))
	return &n
}
