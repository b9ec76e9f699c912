// Package staging describes the flat listings relation the warehouse is built
// from, and loads raw exports into it.
package staging

import (
	"context"
	"fmt"

	"olxwarehouse/internal/storage"
	"olxwarehouse/internal/transformer"
)

// Staging column names.
const (
	ColPrice               = "price"
	ColPricePerMeter       = "price_per_meter"
	ColOfferType           = "offer_type"
	ColFloor               = "floor"
	ColArea                = "area"
	ColRooms               = "rooms"
	ColOfferTypeOfBuilding = "offer_type_of_building"
	ColMarket              = "market"
	ColCityName            = "city_name"
	ColVoivodeship         = "voivodeship"
	ColMonth               = "month"
	ColYear                = "year"
	ColPopulation          = "population"
	ColLongitude           = "longitude"
	ColLatitude            = "latitude"

	// RowIDColumn is the identity column giving staging rows a stable order.
	RowIDColumn = "staging_row_id"
)

// MaxTextLen bounds every text column.
const MaxTextLen = 50

type column struct {
	name     string
	kind     string // transformer kind
	sqlType  string
	nullable bool
}

var layout = []column{
	{ColPrice, transformer.KindFloat, storage.TypeFloat, false},
	{ColPricePerMeter, transformer.KindFloat, storage.TypeFloat, false},
	{ColOfferType, transformer.KindText, storage.TypeText, false},
	{ColFloor, transformer.KindTinyInt, storage.TypeSmallInt, true},
	{ColArea, transformer.KindFloat, storage.TypeFloat, true},
	{ColRooms, transformer.KindTinyInt, storage.TypeSmallInt, false},
	{ColOfferTypeOfBuilding, transformer.KindText, storage.TypeText, true},
	{ColMarket, transformer.KindText, storage.TypeText, false},
	{ColCityName, transformer.KindText, storage.TypeText, false},
	{ColVoivodeship, transformer.KindText, storage.TypeText, false},
	{ColMonth, transformer.KindText, storage.TypeText, false},
	{ColYear, transformer.KindInt, storage.TypeSmallInt, false},
	{ColPopulation, transformer.KindInt, storage.TypeInt, false},
	{ColLongitude, transformer.KindFloat, storage.TypeFloat, false},
	{ColLatitude, transformer.KindFloat, storage.TypeFloat, false},
}

// Columns returns the raw staging columns in insert order.
func Columns() []string {
	out := make([]string, len(layout))
	for i, c := range layout {
		out[i] = c.name
	}
	return out
}

// Required returns the columns that must be present for a row to be staged.
func Required() []string {
	var out []string
	for _, c := range layout {
		if !c.nullable {
			out = append(out, c.name)
		}
	}
	return out
}

// CoerceSpec returns the per-column conversions applied during ingest.
func CoerceSpec() transformer.CoerceSpec {
	types := make(map[string]string, len(layout))
	for _, c := range layout {
		types[c.name] = c.kind
	}
	return transformer.BuildCoerceSpecFromTypes(types, MaxTextLen)
}

// TableSpec describes the staging relation under the given name.
func TableSpec(name string) storage.TableSpec {
	cols := make([]storage.ColumnSpec, len(layout))
	for i, c := range layout {
		cols[i] = storage.ColumnSpec{Name: c.name, Type: c.sqlType, Nullable: c.nullable}
		if c.sqlType == storage.TypeText {
			cols[i].Length = MaxTextLen
		}
	}
	return storage.TableSpec{
		Name:       name,
		PrimaryKey: &storage.PrimaryKeySpec{Name: RowIDColumn, Type: "bigserial"},
		Columns:    cols,
	}
}

// Record is one staged listing snapshot. Pointer fields are nullable.
type Record struct {
	Line                int64 // staging_row_id
	Price               float64
	PricePerMeter       float64
	OfferType           string
	Floor               *int
	Area                *float64
	Rooms               int
	OfferTypeOfBuilding *string
	Market              string
	CityName            string
	Voivodeship         string
	Month               string
	Year                int
	Population          int64
	Longitude           float64
	Latitude            float64
}

// ScanColumns is the column order Decode expects.
func ScanColumns() []string {
	return append([]string{RowIDColumn}, Columns()...)
}

// Decode converts one scanned row (ScanColumns order) into a Record.
func Decode(row []any) (Record, error) {
	if len(row) != len(layout)+1 {
		return Record{}, fmt.Errorf("staging: row has %d values, want %d", len(row), len(layout)+1)
	}
	d := decoder{row: row}

	r := Record{
		Line:                d.intAt(RowIDColumn, 0),
		Price:               d.floatAt(ColPrice, 1),
		PricePerMeter:       d.floatAt(ColPricePerMeter, 2),
		OfferType:           d.strAt(ColOfferType, 3),
		Floor:               d.optIntAt(ColFloor, 4),
		Area:                d.optFloatAt(ColArea, 5),
		Rooms:               int(d.intAt(ColRooms, 6)),
		OfferTypeOfBuilding: d.optStrAt(ColOfferTypeOfBuilding, 7),
		Market:              d.strAt(ColMarket, 8),
		CityName:            d.strAt(ColCityName, 9),
		Voivodeship:         d.strAt(ColVoivodeship, 10),
		Month:               d.strAt(ColMonth, 11),
		Year:                int(d.intAt(ColYear, 12)),
		Population:          d.intAt(ColPopulation, 13),
		Longitude:           d.floatAt(ColLongitude, 14),
		Latitude:            d.floatAt(ColLatitude, 15),
	}
	if d.err != nil {
		return Record{}, d.err
	}
	return r, nil
}

// decoder keeps the first conversion error so Decode reads as a flat list.
type decoder struct {
	row []any
	err error
}

func (d *decoder) fail(col string, v any) {
	if d.err == nil {
		d.err = fmt.Errorf("staging: column %s: unusable value %#v", col, v)
	}
}

func (d *decoder) intAt(col string, i int) int64 {
	n, ok := storage.AsInt64(d.row[i])
	if !ok {
		d.fail(col, d.row[i])
	}
	return n
}

func (d *decoder) floatAt(col string, i int) float64 {
	f, ok := storage.AsFloat64(d.row[i])
	if !ok {
		d.fail(col, d.row[i])
	}
	return f
}

func (d *decoder) strAt(col string, i int) string {
	s, ok := storage.AsString(d.row[i])
	if !ok {
		d.fail(col, d.row[i])
	}
	return s
}

func (d *decoder) optIntAt(col string, i int) *int {
	if d.row[i] == nil {
		return nil
	}
	n := int(d.intAt(col, i))
	return &n
}

func (d *decoder) optFloatAt(col string, i int) *float64 {
	if d.row[i] == nil {
		return nil
	}
	f := d.floatAt(col, i)
	return &f
}

func (d *decoder) optStrAt(col string, i int) *string {
	if d.row[i] == nil {
		return nil
	}
	s := d.strAt(col, i)
	return &s
}

// ReadAll scans the staging relation in row-id order. Rows that cannot be
// decoded are counted in invalid and left out.
func ReadAll(ctx context.Context, repo storage.Repository, table string) (recs []Record, invalid int, err error) {
	q := storage.Query{Table: table, Columns: ScanColumns(), OrderBy: []string{RowIDColumn}}
	err = repo.ScanRows(ctx, q, func(row []any) error {
		r, derr := Decode(row)
		if derr != nil {
			invalid++
			return nil
		}
		recs = append(recs, r)
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("read staging %s: %w", table, err)
	}
	return recs, invalid, nil
}
