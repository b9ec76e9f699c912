package warehouse

import (
	"olxwarehouse/internal/config"
	"olxwarehouse/internal/staging"
	"olxwarehouse/internal/storage"
)

// Step names recorded in the run ledger. They are fixed even when the
// physical relation names are configured differently.
const (
	StepMarket   = "dim_market"
	StepOffer    = "dim_offer"
	StepProperty = "dim_property"
	StepDate     = "dim_date"
	StepLocation = "dim_location"
	StepFact     = "fact_offer_snapshot"
)

// Steps lists every ledger step in execution order.
var Steps = []string{StepMarket, StepOffer, StepProperty, StepDate, StepLocation, StepFact}

const (
	labelLen = 50
	shortLen = 20
)

func text(name string, length int) storage.ColumnSpec {
	return storage.ColumnSpec{Name: name, Type: storage.TypeText, Length: length}
}

func nullable(c storage.ColumnSpec) storage.ColumnSpec {
	c.Nullable = true
	return c
}

func unique(cols ...string) []storage.ConstraintSpec {
	return []storage.ConstraintSpec{{Kind: "unique", Columns: cols}}
}

// TableSpecs returns every relation of the warehouse in creation order
// (referenced tables first).
func TableSpecs(t config.TableNames) []storage.TableSpec {
	t = t.WithDefaults()
	ref := func(table, col string) storage.ColumnSpec {
		return storage.ColumnSpec{Name: col, Type: storage.TypeInt, References: storage.Ref(table, col)}
	}

	return []storage.TableSpec{
		staging.TableSpec(t.Staging),
		{
			Name:        t.Market,
			PrimaryKey:  &storage.PrimaryKeySpec{Name: colMarketKey, Type: "serial"},
			Columns:     []storage.ColumnSpec{text(colMarketLabel, labelLen)},
			Constraints: unique(colMarketLabel),
		},
		{
			Name:        t.Offer,
			PrimaryKey:  &storage.PrimaryKeySpec{Name: colOfferKey, Type: "serial"},
			Columns:     []storage.ColumnSpec{text(colOfferType, labelLen)},
			Constraints: unique(colOfferType),
		},
		{
			Name:       t.Date,
			PrimaryKey: &storage.PrimaryKeySpec{Name: colDateKey, Type: "serial"},
			Columns: []storage.ColumnSpec{
				{Name: colYear, Type: storage.TypeSmallInt},
				{Name: colYearMonth, Type: storage.TypeInt},
				{Name: colMonth, Type: storage.TypeSmallInt},
				text(colMonthLabel, labelLen),
				text(colDateLabel, labelLen+shortLen),
				{Name: colQuarter, Type: storage.TypeSmallInt},
				text(colQuarterLabel, shortLen),
			},
			Constraints: unique(colYear, colMonthLabel),
		},
		{
			Name:       t.Location,
			PrimaryKey: &storage.PrimaryKeySpec{Name: colLocationKey, Type: "serial"},
			Columns: []storage.ColumnSpec{
				text(colCountry, labelLen),
				text(colCity, labelLen),
				text(colRegion, labelLen),
				{Name: colLongitude, Type: storage.TypeFloat},
				{Name: colLatitude, Type: storage.TypeFloat},
				{Name: colPopulation, Type: storage.TypeInt},
				{Name: colStatusCode, Type: storage.TypeSmallInt},
				text(colStatusLabel, labelLen),
			},
			Constraints: unique(colCity),
		},
		{
			// No UNIQUE: the natural key has nullable parts, which most
			// backends treat as distinct. Uniqueness is enforced in memory.
			Name:       t.Property,
			PrimaryKey: &storage.PrimaryKeySpec{Name: colPropertyKey, Type: "serial"},
			Columns: []storage.ColumnSpec{
				nullable(text(colPropertyType, labelLen)),
				nullable(storage.ColumnSpec{Name: colFloor, Type: storage.TypeSmallInt}),
				nullable(text(colAreaCategory, shortLen)),
				nullable(storage.ColumnSpec{Name: colAreaCode, Type: storage.TypeSmallInt}),
				text(colRoomsCategory, shortLen),
			},
		},
		{
			Name:       t.Fact,
			PrimaryKey: &storage.PrimaryKeySpec{Name: colFactKey, Type: "bigserial"},
			Columns: []storage.ColumnSpec{
				ref(t.Offer, colOfferKey),
				ref(t.Market, colMarketKey),
				ref(t.Date, colDateKey),
				ref(t.Location, colLocationKey),
				ref(t.Property, colPropertyKey),
				nullable(storage.ColumnSpec{Name: colArea, Type: storage.TypeFloat}),
				{Name: colPrice, Type: storage.TypeFloat},
			},
		},
		{
			Name:       t.Ledger,
			PrimaryKey: &storage.PrimaryKeySpec{Name: colLedgerKey, Type: "bigserial"},
			Columns: []storage.ColumnSpec{
				text(colRunID, 36),
				text(colStep, labelLen),
				text(colStatus, shortLen),
				{Name: colRowsWritten, Type: storage.TypeBigInt},
				{Name: colRecordedAt, Type: storage.TypeTimestamp},
			},
		},
	}
}

// Column names.
const (
	colMarketKey   = "market_key"
	colMarketLabel = "market_label"

	colOfferKey  = "offer_key"
	colOfferType = "offer_type"

	colDateKey      = "date_key"
	colYear         = "year"
	colYearMonth    = "year_month"
	colMonth        = "month"
	colMonthLabel   = "month_label"
	colDateLabel    = "label"
	colQuarter      = "quarter"
	colQuarterLabel = "quarter_label"

	colLocationKey = "location_key"
	colCountry     = "country"
	colCity        = "city"
	colRegion      = "region"
	colLongitude   = "longitude"
	colLatitude    = "latitude"
	colPopulation  = "population"
	colStatusCode  = "status_code"
	colStatusLabel = "status_label"

	colPropertyKey   = "property_key"
	colPropertyType  = "property_type"
	colFloor         = "floor"
	colAreaCategory  = "area_category"
	colAreaCode      = "area_code"
	colRoomsCategory = "rooms_category"

	colFactKey = "offer_snapshot_key"
	colArea    = "area"
	colPrice   = "price"

	colLedgerKey   = "ledger_key"
	colRunID       = "run_id"
	colStep        = "step"
	colStatus      = "status"
	colRowsWritten = "rows_written"
	colRecordedAt  = "recorded_at"
)
