package warehouse

import (
	"errors"
	"fmt"

	"olxwarehouse/internal/normalize"
	"olxwarehouse/internal/staging"
)

// ErrAmbiguousMatch means a staging row matched more than one row of a
// dimension, i.e. the dimension's natural key is no longer unique.
var ErrAmbiguousMatch = errors.New("ambiguous dimension match")

// Match axes, in resolution order.
const (
	AxisDate     = "date"
	AxisLocation = "location"
	AxisMarket   = "market"
	AxisOffer    = "offer"
	AxisProperty = "property"
)

// FactRow is one fact_offer_snapshot row.
type FactRow struct {
	OfferKey    int64
	MarketKey   int64
	DateKey     int64
	LocationKey int64
	PropertyKey int64
	Area        *float64 // cleaned
	Price       float64
}

func (f FactRow) values() []any {
	return []any{f.OfferKey, f.MarketKey, f.DateKey, f.LocationKey, f.PropertyKey, ptrValue(f.Area), f.Price}
}

var factColumns = []string{colOfferKey, colMarketKey, colDateKey, colLocationKey, colPropertyKey, colArea, colPrice}

// LoadReport summarizes fact resolution. Skipped is keyed by
// "unmatched_<axis>", "ambiguous_<axis>" or "invalid_staging".
type LoadReport struct {
	Seen     int
	Inserted int
	Skipped  map[string]int
}

// SkippedTotal sums every skip reason.
func (r LoadReport) SkippedTotal() int {
	n := 0
	for _, v := range r.Skipped {
		n += v
	}
	return n
}

// Dimensions is the content of the five dimension relations.
type Dimensions struct {
	Markets    []MarketRow
	Offers     []OfferRow
	Dates      []DateRow
	Locations  []LocationRow
	Properties []PropertyRow
}

// Index resolves staging rows to dimension keys. Every natural key maps to
// all surrogate keys carrying it, so duplicates surface as ambiguity instead
// of being silently overwritten.
type Index struct {
	markets    map[string][]int64
	offers     map[string][]int64
	dates      map[dateKey][]int64
	locations  map[string][]int64
	properties map[PropertyMatchKey][]int64
}

// NewIndex builds the lookup maps. It fails only on a property row whose
// rooms category cannot be read back.
func NewIndex(d Dimensions) (*Index, error) {
	ix := &Index{
		markets:    make(map[string][]int64, len(d.Markets)),
		offers:     make(map[string][]int64, len(d.Offers)),
		dates:      make(map[dateKey][]int64, len(d.Dates)),
		locations:  make(map[string][]int64, len(d.Locations)),
		properties: make(map[PropertyMatchKey][]int64, len(d.Properties)),
	}
	for _, m := range d.Markets {
		ix.markets[m.Label] = append(ix.markets[m.Label], m.Key)
	}
	for _, o := range d.Offers {
		ix.offers[o.OfferType] = append(ix.offers[o.OfferType], o.Key)
	}
	for _, dt := range d.Dates {
		k := dateKey{dt.Year, dt.MonthLabel}
		ix.dates[k] = append(ix.dates[k], dt.Key)
	}
	for _, l := range d.Locations {
		ix.locations[l.City] = append(ix.locations[l.City], l.Key)
	}
	for _, p := range d.Properties {
		k, err := PropertyMatchKeyFromRow(p)
		if err != nil {
			return nil, err
		}
		ix.properties[k] = append(ix.properties[k], p.Key)
	}
	return ix, nil
}

// resolution is the outcome of one axis lookup.
type resolution int

const (
	resolved resolution = iota
	unmatched
	ambiguous
)

func pick(keys []int64) (int64, resolution) {
	switch len(keys) {
	case 0:
		return 0, unmatched
	case 1:
		return keys[0], resolved
	default:
		return 0, ambiguous
	}
}

// resolve maps one staging row to its fact row. When an axis does not
// resolve to exactly one key, the failing axis and outcome are returned and
// the fact row is zero.
func (ix *Index) resolve(r staging.Record) (FactRow, string, resolution) {
	f := FactRow{Area: normalize.NormalizeArea(r.Area), Price: r.Price}

	axes := []struct {
		name string
		dst  *int64
		keys []int64
	}{
		{AxisDate, &f.DateKey, ix.dates[dateKey{r.Year, r.Month}]},
		{AxisLocation, &f.LocationKey, ix.locations[r.CityName]},
		{AxisMarket, &f.MarketKey, ix.markets[r.Market]},
		{AxisOffer, &f.OfferKey, ix.offers[r.OfferType]},
		{AxisProperty, &f.PropertyKey, ix.properties[PropertyMatchKeyFromRecord(r)]},
	}
	for _, a := range axes {
		k, res := pick(a.keys)
		if res != resolved {
			return FactRow{}, a.name, res
		}
		*a.dst = k
	}
	return f, "", resolved
}

// ResolveFacts resolves every record in order. Unmatched rows are skipped
// and counted. An ambiguous row fails the whole resolution with
// ErrAmbiguousMatch unless lenient, in which case it is skipped and counted.
func ResolveFacts(recs []staging.Record, ix *Index, lenient bool) ([]FactRow, LoadReport, error) {
	rep := LoadReport{Seen: len(recs), Skipped: map[string]int{}}
	facts := make([]FactRow, 0, len(recs))

	for _, r := range recs {
		f, axis, res := ix.resolve(r)
		switch res {
		case resolved:
			facts = append(facts, f)
		case unmatched:
			rep.Skipped["unmatched_"+axis]++
		case ambiguous:
			if !lenient {
				return nil, rep, fmt.Errorf("staging row %d, %s axis: %w", r.Line, axis, ErrAmbiguousMatch)
			}
			rep.Skipped["ambiguous_"+axis]++
		}
	}
	return facts, rep, nil
}
