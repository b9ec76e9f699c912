package warehouse

import (
	"cmp"
	"fmt"
	"slices"

	"olxwarehouse/internal/citystatus"
	"olxwarehouse/internal/normalize"
	"olxwarehouse/internal/staging"
)

// Country is the constant country of every location.
const Country = "Poland"

// The Build* functions are pure: they compute the distinct dimension rows
// implied by the staging records, in insertion order, with Key unset.

// BuildMarkets returns one row per distinct market label, sorted by label.
func BuildMarkets(recs []staging.Record) []MarketRow {
	labels := distinct(recs, func(r staging.Record) string { return r.Market })
	slices.Sort(labels)

	out := make([]MarketRow, len(labels))
	for i, l := range labels {
		out[i] = MarketRow{Label: l}
	}
	return out
}

// BuildOffers returns one row per distinct offer type, sorted.
func BuildOffers(recs []staging.Record) []OfferRow {
	types := distinct(recs, func(r staging.Record) string { return r.OfferType })
	slices.Sort(types)

	out := make([]OfferRow, len(types))
	for i, t := range types {
		out[i] = OfferRow{OfferType: t}
	}
	return out
}

// BuildDates returns one row per distinct (year, month label), ordered by
// YearMonth so keys grow with time. A month name that cannot be parsed fails
// the whole build with normalize.ErrUnparseableMonth.
func BuildDates(recs []staging.Record) ([]DateRow, error) {
	keys := distinct(recs, func(r staging.Record) dateKey { return dateKey{r.Year, r.Month} })

	out := make([]DateRow, 0, len(keys))
	for _, k := range keys {
		m, err := normalize.ParseMonth(k.MonthLabel)
		if err != nil {
			return nil, fmt.Errorf("date %d/%q: %w", k.Year, k.MonthLabel, err)
		}
		q := normalize.Quarter(m)
		out = append(out, DateRow{
			Year:         k.Year,
			YearMonth:    normalize.YearMonth(k.Year, m),
			Month:        m,
			MonthLabel:   k.MonthLabel,
			Label:        fmt.Sprintf("%s %d", k.MonthLabel, k.Year),
			Quarter:      q,
			QuarterLabel: fmt.Sprintf("Q%d %d", q, k.Year),
		})
	}

	slices.SortFunc(out, func(a, b DateRow) int {
		return cmp.Or(cmp.Compare(a.YearMonth, b.YearMonth), cmp.Compare(a.MonthLabel, b.MonthLabel))
	})
	return out, nil
}

// BuildLocations returns one row per distinct city. Region, coordinates and
// population come from the first record of that city. Status comes from
// lookup, falling back to citystatus.Fallback.
func BuildLocations(recs []staging.Record, lookup citystatus.Lookup) []LocationRow {
	firstByCity := make(map[string]staging.Record)
	var cities []string
	for _, r := range recs {
		if _, ok := firstByCity[r.CityName]; ok {
			continue
		}
		firstByCity[r.CityName] = r
		cities = append(cities, r.CityName)
	}
	slices.Sort(cities)

	out := make([]LocationRow, len(cities))
	for i, city := range cities {
		r := firstByCity[city]
		st := citystatus.Resolve(lookup, city)
		out[i] = LocationRow{
			Country:     Country,
			City:        city,
			Region:      r.Voivodeship,
			Longitude:   r.Longitude,
			Latitude:    r.Latitude,
			Population:  r.Population,
			StatusCode:  st.Code,
			StatusLabel: st.Label,
		}
	}
	return out
}

// PropertyRowFromRecord is the bucketed property description of one staging
// row.
func PropertyRowFromRecord(r staging.Record) PropertyRow {
	p := PropertyRow{
		PropertyType:  r.OfferTypeOfBuilding,
		Floor:         r.Floor,
		RoomsCategory: normalize.RoomsToCategory(r.Rooms),
	}
	if b, ok := normalize.AreaToBucket(normalize.NormalizeArea(r.Area)); ok {
		label, code := b.Label, b.Code
		p.AreaCategory = &label
		p.AreaCode = &code
	}
	return p
}

// BuildProperties returns one row per distinct bucketed property tuple,
// sorted with unknown parts first.
func BuildProperties(recs []staging.Record) []PropertyRow {
	seen := make(map[propertyNaturalKey]struct{})
	var out []PropertyRow
	for _, r := range recs {
		p := PropertyRowFromRecord(r)
		k := p.naturalKey()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, p)
	}

	slices.SortFunc(out, func(a, b PropertyRow) int {
		ka, kb := a.naturalKey(), b.naturalKey()
		return cmp.Or(
			compareOpt(ka.Type, kb.Type),
			compareOpt(ka.Floor, kb.Floor),
			compareOpt(ka.AreaCode, kb.AreaCode),
			cmp.Compare(ka.RoomsCategory, kb.RoomsCategory),
		)
	})
	return out
}

func compareOpt[T cmp.Ordered](a, b Opt[T]) int {
	switch {
	case !a.Valid && !b.Valid:
		return 0
	case !a.Valid:
		return -1
	case !b.Valid:
		return 1
	}
	return cmp.Compare(a.V, b.V)
}

// distinct returns the distinct keys of recs in first-seen order.
func distinct[K comparable](recs []staging.Record, key func(staging.Record) K) []K {
	seen := make(map[K]struct{})
	var out []K
	for _, r := range recs {
		k := key(r)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
