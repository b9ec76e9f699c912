package warehouse

import (
	"errors"
	"testing"

	"olxwarehouse/internal/citystatus"
	"olxwarehouse/internal/normalize"
	"olxwarehouse/internal/staging"
)

func f64(v float64) *float64 { return &v }
func intp(v int) *int         { return &v }
func strp(v string) *string   { return &v }

// listing returns a valid staging record; tests override what they need.
func listing(line int64) staging.Record {
	return staging.Record{
		Line:                line,
		Price:               500000,
		PricePerMeter:       11000,
		OfferType:           "private",
		Floor:               intp(2),
		Area:                f64(4523),
		Rooms:               3,
		OfferTypeOfBuilding: strp("flat"),
		Market:              "primary",
		CityName:            "Warszawa",
		Voivodeship:         "Mazowieckie",
		Month:               "March",
		Year:                2022,
		Population:          1860000,
		Longitude:           21.0,
		Latitude:            52.2,
	}
}

func TestBuildMarketsAndOffers_DistinctSorted(t *testing.T) {
	a, b, c := listing(1), listing(2), listing(3)
	b.Market, b.OfferType = "aftermarket", "agency"
	c.Market = "primary"

	m := BuildMarkets([]staging.Record{a, b, c})
	if len(m) != 2 || m[0].Label != "aftermarket" || m[1].Label != "primary" {
		t.Fatalf("markets=%+v", m)
	}
	o := BuildOffers([]staging.Record{a, b, c})
	if len(o) != 2 || o[0].OfferType != "agency" || o[1].OfferType != "private" {
		t.Fatalf("offers=%+v", o)
	}
}

func TestBuildDates(t *testing.T) {
	a, b, c := listing(1), listing(2), listing(3)
	b.Month, b.Year = "January", 2023
	c.Month, c.Year = "December", 2021

	got, err := BuildDates([]staging.Record{a, b, c, a})
	if err != nil {
		t.Fatalf("BuildDates: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("dates=%d, want 3", len(got))
	}
	want := DateRow{Year: 2022, YearMonth: 202203, Month: 3, MonthLabel: "March", Label: "March 2022", Quarter: 1, QuarterLabel: "Q1 2022"}
	if got[1] != want {
		t.Fatalf("dates[1]=%+v, want %+v", got[1], want)
	}
	if got[0].YearMonth != 202112 || got[2].YearMonth != 202301 || got[0].Quarter != 4 {
		t.Fatalf("order/quarters wrong: %+v", got)
	}
}

func TestBuildDates_UnparseableMonthIsFatal(t *testing.T) {
	bad := listing(1)
	bad.Month = "Smarch"
	_, err := BuildDates([]staging.Record{listing(2), bad})
	if !errors.Is(err, normalize.ErrUnparseableMonth) {
		t.Fatalf("err=%v, want ErrUnparseableMonth", err)
	}
}

func TestBuildLocations(t *testing.T) {
	lookup, err := citystatus.Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}

	w1, w2, k, s := listing(1), listing(2), listing(3), listing(4)
	w2.Population = 1
	k.CityName, k.Voivodeship = "Kraków", "Małopolskie"
	s.CityName, s.Voivodeship = "Sopot", "Pomorskie"

	got := BuildLocations([]staging.Record{w1, w2, k, s}, lookup)
	if len(got) != 3 {
		t.Fatalf("locations=%d, want 3", len(got))
	}
	byCity := map[string]LocationRow{}
	for _, l := range got {
		byCity[l.City] = l
	}

	w := byCity["Warszawa"]
	if w.StatusCode != 1 || w.StatusLabel != "National Capital" || w.Country != Country || w.Population != 1860000 {
		t.Fatalf("Warszawa=%+v", w)
	}
	if byCity["Kraków"].StatusCode != 2 || byCity["Kraków"].Region != "Małopolskie" {
		t.Fatalf("Kraków=%+v", byCity["Kraków"])
	}
	if byCity["Sopot"].StatusCode != 3 || byCity["Sopot"].StatusLabel != "Small town" {
		t.Fatalf("Sopot=%+v", byCity["Sopot"])
	}

	if none := BuildLocations([]staging.Record{w1}, nil); none[0].StatusCode != 3 {
		t.Fatalf("nil lookup should fall back, got %+v", none[0])
	}
}

func TestPropertyRowFromRecord_OutlierAreas(t *testing.T) {
	tests := []struct {
		raw       float64
		wantLabel string
		wantCode  int
	}{
		{4523, "40-49", 4},
		{3000, "30-39", 3},
		{16000, "100+", 10},
		{55, "50-59", 5},
	}
	for _, tc := range tests {
		r := listing(1)
		r.Area = f64(tc.raw)
		p := PropertyRowFromRecord(r)
		if p.AreaCategory == nil || *p.AreaCategory != tc.wantLabel || *p.AreaCode != tc.wantCode {
			t.Fatalf("area %v: got %v/%v", tc.raw, p.AreaCategory, p.AreaCode)
		}
	}

	r := listing(1)
	r.Area, r.Rooms = nil, 6
	p := PropertyRowFromRecord(r)
	if p.AreaCategory != nil || p.AreaCode != nil || p.RoomsCategory != "4+" {
		t.Fatalf("unknown area: %+v", p)
	}
}

func TestBuildProperties_Distinct(t *testing.T) {
	a, b, c, d := listing(1), listing(2), listing(3), listing(4)
	b.Area = f64(45) // same bucket as 4523 -> 45.23
	c.Floor = nil
	d.Rooms = 7

	got := BuildProperties([]staging.Record{a, b, c, d})
	if len(got) != 3 {
		t.Fatalf("properties=%d, want 3: %+v", len(got), got)
	}
	if got[0].Floor != nil {
		t.Fatalf("unknown floor should sort first, got %+v", got[0])
	}
}
