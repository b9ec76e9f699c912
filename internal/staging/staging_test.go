package staging

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"olxwarehouse/internal/config"
	"olxwarehouse/internal/storage"
	"olxwarehouse/internal/storage/sqlite"
)

const header = "price,price_per_meter,offer_type,floor,area,rooms,offer_type_of_building,market,city_name,voivodeship,month,year,population,longitude,latitude\n"

type captureLog struct {
	infos, warns []string
}

func (l *captureLog) Printf(format string, args ...any) { l.infos = append(l.infos, fmt.Sprintf(format, args...)) }
func (l *captureLog) Warnf(format string, args ...any)  { l.warns = append(l.warns, fmt.Sprintf(format, args...)) }

func openStaging(t *testing.T) storage.Repository {
	t.Helper()
	ctx := context.Background()
	repo, err := sqlite.New(ctx, storage.Config{Kind: "sqlite", DSN: ":memory:"})
	if err != nil {
		t.Fatalf("sqlite.New: %v", err)
	}
	t.Cleanup(repo.Close)
	if err := repo.EnsureTables(ctx, []storage.TableSpec{TableSpec("olx_house_price")}); err != nil {
		t.Fatalf("EnsureTables: %v", err)
	}
	return repo
}

func ingest(t *testing.T, repo storage.Repository, body string, opts IngestOptions) (IngestReport, *captureLog) {
	t.Helper()
	log := &captureLog{}
	var rep IngestReport
	err := repo.InTx(context.Background(), func(w storage.Writer) error {
		var err error
		rep, err = Ingest(context.Background(), w, io.NopCloser(strings.NewReader(body)), opts, log)
		return err
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	return rep, log
}

func TestTableSpec_Valid(t *testing.T) {
	spec := TableSpec("olx_house_price")
	if err := spec.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(spec.Columns) != 15 || spec.PrimaryKey.Name != RowIDColumn {
		t.Fatalf("columns=%d pk=%+v", len(spec.Columns), spec.PrimaryKey)
	}
	if got := len(Required()); got != 12 {
		t.Fatalf("Required()=%d columns, want 12", got)
	}
}

func TestIngest_CSVConvertersAndRejects(t *testing.T) {
	repo := openStaging(t)

	body := header +
		`"350000,5",7000,Private,2,"50,5",3,Apartment,primary,Warszawa,Mazowieckie,January,2022,1764615.0,21.0,52.2` + "\n" +
		`420000,8400,Private,300,3000,5,,aftermarket,Kraków,Małopolskie,February,2022,779115,19.9,50.0` + "\n" +
		`abc,8400,Private,1,40,2,,primary,Gdańsk,Pomorskie,March,2022,470907,18.6,54.3` + "\n" +
		`300000,6000,Private,1,40,2,,primary,,Pomorskie,March,2022,470907,18.6,54.3` + "\n"

	rep, log := ingest(t, repo, body, IngestOptions{Table: "olx_house_price", BatchSize: 1})
	if rep.Staged != 2 || rep.Rejected != 2 {
		t.Fatalf("report=%+v", rep)
	}
	if len(rep.Samples) != 2 || rep.Samples[0].Line != 4 || rep.Samples[1].Line != 5 {
		t.Fatalf("samples=%+v", rep.Samples)
	}
	if !strings.Contains(rep.Samples[1].Reason, `"city_name"`) {
		t.Fatalf("sample reason=%q", rep.Samples[1].Reason)
	}
	if len(log.warns) != 2 || len(log.infos) != 1 {
		t.Fatalf("warns=%v infos=%v", log.warns, log.infos)
	}

	recs, invalid, err := ReadAll(context.Background(), repo, "olx_house_price")
	if err != nil || invalid != 0 {
		t.Fatalf("ReadAll: invalid=%d err=%v", invalid, err)
	}
	if len(recs) != 2 {
		t.Fatalf("records=%d, want 2", len(recs))
	}

	w := recs[0]
	if w.Price != 350000.5 || w.Area == nil || *w.Area != 50.5 || w.Floor == nil || *w.Floor != 2 {
		t.Fatalf("first record=%+v", w)
	}
	if w.Population != 1764615 || w.OfferTypeOfBuilding == nil || *w.OfferTypeOfBuilding != "Apartment" {
		t.Fatalf("first record=%+v", w)
	}

	k := recs[1]
	if k.Floor != nil {
		t.Fatalf("floor 300 should be stored as NULL, got %v", *k.Floor)
	}
	if k.OfferTypeOfBuilding != nil {
		t.Fatalf("empty offer_type_of_building should be NULL")
	}
	if k.Area == nil || *k.Area != 3000 {
		t.Fatalf("raw area must be staged unchanged, got %v", k.Area)
	}
	if k.Line <= w.Line {
		t.Fatalf("row ids not increasing: %d then %d", w.Line, k.Line)
	}
}

func TestIngest_JSON(t *testing.T) {
	repo := openStaging(t)

	body := `{"offers": [
		{"price": 500000, "price_per_meter": 10000, "offer_type": "Private", "area": 50, "rooms": 2,
		 "market": "primary", "city_name": "Poznań", "voivodeship": "Wielkopolskie",
		 "month": "March", "year": 2022, "population": 534813, "longitude": 16.9, "latitude": 52.4}
	]}`

	rep, _ := ingest(t, repo, body, IngestOptions{Table: "olx_house_price", ParserKind: "json", Parser: config.Options{}})
	if rep.Staged != 1 || rep.Rejected != 0 {
		t.Fatalf("report=%+v", rep)
	}
	n, err := repo.CountRows(context.Background(), "olx_house_price")
	if err != nil || n != 1 {
		t.Fatalf("CountRows=(%d,%v)", n, err)
	}
}

func TestIngest_TruncatesTextAndKeepsSampleLimit(t *testing.T) {
	repo := openStaging(t)

	var b strings.Builder
	b.WriteString(header)
	long := strings.Repeat("x", 80)
	fmt.Fprintf(&b, "1,1,%s,,,1,,m,c,v,January,2022,1,1,1\n", long)
	for i := 0; i < MaxRejectSamples+5; i++ {
		b.WriteString(",,,,,,,,,,,,,,\n")
	}

	rep, _ := ingest(t, repo, b.String(), IngestOptions{Table: "olx_house_price"})
	if rep.Staged != 1 || rep.Rejected != MaxRejectSamples+5 || len(rep.Samples) != MaxRejectSamples {
		t.Fatalf("staged=%d rejected=%d samples=%d", rep.Staged, rep.Rejected, len(rep.Samples))
	}

	recs, _, err := ReadAll(context.Background(), repo, "olx_house_price")
	if err != nil || len(recs) != 1 {
		t.Fatalf("ReadAll=(%d,%v)", len(recs), err)
	}
	if got := len(recs[0].OfferType); got != MaxTextLen {
		t.Fatalf("offer_type len=%d, want %d", got, MaxTextLen)
	}
}

type closeCounter struct {
	io.Reader
	closes int
}

func (c *closeCounter) Close() error {
	c.closes++
	return nil
}

func TestIngest_ClosesSourceOnce(t *testing.T) {
	bodies := map[string]string{
		"csv":  header + "500000,11000,Private,2,4523,3,Flat,primary,Warszawa,Mazowieckie,March,2022,1860000,21.0,52.2\n",
		"json": `[{"price": 1, "price_per_meter": 1, "offer_type": "Private", "rooms": 1, "market": "m", "city_name": "c", "voivodeship": "v", "month": "March", "year": 2022, "population": 1, "longitude": 1, "latitude": 1}]`,
	}
	for kind, body := range bodies {
		repo := openStaging(t)
		src := &closeCounter{Reader: strings.NewReader(body)}
		err := repo.InTx(context.Background(), func(w storage.Writer) error {
			_, err := Ingest(context.Background(), w, src, IngestOptions{Table: "olx_house_price", ParserKind: kind}, nil)
			return err
		})
		if err != nil {
			t.Fatalf("%s: Ingest: %v", kind, err)
		}
		if src.closes != 1 {
			t.Fatalf("%s: source closed %d times, want 1", kind, src.closes)
		}
	}
}

func TestIngest_UnknownParser(t *testing.T) {
	_, err := Ingest(context.Background(), nil, io.NopCloser(strings.NewReader("")), IngestOptions{Table: "t", ParserKind: "xml"}, nil)
	if err == nil || !strings.Contains(err.Error(), "unsupported parser kind") {
		t.Fatalf("err=%v", err)
	}
}

func TestDecode(t *testing.T) {
	row := []any{int64(7), 100.0, 10.0, "Private", nil, 42.5, int64(4), nil, "primary", "Warszawa", "Mazowieckie", "March", int64(2022), int64(1764615), 21.0, 52.2}
	r, err := Decode(row)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if r.Line != 7 || r.Floor != nil || r.Area == nil || *r.Area != 42.5 || r.Rooms != 4 || r.Year != 2022 {
		t.Fatalf("record=%+v", r)
	}

	row[6] = nil
	if _, err := Decode(row); err == nil || !strings.Contains(err.Error(), ColRooms) {
		t.Fatalf("nil rooms: err=%v", err)
	}
	if _, err := Decode(row[:3]); err == nil {
		t.Fatalf("short row: expected error")
	}
}
