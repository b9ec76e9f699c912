package postgres

import (
	"strings"
	"testing"

	"olxwarehouse/internal/storage"
)

func TestBuildInsertSQL_PlaceholdersAndArgs(t *testing.T) {
	t.Parallel()

	sql, args, err := buildInsertSQL("public.dim_market", []string{"market_label"}, [][]any{{"primary"}, {"aftermarket"}})
	if err != nil {
		t.Fatalf("buildInsertSQL: %v", err)
	}
	want := `INSERT INTO "public"."dim_market" ("market_label") VALUES ($1), ($2)`
	if sql != want {
		t.Fatalf("sql=%q\nwant %q", sql, want)
	}
	if len(args) != 2 || args[0] != "primary" || args[1] != "aftermarket" {
		t.Fatalf("args=%#v", args)
	}
}

func TestBuildInsertSQL_RejectsRaggedRows(t *testing.T) {
	t.Parallel()

	if _, _, err := buildInsertSQL("t", []string{"a", "b"}, [][]any{{1}}); err == nil {
		t.Fatalf("expected error for short row")
	}
	if _, _, err := buildInsertSQL("t", nil, [][]any{{1}}); err == nil {
		t.Fatalf("expected error for no columns")
	}
}

func TestBuildCreateSQL_StarSchemaTable(t *testing.T) {
	t.Parallel()

	spec := storage.TableSpec{
		Name:       "warehouse.fact_offer_snapshot",
		PrimaryKey: &storage.PrimaryKeySpec{Name: "offer_snapshot_key", Type: "bigserial"},
		Columns: []storage.ColumnSpec{
			{Name: "market_key", Type: storage.TypeInt, References: storage.Ref("warehouse.dim_market", "market_key")},
			{Name: "area", Type: storage.TypeFloat, Nullable: true},
			{Name: "label", Type: storage.TypeText, Length: 100},
		},
		Constraints: []storage.ConstraintSpec{{Kind: "unique", Columns: []string{"label"}}},
	}

	schemaSQL, baseSQL, err := buildCreateSQL(spec)
	if err != nil {
		t.Fatalf("buildCreateSQL: %v", err)
	}
	if schemaSQL != `CREATE SCHEMA IF NOT EXISTS "warehouse";` {
		t.Fatalf("schemaSQL=%q", schemaSQL)
	}
	for _, frag := range []string{
		`CREATE TABLE IF NOT EXISTS "warehouse"."fact_offer_snapshot"`,
		`"offer_snapshot_key" BIGSERIAL PRIMARY KEY`,
		`"market_key" INTEGER NOT NULL REFERENCES "warehouse"."dim_market" ("market_key")`,
		`"area" DOUBLE PRECISION,`,
		`"label" VARCHAR(100) NOT NULL`,
		`UNIQUE ("label")`,
	} {
		if !strings.Contains(baseSQL, frag) {
			t.Fatalf("baseSQL missing %q:\n%s", frag, baseSQL)
		}
	}
}

func TestBuildCreateSQL_UnqualifiedHasNoSchema(t *testing.T) {
	t.Parallel()

	schemaSQL, _, err := buildCreateSQL(storage.TableSpec{
		Name:    "dim_offer",
		Columns: []storage.ColumnSpec{{Name: "offer_type", Type: storage.TypeText}},
	})
	if err != nil {
		t.Fatalf("buildCreateSQL: %v", err)
	}
	if schemaSQL != "" {
		t.Fatalf("expected no schema statement, got %q", schemaSQL)
	}
}

func TestBuildSelectSQL(t *testing.T) {
	t.Parallel()

	got := buildSelectSQL(storage.Query{Table: "olx_house_price", Columns: []string{"price", "city_name"}, OrderBy: []string{"staging_row_id"}})
	want := `SELECT "price", "city_name" FROM "olx_house_price" ORDER BY "staging_row_id"`
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
	if c := buildCountSQL("dim_date"); c != `SELECT COUNT(*) FROM "dim_date"` {
		t.Fatalf("count sql=%q", c)
	}
}
