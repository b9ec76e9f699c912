package csv

import (
	"context"
	"io"
	"strings"
	"testing"

	"olxwarehouse/internal/config"
	"olxwarehouse/internal/transformer"
)

func collect(t *testing.T, input string, columns []string, opts config.Options) ([]*transformer.Row, []int) {
	t.Helper()

	out := make(chan *transformer.Row, 64)
	var errLines []int
	err := StreamCSVRows(context.Background(), io.NopCloser(strings.NewReader(input)), columns, opts, out, func(line int, _ error) {
		errLines = append(errLines, line)
	})
	if err != nil {
		t.Fatalf("StreamCSVRows() err=%v", err)
	}
	close(out)

	var rows []*transformer.Row
	for r := range out {
		rows = append(rows, r)
	}
	return rows, errLines
}

func TestStreamCSVRows_MapsHeaderToColumns(t *testing.T) {
	input := "\uFEFFPrice,City Name, market ,unused\n" +
		"100000,Warszawa,primary,x\n" +
		"\"1 250,5\", Kraków ,,y\n"

	rows, errLines := collect(t, input, []string{"city_name", "price", "market", "floor"}, config.Options{})
	if len(errLines) != 0 {
		t.Fatalf("errLines=%v", errLines)
	}
	if len(rows) != 2 {
		t.Fatalf("rows=%d, want 2", len(rows))
	}

	want := [][]any{
		{"Warszawa", "100000", "primary", nil},
		{"Kraków", "1 250,5", nil, nil},
	}
	for i, r := range rows {
		if r.Line != i+2 {
			t.Fatalf("rows[%d].Line=%d, want %d", i, r.Line, i+2)
		}
		for j, w := range want[i] {
			if r.V[j] != w {
				t.Fatalf("rows[%d].V[%d]=%#v, want %#v", i, j, r.V[j], w)
			}
		}
	}
}

func TestStreamCSVRows_HeaderMapAndDelimiter(t *testing.T) {
	input := "cena;miasto\n350000;Gdańsk\n"
	opts := config.Options{
		"comma":      ";",
		"header_map": map[string]any{"cena": "price", "miasto": "city_name"},
	}

	rows, _ := collect(t, input, []string{"price", "city_name"}, opts)
	if len(rows) != 1 || rows[0].V[0] != "350000" || rows[0].V[1] != "Gdańsk" {
		t.Fatalf("rows=%v", rows)
	}
}

func TestStreamCSVRows_NoHeaderIsPositional(t *testing.T) {
	rows, _ := collect(t, "a,b\nc\n", []string{"x", "y"}, config.Options{"has_header": false})
	if len(rows) != 2 {
		t.Fatalf("rows=%d, want 2", len(rows))
	}
	if rows[0].V[0] != "a" || rows[0].V[1] != "b" || rows[1].V[0] != "c" || rows[1].V[1] != nil {
		t.Fatalf("unexpected values: %v / %v", rows[0].V, rows[1].V)
	}
}

func TestStreamCSVRows_BadRecordReportedAndSkipped(t *testing.T) {
	input := "price,city_name\n1,\"Warsz\"awa\n2,Kraków\n"

	rows, errLines := collect(t, input, []string{"price", "city_name"}, config.Options{})
	if len(errLines) != 1 || errLines[0] != 2 {
		t.Fatalf("errLines=%v, want [2]", errLines)
	}
	if len(rows) != 1 || rows[0].V[1] != "Kraków" {
		t.Fatalf("rows=%v", rows)
	}
}

func TestStreamCSVRows_EmptyInput(t *testing.T) {
	rows, errLines := collect(t, "", []string{"price"}, config.Options{})
	if len(rows) != 0 || len(errLines) != 0 {
		t.Fatalf("rows=%d errLines=%v", len(rows), errLines)
	}
}
