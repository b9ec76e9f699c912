package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"olxwarehouse/internal/config"
)

const exportCSV = "price,price_per_meter,offer_type,floor,area,rooms,offer_type_of_building,market,city_name,voivodeship,month,year,population,longitude,latitude\n" +
	"500000,11000,Private,2,4523,3,Flat,primary,Warszawa,Mazowieckie,March,2022,1860000,21.0,52.2\n" +
	"300000,6000,Private,1,40,2,,primary,,Pomorskie,March,2022,470907,18.6,54.3\n"

// writePipeline writes an export and a sqlite-backed pipeline file into a
// temp dir and returns the config path.
func writePipeline(t *testing.T, doc map[string]any) string {
	t.Helper()
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "export.csv")
	if err := os.WriteFile(csvPath, []byte(exportCSV), 0o644); err != nil {
		t.Fatalf("write export: %v", err)
	}
	if doc == nil {
		doc = map[string]any{
			"job":     "olx_test",
			"source":  map[string]any{"kind": "file", "file": map[string]any{"path": csvPath}},
			"parser":  map[string]any{"kind": "csv", "options": map[string]any{"has_header": true}},
			"storage": map[string]any{"kind": "sqlite", "dsn": filepath.Join(dir, "warehouse.db")},
			"metrics": map[string]any{"backend": "none"},
		}
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	cfgPath := filepath.Join(dir, "pipeline.json")
	if err := os.WriteFile(cfgPath, raw, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return cfgPath
}

func run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := runMain(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRunMain_MissingConfigIsUsageError(t *testing.T) {
	t.Setenv("OLXWH_CONFIG", "")

	code, stdout, stderr := run(t, "validate")
	if code != 2 {
		t.Fatalf("code=%d, want 2 (stderr=%q)", code, stderr)
	}
	if !strings.Contains(stderr, "usage: olxwh") {
		t.Fatalf("stderr=%q, want usage hint", stderr)
	}
	if stdout != "" {
		t.Fatalf("stdout=%q, want empty", stdout)
	}
}

func TestRunMain_ValidateReportsIssues(t *testing.T) {
	cfg := writePipeline(t, map[string]any{
		"storage": map[string]any{"kind": "oracle", "dsn": "x"},
		"lookup":  map[string]any{"kind": "yaml"},
	})

	code, _, stderr := run(t, "validate", "--config", cfg)
	if code != 1 {
		t.Fatalf("code=%d, want 1", code)
	}
	for _, want := range []string{"storage.kind", "lookup.path", "configuration is invalid"} {
		if !strings.Contains(stderr, want) {
			t.Fatalf("stderr=%q, want %q", stderr, want)
		}
	}
}

func TestRunMain_ValidateOK(t *testing.T) {
	cfg := writePipeline(t, nil)

	code, stdout, stderr := run(t, "validate", "--config", cfg)
	if code != 0 {
		t.Fatalf("code=%d stderr=%q", code, stderr)
	}
	if !strings.Contains(stdout, "configuration is valid") {
		t.Fatalf("stdout=%q", stdout)
	}
}

func TestRunMain_RunThenStatusThenRerun(t *testing.T) {
	t.Setenv("METRICS_BACKEND", "")
	cfg := writePipeline(t, nil)

	code, stdout, stderr := run(t, "run", "--config", cfg)
	if code != 0 {
		t.Fatalf("run code=%d stderr=%q", code, stderr)
	}
	for _, want := range []string{"staged=1 rejected=1", "facts seen=1 inserted=1 skipped=0"} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("run stdout=%q, want %q", stdout, want)
		}
	}

	code, stdout, stderr = run(t, "transform", "--config", cfg, "--status")
	if code != 0 {
		t.Fatalf("status code=%d stderr=%q", code, stderr)
	}
	if strings.Count(stdout, "completed") != 6 {
		t.Fatalf("status stdout=%q, want 6 completed steps", stdout)
	}

	code, stdout, stderr = run(t, "transform", "--config", cfg)
	if code != 0 {
		t.Fatalf("transform code=%d stderr=%q", code, stderr)
	}
	if strings.Count(stdout, "skipped") != 6 {
		t.Fatalf("rerun stdout=%q, want every step skipped", stdout)
	}
}

func TestRunMain_StageWithoutExport(t *testing.T) {
	dir := t.TempDir()
	cfg := writePipeline(t, map[string]any{
		"storage": map[string]any{"kind": "sqlite", "dsn": filepath.Join(dir, "w.db")},
	})

	code, _, stderr := run(t, "stage", "--config", cfg)
	if code != 1 || !strings.Contains(stderr, "no export configured") {
		t.Fatalf("code=%d stderr=%q", code, stderr)
	}
}

func TestLoadLookup(t *testing.T) {
	l, err := loadLookup(config.Lookup{Kind: "embedded"})
	if err != nil {
		t.Fatalf("embedded: %v", err)
	}
	if st, ok := l.LookupStatus("warszawa"); !ok || st.Code != 1 {
		t.Fatalf("warszawa=%+v ok=%v", st, ok)
	}

	if _, err := loadLookup(config.Lookup{Kind: "csv"}); err == nil {
		t.Fatalf("expected error for unsupported kind")
	}
	if _, err := loadLookup(config.Lookup{Kind: "yaml", Path: filepath.Join(t.TempDir(), "missing.yaml")}); err == nil {
		t.Fatalf("expected error for missing yaml file")
	}
}

func TestRunMain_Probe(t *testing.T) {
	t.Setenv("OLXWH_CONFIG", "")
	cfg := writePipeline(t, nil)

	code, stdout, stderr := run(t, "probe", "--config", cfg)
	if code != 0 {
		t.Fatalf("probe code=%d stderr=%q", code, stderr)
	}
	if !strings.Contains(stdout, "sample_rows=2") || !strings.Contains(stdout, "city_name") {
		t.Fatalf("probe stdout=%q", stdout)
	}

	code, _, stderr = run(t, "probe")
	if code != 2 {
		t.Fatalf("probe without file code=%d stderr=%q", code, stderr)
	}
}
