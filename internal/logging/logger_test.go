package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger_LevelsAndFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := FromZap(zap.New(core)).With("run_id", "r1")

	l.Debugf("hidden %d", 1)
	l.Printf("stage=%s ok rows=%d", "dim_market", 3)
	l.Warnf("unmatched_property=%d", 2)

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("entries=%d want 2", len(entries))
	}
	if entries[0].Message != "stage=dim_market ok rows=3" || entries[0].Level != zapcore.InfoLevel {
		t.Fatalf("entry0=%+v", entries[0])
	}
	if entries[1].Level != zapcore.WarnLevel {
		t.Fatalf("entry1 level=%v", entries[1].Level)
	}
	if entries[0].ContextMap()["run_id"] != "r1" {
		t.Fatalf("missing run_id field: %v", entries[0].ContextMap())
	}
}

func TestNew_Modes(t *testing.T) {
	for _, mode := range []string{"dev", "production"} {
		l, err := New(mode, true)
		if err != nil {
			t.Fatalf("New(%q): %v", mode, err)
		}
		if !l.SugaredLogger.Desugar().Core().Enabled(zapcore.DebugLevel) {
			t.Fatalf("verbose logger should enable debug (%s)", mode)
		}
	}
	l, err := New("dev", false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if l.SugaredLogger.Desugar().Core().Enabled(zapcore.DebugLevel) {
		t.Fatalf("non-verbose logger should not enable debug")
	}
	Nop().Printf("discarded")
}
