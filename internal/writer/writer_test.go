package writer

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	appconfig "fundingflow/config"
	"fundingflow/internal/model"
	"fundingflow/internal/signal"
)

func TestWorkbookWriteAtomicReplace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "signals.csv")
	cfg := &appconfig.Config{Writer: appconfig.WriterConfig{WorkbookPath: path}}

	rows := []model.MergedRow{{
		InstrumentID: "BTC",
		Okx:          model.InstrumentSnapshot{InstrumentID: "BTC", LastPrice: 65000, MarkPrice: 65010, FundingRate: 0.0010},
		Bybit:        model.InstrumentSnapshot{InstrumentID: "BTC", LastPrice: 64950, MarkPrice: 64960, FundingRate: 0.0002},
	}}

	w := NewWorkbookWriter(cfg)
	if err := w.Write(signal.Score(rows)); err != nil {
		t.Fatalf("write: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("parse workbook: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d lines, want header + 1 row", len(records))
	}
	if len(records[0]) != 21 {
		t.Errorf("header has %d columns, want 21", len(records[0]))
	}
	if records[1][0] != "BTC" {
		t.Errorf("instrument column = %q", records[1][0])
	}

	// Rewriting must fully replace, not append.
	if err := w.Write(nil); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	f2, _ := os.Open(path)
	defer f2.Close()
	records, err = csv.NewReader(f2).ReadAll()
	if err != nil {
		t.Fatalf("parse rewritten workbook: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("rewritten workbook has %d lines, want header only", len(records))
	}

	// No temp files left behind.
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".workbook-") {
			t.Errorf("leftover temp file %s", e.Name())
		}
	}
}

func TestSeriesWriteLocalParquet(t *testing.T) {
	dir := t.TempDir()
	cfg := &appconfig.Config{Writer: appconfig.WriterConfig{SeriesDir: dir}}

	points := []model.DifferentialPoint{
		{Timestamp: time.Date(2024, 5, 30, 0, 0, 0, 0, time.UTC), OkxRate: 0.01, BybitRate: 0.02, Differential: 0.01},
		{Timestamp: time.Date(2024, 5, 30, 8, 0, 0, 0, time.UTC), OkxRate: 0.02, BybitRate: 0.01, Differential: -0.01},
	}

	w := NewSeriesWriter(cfg, nil)
	if err := w.Write(context.Background(), "BTC", points); err != nil {
		t.Fatalf("write: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read series dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d files, want 1", len(entries))
	}
	name := entries[0].Name()
	if !strings.HasPrefix(name, "BTC_") || !strings.HasSuffix(name, ".parquet") {
		t.Errorf("unexpected series file name %q", name)
	}
	info, _ := entries[0].Info()
	if info.Size() == 0 {
		t.Error("series parquet file is empty")
	}
}

func TestSeriesWriteSkipsEmptySeries(t *testing.T) {
	dir := t.TempDir()
	cfg := &appconfig.Config{Writer: appconfig.WriterConfig{SeriesDir: dir}}

	w := NewSeriesWriter(cfg, nil)
	if err := w.Write(context.Background(), "BTC", nil); err != nil {
		t.Fatalf("write: %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("empty series should write nothing, found %d files", len(entries))
	}
}
