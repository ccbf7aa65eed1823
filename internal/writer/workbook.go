package writer

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	appconfig "fundingflow/config"
	"fundingflow/internal/signal"
	"fundingflow/logger"
)

var workbookHeader = []string{
	"instrument",
	"okx_price", "okx_mark_price", "okx_funding_rate",
	"bybit_price", "bybit_mark_price", "bybit_funding_rate",
	"fair_okx", "fair_bybit", "basis", "abs_basis", "funding_spread",
	"cond_spread", "cond_basis_excess", "cond_basis_direction",
	"composite_score", "long_venue", "short_venue",
	"direction_consistency", "strong_spread", "final_score",
}

// WorkbookWriter regenerates the per-cycle signal workbook. The file is the
// only artifact that outlives a cycle and it is fully rewritten each time,
// published atomically via a temp file and rename.
type WorkbookWriter struct {
	path string
	log  *logger.Log
}

// NewWorkbookWriter creates the writer for the configured workbook path.
func NewWorkbookWriter(cfg *appconfig.Config) *WorkbookWriter {
	return &WorkbookWriter{path: cfg.Writer.WorkbookPath, log: logger.GetLogger()}
}

// Write renders every scored row, one line per instrument, and replaces the
// previous workbook in a single rename.
func (w *WorkbookWriter) Write(signals []signal.Signal) error {
	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create workbook dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".workbook-*.csv")
	if err != nil {
		return fmt.Errorf("create workbook temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	cw := csv.NewWriter(tmp)
	if err := cw.Write(workbookHeader); err != nil {
		tmp.Close()
		return fmt.Errorf("write workbook header: %w", err)
	}
	for _, s := range signals {
		if err := cw.Write(workbookRecord(s)); err != nil {
			tmp.Close()
			return fmt.Errorf("write workbook row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush workbook: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close workbook temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), w.path); err != nil {
		return fmt.Errorf("publish workbook: %w", err)
	}

	w.log.WithComponent("workbook_writer").WithFields(logger.Fields{
		"path": w.path,
		"rows": len(signals),
	}).Info("workbook regenerated")
	return nil
}

func workbookRecord(s signal.Signal) []string {
	return []string{
		s.Row.InstrumentID,
		num(s.Row.Okx.LastPrice), num(s.Row.Okx.MarkPrice), num(s.Row.Okx.FundingRate),
		num(s.Row.Bybit.LastPrice), num(s.Row.Bybit.MarkPrice), num(s.Row.Bybit.FundingRate),
		num(s.FairOkx), num(s.FairBybit), num(s.Basis), num(s.AbsBasis), num(s.FundingSpread),
		flag(s.Cond1), flag(s.Cond2), flag(s.Cond3),
		strconv.Itoa(s.CompositeScore), s.LongVenue, s.ShortVenue,
		flag(s.DirectionConsistency), flag(s.Cond5), strconv.Itoa(s.FinalScore),
	}
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
