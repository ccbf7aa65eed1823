package merge

import (
	"sort"

	"fundingflow/internal/model"
)

// Rows inner-joins the two venues' snapshots on the normalized instrument
// identifier. Instruments quoted on only one venue are dropped. The result
// is sorted by instrument id so downstream output is stable across cycles.
func Rows(okx, bybit []model.InstrumentSnapshot) []model.MergedRow {
	if len(okx) == 0 || len(bybit) == 0 {
		return nil
	}

	byID := make(map[string]model.InstrumentSnapshot, len(bybit))
	for _, s := range bybit {
		byID[s.InstrumentID] = s
	}

	rows := make([]model.MergedRow, 0, len(okx))
	for _, o := range okx {
		b, ok := byID[o.InstrumentID]
		if !ok {
			continue
		}
		rows = append(rows, model.MergedRow{
			InstrumentID: o.InstrumentID,
			Okx:          o,
			Bybit:        b,
		})
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].InstrumentID < rows[j].InstrumentID })
	return rows
}
