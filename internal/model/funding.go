package model

import "time"

// FundingHistoryPoint is one historical funding event, normalized to UTC and
// to a percentage rate (raw fractional rate multiplied by 100).
type FundingHistoryPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Rate      float64   `json:"rate"`
}

// DifferentialPoint is one aligned sample of the cross-venue funding
// differential. A side missing a funding event at this instant reads 0.
type DifferentialPoint struct {
	Timestamp    time.Time `json:"timestamp"`
	OkxRate      float64   `json:"okx_rate"`
	BybitRate    float64   `json:"bybit_rate"`
	Differential float64   `json:"differential"`
}

// FundingFee is a realized funding payment aggregated per instrument from a
// venue's signed accounting endpoints. Amount is in the settlement currency,
// positive when received.
type FundingFee struct {
	InstrumentID string  `json:"instrument_id"`
	Amount       float64 `json:"amount"`
}
