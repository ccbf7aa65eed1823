package model

// InstrumentSnapshot is one venue's current view of a USDT linear perpetual.
// The instrument identifier is already normalized to the shared base-asset
// key. Fields that could not be parsed from the venue response are zero.
type InstrumentSnapshot struct {
	InstrumentID string  `json:"instrument_id"`
	LastPrice    float64 `json:"last_price"`
	MarkPrice    float64 `json:"mark_price"`
	FundingRate  float64 `json:"funding_rate"`
}

// MergedRow pairs both venues' snapshots for one instrument. A row exists
// only when the instrument trades on both venues.
type MergedRow struct {
	InstrumentID string             `json:"instrument_id"`
	Okx          InstrumentSnapshot `json:"okx"`
	Bybit        InstrumentSnapshot `json:"bybit"`
}
