package signal

import (
	"math"

	"fundingflow/internal/model"
)

// Gating thresholds. These are fixed design constants; the configuration
// layer deliberately does not expose them.
const (
	// MinFundingSpread is the strict lower bound on |Fb - Fa| for a row to
	// be worth considering at all.
	MinFundingSpread = 0.0003
	// MinBasisExcess is the strict lower bound on |basis| - fundingSpread.
	MinBasisExcess = 0.0002
	// StrongFundingSpread is the strict lower bound on the funding spread
	// for final candidacy.
	StrongFundingSpread = 0.0005
)

// Venue labels used in alerts and the workbook.
const (
	VenueOkx   = "OKEX"
	VenueBybit = "Bybit"
)

// Signal carries the full derived view of one merged row. It is created
// fresh each cycle and never mutated afterwards.
type Signal struct {
	Row model.MergedRow

	FairOkx       float64
	FairBybit     float64
	Basis         float64
	AbsBasis      float64
	FundingSpread float64

	Cond1 bool
	Cond2 bool
	Cond3 bool
	Cond4 bool
	Cond5 bool

	// CompositeScore counts how many of the first three conditions hold.
	CompositeScore int
	// DirectionConsistency mirrors the mark-price/funding co-movement
	// check. It is kept as its own field even though cond4 encodes the
	// same comparison, so the two can diverge independently.
	DirectionConsistency bool
	// FinalScore is 1 when all five conditions hold, else 0.
	FinalScore int

	LongVenue  string
	ShortVenue string
}

// Candidate reports whether the row passed every gating condition.
func (s Signal) Candidate() bool {
	return s.Cond1 && s.Cond2 && s.Cond3 && s.Cond4 && s.Cond5
}

// Score computes the derived signal for every merged row, in input order.
func Score(rows []model.MergedRow) []Signal {
	signals := make([]Signal, 0, len(rows))
	for _, row := range rows {
		signals = append(signals, scoreRow(row))
	}
	return signals
}

// Evaluate returns only the rows passing all five conditions.
func Evaluate(rows []model.MergedRow) []Signal {
	var candidates []Signal
	for _, s := range Score(rows) {
		if s.Candidate() {
			candidates = append(candidates, s)
		}
	}
	return candidates
}

func scoreRow(row model.MergedRow) Signal {
	pa, ma, fa := row.Okx.LastPrice, row.Okx.MarkPrice, row.Okx.FundingRate
	pb, mb, fb := row.Bybit.LastPrice, row.Bybit.MarkPrice, row.Bybit.FundingRate

	s := Signal{Row: row}
	s.FairOkx = pa * (1 + fa)
	s.FairBybit = pb * (1 + fb)

	avgMark := (mb + ma) / 2
	if avgMark == 0 {
		// A degenerate row must fail the basis conditions without raising;
		// NaN compares false against every threshold below.
		s.Basis = math.NaN()
	} else {
		s.Basis = (s.FairBybit - s.FairOkx) / avgMark
	}
	s.AbsBasis = math.Abs(s.Basis)
	s.FundingSpread = math.Abs(fb - fa)

	s.Cond1 = s.FundingSpread > MinFundingSpread
	s.Cond2 = s.AbsBasis-s.FundingSpread > MinBasisExcess
	s.Cond3 = s.Basis*(fb-fa) > 0
	s.Cond4 = (ma < mb && fa < fb) || (ma > mb && fa > fb)
	s.Cond5 = s.FundingSpread > StrongFundingSpread

	for _, c := range []bool{s.Cond1, s.Cond2, s.Cond3} {
		if c {
			s.CompositeScore++
		}
	}
	s.DirectionConsistency = (ma < mb && fa < fb) || (ma > mb && fa > fb)
	if s.Candidate() {
		s.FinalScore = 1
	}

	// Lower funding rate is the "go long" side. Equal rates resolve to the
	// OKX label on both sides.
	if fb < fa {
		s.LongVenue = VenueBybit
	} else {
		s.LongVenue = VenueOkx
	}
	if fb > fa {
		s.ShortVenue = VenueBybit
	} else {
		s.ShortVenue = VenueOkx
	}

	return s
}
