package signal

import (
	"math"
	"reflect"
	"testing"

	"fundingflow/internal/model"
)

func row(pa, ma, fa, pb, mb, fb float64) model.MergedRow {
	return model.MergedRow{
		InstrumentID: "BTC",
		Okx:          model.InstrumentSnapshot{InstrumentID: "BTC", LastPrice: pa, MarkPrice: ma, FundingRate: fa},
		Bybit:        model.InstrumentSnapshot{InstrumentID: "BTC", LastPrice: pb, MarkPrice: mb, FundingRate: fb},
	}
}

// passingRow satisfies all five conditions:
// spread = 0.0008, basis ~ 0.0028, marks and rates co-move upward.
func passingRow() model.MergedRow {
	return row(100, 100, 0.0002, 100.2, 100.3, 0.001)
}

func TestPassingRowIsCandidate(t *testing.T) {
	got := Evaluate([]model.MergedRow{passingRow()})
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(got))
	}
	if got[0].FinalScore != 1 || got[0].CompositeScore != 3 {
		t.Errorf("scores = final %d composite %d", got[0].FinalScore, got[0].CompositeScore)
	}
}

func TestFundingSpreadStrictInequality(t *testing.T) {
	atThreshold := Score([]model.MergedRow{row(100, 100, 0, 100, 100, 0.0003)})[0]
	if atThreshold.Cond1 {
		t.Error("spread exactly at 0.0003 must not satisfy cond1")
	}
	above := Score([]model.MergedRow{row(100, 100, 0, 100, 100, 0.0003 + 1e-9)})[0]
	if !above.Cond1 {
		t.Error("spread just above 0.0003 must satisfy cond1")
	}

	atStrong := Score([]model.MergedRow{row(100, 100, 0, 100, 100, 0.0005)})[0]
	if atStrong.Cond5 {
		t.Error("spread exactly at 0.0005 must not satisfy cond5")
	}
}

func TestEachConditionGatesCandidacy(t *testing.T) {
	cases := []struct {
		name string
		row  model.MergedRow
	}{
		// spread 0.0002, fails cond1 (and cond5).
		{"weak spread", row(100, 100, 0.0002, 100.2, 100.3, 0.0004)},
		// same prices, basis barely exceeds spread, fails cond2.
		{"no basis excess", row(100, 100, 0.0002, 100, 100.3, 0.001)},
		// bybit cheaper while its funding is higher, basis negative, fails cond3.
		{"basis against funding", row(100, 100, 0.0002, 99, 100.3, 0.001)},
		// marks move opposite to funding rates, fails cond4.
		{"direction mismatch", row(100, 100.3, 0.0002, 100.2, 100, 0.001)},
		// spread 0.0004, passes cond1 but fails cond5.
		{"below strong spread", row(100, 100, 0.0002, 100.2, 100.3, 0.0006)},
	}
	for _, tc := range cases {
		if got := Evaluate([]model.MergedRow{tc.row}); len(got) != 0 {
			t.Errorf("%s: row should not be a candidate", tc.name)
		}
	}
}

func TestDegenerateMarkPriceDoesNotPanic(t *testing.T) {
	s := Score([]model.MergedRow{row(100, 0, 0.0002, 100.2, 0, 0.001)})[0]
	if !math.IsNaN(s.Basis) {
		t.Errorf("basis = %v, want NaN for zero average mark", s.Basis)
	}
	if s.Cond2 || s.Cond3 {
		t.Error("non-finite basis must fail the basis conditions")
	}
	if s.Candidate() {
		t.Error("degenerate row must not be a candidate")
	}
}

func TestVenueSelection(t *testing.T) {
	// Bybit funding lower: long bybit, short okx.
	s := Score([]model.MergedRow{row(100, 100, 0.001, 100, 100, 0.0002)})[0]
	if s.LongVenue != VenueBybit || s.ShortVenue != VenueOkx {
		t.Errorf("long=%s short=%s, want Bybit/OKEX", s.LongVenue, s.ShortVenue)
	}
	// Equal funding rates resolve both labels to OKX.
	tie := Score([]model.MergedRow{row(100, 100, 0.0005, 100, 100, 0.0005)})[0]
	if tie.LongVenue != VenueOkx || tie.ShortVenue != VenueOkx {
		t.Errorf("tie long=%s short=%s, want OKEX/OKEX", tie.LongVenue, tie.ShortVenue)
	}
}

func TestScoreIsIdempotent(t *testing.T) {
	rows := []model.MergedRow{passingRow(), row(100, 100, 0, 100, 100, 0)}
	first := Score(rows)
	second := Score(rows)
	if !reflect.DeepEqual(first, second) {
		t.Error("scoring the same rows twice produced different results")
	}
}

func TestKnownScenario(t *testing.T) {
	r := row(65000, 65010, 0.0010, 64950, 64960, 0.0002)
	s := Score([]model.MergedRow{r})[0]

	fairA := 65000 * (1 + 0.0010)
	fairB := 64950 * (1 + 0.0002)
	wantBasis := (fairB - fairA) / ((64960.0 + 65010.0) / 2)

	if s.FairOkx != fairA || s.FairBybit != fairB {
		t.Errorf("fair prices = %v/%v, want %v/%v", s.FairOkx, s.FairBybit, fairA, fairB)
	}
	if math.Abs(s.Basis-wantBasis) > 1e-12 {
		t.Errorf("basis = %v, want %v", s.Basis, wantBasis)
	}
	if !s.Cond1 {
		t.Error("spread 0.0008 must satisfy cond1")
	}
	// Inclusion follows from the formulas, not a hardcoded expectation.
	wantCandidate := s.Cond1 && s.Cond2 && s.Cond3 && s.Cond4 && s.Cond5
	if s.Candidate() != wantCandidate {
		t.Errorf("candidate = %v, conditions = %v %v %v %v %v",
			s.Candidate(), s.Cond1, s.Cond2, s.Cond3, s.Cond4, s.Cond5)
	}
	if s.LongVenue != VenueBybit || s.ShortVenue != VenueOkx {
		t.Errorf("long=%s short=%s", s.LongVenue, s.ShortVenue)
	}
}
