package series

import (
	"sort"
	"time"

	"fundingflow/internal/model"
)

// Build outer-joins two funding history series on their timestamps and
// computes the differential per aligned instant. A side missing a record at
// a timestamp reads zero: the absence of a funding event is a valid economic
// value, not missing data. Duplicate timestamps within one input collapse
// last-write-wins. The result is ordered by timestamp ascending.
func Build(okx, bybit []model.FundingHistoryPoint) []model.DifferentialPoint {
	type pair struct {
		okx   float64
		bybit float64
	}
	joined := make(map[time.Time]pair, len(okx)+len(bybit))

	for _, p := range okx {
		ts := p.Timestamp.UTC().Truncate(time.Second)
		v := joined[ts]
		v.okx = p.Rate
		joined[ts] = v
	}
	for _, p := range bybit {
		ts := p.Timestamp.UTC().Truncate(time.Second)
		v := joined[ts]
		v.bybit = p.Rate
		joined[ts] = v
	}

	points := make([]model.DifferentialPoint, 0, len(joined))
	for ts, v := range joined {
		points = append(points, model.DifferentialPoint{
			Timestamp:    ts,
			OkxRate:      v.okx,
			BybitRate:    v.bybit,
			Differential: -v.okx + v.bybit,
		})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Timestamp.Before(points[j].Timestamp) })
	return points
}

// Summary is the read-only view the alert rendering needs: how often the
// differential favored the position versus not.
type Summary struct {
	Positive    int
	NonPositive int
}

// Summarize counts strictly-positive and non-positive differentials.
func Summarize(points []model.DifferentialPoint) Summary {
	var s Summary
	for _, p := range points {
		if p.Differential > 0 {
			s.Positive++
		} else {
			s.NonPositive++
		}
	}
	return s
}
