package perf

import (
	"math"

	"github.com/shopspring/decimal"

	"quantdesk/internal/domain"
)

// Wire precision.
const (
	SummaryPlaces int32 = 2
	SeriesPlaces  int32 = 5
)

// RoundTo rounds v to places decimals, half away from zero. Non-finite
// values are returned unchanged.
func RoundTo(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}

// Round returns s with every monetary, percentage and ratio field rounded
// to two decimals. Apply it only when serializing.
func Round(s domain.PerformanceSummary) domain.PerformanceSummary {
	r := func(v float64) float64 { return RoundTo(v, SummaryPlaces) }
	s.StartingCapital = r(s.StartingCapital)
	s.EndCapital = r(s.EndCapital)
	s.TotalReturnPct = r(s.TotalReturnPct)
	s.BHCapital = r(s.BHCapital)
	s.BHReturnPct = r(s.BHReturnPct)
	s.AnnualizedReturnPct = r(s.AnnualizedReturnPct)
	s.Sharpe = r(s.Sharpe)
	s.MaxDrawdownPct = r(s.MaxDrawdownPct)
	s.WinRatePct = r(s.WinRatePct)
	s.ProfitFactor = r(s.ProfitFactor)
	s.Calmar = r(s.Calmar)
	return s
}

// RoundSeries rounds a float series to places decimals.
func RoundSeries(values []float64, places int32) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = RoundTo(v, places)
	}
	return out
}

// RoundNullSeries rounds the valid entries of s, keeping nulls.
func RoundNullSeries(s domain.Series, places int32) domain.Series {
	out := make(domain.Series, len(s))
	for i, v := range s {
		if v.Valid {
			out[i] = domain.Some(RoundTo(v.Float64, places))
		}
	}
	return out
}
