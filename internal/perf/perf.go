// Package perf derives performance statistics from an equity curve and its
// trade ledger.
package perf

import (
	"math"

	"quantdesk/internal/domain"
)

// Sentinel reported for profit factor and Calmar ratio when the denominator
// is zero (no losing trades, or no drawdown).
const Sentinel = 999.0

// Analyze computes the performance summary of one run. barsPerYear is the
// annualization factor of the bar interval.
func Analyze(equity []domain.EquityPoint, trades []domain.Trade, capital, barsPerYear float64) domain.PerformanceSummary {
	s := domain.PerformanceSummary{
		StartingCapital: capital,
		EndCapital:      capital,
		BHCapital:       capital,
		TotalTrades:     len(trades),
	}

	curve := make([]float64, len(equity))
	for i, p := range equity {
		curve[i] = p.Equity
	}
	if n := len(equity); n > 0 {
		s.EndCapital = equity[n-1].Equity
		s.BHCapital = equity[n-1].BuyHoldEquity
	}

	s.TotalReturnPct = pctChange(capital, s.EndCapital)
	s.BHReturnPct = pctChange(capital, s.BHCapital)
	s.Sharpe = Sharpe(SimpleReturns(curve), barsPerYear)
	s.MaxDrawdownPct = MaxDrawdown(curve)
	s.AnnualizedReturnPct = Annualized(capital, s.EndCapital, len(curve), barsPerYear)
	s.WinRatePct, s.ProfitFactor = tradeStats(trades)

	if s.MaxDrawdownPct == 0 {
		s.Calmar = Sentinel
	} else {
		s.Calmar = s.AnnualizedReturnPct / s.MaxDrawdownPct
	}
	return s
}

func pctChange(from, to float64) float64 {
	if from == 0 {
		return 0
	}
	return (to - from) / from * 100
}

// SimpleReturns returns the bar-over-bar simple returns of curve, skipping
// steps that start from a non-positive value.
func SimpleReturns(curve []float64) []float64 {
	if len(curve) < 2 {
		return nil
	}
	out := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		if curve[i-1] <= 0 {
			continue
		}
		out = append(out, curve[i]/curve[i-1]-1)
	}
	return out
}

// Sharpe is the annualized mean-over-deviation of per-bar returns with a
// zero risk-free rate. It is 0 when the deviation is 0 or undefined.
func Sharpe(returns []float64, barsPerYear float64) float64 {
	mean, std := MeanStd(returns)
	if std == 0 || math.IsNaN(std) {
		return 0
	}
	return mean / std * math.Sqrt(barsPerYear)
}

// MaxDrawdown returns the largest peak-to-trough decline of curve in
// percent. It is never negative.
func MaxDrawdown(curve []float64) float64 {
	peak, maxDD := 0.0, 0.0
	for _, v := range curve {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			if dd := (peak - v) / peak * 100; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// Annualized compounds the total return of n bars to a yearly rate in
// percent.
func Annualized(start, end float64, n int, barsPerYear float64) float64 {
	if n < 2 || start <= 0 {
		return 0
	}
	if end <= 0 {
		return -100
	}
	years := float64(n-1) / barsPerYear
	return (math.Pow(end/start, 1/years) - 1) * 100
}

func tradeStats(trades []domain.Trade) (winRate, profitFactor float64) {
	var wins int
	var grossWin, grossLoss float64
	for _, t := range trades {
		switch {
		case t.PnL > 0:
			wins++
			grossWin += t.PnL
		case t.PnL < 0:
			grossLoss -= t.PnL
		}
	}
	if len(trades) > 0 {
		winRate = float64(wins) / float64(len(trades)) * 100
	}
	if grossLoss == 0 {
		return winRate, Sentinel
	}
	return winRate, grossWin / grossLoss
}
