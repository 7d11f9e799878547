package perf

import (
	"math"
	"testing"
	"time"

	"quantdesk/internal/domain"
)

func curvePoints(values ...float64) []domain.EquityPoint {
	start := time.Date(2023, 1, 3, 0, 0, 0, 0, time.UTC)
	pts := make([]domain.EquityPoint, len(values))
	for i, v := range values {
		pts[i] = domain.EquityPoint{Timestamp: start.AddDate(0, 0, i), Equity: v, BuyHoldEquity: v}
	}
	return pts
}

func TestMaxDrawdown(t *testing.T) {
	tests := []struct {
		curve []float64
		want  float64
	}{
		{nil, 0},
		{[]float64{100, 110, 120}, 0},
		{[]float64{100, 120, 90, 130, 117}, 25},
		{[]float64{100, 50}, 50},
	}
	for _, tt := range tests {
		got := MaxDrawdown(tt.curve)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("MaxDrawdown(%v) = %v, want %v", tt.curve, got, tt.want)
		}
		if got < 0 {
			t.Errorf("MaxDrawdown(%v) is negative", tt.curve)
		}
	}
}

func TestAnalyzeAlwaysLongScenario(t *testing.T) {
	const n = 252
	values := make([]float64, n)
	for i := range values {
		values[i] = 10000 * (100 + 100*float64(i)/float64(n-1)) / 100
	}
	s := Analyze(curvePoints(values...), []domain.Trade{{PnL: 10000}}, 10000, 252)

	if math.Abs(s.EndCapital-20000) > 1e-6 {
		t.Errorf("EndCapital = %v, want 20000", s.EndCapital)
	}
	if math.Abs(s.TotalReturnPct-100) > 1e-6 {
		t.Errorf("TotalReturnPct = %v, want 100", s.TotalReturnPct)
	}
	if s.MaxDrawdownPct != 0 {
		t.Errorf("MaxDrawdownPct = %v, want 0", s.MaxDrawdownPct)
	}
	if s.Calmar != Sentinel || s.ProfitFactor != Sentinel {
		t.Errorf("Calmar/ProfitFactor = %v/%v, want sentinels", s.Calmar, s.ProfitFactor)
	}
	// 251 steps over a 252-bar year compound to slightly above 100%.
	if s.AnnualizedReturnPct < 100 || s.AnnualizedReturnPct > 101 {
		t.Errorf("AnnualizedReturnPct = %v, want about 100", s.AnnualizedReturnPct)
	}
	if s.Sharpe <= 0 {
		t.Errorf("Sharpe = %v, want positive", s.Sharpe)
	}
	if s.WinRatePct != 100 {
		t.Errorf("WinRatePct = %v, want 100", s.WinRatePct)
	}
}

func TestAnalyzeReturnRoundTrip(t *testing.T) {
	s := Analyze(curvePoints(1000, 900, 1250), nil, 1000, 252)
	back := s.StartingCapital * (1 + s.TotalReturnPct/100)
	if math.Abs(back-s.EndCapital) > 1e-9 {
		t.Errorf("capital*(1+return) = %v, want %v", back, s.EndCapital)
	}
	if s.TotalTrades != 0 || s.WinRatePct != 0 {
		t.Errorf("no trades: TotalTrades=%d WinRate=%v", s.TotalTrades, s.WinRatePct)
	}
	if s.ProfitFactor != Sentinel {
		t.Errorf("ProfitFactor = %v, want sentinel with no trades", s.ProfitFactor)
	}
	if math.Abs(s.MaxDrawdownPct-10) > 1e-9 {
		t.Errorf("MaxDrawdownPct = %v, want 10", s.MaxDrawdownPct)
	}
}

func TestProfitFactorAndWinRate(t *testing.T) {
	trades := []domain.Trade{{PnL: 300}, {PnL: -100}, {PnL: -50}, {PnL: 0}}
	win, pf := tradeStats(trades)
	if win != 25 {
		t.Errorf("win rate = %v, want 25", win)
	}
	if pf != 2 {
		t.Errorf("profit factor = %v, want 2", pf)
	}
}

func TestSharpeFlatCurve(t *testing.T) {
	if got := Sharpe(SimpleReturns([]float64{5, 5, 5, 5}), 252); got != 0 {
		t.Errorf("Sharpe of flat curve = %v, want 0", got)
	}
	if got := Sharpe([]float64{0.01}, 252); got != 0 {
		t.Errorf("Sharpe of one return = %v, want 0", got)
	}
}

func TestMeanStd(t *testing.T) {
	mean, std := MeanStd([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	if mean != 5 {
		t.Errorf("mean = %v, want 5", mean)
	}
	if math.Abs(std-2.13808993529939) > 1e-9 {
		t.Errorf("std = %v, want 2.138...", std)
	}
}

func TestRound(t *testing.T) {
	tests := []struct {
		in     float64
		places int32
		want   float64
	}{
		{1.005, 2, 1.01},
		{-2.345, 2, -2.35},
		{123.456789, 5, 123.45679},
		{999, 2, 999},
	}
	for _, tt := range tests {
		if got := RoundTo(tt.in, tt.places); got != tt.want {
			t.Errorf("RoundTo(%v, %d) = %v, want %v", tt.in, tt.places, got, tt.want)
		}
	}

	s := Round(domain.PerformanceSummary{Sharpe: 1.23456, TotalTrades: 3})
	if s.Sharpe != 1.23 || s.TotalTrades != 3 {
		t.Errorf("Round = %+v", s)
	}

	rs := RoundNullSeries(domain.Series{domain.Null(), domain.Some(1.234567)}, 5)
	if rs[0].Valid || rs[1].Float64 != 1.23457 {
		t.Errorf("RoundNullSeries = %+v", rs)
	}
}
