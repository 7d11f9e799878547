// Package domain defines the core data model shared by the indicator,
// strategy, simulation, analysis and projection packages.
package domain

import (
	"sort"
	"time"
)

// Bar is a single OHLCV sample at a fixed interval.
type Bar struct {
	Symbol     string
	Timestamp  time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     int64
	TradeCount int64
	VWAP       float64
}

// NormalizeBars returns bars sorted by timestamp with duplicate timestamps
// removed. When two bars share a timestamp the later one in the input wins.
// The input slice is not modified.
func NormalizeBars(bars []Bar) []Bar {
	if len(bars) == 0 {
		return nil
	}
	out := make([]Bar, len(bars))
	copy(out, bars)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})

	n := 0
	for i := range out {
		if n > 0 && out[i].Timestamp.Equal(out[n-1].Timestamp) {
			out[n-1] = out[i]
			continue
		}
		out[n] = out[i]
		n++
	}
	return out[:n]
}

// Closes extracts the close prices of bars.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// Position is the desired holding of a strategy at a given bar.
type Position string

const (
	PositionFlat Position = "FLAT"
	PositionLong Position = "LONG"
)

// Signals is a position series aligned index-for-index with a bar series.
type Signals []Position

// IndicatorSeries maps an output column name (e.g. "sma_20") to its values.
type IndicatorSeries map[string]Series

// Merge copies every column of other into s, overwriting equal names.
func (s IndicatorSeries) Merge(other IndicatorSeries) {
	for k, v := range other {
		s[k] = v
	}
}

// Names returns the column names in sorted order.
func (s IndicatorSeries) Names() []string {
	names := make([]string, 0, len(s))
	for k := range s {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// TradeSide is the direction of a trade. Only long trades exist today.
type TradeSide string

const TradeSideLong TradeSide = "long"

// Trade is one closed round trip recorded by the simulator.
type Trade struct {
	EntryIndex int       `json:"entry_index"`
	ExitIndex  int       `json:"exit_index"`
	EntryTime  time.Time `json:"entry_time"`
	ExitTime   time.Time `json:"exit_time"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	Shares     float64   `json:"shares"`
	Side       TradeSide `json:"side"`
	PnL        float64   `json:"pnl"`
	ReturnPct  float64   `json:"return_pct"`
	// Forced is set when the position was still open at the last bar.
	Forced bool `json:"forced"`
}

// EquityPoint is the account state after processing one bar.
type EquityPoint struct {
	Timestamp     time.Time
	Equity        float64
	BuyHoldEquity float64
	// HighWater and LowWater bound the intrabar equity envelope. They are
	// running extremes and only feed the chart, never the statistics.
	HighWater float64
	LowWater  float64
}

// PerformanceSummary holds the statistics derived from one backtest run.
type PerformanceSummary struct {
	StartingCapital     float64 `json:"capital"`
	EndCapital          float64 `json:"end_capital"`
	TotalReturnPct      float64 `json:"total_return"`
	BHCapital           float64 `json:"bh_capital"`
	BHReturnPct         float64 `json:"bh_return"`
	AnnualizedReturnPct float64 `json:"annualized_return"`
	Sharpe              float64 `json:"sharpe"`
	MaxDrawdownPct      float64 `json:"max_drawdown"`
	WinRatePct          float64 `json:"win_rate"`
	TotalTrades         int     `json:"total_trades"`
	ProfitFactor        float64 `json:"profit_factor"`
	Calmar              float64 `json:"calmar"`
}

// ProjectionPoint is one forward step of the equity projection.
type ProjectionPoint struct {
	Timestamp time.Time
	Upper     float64
	Mid       float64
	Lower     float64
}

// ProjectionBand is the ordered forward projection of an equity curve.
type ProjectionBand []ProjectionPoint

// HeatmapEntry is the cross-sectional price change summary of one symbol.
type HeatmapEntry struct {
	Symbol   string
	Price    NullFloat
	Change1D NullFloat
	Change1W NullFloat
	Change1M NullFloat
	Change1Y NullFloat
}

// Credentials identify the caller at the market-data provider.
type Credentials struct {
	APIKey    string `json:"api_key" yaml:"api_key"`
	APISecret string `json:"api_secret" yaml:"api_secret"`
}

// Empty reports whether no key pair was supplied.
func (c Credentials) Empty() bool {
	return c.APIKey == "" || c.APISecret == ""
}
