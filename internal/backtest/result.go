package backtest

import (
	"time"

	"quantdesk/internal/domain"
	"quantdesk/internal/engine"
	"quantdesk/internal/perf"
)

// Result is the BacktestResult wire contract. Numbers are rounded for
// presentation; Raw keeps the unrounded values.
type Result struct {
	Chart       Chart                     `json:"chart"`
	Equity      EquityCurve               `json:"equity"`
	Performance domain.PerformanceSummary `json:"performance"`
	Trades      []domain.Trade            `json:"trades"`
	RunID       string                    `json:"run_id,omitempty"`

	Raw *Raw `json:"-"`
}

// Chart is the price series plus the requested indicator columns. Prices
// that are not finite encode as null.
type Chart struct {
	Dates      []string                 `json:"dates"`
	Open       domain.Series            `json:"open"`
	High       domain.Series            `json:"high"`
	Low        domain.Series            `json:"low"`
	Close      domain.Series            `json:"close"`
	Indicators map[string]domain.Series `json:"indicators"`
}

// EquityCurve is the simulated account value with buy-and-hold, envelope
// and forward projection.
type EquityCurve struct {
	Dates      []string   `json:"dates"`
	Equity     []float64  `json:"equity"`
	BHEquity   []float64  `json:"bh_equity"`
	EquityHigh []float64  `json:"equity_high"`
	EquityLow  []float64  `json:"equity_low"`
	Projection Projection `json:"projection"`
}

// Projection is the forward band.
type Projection struct {
	Dates []string  `json:"dates"`
	Upper []float64 `json:"upper"`
	Mid   []float64 `json:"mid"`
	Lower []float64 `json:"lower"`
}

// Raw holds every intermediate of a run at full precision.
type Raw struct {
	Bars        []domain.Bar
	Indicators  domain.IndicatorSeries
	Signals     domain.Signals
	Run         *engine.Run
	Performance domain.PerformanceSummary
	Projection  domain.ProjectionBand
}

func formatTime(t time.Time, iv domain.Interval) string {
	if iv.Daily() {
		return t.UTC().Format(dateLayout)
	}
	return t.UTC().Format(time.RFC3339)
}

// assemble builds the wire result. chartCols selects the indicator columns
// shown on the chart.
func assemble(iv domain.Interval, raw *Raw, chartCols []string) *Result {
	n := len(raw.Bars)
	chart := Chart{
		Dates:      make([]string, n),
		Open:       domain.NullSeries(n),
		High:       domain.NullSeries(n),
		Low:        domain.NullSeries(n),
		Close:      domain.NullSeries(n),
		Indicators: make(map[string]domain.Series, len(chartCols)),
	}
	for i, b := range raw.Bars {
		chart.Dates[i] = formatTime(b.Timestamp, iv)
		chart.Open[i] = domain.Some(perf.RoundTo(b.Open, perf.SeriesPlaces))
		chart.High[i] = domain.Some(perf.RoundTo(b.High, perf.SeriesPlaces))
		chart.Low[i] = domain.Some(perf.RoundTo(b.Low, perf.SeriesPlaces))
		chart.Close[i] = domain.Some(perf.RoundTo(b.Close, perf.SeriesPlaces))
	}
	for _, col := range chartCols {
		if s, ok := raw.Indicators[col]; ok {
			chart.Indicators[col] = perf.RoundNullSeries(s, perf.SeriesPlaces)
		}
	}

	eq := EquityCurve{
		Dates:      make([]string, len(raw.Run.Equity)),
		Equity:     make([]float64, len(raw.Run.Equity)),
		BHEquity:   make([]float64, len(raw.Run.Equity)),
		EquityHigh: make([]float64, len(raw.Run.Equity)),
		EquityLow:  make([]float64, len(raw.Run.Equity)),
	}
	for i, p := range raw.Run.Equity {
		eq.Dates[i] = formatTime(p.Timestamp, iv)
		eq.Equity[i] = perf.RoundTo(p.Equity, perf.SeriesPlaces)
		eq.BHEquity[i] = perf.RoundTo(p.BuyHoldEquity, perf.SeriesPlaces)
		eq.EquityHigh[i] = perf.RoundTo(p.HighWater, perf.SeriesPlaces)
		eq.EquityLow[i] = perf.RoundTo(p.LowWater, perf.SeriesPlaces)
	}

	proj := Projection{
		Dates: make([]string, len(raw.Projection)),
		Upper: make([]float64, len(raw.Projection)),
		Mid:   make([]float64, len(raw.Projection)),
		Lower: make([]float64, len(raw.Projection)),
	}
	for i, p := range raw.Projection {
		proj.Dates[i] = formatTime(p.Timestamp, iv)
		proj.Upper[i] = perf.RoundTo(p.Upper, perf.SummaryPlaces)
		proj.Mid[i] = perf.RoundTo(p.Mid, perf.SummaryPlaces)
		proj.Lower[i] = perf.RoundTo(p.Lower, perf.SummaryPlaces)
	}
	eq.Projection = proj

	trades := make([]domain.Trade, len(raw.Run.Trades))
	for i, t := range raw.Run.Trades {
		t.EntryPrice = perf.RoundTo(t.EntryPrice, perf.SeriesPlaces)
		t.ExitPrice = perf.RoundTo(t.ExitPrice, perf.SeriesPlaces)
		t.Shares = perf.RoundTo(t.Shares, perf.SeriesPlaces)
		t.PnL = perf.RoundTo(t.PnL, perf.SummaryPlaces)
		t.ReturnPct = perf.RoundTo(t.ReturnPct, perf.SummaryPlaces)
		trades[i] = t
	}

	return &Result{
		Chart:       chart,
		Equity:      eq,
		Performance: perf.Round(raw.Performance),
		Trades:      trades,
		Raw:         raw,
	}
}
