package indicator

import (
	"fmt"

	"github.com/markcheno/go-talib"

	"quantdesk/internal/domain"
)

type definition struct {
	description string
	order       []string
	defaults    Params
	validate    func(p Params) error
	lookback    func(p Params) int
	columns     func(p Params) []string
	compute     func(p Params, bars []domain.Bar) domain.IndicatorSeries
}

// definitions is read-only after package initialisation.
var definitions = map[string]definition{
	"sma": {
		description: "Simple moving average of close",
		order:       []string{"period"},
		defaults:    Params{"period": 20},
		validate:    func(p Params) error { return minInt(p, "period", 1) },
		lookback:    func(p Params) int { return intParam(p, "period") - 1 },
		columns:     func(p Params) []string { return []string{fmt.Sprintf("sma_%d", intParam(p, "period"))} },
		compute: func(p Params, bars []domain.Bar) domain.IndicatorSeries {
			period := intParam(p, "period")
			return closeSeries(bars, period-1, []string{fmt.Sprintf("sma_%d", period)}, func(in []float64) [][]float64 {
				return [][]float64{talib.Sma(in, period)}
			})
		},
	},
	"ema": {
		description: "Exponential moving average of close",
		order:       []string{"period"},
		defaults:    Params{"period": 20},
		validate:    func(p Params) error { return minInt(p, "period", 1) },
		lookback:    func(p Params) int { return intParam(p, "period") - 1 },
		columns:     func(p Params) []string { return []string{fmt.Sprintf("ema_%d", intParam(p, "period"))} },
		compute: func(p Params, bars []domain.Bar) domain.IndicatorSeries {
			period := intParam(p, "period")
			return closeSeries(bars, period-1, []string{fmt.Sprintf("ema_%d", period)}, func(in []float64) [][]float64 {
				return [][]float64{talib.Ema(in, period)}
			})
		},
	},
	"rsi": {
		description: "Relative strength index of close (Wilder smoothing)",
		order:       []string{"period"},
		defaults:    Params{"period": 14},
		validate:    func(p Params) error { return minInt(p, "period", 2) },
		lookback:    func(p Params) int { return intParam(p, "period") },
		columns:     func(p Params) []string { return []string{fmt.Sprintf("rsi_%d", intParam(p, "period"))} },
		compute: func(p Params, bars []domain.Bar) domain.IndicatorSeries {
			period := intParam(p, "period")
			return closeSeries(bars, period, []string{fmt.Sprintf("rsi_%d", period)}, func(in []float64) [][]float64 {
				return [][]float64{talib.Rsi(in, period)}
			})
		},
	},
	"macd": {
		description: "Moving average convergence/divergence with signal line and histogram",
		order:       []string{"fast", "slow", "signal"},
		defaults:    Params{"fast": 12, "slow": 26, "signal": 9},
		validate: func(p Params) error {
			if err := minInt(p, "fast", 1); err != nil {
				return err
			}
			if err := minInt(p, "slow", 2); err != nil {
				return err
			}
			if err := minInt(p, "signal", 1); err != nil {
				return err
			}
			if intParam(p, "fast") >= intParam(p, "slow") {
				return fmt.Errorf("fast (%d) must be less than slow (%d)", intParam(p, "fast"), intParam(p, "slow"))
			}
			return nil
		},
		lookback: macdLookback,
		columns:  macdColumns,
		compute: func(p Params, bars []domain.Bar) domain.IndicatorSeries {
			fast, slow, signal := intParam(p, "fast"), intParam(p, "slow"), intParam(p, "signal")
			return closeSeries(bars, macdLookback(p), macdColumns(p), func(in []float64) [][]float64 {
				m, s, h := talib.Macd(in, fast, slow, signal)
				return [][]float64{m, s, h}
			})
		},
	},
	"bbands": {
		description: "Bollinger bands around a simple moving average of close",
		order:       []string{"period", "stddev"},
		defaults:    Params{"period": 20, "stddev": 2},
		validate: func(p Params) error {
			if err := minInt(p, "period", 2); err != nil {
				return err
			}
			if p["stddev"] <= 0 {
				return fmt.Errorf("stddev must be positive, got %v", p["stddev"])
			}
			return nil
		},
		lookback: func(p Params) int { return intParam(p, "period") - 1 },
		columns:  bbandsColumns,
		compute: func(p Params, bars []domain.Bar) domain.IndicatorSeries {
			period, k := intParam(p, "period"), p["stddev"]
			return closeSeries(bars, period-1, bbandsColumns(p), func(in []float64) [][]float64 {
				upper, mid, lower := talib.BBands(in, period, k, k, talib.SMA)
				return [][]float64{upper, mid, lower}
			})
		},
	},
	"atr": {
		description: "Average true range (uses high, low and close)",
		order:       []string{"period"},
		defaults:    Params{"period": 14},
		validate:    func(p Params) error { return minInt(p, "period", 1) },
		lookback:    func(p Params) int { return intParam(p, "period") },
		columns:     func(p Params) []string { return []string{fmt.Sprintf("atr_%d", intParam(p, "period"))} },
		compute: func(p Params, bars []domain.Bar) domain.IndicatorSeries {
			period := intParam(p, "period")
			col := fmt.Sprintf("atr_%d", period)
			n := len(bars)
			high, low, cls := make([]float64, n), make([]float64, n), make([]float64, n)
			for i, b := range bars {
				high[i], low[i], cls[i] = b.High, b.Low, b.Close
			}
			ok := func(i int) bool { return finite(high[i]) && finite(low[i]) && finite(cls[i]) }
			out := domain.IndicatorSeries{col: domain.NullSeries(n)}
			fillSegments(out, []string{col}, n, period, ok, func(lo, hi int) [][]float64 {
				return [][]float64{talib.Atr(high[lo:hi], low[lo:hi], cls[lo:hi], period)}
			})
			return out
		},
	},
}

func macdLookback(p Params) int {
	return intParam(p, "slow") - 1 + intParam(p, "signal") - 1
}

func macdColumns(p Params) []string {
	base := fmt.Sprintf("macd_%d_%d_%d", intParam(p, "fast"), intParam(p, "slow"), intParam(p, "signal"))
	return []string{base, base + "_signal", base + "_hist"}
}

func bbandsColumns(p Params) []string {
	period := intParam(p, "period")
	return []string{
		fmt.Sprintf("bb_%d_upper", period),
		fmt.Sprintf("bb_%d_mid", period),
		fmt.Sprintf("bb_%d_lower", period),
	}
}

func intParam(p Params, key string) int {
	return int(p[key])
}

func minInt(p Params, key string, min int) error {
	v := p[key]
	if v != float64(int(v)) {
		return fmt.Errorf("%s must be a whole number, got %v", key, v)
	}
	if int(v) < min {
		return fmt.Errorf("%s must be at least %d, got %v", key, min, v)
	}
	return nil
}
