package indicator

import (
	"math"

	"quantdesk/internal/domain"
)

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// closeSeries computes a close-price indicator. fn receives one finite run
// of closes at a time and returns one slice per output column.
func closeSeries(bars []domain.Bar, lookback int, cols []string, fn func(in []float64) [][]float64) domain.IndicatorSeries {
	n := len(bars)
	closes := domain.Closes(bars)
	out := make(domain.IndicatorSeries, len(cols))
	for _, c := range cols {
		out[c] = domain.NullSeries(n)
	}
	ok := func(i int) bool { return finite(closes[i]) }
	fillSegments(out, cols, n, lookback, ok, func(lo, hi int) [][]float64 {
		return fn(closes[lo:hi])
	})
	return out
}

// fillSegments splits [0,n) into maximal runs where ok holds and computes
// each run independently. Runs no longer than lookback stay null, as do the
// first lookback outputs of every run.
func fillSegments(out domain.IndicatorSeries, cols []string, n, lookback int, ok func(int) bool, fn func(lo, hi int) [][]float64) {
	for lo := 0; lo < n; {
		if !ok(lo) {
			lo++
			continue
		}
		hi := lo
		for hi < n && ok(hi) {
			hi++
		}
		if hi-lo > lookback {
			res := fn(lo, hi)
			for k, col := range cols {
				dst := out[col]
				for j := lookback; j < hi-lo; j++ {
					dst[lo+j] = domain.Some(res[k][j])
				}
			}
		}
		lo = hi
	}
}
