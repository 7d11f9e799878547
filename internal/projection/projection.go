// Package projection extends an equity curve forward with a lognormal
// confidence band.
package projection

import (
	"fmt"
	"math"
	"time"

	"quantdesk/internal/domain"
	"quantdesk/internal/perf"
)

// Z is the standard normal quantile of the two-sided 90% band.
const Z = 1.645

// NextFunc returns the n timestamps that follow last at the series' bar
// frequency.
type NextFunc func(last time.Time, n int) []time.Time

// DefaultHorizon is the number of bars projected when the caller does not
// choose: a quarter of the history, at least five bars.
func DefaultHorizon(bars int) int {
	return max(5, bars/4)
}

// Project fits drift and volatility to the per-bar log returns of equity
// and projects horizon bars past the last point. Points with non-positive
// equity are skipped when fitting. With fewer than two usable points the
// band is flat at the last equity.
func Project(equity []domain.EquityPoint, horizon int, next NextFunc) (domain.ProjectionBand, error) {
	if horizon <= 0 {
		return nil, fmt.Errorf("%w: horizon must be positive, got %d", domain.ErrInvalidHorizon, horizon)
	}
	if len(equity) == 0 {
		return nil, fmt.Errorf("%w: no equity to project", domain.ErrInsufficientData)
	}

	last := equity[len(equity)-1]
	mu, sigma := fit(equity)
	stamps := next(last.Timestamp, horizon)
	if len(stamps) != horizon {
		return nil, fmt.Errorf("calendar returned %d timestamps, want %d", len(stamps), horizon)
	}

	band := make(domain.ProjectionBand, horizon)
	for k := range band {
		t := float64(k + 1)
		drift := mu * t
		spread := Z * sigma * math.Sqrt(t)
		band[k] = domain.ProjectionPoint{
			Timestamp: stamps[k],
			Mid:       last.Equity * math.Exp(drift),
			Upper:     last.Equity * math.Exp(drift+spread),
			Lower:     last.Equity * math.Exp(drift-spread),
		}
	}
	return band, nil
}

// fit returns the mean and sample deviation of log returns between
// consecutive positive equity values.
func fit(equity []domain.EquityPoint) (mu, sigma float64) {
	var logs []float64
	prev := 0.0
	for _, p := range equity {
		if p.Equity <= 0 || math.IsNaN(p.Equity) || math.IsInf(p.Equity, 0) {
			continue
		}
		if prev > 0 {
			logs = append(logs, math.Log(p.Equity/prev))
		}
		prev = p.Equity
	}
	if len(logs) == 0 {
		return 0, 0
	}
	return perf.MeanStd(logs)
}
