// Package engine replays a position series against bar closes and records
// the resulting equity curve and trade ledger.
package engine

import (
	"fmt"
	"math"

	"quantdesk/internal/domain"
)

// Run is the output of one simulation.
type Run struct {
	Equity []domain.EquityPoint
	Trades []domain.Trade
}

// FinalEquity returns the last equity value, or 0 for an empty run.
func (r *Run) FinalEquity() float64 {
	if len(r.Equity) == 0 {
		return 0
	}
	return r.Equity[len(r.Equity)-1].Equity
}

// Simulate executes signals against bars starting from capital in cash.
//
// The position before the first bar is flat. A FLAT to LONG transition at
// bar i buys with all cash at close[i]; LONG to FLAT sells everything at
// close[i]. A position still open after the last bar is closed at its close
// and the trade is marked Forced. Bars with a non-finite or non-positive
// close cannot be traded on: the position carries over and equity is marked
// at the last usable price.
func Simulate(bars []domain.Bar, signals domain.Signals, capital float64) (*Run, error) {
	if capital <= 0 || math.IsNaN(capital) || math.IsInf(capital, 0) {
		return nil, fmt.Errorf("%w: capital must be positive, got %v", domain.ErrInvalidRequest, capital)
	}
	if len(bars) != len(signals) {
		return nil, fmt.Errorf("%w: %d bars but %d signals", domain.ErrInvalidRequest, len(bars), len(signals))
	}

	n := len(bars)
	run := &Run{Equity: make([]domain.EquityPoint, 0, n)}
	if n == 0 {
		return run, nil
	}

	acct := newAccount(capital)
	bh := newBuyAndHold(capital)
	var env envelope

	for i, bar := range bars {
		price := bar.Close
		tradable := usable(price)
		if tradable {
			acct.mark(price)
			bh.mark(price)
		}

		want := signals[i]
		if tradable {
			switch {
			case want == domain.PositionLong && !acct.long():
				acct.buy(i, bar)
			case want != domain.PositionLong && acct.long():
				run.Trades = append(run.Trades, acct.sell(i, bar, false))
			}
		}

		equity := acct.equity()
		lo, hi := equity, equity
		if acct.long() && usable(bar.Low) && usable(bar.High) {
			lo = acct.cash + acct.shares*bar.Low
			hi = acct.cash + acct.shares*bar.High
		}
		env.extend(lo, hi)

		run.Equity = append(run.Equity, domain.EquityPoint{
			Timestamp:     bar.Timestamp,
			Equity:        equity,
			BuyHoldEquity: bh.equity(),
			HighWater:     env.high,
			LowWater:      env.low,
		})
	}

	if acct.long() {
		run.Trades = append(run.Trades, acct.sell(n-1, bars[n-1], true))
	}
	return run, nil
}

func usable(price float64) bool {
	return price > 0 && !math.IsInf(price, 0)
}

// envelope tracks the running extremes of the intrabar equity range.
type envelope struct {
	high, low float64
	started   bool
}

func (e *envelope) extend(lo, hi float64) {
	if !e.started {
		e.low, e.high, e.started = lo, hi, true
		return
	}
	e.low = math.Min(e.low, lo)
	e.high = math.Max(e.high, hi)
}
