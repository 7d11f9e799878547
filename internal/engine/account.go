package engine

import (
	"quantdesk/internal/domain"
)

// account is a single-symbol, long-only cash ledger.
type account struct {
	cash   float64
	shares float64
	last   float64 // last usable mark price

	entryIndex int
	entryBar   domain.Bar
}

func newAccount(capital float64) *account {
	return &account{cash: capital}
}

func (a *account) long() bool { return a.shares > 0 }

func (a *account) mark(price float64) { a.last = price }

func (a *account) equity() float64 {
	return a.cash + a.shares*a.last
}

// buy converts all cash into fractional shares at the bar close.
func (a *account) buy(i int, bar domain.Bar) {
	a.shares = a.cash / bar.Close
	a.cash = 0
	a.entryIndex = i
	a.entryBar = bar
}

// sell liquidates the position at the bar close and returns the closed trade.
func (a *account) sell(i int, bar domain.Bar, forced bool) domain.Trade {
	entry, exit := a.entryBar.Close, a.last
	t := domain.Trade{
		EntryIndex: a.entryIndex,
		ExitIndex:  i,
		EntryTime:  a.entryBar.Timestamp,
		ExitTime:   bar.Timestamp,
		EntryPrice: entry,
		ExitPrice:  exit,
		Shares:     a.shares,
		Side:       domain.TradeSideLong,
		PnL:        a.shares * (exit - entry),
		ReturnPct:  (exit/entry - 1) * 100,
		Forced:     forced,
	}
	a.cash += a.shares * exit
	a.shares = 0
	return t
}

// buyAndHold invests capital at the first usable close and never trades.
type buyAndHold struct {
	capital float64
	shares  float64
	last    float64
}

func newBuyAndHold(capital float64) *buyAndHold {
	return &buyAndHold{capital: capital}
}

func (b *buyAndHold) mark(price float64) {
	if b.shares == 0 {
		b.shares = b.capital / price
	}
	b.last = price
}

func (b *buyAndHold) equity() float64 {
	if b.shares == 0 {
		return b.capital
	}
	return b.shares * b.last
}
