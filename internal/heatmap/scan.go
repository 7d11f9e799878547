package heatmap

import (
	"context"
	"fmt"

	"quantdesk/internal/domain"
	"quantdesk/internal/marketdata"
)

// Request asks for a heatmap over Symbols, or over the provider's tradable
// universe when Symbols is empty.
type Request struct {
	Credentials domain.Credentials `json:"market_data_credentials"`
	Symbols     []string           `json:"symbols,omitempty"`
}

// Change is the wire form of one heatmap entry.
type Change struct {
	Price domain.NullFloat `json:"price"`
	D1    domain.NullFloat `json:"1D"`
	W1    domain.NullFloat `json:"1W"`
	M1    domain.NullFloat `json:"1M"`
	Y1    domain.NullFloat `json:"1Y"`
}

// Result is the heatmap wire contract. Entries keeps universe order.
type Result struct {
	Symbols map[string]Change `json:"symbols"`
	Count   int               `json:"count"`

	Entries []domain.HeatmapEntry `json:"-"`
}

// NewResult converts entries into a Result.
func NewResult(entries []domain.HeatmapEntry) *Result {
	r := &Result{
		Symbols: make(map[string]Change, len(entries)),
		Count:   len(entries),
		Entries: entries,
	}
	for _, e := range entries {
		r.Symbols[e.Symbol] = Change{Price: e.Price, D1: e.Change1D, W1: e.Change1W, M1: e.Change1M, Y1: e.Change1Y}
	}
	return r
}

// Provider resolves the collaborators a scan needs.
type Provider interface {
	Source(creds domain.Credentials) (marketdata.Source, error)
	Universe(creds domain.Credentials) (marketdata.Universe, error)
}

// Scan resolves the universe for req and aggregates it.
func (a *Aggregator) Scan(ctx context.Context, p Provider, req Request, progress ProgressFunc) (*Result, error) {
	src, err := p.Source(req.Credentials)
	if err != nil {
		return nil, err
	}

	symbols := NormalizeSymbols(req.Symbols)
	if len(symbols) == 0 {
		u, err := p.Universe(req.Credentials)
		if err != nil {
			return nil, err
		}
		if symbols, err = u.Symbols(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, domain.Cancelled(ctx)
			}
			return nil, fmt.Errorf("listing universe: %w", err)
		}
	}

	entries, err := a.Aggregate(ctx, src, symbols, progress)
	if err != nil {
		return nil, err
	}
	return NewResult(entries), nil
}
