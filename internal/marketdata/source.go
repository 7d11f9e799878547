// Package marketdata fetches historical bars and the tradable universe from
// the market-data provider.
package marketdata

import (
	"context"
	"strings"
	"time"

	"quantdesk/internal/domain"
)

// Source returns bars for one symbol over [start, end] at an interval.
// Implementations return bars in any order; callers normalize them.
type Source interface {
	Bars(ctx context.Context, symbol string, iv domain.Interval, start, end time.Time) ([]domain.Bar, error)
}

// Universe lists the symbols eligible for cross-sectional scans.
type Universe interface {
	Symbols(ctx context.Context) ([]string, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, symbol string, iv domain.Interval, start, end time.Time) ([]domain.Bar, error)

func (f SourceFunc) Bars(ctx context.Context, symbol string, iv domain.Interval, start, end time.Time) ([]domain.Bar, error) {
	return f(ctx, symbol, iv, start, end)
}

// Health is the result of a credential check.
type Health struct {
	Status           string `json:"status"`
	CredentialsValid bool   `json:"credentials_valid"`
	AccountStatus    string `json:"account_status,omitempty"`
	Error            string `json:"error,omitempty"`
}

// Index and ticker aliases that the provider does not serve directly.
var aliases = map[string]string{
	"^GSPC":   "SPY",
	"^SPX":    "SPY",
	"^DJI":    "DIA",
	"^IXIC":   "QQQ",
	"^NDX":    "QQQ",
	"BTC-USD": "BTC/USD",
	"ETH-USD": "ETH/USD",
}

var cryptoPairs = map[string]bool{
	"BTC/USD":  true,
	"ETH/USD":  true,
	"SOL/USD":  true,
	"LTC/USD":  true,
	"DOGE/USD": true,
}

// ResolveSymbol maps a user-facing symbol to the provider symbol and reports
// whether it is a crypto pair. Known pairs written with a dash
// ("SOL-USD") are accepted too.
func ResolveSymbol(symbol string) (resolved string, crypto bool) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if a, ok := aliases[s]; ok {
		s = a
	}
	if dashed := strings.Replace(s, "-", "/", 1); cryptoPairs[dashed] {
		s = dashed
	}
	return s, strings.Contains(s, "/")
}

// IsCrypto reports whether symbol resolves to a crypto pair.
func IsCrypto(symbol string) bool {
	_, crypto := ResolveSymbol(symbol)
	return crypto
}

// eligible applies the heatmap universe filter: plain tickers of at most
// five characters, no share classes or pairs.
func eligible(symbol string) bool {
	return symbol != "" && len(symbol) <= 5 && !strings.ContainsAny(symbol, "/.")
}
