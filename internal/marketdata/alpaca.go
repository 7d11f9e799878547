package marketdata

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"quantdesk/internal/domain"
	"quantdesk/internal/util"
)

// Compile-time interface checks.
var _ Source = (*AlpacaSource)(nil)
var _ Universe = (*AlpacaUniverse)(nil)

// AlpacaOptions configures the Alpaca clients.
type AlpacaOptions struct {
	DataURL        string // market-data API; empty selects the SDK default
	BaseURL        string // trading API, used for assets and account checks
	Feed           string // stock feed, e.g. "sip" or "iex"
	RetryAttempts  int
	RetryBaseDelay time.Duration
}

// AlpacaSource fetches bars through the Alpaca market-data API. Stocks use
// split- and dividend-adjusted bars; crypto pairs use the crypto endpoint.
type AlpacaSource struct {
	client  *marketdata.Client
	limiter *util.RateLimiter
	opts    AlpacaOptions
	log     *slog.Logger
}

// NewAlpacaSource creates an AlpacaSource. limiter may be shared between
// sources and may be nil.
func NewAlpacaSource(creds domain.Credentials, opts AlpacaOptions, limiter *util.RateLimiter) *AlpacaSource {
	co := marketdata.ClientOpts{
		APIKey:    creds.APIKey,
		APISecret: creds.APISecret,
	}
	if opts.DataURL != "" {
		co.BaseURL = opts.DataURL
	}
	if opts.Feed == "" {
		opts.Feed = "sip"
	}
	if opts.RetryAttempts < 1 {
		opts.RetryAttempts = 3
	}

	return &AlpacaSource{
		client:  marketdata.NewClient(co),
		limiter: limiter,
		opts:    opts,
		log:     slog.Default().With("component", "alpaca-source"),
	}
}

// Bars implements Source. Transient failures are retried with exponential
// backoff; authentication failures are returned at once.
func (s *AlpacaSource) Bars(ctx context.Context, symbol string, iv domain.Interval, start, end time.Time) ([]domain.Bar, error) {
	resolved, crypto := ResolveSymbol(symbol)
	tf, err := timeFrame(iv)
	if err != nil {
		return nil, err
	}

	var bars []domain.Bar
	err = util.RetryIf(ctx, s.opts.RetryAttempts, s.opts.RetryBaseDelay, domain.Retryable, func() error {
		if err := s.limiter.Wait(ctx); err != nil {
			return classify("rate limit", err)
		}
		var ferr error
		if crypto {
			bars, ferr = s.cryptoBars(ctx, resolved, tf, start, end)
		} else {
			bars, ferr = s.stockBars(ctx, resolved, tf, start, end)
		}
		if ferr != nil {
			s.log.Debug("bar fetch failed", "symbol", resolved, "interval", iv, "err", ferr)
		}
		return ferr
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, domain.Cancelled(ctx)
		}
		return nil, fmt.Errorf("fetching %s: %w", symbol, err)
	}

	// Report bars under the caller's symbol.
	for i := range bars {
		bars[i].Symbol = strings.ToUpper(symbol)
	}
	return bars, nil
}

func (s *AlpacaSource) stockBars(ctx context.Context, symbol string, tf marketdata.TimeFrame, start, end time.Time) ([]domain.Bar, error) {
	raw, err := callCtx(ctx, func() ([]marketdata.Bar, error) {
		return s.client.GetBars(symbol, marketdata.GetBarsRequest{
			TimeFrame:  tf,
			Adjustment: "all",
			Start:      start,
			End:        end,
			Feed:       marketdata.Feed(s.opts.Feed),
		})
	})
	if err != nil {
		return nil, classify("GetBars "+symbol, err)
	}

	bars := make([]domain.Bar, 0, len(raw))
	for _, ab := range raw {
		bars = append(bars, domain.Bar{
			Symbol:     symbol,
			Timestamp:  ab.Timestamp,
			Open:       ab.Open,
			High:       ab.High,
			Low:        ab.Low,
			Close:      ab.Close,
			Volume:     int64(ab.Volume),
			TradeCount: int64(ab.TradeCount),
			VWAP:       ab.VWAP,
		})
	}
	return bars, nil
}

func (s *AlpacaSource) cryptoBars(ctx context.Context, symbol string, tf marketdata.TimeFrame, start, end time.Time) ([]domain.Bar, error) {
	raw, err := callCtx(ctx, func() ([]marketdata.CryptoBar, error) {
		return s.client.GetCryptoBars(symbol, marketdata.GetCryptoBarsRequest{
			TimeFrame: tf,
			Start:     start,
			End:       end,
		})
	})
	if err != nil {
		return nil, classify("GetCryptoBars "+symbol, err)
	}

	bars := make([]domain.Bar, 0, len(raw))
	for _, cb := range raw {
		bars = append(bars, domain.Bar{
			Symbol:     symbol,
			Timestamp:  cb.Timestamp,
			Open:       cb.Open,
			High:       cb.High,
			Low:        cb.Low,
			Close:      cb.Close,
			Volume:     int64(cb.Volume),
			TradeCount: int64(cb.TradeCount),
			VWAP:       cb.VWAP,
		})
	}
	return bars, nil
}

// timeFrame maps an interval to the SDK time frame.
func timeFrame(iv domain.Interval) (marketdata.TimeFrame, error) {
	switch iv {
	case domain.Interval1d:
		return marketdata.OneDay, nil
	case domain.Interval1h:
		return marketdata.NewTimeFrame(1, marketdata.Hour), nil
	case domain.Interval30m:
		return marketdata.NewTimeFrame(30, marketdata.Min), nil
	case domain.Interval15m:
		return marketdata.NewTimeFrame(15, marketdata.Min), nil
	case domain.Interval5m:
		return marketdata.NewTimeFrame(5, marketdata.Min), nil
	case domain.Interval1m:
		return marketdata.NewTimeFrame(1, marketdata.Min), nil
	}
	return marketdata.TimeFrame{}, fmt.Errorf("%w: unsupported interval %q", domain.ErrInvalidRequest, iv)
}

// callCtx runs a blocking SDK call and stops waiting for it when ctx is
// done. The SDK call itself cannot be interrupted and finishes in the
// background.
func callCtx[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	if err := ctx.Err(); err != nil {
		var zero T
		return zero, err
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()
	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case r := <-ch:
		return r.v, r.err
	}
}

// ---------------------------------------------------------------------------
// Trading API: universe and credential checks
// ---------------------------------------------------------------------------

// AlpacaUniverse lists active, tradable US equities.
type AlpacaUniverse struct {
	client *alpaca.Client
}

// NewAlpacaUniverse creates an AlpacaUniverse.
func NewAlpacaUniverse(creds domain.Credentials, opts AlpacaOptions) *AlpacaUniverse {
	return &AlpacaUniverse{client: tradingClient(creds, opts)}
}

// Symbols returns the sorted eligible symbols.
func (u *AlpacaUniverse) Symbols(ctx context.Context) ([]string, error) {
	assets, err := callCtx(ctx, func() ([]alpaca.Asset, error) {
		return u.client.GetAssets(alpaca.GetAssetsRequest{
			Status:     "active",
			AssetClass: "us_equity",
		})
	})
	if err != nil {
		return nil, classify("GetAssets", err)
	}

	symbols := make([]string, 0, len(assets))
	for _, a := range assets {
		if a.Tradable && eligible(a.Symbol) {
			symbols = append(symbols, a.Symbol)
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// CheckCredentials validates creds by fetching the trading account.
func CheckCredentials(ctx context.Context, creds domain.Credentials, opts AlpacaOptions) Health {
	if creds.Empty() {
		return Health{Status: "error", Error: "no market-data credentials"}
	}
	client := tradingClient(creds, opts)
	acct, err := callCtx(ctx, func() (*alpaca.Account, error) {
		return client.GetAccount()
	})
	if err != nil {
		return Health{Status: "error", Error: classify("GetAccount", err).Error()}
	}
	return Health{Status: "ok", CredentialsValid: true, AccountStatus: string(acct.Status)}
}

func tradingClient(creds domain.Credentials, opts AlpacaOptions) *alpaca.Client {
	co := alpaca.ClientOpts{
		APIKey:    creds.APIKey,
		APISecret: creds.APISecret,
	}
	if opts.BaseURL != "" {
		co.BaseURL = opts.BaseURL
	}
	return alpaca.NewClient(co)
}
