// Package backtest validates a backtest request, fetches its price history
// and drives indicators, strategy, simulation, analysis and projection to
// produce one complete result.
package backtest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"quantdesk/internal/domain"
	"quantdesk/internal/engine"
	"quantdesk/internal/indicator"
	"quantdesk/internal/marketdata"
	"quantdesk/internal/perf"
	"quantdesk/internal/projection"
	"quantdesk/internal/store"
	"quantdesk/internal/strategy"
	"quantdesk/internal/util"
)

// SourceProvider resolves a bar source for request credentials.
type SourceProvider interface {
	Source(creds domain.Credentials) (marketdata.Source, error)
}

// Backtester runs backtests. It holds no per-run state and is safe for
// concurrent use.
type Backtester struct {
	provider SourceProvider
	registry *strategy.Registry
	calendar *util.TradingCalendar
	runs     store.RunLog
	now      func() time.Time
	log      *slog.Logger
}

// Option configures a Backtester.
type Option func(*Backtester)

// WithRunLog records every successful run in log.
func WithRunLog(log store.RunLog) Option {
	return func(b *Backtester) { b.runs = log }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Backtester) { b.log = l }
}

// WithClock replaces time.Now, used to clamp end dates in the future.
func WithClock(now func() time.Time) Option {
	return func(b *Backtester) { b.now = now }
}

// NewBacktester creates a Backtester that reads bars through provider and
// looks up strategies in registry.
func NewBacktester(provider SourceProvider, registry *strategy.Registry, cal *util.TradingCalendar, opts ...Option) *Backtester {
	b := &Backtester{
		provider: provider,
		registry: registry,
		calendar: cal,
		now:      time.Now,
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(b)
	}
	b.log = b.log.With("component", "backtest")
	return b
}

// Run executes one backtest. It returns either a complete Result or an
// error whose kind is one of the domain sentinels.
func (b *Backtester) Run(ctx context.Context, req Request) (*Result, error) {
	started := time.Now()

	p, err := validate(req, b.registry)
	if err != nil {
		return nil, err
	}
	if now := b.now(); p.end.After(now) {
		p.end = now
		if !p.start.Before(p.end) {
			return nil, fmt.Errorf("%w: start_date %s is in the future", domain.ErrInvalidRequest, req.StartDate)
		}
	}

	src, err := b.provider.Source(req.Credentials)
	if err != nil {
		return nil, err
	}

	fetched, err := src.Bars(ctx, p.symbol, p.interval, p.start, p.end)
	if err != nil {
		if ctx.Err() != nil {
			return nil, domain.Cancelled(ctx)
		}
		return nil, fmt.Errorf("symbol %s: %w", p.symbol, err)
	}
	bars := domain.NormalizeBars(fetched)
	if len(bars) < p.minBars {
		return nil, fmt.Errorf("%w: %s %s from %s to %s returned %d bars, need at least %d",
			domain.ErrInsufficientData, p.symbol, p.interval,
			p.start.Format(dateLayout), p.end.Format(dateLayout), len(bars), p.minBars)
	}

	raw, chartCols, err := b.pipeline(ctx, p, bars)
	if err != nil {
		return nil, err
	}
	res := assemble(p.interval, raw, chartCols)

	if b.runs != nil {
		res.RunID = b.record(ctx, req, p, raw.Performance)
	}

	b.log.Info("backtest complete",
		"symbol", p.symbol,
		"interval", p.interval,
		"strategy", p.strategy.Name(),
		"bars", len(bars),
		"trades", len(raw.Run.Trades),
		"elapsed", time.Since(started).Round(time.Millisecond),
	)
	return res, nil
}

// pipeline runs indicators, strategy, simulation, analysis and projection
// in order, checking for cancellation between stages.
func (b *Backtester) pipeline(ctx context.Context, p *plan, bars []domain.Bar) (*Raw, []string, error) {
	cancelled := func() error {
		if ctx.Err() != nil {
			return domain.Cancelled(ctx)
		}
		return nil
	}

	specs := append(append([]indicator.Spec(nil), p.indicators...), p.strategy.Indicators()...)
	ind, err := indicator.ComputeAll(specs, bars)
	if err != nil {
		return nil, nil, fmt.Errorf("indicators: %w", err)
	}
	var chartCols []string
	for _, spec := range specs {
		cols, err := indicator.Columns(spec.Name, spec.Params)
		if err != nil {
			return nil, nil, fmt.Errorf("indicators: %w", err)
		}
		chartCols = append(chartCols, cols...)
	}
	if err := cancelled(); err != nil {
		return nil, nil, err
	}

	signals, err := strategy.Run(p.strategy, bars, ind)
	if err != nil {
		return nil, nil, err
	}
	if err := cancelled(); err != nil {
		return nil, nil, err
	}

	run, err := engine.Simulate(bars, signals, p.capital)
	if err != nil {
		return nil, nil, fmt.Errorf("simulation: %w", err)
	}
	summary := perf.Analyze(run.Equity, run.Trades, p.capital, p.interval.BarsPerYear(p.crypto))
	if err := cancelled(); err != nil {
		return nil, nil, err
	}

	horizon := p.horizon
	if horizon == 0 {
		horizon = projection.DefaultHorizon(len(bars))
	}
	next := func(last time.Time, n int) []time.Time {
		return b.calendar.NextBars(last, p.interval, p.crypto, n)
	}
	band, err := projection.Project(run.Equity, horizon, next)
	if err != nil {
		return nil, nil, fmt.Errorf("projection: %w", err)
	}

	return &Raw{
		Bars:        bars,
		Indicators:  ind,
		Signals:     signals,
		Run:         run,
		Performance: summary,
		Projection:  band,
	}, chartCols, nil
}

// record stores the run and returns its ID, or "" when storing failed.
func (b *Backtester) record(ctx context.Context, req Request, p *plan, summary domain.PerformanceSummary) string {
	body, err := json.Marshal(req.Redacted())
	if err != nil {
		b.log.Warn("encoding run request failed", "err", err)
		return ""
	}
	rec := &store.RunRecord{
		Symbol:      p.symbol,
		Interval:    string(p.interval),
		Strategy:    p.strategy.Name(),
		Request:     body,
		Performance: perf.Round(summary),
	}
	if err := b.runs.SaveRun(context.WithoutCancel(ctx), rec); err != nil {
		b.log.Warn("recording run failed", "symbol", p.symbol, "err", err)
		return ""
	}
	return rec.ID
}
