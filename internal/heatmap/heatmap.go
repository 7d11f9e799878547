// Package heatmap computes trailing price changes for a universe of
// symbols, fetching their daily history in bounded concurrent batches.
package heatmap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"quantdesk/internal/domain"
	"quantdesk/internal/marketdata"
	"quantdesk/internal/perf"
)

// DefaultBatchSize bounds the number of symbols fetched concurrently.
const DefaultBatchSize = 50

const (
	historyDays = 370
	// A window is only reported when the history reaches within this
	// distance of its cutoff.
	maxCutoffGap = 5 * 24 * time.Hour
)

// Trailing windows, measured back from now.
var windows = []struct {
	name string
	back time.Duration
}{
	{"1D", 2 * 24 * time.Hour},
	{"1W", 7 * 24 * time.Hour},
	{"1M", 30 * 24 * time.Hour},
	{"1Y", 365 * 24 * time.Hour},
}

// Aggregator builds heatmap entries. The zero value is not usable; call
// NewAggregator.
type Aggregator struct {
	BatchSize int

	now func() time.Time
	log *slog.Logger
}

// NewAggregator returns an Aggregator with the given batch size; values
// below 1 select DefaultBatchSize.
func NewAggregator(batchSize int, log *slog.Logger) *Aggregator {
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	if log == nil {
		log = slog.Default()
	}
	return &Aggregator{
		BatchSize: batchSize,
		now:       time.Now,
		log:       log.With("component", "heatmap"),
	}
}

// Aggregate fetches every symbol in universe and returns one entry per
// symbol in universe order. A symbol that fails to load yields an entry
// with null fields, unless every symbol was refused as unavailable (for
// example rejected credentials), which fails the whole run. Batches run one after another; symbols inside a batch
// are fetched concurrently. progress may be nil.
func (a *Aggregator) Aggregate(ctx context.Context, src marketdata.Source, universe []string, progress ProgressFunc) ([]domain.HeatmapEntry, error) {
	if progress == nil {
		progress = func(Progress) {}
	}
	now := a.now()
	start := now.Add(-historyDays * 24 * time.Hour)

	batches := split(universe, a.BatchSize)
	tracker := newTracker(len(universe), len(batches), progress)
	tracker.emit(StageSymbols, 0)

	entries := make([]domain.HeatmapEntry, len(universe))
	runStart := time.Now()
	failed := 0
	denied := 0 // permanent data-unavailable failures, such as rejected credentials
	var deniedErr error

	for bi, batch := range batches {
		if ctx.Err() != nil {
			return nil, domain.Cancelled(ctx)
		}
		tracker.emit(StageBatchStart, bi+1)

		offset := bi * a.BatchSize
		errs := make([]error, len(batch))
		var g errgroup.Group
		g.SetLimit(a.BatchSize)
		for i, sym := range batch {
			g.Go(func() error {
				entries[offset+i], errs[i] = a.entry(ctx, src, sym, start, now)
				return nil
			})
		}
		_ = g.Wait()

		if ctx.Err() != nil {
			return nil, domain.Cancelled(ctx)
		}
		for i, err := range errs {
			if err != nil {
				failed++
				if errors.Is(err, domain.ErrDataUnavailable) && !domain.Retryable(err) {
					denied++
					deniedErr = err
				}
				a.log.Warn("symbol failed", "symbol", batch[i], "err", err)
			}
		}

		tracker.add(len(batch))
		tracker.emit(StageBatchDone, bi+1)
		a.log.Debug("batch done",
			"batch", fmt.Sprintf("%d/%d", bi+1, len(batches)),
			"elapsed", time.Since(runStart).Round(time.Millisecond),
		)
	}

	if denied > 0 && denied == len(universe) {
		return nil, fmt.Errorf("all %d symbols unavailable: %w", denied, deniedErr)
	}

	tracker.emit(StageDone, len(batches))
	a.log.Info("heatmap complete",
		"symbols", len(universe),
		"failed", failed,
		"elapsed", time.Since(runStart).Round(time.Millisecond),
	)
	return entries, nil
}

// entry loads one symbol. On error the returned entry still carries the
// symbol with null values.
func (a *Aggregator) entry(ctx context.Context, src marketdata.Source, symbol string, start, now time.Time) (domain.HeatmapEntry, error) {
	e := domain.HeatmapEntry{Symbol: symbol}
	bars, err := src.Bars(ctx, symbol, domain.Interval1d, start, now)
	if err != nil {
		return e, err
	}
	return Changes(symbol, domain.NormalizeBars(bars), now), nil
}

// Changes computes the latest price and the trailing window changes of
// chronologically sorted daily bars, as of now.
func Changes(symbol string, bars []domain.Bar, now time.Time) domain.HeatmapEntry {
	e := domain.HeatmapEntry{Symbol: symbol}
	if len(bars) == 0 {
		return e
	}
	last := bars[len(bars)-1].Close
	e.Price = domain.Some(perf.RoundTo(last, perf.SummaryPlaces))

	out := []*domain.NullFloat{&e.Change1D, &e.Change1W, &e.Change1M, &e.Change1Y}
	for i, w := range windows {
		*out[i] = change(bars, last, now.Add(-w.back))
	}
	return e
}

// change returns the percent move from the open of the first bar at or
// after cutoff to last.
func change(bars []domain.Bar, last float64, cutoff time.Time) domain.NullFloat {
	for _, b := range bars {
		if b.Timestamp.Before(cutoff) {
			continue
		}
		if b.Timestamp.Sub(cutoff) > maxCutoffGap || b.Open <= 0 {
			return domain.Null()
		}
		return domain.Some(perf.RoundTo((last-b.Open)/b.Open*100, perf.SummaryPlaces))
	}
	return domain.Null()
}

func split(symbols []string, size int) [][]string {
	var out [][]string
	for i := 0; i < len(symbols); i += size {
		out = append(out, symbols[i:min(i+size, len(symbols))])
	}
	return out
}

// NormalizeSymbols upper-cases, trims and de-duplicates symbols, keeping
// first-seen order and dropping blanks.
func NormalizeSymbols(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
