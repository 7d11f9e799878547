package marketdata

import (
	"context"
	"log/slog"
	"time"

	"quantdesk/internal/domain"
	"quantdesk/internal/store"
)

// Compile-time interface check.
var _ Source = (*CachedSource)(nil)

// CachedSource is a read-through cache in front of another Source. Only
// ranges that ended before the previous UTC day are cached; recent data may
// still be revised by the provider.
type CachedSource struct {
	src   Source
	cache store.BarCache
	now   func() time.Time
	log   *slog.Logger
}

// NewCachedSource wraps src with cache.
func NewCachedSource(src Source, cache store.BarCache) *CachedSource {
	return &CachedSource{
		src:   src,
		cache: cache,
		now:   time.Now,
		log:   slog.Default().With("component", "bar-cache"),
	}
}

// Bars implements Source. Cache failures are logged and never fail the
// request.
func (c *CachedSource) Bars(ctx context.Context, symbol string, iv domain.Interval, start, end time.Time) ([]domain.Bar, error) {
	if !c.closed(end) {
		return c.src.Bars(ctx, symbol, iv, start, end)
	}

	resolved, _ := ResolveSymbol(symbol)
	key := store.BarKey{Symbol: resolved, Interval: iv, Start: start, End: end}
	if bars, hit, err := c.cache.GetBars(ctx, key); err != nil {
		c.log.Warn("cache read failed", "symbol", resolved, "err", err)
	} else if hit {
		return bars, nil
	}

	bars, err := c.src.Bars(ctx, symbol, iv, start, end)
	if err != nil {
		return nil, err
	}
	if err := c.cache.PutBars(ctx, key, bars); err != nil {
		c.log.Warn("cache write failed", "symbol", resolved, "err", err)
	}
	return bars, nil
}

func (c *CachedSource) closed(end time.Time) bool {
	today := c.now().UTC().Truncate(24 * time.Hour)
	return end.Before(today.AddDate(0, 0, -1))
}
