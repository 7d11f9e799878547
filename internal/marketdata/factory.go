package marketdata

import (
	"context"
	"fmt"

	"quantdesk/internal/domain"
	"quantdesk/internal/store"
	"quantdesk/internal/util"
)

// Provider resolves market-data collaborators for a caller's credentials.
type Provider interface {
	Source(creds domain.Credentials) (Source, error)
	Universe(creds domain.Credentials) (Universe, error)
	Health(ctx context.Context, creds domain.Credentials) Health
}

// Compile-time interface check.
var _ Provider = (*Factory)(nil)

// Factory builds Alpaca-backed collaborators. Request credentials take
// precedence over the configured defaults.
type Factory struct {
	defaults domain.Credentials
	opts     AlpacaOptions
	limiter  *util.RateLimiter
	cache    store.BarCache
}

// NewFactory creates a Factory. limiter is shared by every source it
// builds; cache may be nil to disable caching.
func NewFactory(defaults domain.Credentials, opts AlpacaOptions, limiter *util.RateLimiter, cache store.BarCache) *Factory {
	return &Factory{defaults: defaults, opts: opts, limiter: limiter, cache: cache}
}

func (f *Factory) credentials(req domain.Credentials) (domain.Credentials, error) {
	if !req.Empty() {
		return req, nil
	}
	if !f.defaults.Empty() {
		return f.defaults, nil
	}
	return domain.Credentials{}, fmt.Errorf("%w: no market-data credentials supplied or configured", domain.ErrDataUnavailable)
}

// Source returns a bar source for creds.
func (f *Factory) Source(creds domain.Credentials) (Source, error) {
	c, err := f.credentials(creds)
	if err != nil {
		return nil, err
	}
	var src Source = NewAlpacaSource(c, f.opts, f.limiter)
	if f.cache != nil {
		src = NewCachedSource(src, f.cache)
	}
	return src, nil
}

// Universe returns the tradable-universe lister for creds.
func (f *Factory) Universe(creds domain.Credentials) (Universe, error) {
	c, err := f.credentials(creds)
	if err != nil {
		return nil, err
	}
	return NewAlpacaUniverse(c, f.opts), nil
}

// Health checks creds (or the defaults) against the trading API.
func (f *Factory) Health(ctx context.Context, creds domain.Credentials) Health {
	c, err := f.credentials(creds)
	if err != nil {
		return Health{Status: "error", Error: err.Error()}
	}
	return CheckCredentials(ctx, c, f.opts)
}
