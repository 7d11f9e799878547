package backtest

import (
	"fmt"
	"math"
	"strings"
	"time"

	"quantdesk/internal/domain"
	"quantdesk/internal/indicator"
	"quantdesk/internal/marketdata"
	"quantdesk/internal/strategy"
)

// Request is the BacktestRequest wire contract.
type Request struct {
	Symbol           string             `json:"symbol"`
	Interval         string             `json:"interval,omitempty"`
	StartDate        string             `json:"start_date"`
	EndDate          string             `json:"end_date"`
	StartingCapital  float64            `json:"starting_capital"`
	StrategyName     string             `json:"strategy_name"`
	StrategyParams   strategy.Params    `json:"strategy_params,omitempty"`
	ActiveIndicators []string           `json:"active_indicators,omitempty"`
	HorizonBars      *int               `json:"horizon_bars,omitempty"`
	Credentials      domain.Credentials `json:"market_data_credentials"`
}

// Redacted returns a copy of r without credentials, safe to log or store.
func (r Request) Redacted() Request {
	r.Credentials = domain.Credentials{}
	return r
}

// plan is a validated request.
type plan struct {
	symbol     string
	crypto     bool
	interval   domain.Interval
	start, end time.Time
	capital    float64
	strategy   strategy.Strategy
	indicators []indicator.Spec
	horizon    int // 0 selects the default
	minBars    int
}

const dateLayout = "2006-01-02"

// parseDate accepts a calendar date or an RFC 3339 timestamp. A bare date
// used as an end bound covers the whole day.
func parseDate(field, s string, endOfDay bool) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: %s is required", domain.ErrInvalidRequest, field)
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		if endOfDay {
			t = t.Add(24*time.Hour - time.Second)
		}
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s %q is not a date (want YYYY-MM-DD or RFC 3339)", domain.ErrInvalidRequest, field, s)
	}
	return t.UTC(), nil
}

// validate checks every field and builds the strategy instance for the run.
func validate(req Request, reg *strategy.Registry) (*plan, error) {
	p := &plan{}

	p.symbol = strings.TrimSpace(req.Symbol)
	if p.symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", domain.ErrInvalidRequest)
	}
	p.crypto = marketdata.IsCrypto(p.symbol)

	var err error
	if p.start, err = parseDate("start_date", req.StartDate, false); err != nil {
		return nil, err
	}
	if p.end, err = parseDate("end_date", req.EndDate, true); err != nil {
		return nil, err
	}
	if !p.start.Before(p.end) {
		return nil, fmt.Errorf("%w: start_date %s must be before end_date %s", domain.ErrInvalidRequest, req.StartDate, req.EndDate)
	}

	c := req.StartingCapital
	if c <= 0 || math.IsNaN(c) || math.IsInf(c, 0) {
		return nil, fmt.Errorf("%w: starting_capital must be positive, got %v", domain.ErrInvalidRequest, c)
	}
	p.capital = c

	if p.interval, err = domain.ParseInterval(req.Interval); err != nil {
		return nil, fmt.Errorf("interval: %w", err)
	}

	name := strings.TrimSpace(req.StrategyName)
	if name == "" {
		return nil, fmt.Errorf("%w: strategy_name is required", domain.ErrInvalidRequest)
	}
	if p.strategy, err = reg.New(name, req.StrategyParams); err != nil {
		return nil, fmt.Errorf("strategy_name: %w", err)
	}

	for _, raw := range req.ActiveIndicators {
		spec, err := indicator.ParseSpec(raw)
		if err != nil {
			return nil, fmt.Errorf("active_indicators: %w", err)
		}
		p.indicators = append(p.indicators, spec)
	}

	if req.HorizonBars != nil {
		if *req.HorizonBars <= 0 {
			return nil, fmt.Errorf("%w: horizon_bars must be positive, got %d", domain.ErrInvalidHorizon, *req.HorizonBars)
		}
		p.horizon = *req.HorizonBars
	}

	warmup, err := strategy.Warmup(p.strategy)
	if err != nil {
		return nil, fmt.Errorf("strategy_name: %w", err)
	}
	for _, spec := range p.indicators {
		lb, err := indicator.Lookback(spec.Name, spec.Params)
		if err != nil {
			return nil, fmt.Errorf("active_indicators: %w", err)
		}
		warmup = max(warmup, lb)
	}
	p.minBars = max(2, warmup+1)
	return p, nil
}
