package builtins

import (
	"fmt"

	"quantdesk/internal/domain"
	"quantdesk/internal/indicator"
	"quantdesk/internal/strategy"
)

const RSIReversionName = "rsi_reversion"

var rsiDefaults = strategy.Params{"period": 14, "oversold": 30, "overbought": 70}

// Compile-time interface check.
var _ strategy.Strategy = (*RSIReversion)(nil)

// RSIReversion enters when RSI drops below the oversold level and holds
// until RSI rises above the overbought level.
type RSIReversion struct {
	period     int
	oversold   float64
	overbought float64
	col        string
	long       bool
}

// NewRSIReversion builds an RSIReversion. Levels must satisfy
// 0 <= oversold < overbought <= 100.
func NewRSIReversion(params strategy.Params) (strategy.Strategy, error) {
	p, err := strategy.Resolve(rsiDefaults, params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", RSIReversionName, err)
	}
	if err := wholePositive(p, "period"); err != nil {
		return nil, fmt.Errorf("%s: %w", RSIReversionName, err)
	}
	if p["period"] < 2 {
		return nil, fmt.Errorf("%w: %s period must be at least 2", domain.ErrInvalidParameter, RSIReversionName)
	}
	lo, hi := p["oversold"], p["overbought"]
	if lo < 0 || hi > 100 || lo >= hi {
		return nil, fmt.Errorf("%w: %s needs 0 <= oversold < overbought <= 100, got %v/%v",
			domain.ErrInvalidParameter, RSIReversionName, lo, hi)
	}
	period := int(p["period"])
	return &RSIReversion{
		period:     period,
		oversold:   lo,
		overbought: hi,
		col:        fmt.Sprintf("rsi_%d", period),
	}, nil
}

func (s *RSIReversion) Name() string { return RSIReversionName }

func (s *RSIReversion) Indicators() []indicator.Spec {
	return []indicator.Spec{{Name: "rsi", Params: indicator.Params{"period": float64(s.period)}}}
}

// Next keeps its current position while RSI is null.
func (s *RSIReversion) Next(v *strategy.View) domain.Position {
	rsi := v.Value(s.col, 0)
	if rsi.Valid {
		switch {
		case !s.long && rsi.Float64 < s.oversold:
			s.long = true
		case s.long && rsi.Float64 > s.overbought:
			s.long = false
		}
	}
	if s.long {
		return domain.PositionLong
	}
	return domain.PositionFlat
}
