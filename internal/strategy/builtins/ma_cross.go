package builtins

import (
	"fmt"

	"quantdesk/internal/domain"
	"quantdesk/internal/indicator"
	"quantdesk/internal/strategy"
)

const (
	SMACrossName = "sma_cross"
	EMACrossName = "ema_cross"
)

// Compile-time interface check.
var _ strategy.Strategy = (*MACross)(nil)

// MACross implements a moving average crossover. It is long while the
// fast average is above the slow one and flat otherwise, including while
// either average is still warming up.
type MACross struct {
	name    string
	kind    string
	fast    int
	slow    int
	fastCol string
	slowCol string
}

func maCrossDefaults(name string) strategy.Params {
	if name == EMACrossName {
		return strategy.Params{"fast": 12, "slow": 26}
	}
	return strategy.Params{"fast": 20, "slow": 50}
}

// NewSMACross builds a simple moving average crossover.
func NewSMACross(params strategy.Params) (strategy.Strategy, error) {
	return newMACross(SMACrossName, "sma", params)
}

// NewEMACross builds an exponential moving average crossover.
func NewEMACross(params strategy.Params) (strategy.Strategy, error) {
	return newMACross(EMACrossName, "ema", params)
}

func newMACross(name, kind string, params strategy.Params) (*MACross, error) {
	p, err := strategy.Resolve(maCrossDefaults(name), params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if err := wholePositive(p, "fast", "slow"); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	fast, slow := int(p["fast"]), int(p["slow"])
	if fast >= slow {
		return nil, fmt.Errorf("%w: %s fast (%d) must be less than slow (%d)", domain.ErrInvalidParameter, name, fast, slow)
	}
	return &MACross{
		name:    name,
		kind:    kind,
		fast:    fast,
		slow:    slow,
		fastCol: fmt.Sprintf("%s_%d", kind, fast),
		slowCol: fmt.Sprintf("%s_%d", kind, slow),
	}, nil
}

// Name returns the registry name.
func (s *MACross) Name() string { return s.name }

// Indicators requests the fast and slow averages.
func (s *MACross) Indicators() []indicator.Spec {
	return []indicator.Spec{
		{Name: s.kind, Params: indicator.Params{"period": float64(s.fast)}},
		{Name: s.kind, Params: indicator.Params{"period": float64(s.slow)}},
	}
}

// Next is long while fast > slow.
func (s *MACross) Next(v *strategy.View) domain.Position {
	if above(v.Value(s.fastCol, 0), v.Value(s.slowCol, 0)) {
		return domain.PositionLong
	}
	return domain.PositionFlat
}
