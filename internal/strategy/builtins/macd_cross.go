package builtins

import (
	"fmt"

	"quantdesk/internal/domain"
	"quantdesk/internal/indicator"
	"quantdesk/internal/strategy"
)

const MACDCrossName = "macd_cross"

var macdDefaults = strategy.Params{"fast": 12, "slow": 26, "signal": 9}

// Compile-time interface check.
var _ strategy.Strategy = (*MACDCross)(nil)

// MACDCross is long while the MACD line is above its signal line.
type MACDCross struct {
	spec      indicator.Spec
	macdCol   string
	signalCol string
}

func NewMACDCross(params strategy.Params) (strategy.Strategy, error) {
	p, err := strategy.Resolve(macdDefaults, params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", MACDCrossName, err)
	}
	if err := wholePositive(p, "fast", "slow", "signal"); err != nil {
		return nil, fmt.Errorf("%s: %w", MACDCrossName, err)
	}
	spec := indicator.Spec{Name: "macd", Params: indicator.Params{
		"fast": p["fast"], "slow": p["slow"], "signal": p["signal"],
	}}
	cols, err := indicator.Columns(spec.Name, spec.Params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", MACDCrossName, err)
	}
	return &MACDCross{spec: spec, macdCol: cols[0], signalCol: cols[1]}, nil
}

func (s *MACDCross) Name() string                 { return MACDCrossName }
func (s *MACDCross) Indicators() []indicator.Spec { return []indicator.Spec{s.spec} }

func (s *MACDCross) Next(v *strategy.View) domain.Position {
	if above(v.Value(s.macdCol, 0), v.Value(s.signalCol, 0)) {
		return domain.PositionLong
	}
	return domain.PositionFlat
}
