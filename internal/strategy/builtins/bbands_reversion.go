package builtins

import (
	"fmt"

	"quantdesk/internal/domain"
	"quantdesk/internal/indicator"
	"quantdesk/internal/strategy"
)

const BBandsReversionName = "bbands_reversion"

var bbandsDefaults = strategy.Params{"period": 20, "stddev": 2}

// Compile-time interface check.
var _ strategy.Strategy = (*BBandsReversion)(nil)

// BBandsReversion buys when the close falls below the lower Bollinger band
// and sells once it recovers above the middle band.
type BBandsReversion struct {
	spec     indicator.Spec
	lowerCol string
	midCol   string
	long     bool
}

func NewBBandsReversion(params strategy.Params) (strategy.Strategy, error) {
	p, err := strategy.Resolve(bbandsDefaults, params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", BBandsReversionName, err)
	}
	spec := indicator.Spec{Name: "bbands", Params: indicator.Params{
		"period": p["period"], "stddev": p["stddev"],
	}}
	// upper, mid, lower
	cols, err := indicator.Columns(spec.Name, spec.Params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", BBandsReversionName, err)
	}
	return &BBandsReversion{spec: spec, midCol: cols[1], lowerCol: cols[2]}, nil
}

func (s *BBandsReversion) Name() string                 { return BBandsReversionName }
func (s *BBandsReversion) Indicators() []indicator.Spec { return []indicator.Spec{s.spec} }

func (s *BBandsReversion) Next(v *strategy.View) domain.Position {
	c := v.Close(0)
	switch {
	case !s.long && below(c, v.Value(s.lowerCol, 0)):
		s.long = true
	case s.long && above(c, v.Value(s.midCol, 0)):
		s.long = false
	}
	if s.long {
		return domain.PositionLong
	}
	return domain.PositionFlat
}
