package builtins

import (
	"fmt"

	"quantdesk/internal/domain"
	"quantdesk/internal/indicator"
	"quantdesk/internal/strategy"
)

// AlwaysLongName is the registry name of AlwaysLong.
const AlwaysLongName = "always_long"

// Compile-time interface check.
var _ strategy.Strategy = (*AlwaysLong)(nil)

// AlwaysLong buys on the first bar and never sells. Its result equals
// buy-and-hold and makes a useful baseline.
type AlwaysLong struct{}

// NewAlwaysLong accepts no parameters.
func NewAlwaysLong(params strategy.Params) (strategy.Strategy, error) {
	if len(params) > 0 {
		return nil, fmt.Errorf("%w: %s takes no parameters", domain.ErrInvalidParameter, AlwaysLongName)
	}
	return &AlwaysLong{}, nil
}

func (s *AlwaysLong) Name() string                 { return AlwaysLongName }
func (s *AlwaysLong) Indicators() []indicator.Spec { return nil }
func (s *AlwaysLong) Next(*strategy.View) domain.Position {
	return domain.PositionLong
}
