package strategy

import (
	"fmt"

	"quantdesk/internal/domain"
	"quantdesk/internal/indicator"
)

// Evaluate runs the named strategy over bars and returns one position per
// bar. ind may be nil; any indicator the strategy needs that is missing from
// ind is computed from bars. ind itself is never modified.
func Evaluate(reg *Registry, name string, bars []domain.Bar, ind domain.IndicatorSeries, params Params) (domain.Signals, error) {
	s, err := reg.New(name, params)
	if err != nil {
		return nil, err
	}
	return Run(s, bars, ind)
}

// Run drives an already constructed strategy over bars.
func Run(s Strategy, bars []domain.Bar, ind domain.IndicatorSeries) (domain.Signals, error) {
	merged, err := withRequired(s, bars, ind)
	if err != nil {
		return nil, fmt.Errorf("strategy %s: %w", s.Name(), err)
	}

	signals := make(domain.Signals, len(bars))
	v := &View{bars: bars, ind: merged}
	for i := range bars {
		v.i = i
		if s.Next(v) == domain.PositionLong {
			signals[i] = domain.PositionLong
		} else {
			signals[i] = domain.PositionFlat
		}
	}
	return signals, nil
}

func withRequired(s Strategy, bars []domain.Bar, ind domain.IndicatorSeries) (domain.IndicatorSeries, error) {
	merged := make(domain.IndicatorSeries, len(ind))
	merged.Merge(ind)

	for _, spec := range s.Indicators() {
		cols, err := indicator.Columns(spec.Name, spec.Params)
		if err != nil {
			return nil, err
		}
		if hasAll(merged, cols, len(bars)) {
			continue
		}
		out, err := indicator.Compute(spec.Name, spec.Params, bars)
		if err != nil {
			return nil, err
		}
		merged.Merge(out)
	}
	return merged, nil
}

func hasAll(ind domain.IndicatorSeries, cols []string, n int) bool {
	for _, c := range cols {
		if s, ok := ind[c]; !ok || len(s) != n {
			return false
		}
	}
	return true
}
