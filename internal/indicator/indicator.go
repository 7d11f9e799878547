// Package indicator computes technical indicator series over bar data.
//
// Every indicator is a pure function of its bars and parameters. Outputs are
// aligned index-for-index with the input bars; warm-up positions and
// positions whose inputs are not finite are null.
package indicator

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"quantdesk/internal/domain"
)

// Params holds named numeric indicator parameters, e.g. {"period": 20}.
type Params map[string]float64

// Clone returns a copy of p that is safe to modify.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Spec names one indicator invocation.
type Spec struct {
	Name   string
	Params Params
}

// String renders s in the request form, e.g. "sma:50" or "macd:12,26,9".
func (s Spec) String() string {
	def, ok := definitions[s.Name]
	if !ok || len(s.Params) == 0 {
		return s.Name
	}
	vals := make([]string, 0, len(def.order))
	for _, k := range def.order {
		v, ok := s.Params[k]
		if !ok {
			v = def.defaults[k]
		}
		vals = append(vals, strconv.FormatFloat(v, 'f', -1, 64))
	}
	return s.Name + ":" + strings.Join(vals, ",")
}

// Info describes an indicator for discovery endpoints.
type Info struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Params      []string `json:"params"`
	Defaults    Params   `json:"defaults"`
	Outputs     []string `json:"outputs"`
}

// Compute evaluates the named indicator over bars.
func Compute(name string, params Params, bars []domain.Bar) (domain.IndicatorSeries, error) {
	def, p, err := resolve(name, params)
	if err != nil {
		return nil, err
	}
	return def.compute(p, bars), nil
}

// ComputeAll evaluates every spec and merges the outputs into one set.
func ComputeAll(specs []Spec, bars []domain.Bar) (domain.IndicatorSeries, error) {
	out := make(domain.IndicatorSeries)
	for _, s := range specs {
		series, err := Compute(s.Name, s.Params, bars)
		if err != nil {
			return nil, err
		}
		out.Merge(series)
	}
	return out, nil
}

// Lookback returns the number of leading null outputs the indicator
// produces over an unbroken run of finite input.
func Lookback(name string, params Params) (int, error) {
	def, p, err := resolve(name, params)
	if err != nil {
		return 0, err
	}
	return def.lookback(p), nil
}

// Columns returns the output column names the indicator produces.
func Columns(name string, params Params) ([]string, error) {
	def, p, err := resolve(name, params)
	if err != nil {
		return nil, err
	}
	return def.columns(p), nil
}

// Validate checks that name is known and params are acceptable.
func Validate(name string, params Params) error {
	_, _, err := resolve(name, params)
	return err
}

// Names lists the built-in indicators in sorted order.
func Names() []string {
	names := make([]string, 0, len(definitions))
	for name := range definitions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe returns discovery information for every indicator, sorted.
func Describe() []Info {
	names := Names()
	out := make([]Info, 0, len(names))
	for _, name := range names {
		def := definitions[name]
		out = append(out, Info{
			Name:        name,
			Description: def.description,
			Params:      append([]string(nil), def.order...),
			Defaults:    def.defaults.Clone(),
			Outputs:     def.columns(def.defaults),
		})
	}
	return out
}

// ParseSpec parses "name[:p1,p2,...]". Positional values bind to the
// indicator's parameters in declaration order; missing ones take defaults.
func ParseSpec(s string) (Spec, error) {
	s = strings.TrimSpace(s)
	name, args, hasArgs := strings.Cut(s, ":")
	name = strings.ToLower(strings.TrimSpace(name))

	def, ok := definitions[name]
	if !ok {
		return Spec{}, fmt.Errorf("%w: %q", domain.ErrUnknownIndicator, name)
	}
	spec := Spec{Name: name, Params: Params{}}
	if !hasArgs || strings.TrimSpace(args) == "" {
		return spec, nil
	}

	parts := strings.Split(args, ",")
	if len(parts) > len(def.order) {
		return Spec{}, fmt.Errorf("%w: %s takes at most %d parameters, got %d",
			domain.ErrInvalidParameter, name, len(def.order), len(parts))
	}
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return Spec{}, fmt.Errorf("%w: %s %s: %v", domain.ErrInvalidParameter, name, def.order[i], err)
		}
		spec.Params[def.order[i]] = v
	}
	if _, _, err := resolve(name, spec.Params); err != nil {
		return Spec{}, err
	}
	return spec, nil
}

// resolve looks up the definition and merges params over its defaults.
func resolve(name string, params Params) (definition, Params, error) {
	def, ok := definitions[name]
	if !ok {
		return definition{}, nil, fmt.Errorf("%w: %q", domain.ErrUnknownIndicator, name)
	}
	p := def.defaults.Clone()
	for k, v := range params {
		if _, known := def.defaults[k]; !known {
			return definition{}, nil, fmt.Errorf("%w: %s has no parameter %q", domain.ErrInvalidParameter, name, k)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return definition{}, nil, fmt.Errorf("%w: %s %s must be finite", domain.ErrInvalidParameter, name, k)
		}
		p[k] = v
	}
	if err := def.validate(p); err != nil {
		return definition{}, nil, fmt.Errorf("%w: %s: %v", domain.ErrInvalidParameter, name, err)
	}
	return def, p, nil
}
