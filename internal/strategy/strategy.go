// Package strategy defines the Strategy interface for trading strategies,
// a Registry of strategy factories, and the evaluator that turns bars and
// indicators into a position series.
package strategy

import (
	"fmt"
	"math"
	"sort"

	"quantdesk/internal/domain"
	"quantdesk/internal/indicator"
)

// Params holds named numeric strategy parameters.
type Params map[string]float64

// Strategy is the interface that all trading strategies must implement.
// A Strategy value is used for exactly one run and may keep state between
// calls to Next.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// Indicators lists the indicators the strategy reads. The evaluator
	// computes any that the caller has not already supplied.
	Indicators() []indicator.Spec

	// Next is called once per bar, left to right, and returns the desired
	// position at the current bar.
	Next(v *View) domain.Position
}

// Factory builds a fresh Strategy from caller parameters.
type Factory func(params Params) (Strategy, error)

// Info describes a registered strategy.
type Info struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Defaults    Params `json:"defaults"`
}

type entry struct {
	info    Info
	factory Factory
}

// Registry holds a named collection of strategy factories for lookup and
// enumeration. It is not safe to Register concurrently with lookups; build
// it once at startup.
type Registry struct {
	entries map[string]entry
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]entry),
	}
}

// Register adds a strategy factory under name, replacing any previous one.
func (r *Registry) Register(name, description string, defaults Params, f Factory) {
	r.entries[name] = entry{
		info:    Info{Name: name, Description: description, Defaults: defaults},
		factory: f,
	}
}

// Get retrieves a factory by name. The second return value indicates whether
// the strategy was found.
func (r *Registry) Get(name string) (Factory, bool) {
	e, ok := r.entries[name]
	return e.factory, ok
}

// New builds the named strategy with params.
func (r *Registry) New(name string, params Params) (Strategy, error) {
	f, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownStrategy, name)
	}
	return f(params)
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe returns Info for every registered strategy, sorted by name.
func (r *Registry) Describe() []Info {
	out := make([]Info, 0, len(r.entries))
	for _, name := range r.List() {
		out = append(out, r.entries[name].info)
	}
	return out
}

// Resolve merges params over defaults. Keys absent from defaults and
// non-finite values are rejected with ErrInvalidParameter.
func Resolve(defaults, params Params) (Params, error) {
	out := make(Params, len(defaults))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range params {
		if _, ok := defaults[k]; !ok {
			return nil, fmt.Errorf("%w: unknown parameter %q", domain.ErrInvalidParameter, k)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: %s must be finite", domain.ErrInvalidParameter, k)
		}
		out[k] = v
	}
	return out, nil
}

// Warmup returns the longest indicator lookback the strategy depends on.
func Warmup(s Strategy) (int, error) {
	max := 0
	for _, spec := range s.Indicators() {
		lb, err := indicator.Lookback(spec.Name, spec.Params)
		if err != nil {
			return 0, err
		}
		if lb > max {
			max = lb
		}
	}
	return max, nil
}
