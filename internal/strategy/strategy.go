// Package strategy defines the cross-sectional Strategy interface, a Registry
// for looking strategies up by name, and the Backtester that turns a joined
// price/momentum table into an equity curve.
package strategy

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

// Candidate is one eligible ticker on a trade date: its momentum and its
// return from the previous observation.
type Candidate struct {
	Ticker    string
	TradeDate time.Time
	Momentum  float64
	Return    float64
}

// Strategy picks the holdings for one trade date.
type Strategy interface {
	// Name returns the unique identifier for this strategy. It is also the
	// strategy_name written with every equity point.
	Name() string

	// Select returns the candidates to hold, equal weighted, from a cohort of
	// eligible candidates sharing one trade date. The cohort is ordered by
	// ticker and must not be modified.
	Select(cohort []Candidate) []Candidate
}

// ErrUnknownStrategy is returned by Lookup for a name nothing registered.
var ErrUnknownStrategy = errors.New("unknown strategy")

// Registry maps strategy names to strategies.
type Registry struct {
	byName map[string]Strategy
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byName: map[string]Strategy{}}
}

// Register adds s under s.Name(). Registering a second strategy with the same
// name panics, as two strategies would otherwise share one equity curve.
func (r *Registry) Register(s Strategy) {
	name := s.Name()
	if _, dup := r.byName[name]; dup {
		panic(fmt.Sprintf("strategy: %q registered twice", name))
	}
	r.byName[name] = s
}

// Get returns the strategy registered under name.
func (r *Registry) Get(name string) (Strategy, bool) {
	s, ok := r.byName[name]
	return s, ok
}

// Lookup is Get with an error naming the registered strategies.
func (r *Registry) Lookup(name string) (Strategy, error) {
	if s, ok := r.byName[name]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("%w %q (registered: %s)", ErrUnknownStrategy, name, strings.Join(r.List(), ", "))
}

// List returns the registered names in ascending order.
func (r *Registry) List() []string {
	return slices.Sorted(maps.Keys(r.byName))
}
