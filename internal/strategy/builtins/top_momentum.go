// Package builtins provides built-in strategy implementations that ship with
// the screener.
package builtins

import (
	"fmt"
	"sort"

	"screener/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*TopMomentum)(nil)

// DefaultTopN is the cohort size of the daily momentum strategy.
const DefaultTopN = 10

// TopMomentum holds the N candidates with the highest 12-1 momentum each day,
// equal weighted. Ties on momentum are broken by ticker ascending.
type TopMomentum struct {
	n int
}

// NewTopMomentum creates a TopMomentum strategy holding up to n names.
func NewTopMomentum(n int) *TopMomentum {
	if n <= 0 {
		n = DefaultTopN
	}
	return &TopMomentum{n: n}
}

// Name returns "top<N>_momentum_daily", e.g. "top10_momentum_daily".
func (s *TopMomentum) Name() string {
	return fmt.Sprintf("top%d_momentum_daily", s.n)
}

// Select returns at most N candidates ranked by momentum descending.
func (s *TopMomentum) Select(cohort []strategy.Candidate) []strategy.Candidate {
	ranked := make([]strategy.Candidate, len(cohort))
	copy(ranked, cohort)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Momentum != ranked[j].Momentum {
			return ranked[i].Momentum > ranked[j].Momentum
		}
		return ranked[i].Ticker < ranked[j].Ticker
	})
	if len(ranked) > s.n {
		ranked = ranked[:s.n]
	}
	return ranked
}

// Register adds the built-in strategies to r. topN configures TopMomentum;
// the default top-10 variant is always present.
func Register(r *strategy.Registry, topN int) {
	r.Register(NewTopMomentum(DefaultTopN))
	if topN > 0 && topN != DefaultTopN {
		r.Register(NewTopMomentum(topN))
	}
}
