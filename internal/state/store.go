// Package state holds the per-node S/I/R counts and the parameter set the
// step engine reads, and initializes both from raw settlement data.
package state

import (
	"fmt"
	"slices"

	"github.com/talgya/metapop/internal/epi"
)

// Store is the single owned buffer of compartment counts. Index c is the
// compartment, index n the node; node order is fixed for the whole run.
type Store struct {
	counts [epi.NumCompartments][]int64
}

// NewStore allocates a zeroed store for n nodes.
func NewStore(n int) *Store {
	s := &Store{}
	for c := range s.counts {
		s.counts[c] = make([]int64, n)
	}
	return s
}

// Len returns the number of nodes.
func (s *Store) Len() int {
	return len(s.counts[epi.Susceptible])
}

// Count returns the count of compartment c at node n.
func (s *Store) Count(c epi.Compartment, n int) int64 {
	return s.counts[c][n]
}

// Compartment returns the backing slice for c. Writes go straight to the store.
func (s *Store) Compartment(c epi.Compartment) []int64 {
	return s.counts[c]
}

// Total returns the population of node n summed over compartments.
func (s *Store) Total(n int) int64 {
	var t int64
	for c := range s.counts {
		t += s.counts[c][n]
	}
	return t
}

// Totals returns per-node populations.
func (s *Store) Totals() []int64 {
	out := make([]int64, s.Len())
	for n := range out {
		out[n] = s.Total(n)
	}
	return out
}

// Sum returns the count of compartment c over all nodes.
func (s *Store) Sum(c epi.Compartment) int64 {
	var t int64
	for _, v := range s.counts[c] {
		t += v
	}
	return t
}

// Clone returns a deep copy.
func (s *Store) Clone() *Store {
	out := &Store{}
	for c := range s.counts {
		out.counts[c] = slices.Clone(s.counts[c])
	}
	return out
}

// Equal reports whether two stores hold identical counts.
func (s *Store) Equal(o *Store) bool {
	for c := range s.counts {
		if !slices.Equal(s.counts[c], o.counts[c]) {
			return false
		}
	}
	return true
}

// Replace commits a full set of compartment arrays in one go. The arrays must
// match the store's node count and hold no negative entries; on error the
// store is left untouched.
func (s *Store) Replace(next [epi.NumCompartments][]int64) error {
	n := s.Len()
	for c := range next {
		if len(next[c]) != n {
			return fmt.Errorf("compartment %s has %d nodes, store has %d: %w",
				epi.Compartment(c), len(next[c]), n, epi.ErrInvalidScenario)
		}
		for i, v := range next[c] {
			if v < 0 {
				return fmt.Errorf("compartment %s node %d is negative (%d): %w",
					epi.Compartment(c), i, v, epi.ErrInvalidScenario)
			}
		}
	}
	for c := range next {
		copy(s.counts[c], next[c])
	}
	return nil
}

// Rows returns a copy of every compartment array, for scratch computation.
func (s *Store) Rows() [epi.NumCompartments][]int64 {
	var out [epi.NumCompartments][]int64
	for c := range s.counts {
		out[c] = slices.Clone(s.counts[c])
	}
	return out
}
