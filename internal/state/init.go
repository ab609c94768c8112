package state

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/talgya/metapop/internal/config"
	"github.com/talgya/metapop/internal/epi"
	"github.com/talgya/metapop/internal/mixing"
	"github.com/talgya/metapop/internal/world"
)

// Nodes is the raw settlement data a run starts from, positionally indexed.
type Nodes struct {
	Names      []string
	Positions  []world.Position
	Population []int64
	Births     []int64 // Annual births per node
}

// Len returns the number of nodes.
func (n Nodes) Len() int {
	return len(n.Population)
}

// Params is the parameter set derived once at initialization. It is not
// modified while a tick runs.
type Params struct {
	Beta        float64
	Seasonality float64
	DemogScale  float64
	Mixing      *mat.Dense
	MixingCfg   mixing.Config

	Population      []int64
	Births          []int64
	BiweekAvgBirths []float64 // Expected births per node per tick
	BiweekDeathProb []float64 // Per-tick death probability per node, all compartments
}

// DeathProb returns the per-tick death probability of compartment c at node n.
// One probability applies to every compartment.
func (p *Params) DeathProb(_ epi.Compartment, n int) float64 {
	return p.BiweekDeathProb[n]
}

// Init builds the initial store and parameter set from settlement data.
//
// Each node starts with S = 2·births, I = trunc(2·births/26/2), and the rest
// recovered. Births and deaths are spread evenly over the 26 ticks of a year.
func Init(nodes Nodes, m config.Model) (*Store, *Params, error) {
	n := nodes.Len()
	if n == 0 {
		return nil, nil, fmt.Errorf("no nodes: %w", epi.ErrInvalidScenario)
	}
	if len(nodes.Births) != n || len(nodes.Positions) != n {
		return nil, nil, fmt.Errorf("%d populations, %d births, %d positions: %w",
			n, len(nodes.Births), len(nodes.Positions), epi.ErrInvalidParameter)
	}

	store := NewStore(n)
	params := &Params{
		Beta:            m.Beta,
		Seasonality:     m.Seasonality,
		DemogScale:      m.DemogScale,
		Population:      append([]int64(nil), nodes.Population...),
		Births:          append([]int64(nil), nodes.Births...),
		BiweekAvgBirths: make([]float64, n),
		BiweekDeathProb: make([]float64, n),
	}

	susc := store.Compartment(epi.Susceptible)
	inf := store.Compartment(epi.Infected)
	rec := store.Compartment(epi.Recovered)

	for i := 0; i < n; i++ {
		pop, births := nodes.Population[i], nodes.Births[i]
		if pop <= 0 {
			return nil, nil, fmt.Errorf("node %d population %d: %w", i, pop, epi.ErrInvalidScenario)
		}
		if births < 0 {
			return nil, nil, fmt.Errorf("node %d births %d must be non-negative: %w", i, births, epi.ErrInvalidParameter)
		}

		s := births * 2
		in := int64(float64(s) / float64(epi.TicksPerYear) / 2.0)
		if s+in > pop {
			return nil, nil, fmt.Errorf("node %d: S+I = %d exceeds population %d: %w", i, s+in, pop, epi.ErrInvalidScenario)
		}
		susc[i], inf[i], rec[i] = s, in, pop-s-in

		params.BiweekAvgBirths[i] = m.DemogScale * float64(births) / float64(epi.TicksPerYear)
		dp := m.DemogScale * float64(births) / float64(pop) / float64(epi.TicksPerYear)
		if math.IsNaN(dp) || dp < 0 || dp > 1 {
			return nil, nil, fmt.Errorf("node %d death probability %v outside [0,1]: %w", i, dp, epi.ErrInvalidParameter)
		}
		params.BiweekDeathProb[i] = dp
	}

	mc, err := m.MixingConfig()
	if err != nil {
		return nil, nil, err
	}
	params.MixingCfg = mc
	params.Mixing, err = mixing.Build(nodes.Positions, nodes.Population, mc)
	if err != nil {
		return nil, nil, fmt.Errorf("build mixing: %w", err)
	}

	return store, params, nil
}
