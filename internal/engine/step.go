// The per-tick stochastic transition: infection, recovery, births, deaths.
package engine

import (
	"fmt"
	"math"

	"github.com/talgya/metapop/internal/entropy"
	"github.com/talgya/metapop/internal/epi"
	"github.com/talgya/metapop/internal/mixing"
	"github.com/talgya/metapop/internal/state"
)

// UnderflowPolicy decides what happens when new infections exceed the
// susceptibles left after this tick's deaths.
type UnderflowPolicy uint8

const (
	// UnderflowClamp caps new infections at the remaining susceptibles.
	UnderflowClamp UnderflowPolicy = iota
	// UnderflowFail aborts the tick with epi.ErrInvalidScenario.
	UnderflowFail
)

// ParseUnderflowPolicy parses "clamp" or "fail".
func ParseUnderflowPolicy(name string) (UnderflowPolicy, error) {
	switch name {
	case "", "clamp":
		return UnderflowClamp, nil
	case "fail":
		return UnderflowFail, nil
	default:
		return 0, fmt.Errorf("underflow policy %q: %w", name, epi.ErrInvalidParameter)
	}
}

// TickReport records the draws applied during one tick, per node.
type TickReport struct {
	Tick       uint64  `json:"tick"`
	Infections []int64 `json:"infections"` // Moved S→I after clamping
	Births     []int64 `json:"births"`
	Deaths     []int64 `json:"deaths"`  // Summed over compartments
	Clamped    []int64 `json:"clamped"` // Infections dropped by UnderflowClamp
}

// Sum totals a per-node report column.
func Sum(v []int64) int64 {
	var t int64
	for _, x := range v {
		t += x
	}
	return t
}

// ForceOfInfection returns the expected new infections per node at tick,
// beta·(1 + seasonality·cos(2π·tick/26))·(mixing · I), from the current store.
func ForceOfInfection(store *state.Store, params *state.Params, tick uint64) ([]float64, error) {
	infected := store.Compartment(epi.Infected)
	iv := make([]float64, len(infected))
	for n, v := range infected {
		iv[n] = float64(v)
	}
	pressure, err := mixing.Exposure(params.Mixing, iv)
	if err != nil {
		return nil, err
	}
	force := params.Beta * SeasonalForcing(tick, params.Seasonality)
	for n := range pressure {
		pressure[n] *= force
	}
	return pressure, nil
}

// InfectionProbability converts expected infections at a node of the given
// total population into a per-susceptible probability.
func InfectionProbability(expected float64, total int64) (float64, error) {
	if math.IsNaN(expected) || expected < 0 {
		return 0, fmt.Errorf("expected infections %v: %w", expected, epi.ErrInvalidDraw)
	}
	if expected == 0 || total <= 0 {
		return 0, nil
	}
	return -math.Expm1(-expected / float64(total)), nil
}

// Step advances the store by one tick. The transitions are applied in a fixed
// order, each on the result of the previous one:
//
//  1. expected infections from pre-tick I and pre-tick node totals
//  2. dI ~ Binomial(S, 1 - exp(-expected/total))
//  3. recovery: R += I, I = 0
//  4. births ~ Poisson(avg births) into S
//  5. deaths ~ Binomial(count, death prob) from every compartment,
//     drawn on the post-recovery, pre-birth counts
//  6. I += dI, S -= dI
//
// Draws happen in the order infections, births, deaths (compartment-major),
// so a seed fixes the trajectory. The store is only written once the whole
// tick succeeds; on error it is unchanged.
func Step(store *state.Store, params *state.Params, tick uint64, src *entropy.Source, policy UnderflowPolicy) (TickReport, error) {
	n := store.Len()
	report := TickReport{
		Tick:       tick,
		Infections: make([]int64, n),
		Births:     make([]int64, n),
		Deaths:     make([]int64, n),
		Clamped:    make([]int64, n),
	}

	expected, err := ForceOfInfection(store, params, tick)
	if err != nil {
		return report, fmt.Errorf("force of infection: %w", err)
	}

	next := store.Rows()
	susc, inf, rec := next[epi.Susceptible], next[epi.Infected], next[epi.Recovered]

	dI := report.Infections
	for i := 0; i < n; i++ {
		prob, err := InfectionProbability(expected[i], store.Total(i))
		if err != nil {
			return report, fmt.Errorf("node %d: %w", i, err)
		}
		if dI[i], err = src.Binomial(susc[i], prob); err != nil {
			return report, fmt.Errorf("node %d infections: %w", i, err)
		}
	}

	for i := 0; i < n; i++ {
		rec[i] += inf[i]
		inf[i] = 0
	}

	for i := 0; i < n; i++ {
		if report.Births[i], err = src.Poisson(params.BiweekAvgBirths[i]); err != nil {
			return report, fmt.Errorf("node %d births: %w", i, err)
		}
	}

	var deaths [epi.NumCompartments][]int64
	for _, c := range epi.Compartments {
		deaths[c] = make([]int64, n)
		for i := 0; i < n; i++ {
			if deaths[c][i], err = src.Binomial(next[c][i], params.DeathProb(c, i)); err != nil {
				return report, fmt.Errorf("node %d %s deaths: %w", i, c, err)
			}
		}
	}

	for i := 0; i < n; i++ {
		susc[i] += report.Births[i]
		for _, c := range epi.Compartments {
			next[c][i] -= deaths[c][i]
			report.Deaths[i] += deaths[c][i]
		}
	}

	for i := 0; i < n; i++ {
		if dI[i] > susc[i] {
			if policy == UnderflowFail {
				return report, fmt.Errorf("node %d: %d new infections but %d susceptibles remain: %w",
					i, dI[i], susc[i], epi.ErrInvalidScenario)
			}
			report.Clamped[i] = dI[i] - susc[i]
			dI[i] = susc[i]
		}
		inf[i] += dI[i]
		susc[i] -= dI[i]
	}

	if err := store.Replace(next); err != nil {
		return report, err
	}
	return report, nil
}
