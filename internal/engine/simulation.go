// Simulation ties together the state store, parameters, and random source and
// exposes them as the ordered components the Engine runs each tick.
package engine

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/talgya/metapop/internal/config"
	"github.com/talgya/metapop/internal/entropy"
	"github.com/talgya/metapop/internal/epi"
	"github.com/talgya/metapop/internal/state"
)

// Simulation holds the complete run state.
type Simulation struct {
	Nodes  state.Nodes
	Store  *state.Store
	Params *state.Params
	Source *entropy.Source
	Policy UnderflowPolicy

	LastReport TickReport // Draws applied by the most recent tick
	History    []SimStats // One entry per completed tick
	Cumulative Cumulative

	mu        sync.RWMutex
	published Snapshot
}

// SimStats tracks aggregate statistics after one tick.
type SimStats struct {
	Tick          uint64 `json:"tick"`
	Susceptible   int64  `json:"susceptible"`
	Infected      int64  `json:"infected"`
	Recovered     int64  `json:"recovered"`
	NewInfections int64  `json:"new_infections"`
	Births        int64  `json:"births"`
	Deaths        int64  `json:"deaths"`
	Clamped       int64  `json:"clamped"`
}

// Population returns the total over compartments.
func (s SimStats) Population() int64 {
	return s.Susceptible + s.Infected + s.Recovered
}

// Cumulative holds per-node running totals of demographic draws.
type Cumulative struct {
	Births     []int64 `json:"births"`
	Deaths     []int64 `json:"deaths"`
	Infections []int64 `json:"infections"`
}

// Snapshot is a read-only copy of the run, published after each tick.
type Snapshot struct {
	Tick       uint64       `json:"tick"` // Ticks completed
	Time       string       `json:"time"`
	Names      []string     `json:"names"`
	Store      *state.Store `json:"-"`
	Stats      SimStats     `json:"stats"`
	Cumulative Cumulative   `json:"-"`
	History    []SimStats   `json:"-"`
}

// NewSimulation initializes the store and parameters from nodes.
func NewSimulation(nodes state.Nodes, m config.Model, seed uint64) (*Simulation, error) {
	store, params, err := state.Init(nodes, m)
	if err != nil {
		return nil, fmt.Errorf("init state: %w", err)
	}
	policy, err := ParseUnderflowPolicy(m.Underflow)
	if err != nil {
		return nil, err
	}

	n := nodes.Len()
	sim := &Simulation{
		Nodes:  nodes,
		Store:  store,
		Params: params,
		Source: entropy.New(seed),
		Policy: policy,
		Cumulative: Cumulative{
			Births:     make([]int64, n),
			Deaths:     make([]int64, n),
			Infections: make([]int64, n),
		},
	}
	sim.publish(0)
	return sim, nil
}

// Components returns the per-tick update sequence: transmission, then census.
func (s *Simulation) Components() []Component {
	return []Component{transmission{s}, census{s}}
}

// Snapshot returns the most recently published copy of the run.
func (s *Simulation) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.published
}

// publish copies the current state for concurrent readers. History is shared
// with a capped length: later appends never touch the published prefix.
func (s *Simulation) publish(completed uint64) {
	cum := Cumulative{
		Births:     slices.Clone(s.Cumulative.Births),
		Deaths:     slices.Clone(s.Cumulative.Deaths),
		Infections: slices.Clone(s.Cumulative.Infections),
	}
	snap := Snapshot{
		Tick:       completed,
		Time:       SimTime(completed),
		Names:      s.Nodes.Names,
		Store:      s.Store.Clone(),
		Stats:      s.currentStats(completed),
		Cumulative: cum,
		History:    s.History[:len(s.History):len(s.History)],
	}
	s.mu.Lock()
	s.published = snap
	s.mu.Unlock()
}

func (s *Simulation) currentStats(tick uint64) SimStats {
	r := s.LastReport
	return SimStats{
		Tick:          tick,
		Susceptible:   s.Store.Sum(epi.Susceptible),
		Infected:      s.Store.Sum(epi.Infected),
		Recovered:     s.Store.Sum(epi.Recovered),
		NewInfections: Sum(r.Infections),
		Births:        Sum(r.Births),
		Deaths:        Sum(r.Deaths),
		Clamped:       Sum(r.Clamped),
	}
}

// transmission runs the stochastic SIR step.
type transmission struct{ sim *Simulation }

func (transmission) Name() string { return "transmission" }

func (t transmission) Step(tick uint64) error {
	s := t.sim
	report, err := Step(s.Store, s.Params, tick, s.Source, s.Policy)
	if err != nil {
		return err
	}
	s.LastReport = report
	if clamped := Sum(report.Clamped); clamped > 0 {
		slog.Debug("infections clamped to remaining susceptibles", "tick", tick, "clamped", clamped)
	}
	return nil
}

// census folds the tick's draws into running totals and history and
// publishes a snapshot.
type census struct{ sim *Simulation }

func (census) Name() string { return "census" }

func (c census) Step(tick uint64) error {
	s := c.sim
	r := s.LastReport
	for n := range s.Cumulative.Births {
		s.Cumulative.Births[n] += r.Births[n]
		s.Cumulative.Deaths[n] += r.Deaths[n]
		s.Cumulative.Infections[n] += r.Infections[n]
	}

	stats := s.currentStats(tick)
	s.History = append(s.History, stats)
	s.publish(tick + 1)

	slog.Debug("tick",
		"tick", tick,
		"time", SimTime(tick),
		"S", stats.Susceptible,
		"I", stats.Infected,
		"R", stats.Recovered,
		"new_infections", stats.NewInfections,
	)

	if (tick+1)%epi.TicksPerYear == 0 {
		slog.Info("yearly report",
			"tick", tick,
			"time", SimTime(tick),
			"population", stats.Population(),
			"susceptible", stats.Susceptible,
			"infected", stats.Infected,
			"recovered", stats.Recovered,
			"births_total", Sum(s.Cumulative.Births),
			"deaths_total", Sum(s.Cumulative.Deaths),
			"infections_total", Sum(s.Cumulative.Infections),
		)
	}
	return nil
}
