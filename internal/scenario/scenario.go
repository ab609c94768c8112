// Package scenario loads the settlements a run starts from, either from
// population, location, and birth tables or from a generated landscape.
package scenario

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/talgya/metapop/internal/epi"
	"github.com/talgya/metapop/internal/state"
	"github.com/talgya/metapop/internal/world"
)

// Settlement is one node of the network.
type Settlement struct {
	Name       string         `json:"name"`
	Position   world.Position `json:"position"`
	Population int64          `json:"population"`
	Births     int64          `json:"births"` // Annual births
}

// Scenario is an ordered set of settlements and the metric their positions use.
type Scenario struct {
	Settlements []Settlement
	Metric      world.Metric
	WorldSeed   int64 // Seed the landscape was generated from; 0 for tables
}

// Len returns the number of settlements.
func (s *Scenario) Len() int {
	return len(s.Settlements)
}

// SortByPopulation orders settlements largest first, by name on ties.
// Node indices follow this order for the whole run.
func (s *Scenario) SortByPopulation() {
	sort.SliceStable(s.Settlements, func(i, j int) bool {
		a, b := s.Settlements[i], s.Settlements[j]
		if a.Population != b.Population {
			return a.Population > b.Population
		}
		return a.Name < b.Name
	})
}

// Validate checks every settlement. Errors wrap epi.ErrInvalidScenario.
func (s *Scenario) Validate() error {
	if len(s.Settlements) == 0 {
		return fmt.Errorf("no settlements: %w", epi.ErrInvalidScenario)
	}
	seen := make(map[string]bool, len(s.Settlements))
	for i, st := range s.Settlements {
		switch {
		case seen[st.Name]:
			return fmt.Errorf("settlement %d: duplicate name %q: %w", i, st.Name, epi.ErrInvalidScenario)
		case st.Population <= 0:
			return fmt.Errorf("settlement %q: population %d: %w", st.Name, st.Population, epi.ErrInvalidScenario)
		case st.Births < 0:
			return fmt.Errorf("settlement %q: births %d: %w", st.Name, st.Births, epi.ErrInvalidScenario)
		case !st.Position.Valid():
			return fmt.Errorf("settlement %q: position %+v: %w", st.Name, st.Position, epi.ErrInvalidScenario)
		}
		seen[st.Name] = true
	}
	return nil
}

// Nodes converts the scenario into the positional arrays the state store is
// initialized from.
func (s *Scenario) Nodes() state.Nodes {
	n := len(s.Settlements)
	nodes := state.Nodes{
		Names:      make([]string, n),
		Positions:  make([]world.Position, n),
		Population: make([]int64, n),
		Births:     make([]int64, n),
	}
	for i, st := range s.Settlements {
		nodes.Names[i] = st.Name
		nodes.Positions[i] = st.Position
		nodes.Population[i] = st.Population
		nodes.Births[i] = st.Births
	}
	return nodes
}

// FromWorld generates a landscape and places settlements on it. Positions
// are planar kilometers. A zero seed is replaced by a random one, which is
// logged and returned in WorldSeed.
func FromWorld(cfg world.GenConfig) (*Scenario, error) {
	if cfg.Seed == 0 {
		cfg.Seed = world.ResolveSeed(0)
		slog.Info("world seed drawn", "seed", cfg.Seed)
	}
	m := world.Generate(cfg)
	seeds := world.PlaceSettlements(m, cfg.Seed)

	counts := world.TerrainCounts(m)
	for t := world.TerrainLowland; t <= world.TerrainOcean; t++ {
		slog.Debug("terrain", "type", world.TerrainName(t), "count", counts[t])
	}
	slog.Info("world generated", "seed", cfg.Seed, "hexes", m.HexCount(), "settlements", len(seeds))

	sc := &Scenario{Metric: world.MetricPlanar, WorldSeed: cfg.Seed}
	for _, seed := range seeds {
		sc.Settlements = append(sc.Settlements, Settlement{
			Name:       seed.Name,
			Position:   seed.Coord.Planar(cfg.HexSizeKm),
			Population: seed.Population,
			Births:     seed.Births,
		})
	}
	sc.SortByPopulation()
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("generated world: %w", err)
	}
	return sc, nil
}
