// Settlement placement: finds habitable locations and seeds initial settlements.
package world

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// SettlementSeed holds the parameters for an initial settlement placement.
type SettlementSeed struct {
	Coord      HexCoord
	Size       SettlementSize
	Score      float64 // Desirability score
	Name       string
	Population int64
	Births     int64 // Annual births
}

// SettlementSize categorizes settlement scale.
type SettlementSize uint8

const (
	SizeVillage SettlementSize = iota // 200–2,000 people
	SizeTown                          // 2,000–20,000 people
	SizeCity                          // 20,000–200,000 people
)

// CrudeBirthRate is the default annual births per person for synthetic settlements.
const CrudeBirthRate = 0.02

// PlaceSettlements finds the best locations for settlements on the map and
// assigns each a population and annual birth count.
// The result is deterministic for a given map and seed.
func PlaceSettlements(m *Map, seed int64) []SettlementSeed {
	rng := rand.New(rand.NewSource(seed + 200))

	type scored struct {
		coord HexCoord
		score float64
	}
	var candidates []scored

	for _, coord := range m.Coords() {
		hex := m.Get(coord)
		if s := settlementScore(m, coord, hex); s > 0 {
			candidates = append(candidates, scored{coord, s})
		}
	}

	// Sort by score descending; coordinate order breaks ties.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	var seeds []SettlementSeed
	taken := make(map[HexCoord]bool)

	place := func(size SettlementSize, count, minDist int) {
		placed := 0
		for _, c := range candidates {
			if placed >= count {
				break
			}
			if taken[c.coord] || tooClose(c.coord, seeds, minDist) {
				continue
			}
			taken[c.coord] = true
			seeds = append(seeds, SettlementSeed{
				Coord: c.coord,
				Size:  size,
				Score: c.score,
			})
			placed++
		}
	}

	place(SizeCity, 2+rng.Intn(3), 8)
	place(SizeTown, 6+rng.Intn(7), 4)
	place(SizeVillage, 15+rng.Intn(16), 2)

	names := generateNames(rng, len(seeds))
	for i := range seeds {
		seeds[i].Name = names[i]
		seeds[i].Population = PopulationForSize(seeds[i].Size, rng)
		seeds[i].Births = int64(math.Round(float64(seeds[i].Population) * CrudeBirthRate * (0.8 + 0.4*rng.Float64())))
	}

	return seeds
}

// settlementScore evaluates how desirable a hex is for a settlement.
// Prefers fertile lowland with fertile neighbors.
func settlementScore(m *Map, coord HexCoord, hex *Hex) float64 {
	score := 0.0

	switch hex.Terrain {
	case TerrainLowland:
		score += 3.0
	case TerrainUpland:
		score += 1.5
	case TerrainMountain:
		score += 0.3
	default:
		return 0
	}

	score += hex.Fertility * 2.0

	// Bonus for fertile land nearby (a hinterland to feed a town).
	for _, nc := range coord.Neighbors() {
		nh := m.Get(nc)
		if nh != nil && nh.Terrain != TerrainOcean {
			score += nh.Fertility * 0.3
		}
	}

	return score
}

func tooClose(coord HexCoord, existing []SettlementSeed, minDist int) bool {
	for _, s := range existing {
		if Distance(coord, s.Coord) < minDist {
			return true
		}
	}
	return false
}

// generateNames produces procedural settlement names by combining syllables.
func generateNames(rng *rand.Rand, count int) []string {
	prefixes := []string{
		"Iron", "Green", "Ash", "Stone", "Mill", "Cross", "Black",
		"Silver", "Red", "White", "Dark", "Bright", "High", "Low",
		"Old", "New", "Far", "Deep", "Long", "Broad", "Gold", "Frost",
		"Storm", "Thorn", "Elm", "Oak", "Pine", "Copper", "River",
	}
	suffixes := []string{
		"haven", "ford", "hollow", "wick", "bridge", "gate", "keep",
		"stead", "wood", "field", "dale", "crest", "vale", "port",
		"town", "bury", "marsh", "well", "brook", "cliff", "moor",
		"ridge", "watch", "fall", "rest", "point", "reach", "helm",
	}

	used := make(map[string]bool)
	names := make([]string, 0, count)

	for len(names) < count {
		name := prefixes[rng.Intn(len(prefixes))] + suffixes[rng.Intn(len(suffixes))]
		if used[name] {
			name = fmt.Sprintf("%s %d", name, len(names)+1)
		}
		used[name] = true
		names = append(names, name)
	}

	return names
}

// PopulationForSize returns an initial population drawn from the size tier's range.
func PopulationForSize(size SettlementSize, rng *rand.Rand) int64 {
	switch size {
	case SizeCity:
		return 20000 + int64(rng.Intn(180000))
	case SizeTown:
		return 2000 + int64(rng.Intn(18000))
	case SizeVillage:
		return 200 + int64(rng.Intn(1800))
	default:
		return 500
	}
}
