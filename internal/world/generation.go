// Landscape generation using layered simplex noise.
// Elevation decides land and sea; a second layer sets fertility, which drives
// where settlements form and how large they grow.
package world

import (
	"math"
	"math/rand"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// GenConfig holds landscape generation parameters.
type GenConfig struct {
	Radius      int     // Hex grid radius
	Seed        int64   // Noise and placement seed; see ResolveSeed
	SeaLevel    float64 // Elevation threshold for ocean (0.0–1.0)
	MountainLvl float64 // Elevation threshold for mountains (0.0–1.0)
	HexSizeKm   float64 // Center-to-center hex spacing in kilometers
}

// DefaultGenConfig returns a reasonable starting configuration.
func DefaultGenConfig() GenConfig {
	return GenConfig{
		Radius:      22,
		Seed:        0,
		SeaLevel:    0.25,
		MountainLvl: 0.72,
		HexSizeKm:   8,
	}
}

// SmallTestConfig returns a tiny landscape for rapid iteration.
func SmallTestConfig() GenConfig {
	return GenConfig{
		Radius:      6,
		Seed:        42,
		SeaLevel:    0.20,
		MountainLvl: 0.80,
		HexSizeKm:   8,
	}
}

// ResolveSeed returns seed, or a random non-zero seed when seed is 0.
func ResolveSeed(seed int64) int64 {
	for seed == 0 {
		seed = rand.Int63()
	}
	return seed
}

// Generate creates a complete landscape. The same config always yields the
// same map.
func Generate(cfg GenConfig) *Map {
	seed := cfg.Seed

	elevNoise := opensimplex.NewNormalized(seed)
	fertNoise := opensimplex.NewNormalized(seed + 1)

	m := NewMap(cfg.Radius)

	for q := -cfg.Radius; q <= cfg.Radius; q++ {
		for r := -cfg.Radius; r <= cfg.Radius; r++ {
			coord := HexCoord{Q: q, R: r}
			if !m.InBounds(coord) {
				continue
			}

			// Sample noise in unit-spaced cartesian space.
			p := coord.Planar(1)

			elev := octaveNoise(elevNoise, p.X, p.Y, 4, 0.08, 0.5)
			fert := octaveNoise(fertNoise, p.X, p.Y, 3, 0.06, 0.5)

			// Continental shaping: reduce elevation near edges to create an ocean border.
			distFromCenter := math.Hypot(p.X, p.Y) / float64(cfg.Radius)
			edgeFalloff := 1.0 - math.Pow(distFromCenter, 3.5)
			if edgeFalloff < 0 {
				edgeFalloff = 0
			}
			elev *= edgeFalloff

			// High ground is less fertile.
			fert = fert*0.8 + (1.0-elev)*0.2

			m.Set(&Hex{
				Coord:     coord,
				Terrain:   deriveTerrain(elev, cfg),
				Elevation: elev,
				Fertility: fert,
			})
		}
	}

	return m
}

// deriveTerrain determines terrain type from elevation.
func deriveTerrain(elev float64, cfg GenConfig) Terrain {
	switch {
	case elev < cfg.SeaLevel:
		return TerrainOcean
	case elev > cfg.MountainLvl:
		return TerrainMountain
	case elev > (cfg.SeaLevel+cfg.MountainLvl)/2:
		return TerrainUpland
	default:
		return TerrainLowland
	}
}

// octaveNoise generates fractal noise by layering multiple frequencies.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}
