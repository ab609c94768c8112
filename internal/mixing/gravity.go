// Package mixing builds the gravity-model coupling matrix between nodes.
//
// Row i of the matrix is the exposure of node i to infection pressure from
// every node j. Off-diagonal coupling follows the gravity kernel
//
//	w[i,j] = pop[j]^a / (d(i,j) + offset)^k
//
// and the diagonal carries local mixing. See Normalization for how the two
// are combined and scaled.
package mixing

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/talgya/metapop/internal/epi"
	"github.com/talgya/metapop/internal/world"
)

// Normalization selects how the gravity kernel is turned into a mixing matrix.
type Normalization uint8

const (
	// NormalizeNone: m[i,j] = scale*w[i,j] for i != j, m[i,i] = 1.
	// Raising the distance exponent strictly lowers every off-diagonal entry
	// between nodes at positive distance.
	NormalizeNone Normalization = iota

	// NormalizeRows: off-diagonal row i sums to scale, m[i,i] = 1 - scale.
	// Requires scale <= 1.
	NormalizeRows
)

// String returns the normalization's configuration name.
func (n Normalization) String() string {
	switch n {
	case NormalizeNone:
		return "none"
	case NormalizeRows:
		return "rows"
	default:
		return "unknown"
	}
}

// ParseNormalization parses a normalization name as written in parameter files.
func ParseNormalization(name string) (Normalization, error) {
	switch name {
	case "", "none":
		return NormalizeNone, nil
	case "rows", "row":
		return NormalizeRows, nil
	default:
		return 0, fmt.Errorf("unknown mixing normalization %q", name)
	}
}

// DefaultDistanceOffset is added to every pairwise distance. It keeps
// coincident nodes finite and keeps the kernel base above one.
const DefaultDistanceOffset = 10.0

// Config holds the shape parameters of the gravity model.
type Config struct {
	Scale              float64 // mixing_scale, > 0
	DistanceExponent   float64 // distance_exponent, >= 0
	PopulationExponent float64 // exponent on the source population, >= 0
	DistanceOffset     float64 // >= 1
	Metric             world.Metric
	Normalization      Normalization
}

// DefaultConfig returns the gravity parameters used when none are given.
func DefaultConfig() Config {
	return Config{
		Scale:              0.001,
		DistanceExponent:   1.5,
		PopulationExponent: 1.0,
		DistanceOffset:     DefaultDistanceOffset,
		Metric:             world.MetricPlanar,
		Normalization:      NormalizeNone,
	}
}

// Validate checks the scalar parameters.
func (c Config) Validate() error {
	switch {
	case !(c.Scale > 0) || math.IsInf(c.Scale, 0):
		return fmt.Errorf("mixing scale %v must be positive: %w", c.Scale, epi.ErrInvalidParameter)
	case !(c.DistanceExponent >= 0) || math.IsInf(c.DistanceExponent, 0):
		return fmt.Errorf("distance exponent %v must be non-negative: %w", c.DistanceExponent, epi.ErrInvalidParameter)
	case !(c.PopulationExponent >= 0) || math.IsInf(c.PopulationExponent, 0):
		return fmt.Errorf("population exponent %v must be non-negative: %w", c.PopulationExponent, epi.ErrInvalidParameter)
	case !(c.DistanceOffset >= 1) || math.IsInf(c.DistanceOffset, 0):
		return fmt.Errorf("distance offset %v must be at least 1: %w", c.DistanceOffset, epi.ErrInvalidParameter)
	case c.Normalization == NormalizeRows && c.Scale > 1:
		return fmt.Errorf("row-normalized mixing scale %v exceeds 1: %w", c.Scale, epi.ErrInvalidParameter)
	case c.Normalization > NormalizeRows:
		return fmt.Errorf("normalization %d: %w", c.Normalization, epi.ErrInvalidParameter)
	}
	return nil
}

// Build returns the N×N mixing matrix for the given nodes. It is a pure
// function of its inputs.
func Build(positions []world.Position, populations []int64, cfg Config) (*mat.Dense, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	n := len(populations)
	if n == 0 {
		return nil, fmt.Errorf("no nodes: %w", epi.ErrInvalidParameter)
	}
	if len(positions) != n {
		return nil, fmt.Errorf("%d positions for %d populations: %w", len(positions), n, epi.ErrInvalidParameter)
	}
	for i, p := range populations {
		if p <= 0 {
			return nil, fmt.Errorf("node %d population %d must be positive: %w", i, p, epi.ErrInvalidParameter)
		}
		if !positions[i].Valid() {
			return nil, fmt.Errorf("node %d position %+v is not finite: %w", i, positions[i], epi.ErrInvalidParameter)
		}
	}

	mass := make([]float64, n)
	for j, p := range populations {
		mass[j] = math.Pow(float64(p), cfg.PopulationExponent)
	}

	m := mat.NewDense(n, n, nil)
	row := make([]float64, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				row[j] = 0
				continue
			}
			d := cfg.Metric.Distance(positions[i], positions[j])
			row[j] = mass[j] / math.Pow(d+cfg.DistanceOffset, cfg.DistanceExponent)
		}

		switch cfg.Normalization {
		case NormalizeRows:
			if total := floats.Sum(row); total > 0 {
				floats.Scale(cfg.Scale/total, row)
				row[i] = 1 - cfg.Scale
			} else {
				// Single node: nothing to diffuse to.
				row[i] = 1
			}
		default:
			floats.Scale(cfg.Scale, row)
			row[i] = 1
		}

		m.SetRow(i, row)
	}

	return m, nil
}

// Exposure returns mixing · infected, the coupled infection pressure on each node.
func Exposure(mixing mat.Matrix, infected []float64) ([]float64, error) {
	r, c := mixing.Dims()
	if len(infected) == 0 || c != len(infected) {
		return nil, fmt.Errorf("mixing is %dx%d but %d infected counts given: %w", r, c, len(infected), epi.ErrInvalidParameter)
	}
	out := mat.NewVecDense(r, nil)
	out.MulVec(mixing, mat.NewVecDense(len(infected), infected))
	return out.RawVector().Data, nil
}
