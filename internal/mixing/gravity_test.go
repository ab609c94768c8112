package mixing

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/talgya/metapop/internal/epi"
	"github.com/talgya/metapop/internal/world"
)

func threeNodes() ([]world.Position, []int64) {
	return []world.Position{{X: 0, Y: 0}, {X: 30, Y: 0}, {X: 0, Y: 80}},
		[]int64{1000, 500, 200}
}

func TestBuildNoneNormalization(t *testing.T) {
	pos, pop := threeNodes()
	cfg := DefaultConfig()

	m, err := Build(pos, pop, cfg)
	require.NoError(t, err)

	r, c := m.Dims()
	require.Equal(t, 3, r)
	require.Equal(t, 3, c)

	for i := 0; i < 3; i++ {
		assert.Equal(t, 1.0, m.At(i, i))
		for j := 0; j < 3; j++ {
			v := m.At(i, j)
			assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
			assert.GreaterOrEqual(t, v, 0.0)
		}
	}

	want := cfg.Scale * 500 / math.Pow(30+cfg.DistanceOffset, cfg.DistanceExponent)
	assert.InDelta(t, want, m.At(0, 1), 1e-15)
	// Coupling weighs the source population, so it is asymmetric.
	assert.NotEqual(t, m.At(0, 1), m.At(1, 0))
}

func TestBuildIsDeterministic(t *testing.T) {
	pos, pop := threeNodes()
	a, err := Build(pos, pop, DefaultConfig())
	require.NoError(t, err)
	b, err := Build(pos, pop, DefaultConfig())
	require.NoError(t, err)
	assert.True(t, mat.Equal(a, b))
}

func TestScaleIsMultiplicative(t *testing.T) {
	pos, pop := threeNodes()
	cfg := DefaultConfig()
	a, err := Build(pos, pop, cfg)
	require.NoError(t, err)

	cfg.Scale *= 4
	b, err := Build(pos, pop, cfg)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if i == j {
				continue
			}
			assert.InDelta(t, 4*a.At(i, j), b.At(i, j), 1e-15)
		}
	}
}

func TestDistanceExponentMonotonic(t *testing.T) {
	pos, pop := threeNodes()
	prev, err := Build(pos, pop, DefaultConfig())
	require.NoError(t, err)

	for _, k := range []float64{1.6, 2, 3, 5} {
		cfg := DefaultConfig()
		cfg.DistanceExponent = k
		next, err := Build(pos, pop, cfg)
		require.NoError(t, err)
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				if i != j {
					assert.Less(t, next.At(i, j), prev.At(i, j), "k=%v (%d,%d)", k, i, j)
				}
			}
		}
		prev = next
	}
}

func TestCoincidentNodesStayFinite(t *testing.T) {
	pos := []world.Position{{X: 5, Y: 5}, {X: 5, Y: 5}}
	cfg := DefaultConfig()
	cfg.DistanceOffset = 1
	m, err := Build(pos, []int64{100, 100}, cfg)
	require.NoError(t, err)
	assert.InDelta(t, cfg.Scale*100, m.At(0, 1), 1e-12)
}

func TestBuildRowsNormalization(t *testing.T) {
	pos, pop := threeNodes()
	cfg := DefaultConfig()
	cfg.Scale = 0.1
	cfg.Normalization = NormalizeRows

	m, err := Build(pos, pop, cfg)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		assert.InDelta(t, 0.9, m.At(i, i), 1e-12)
		assert.InDelta(t, 1.0, floats.Sum(mat.Row(nil, i, m)), 1e-12)
	}

	single, err := Build(pos[:1], pop[:1], cfg)
	require.NoError(t, err)
	assert.Equal(t, 1.0, single.At(0, 0))
}

func TestBuildRejects(t *testing.T) {
	pos, pop := threeNodes()
	cases := []struct {
		name string
		pos  []world.Position
		pop  []int64
		mod  func(*Config)
	}{
		{"zero population", pos, []int64{1000, 0, 200}, nil},
		{"negative population", pos, []int64{1000, -5, 200}, nil},
		{"length mismatch", pos[:2], pop, nil},
		{"empty", nil, nil, nil},
		{"negative exponent", pos, pop, func(c *Config) { c.DistanceExponent = -0.5 }},
		{"zero scale", pos, pop, func(c *Config) { c.Scale = 0 }},
		{"small offset", pos, pop, func(c *Config) { c.DistanceOffset = 0.5 }},
		{"rows scale above one", pos, pop, func(c *Config) { c.Normalization = NormalizeRows; c.Scale = 2 }},
		{"nan position", []world.Position{{X: math.NaN()}, {}, {}}, pop, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			if tc.mod != nil {
				tc.mod(&cfg)
			}
			_, err := Build(tc.pos, tc.pop, cfg)
			require.Error(t, err)
			assert.True(t, errors.Is(err, epi.ErrInvalidParameter))
		})
	}
}

func TestExposure(t *testing.T) {
	m := mat.NewDense(2, 2, []float64{1, 0.5, 0.25, 1})
	got, err := Exposure(m, []float64{10, 4})
	require.NoError(t, err)
	assert.Equal(t, []float64{12, 6.5}, got)

	_, err = Exposure(m, []float64{1})
	assert.ErrorIs(t, err, epi.ErrInvalidParameter)
}

func TestParseNormalization(t *testing.T) {
	n, err := ParseNormalization("rows")
	require.NoError(t, err)
	assert.Equal(t, NormalizeRows, n)
	assert.Equal(t, "rows", n.String())

	_, err = ParseNormalization("columns")
	assert.Error(t, err)
}
