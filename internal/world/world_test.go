package world

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHexDistance(t *testing.T) {
	origin := HexCoord{}
	assert.Equal(t, 0, Distance(origin, origin))
	for _, n := range origin.Neighbors() {
		assert.Equal(t, 1, Distance(origin, n))
	}
	assert.Equal(t, 3, Distance(HexCoord{Q: 2, R: -1}, HexCoord{Q: -1, R: 0}))
}

func TestPlanarNeighborsAreEquidistant(t *testing.T) {
	origin := HexCoord{}.Planar(10)
	for _, n := range (HexCoord{}).Neighbors() {
		assert.InDelta(t, 10.0, MetricPlanar.Distance(origin, n.Planar(10)), 1e-9)
	}
}

func TestHaversine(t *testing.T) {
	// London to Paris is roughly 344 km.
	london := Position{X: -0.1278, Y: 51.5074}
	paris := Position{X: 2.3522, Y: 48.8566}
	assert.InDelta(t, 344, MetricHaversine.Distance(london, paris), 5)
	assert.Zero(t, MetricHaversine.Distance(london, london))
}

func TestParseMetric(t *testing.T) {
	m, err := ParseMetric("haversine")
	require.NoError(t, err)
	assert.Equal(t, MetricHaversine, m)

	m, err = ParseMetric("")
	require.NoError(t, err)
	assert.Equal(t, MetricPlanar, m)

	_, err = ParseMetric("manhattan")
	assert.Error(t, err)
}

func TestPositionValid(t *testing.T) {
	assert.True(t, Position{X: 1, Y: 2}.Valid())
	assert.False(t, Position{X: math.NaN(), Y: 2}.Valid())
	assert.False(t, Position{X: 1, Y: math.Inf(-1)}.Valid())
}

func TestGenerateIsDeterministic(t *testing.T) {
	cfg := SmallTestConfig()
	a := Generate(cfg)
	b := Generate(cfg)

	require.Equal(t, a.HexCount(), b.HexCount())
	for _, c := range a.Coords() {
		assert.True(t, a.InBounds(c))
		assert.Equal(t, *a.Get(c), *b.Get(c))
	}
	// Radius 6 hex grid holds 3r(r+1)+1 hexes.
	assert.Equal(t, 127, a.HexCount())
}

func TestPlaceSettlements(t *testing.T) {
	cfg := SmallTestConfig()
	m := Generate(cfg)

	seeds := PlaceSettlements(m, cfg.Seed)
	again := PlaceSettlements(m, cfg.Seed)
	require.NotEmpty(t, seeds)
	assert.Equal(t, seeds, again)

	names := make(map[string]bool)
	for _, s := range seeds {
		hex := m.Get(s.Coord)
		require.NotNil(t, hex)
		assert.NotEqual(t, TerrainOcean, hex.Terrain)
		assert.Positive(t, s.Population)
		assert.GreaterOrEqual(t, s.Births, int64(0))
		assert.False(t, names[s.Name], "duplicate name %s", s.Name)
		names[s.Name] = true
	}
}

func TestResolveSeed(t *testing.T) {
	assert.Equal(t, int64(42), ResolveSeed(42))
	assert.NotZero(t, ResolveSeed(0))
}
