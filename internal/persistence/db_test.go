package persistence

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/metapop/internal/config"
	"github.com/talgya/metapop/internal/engine"
	"github.com/talgya/metapop/internal/state"
	"github.com/talgya/metapop/internal/world"
)

func testNodes() state.Nodes {
	return state.Nodes{
		Names:      []string{"Ironford", "Ashdale"},
		Positions:  []world.Position{{X: 0, Y: 0}, {X: 40, Y: 0}},
		Population: []int64{10000, 4000},
		Births:     []int64{300, 100},
	}
}

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCreateRun(t *testing.T) {
	db := openTestDB(t)
	cfg := config.Default()
	cfg.Seed = 1<<64 - 1

	id, err := db.CreateRun(cfg, testNodes())
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	run, err := db.Run(id)
	require.NoError(t, err)
	assert.Equal(t, "18446744073709551615", run.Seed)
	assert.Equal(t, StatusRunning, run.Status)
	assert.Equal(t, 2, run.Nodes)
	assert.Contains(t, run.ParamsJSON, `"beta"`)
	assert.False(t, run.FinishedAt.Valid)

	nodes, err := db.Nodes(id)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, "Ashdale", nodes[1].Name)
	assert.Equal(t, int64(4000), nodes[1].Population)
	assert.Equal(t, 40.0, nodes[1].X)
}

func TestRecorderTrajectory(t *testing.T) {
	db := openTestDB(t)
	cfg := config.Default()

	sim, err := engine.NewSimulation(testNodes(), cfg.Model, 7)
	require.NoError(t, err)
	id, err := db.CreateRun(cfg, sim.Nodes)
	require.NoError(t, err)
	require.NoError(t, db.SaveTick(id, 0, sim.Store, nil))

	eng := engine.NewEngine(sim.Components()...)
	eng.OnTick = db.Recorder(id, sim)
	require.NoError(t, eng.Run(context.Background(), 5))
	require.NoError(t, db.FinishRun(id, StatusComplete))

	rows, err := db.Trajectory(id)
	require.NoError(t, err)
	require.Len(t, rows, 6*2)

	// Initial state carries no draws.
	assert.Equal(t, int64(0), rows[0].Tick)
	assert.Equal(t, int64(0), rows[0].Births)

	last := rows[len(rows)-2:]
	for n, row := range last {
		assert.Equal(t, int64(5), row.Tick)
		assert.Equal(t, n, row.Node)
		assert.Equal(t, sim.Store.Total(n), row.S+row.I+row.R)
	}

	run, err := db.Run(id)
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, run.Status)
	assert.Equal(t, int64(5), run.Completed)
	assert.True(t, run.FinishedAt.Valid)
}

func TestRunsAndMeta(t *testing.T) {
	db := openTestDB(t)
	cfg := config.Default()

	a, err := db.CreateRun(cfg, testNodes())
	require.NoError(t, err)
	b, err := db.CreateRun(cfg, testNodes())
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	runs, err := db.Runs()
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	require.NoError(t, db.SaveMeta(a, "scenario", "synthetic"))
	require.NoError(t, db.SaveMeta(a, "scenario", "england"))
	v, err := db.GetMeta(a, "scenario")
	require.NoError(t, err)
	assert.Equal(t, "england", v)

	_, err = db.GetMeta(b, "scenario")
	assert.Error(t, err)
}

func TestReopenKeepsRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	db, err := Open(path)
	require.NoError(t, err)
	id, err := db.CreateRun(config.Default(), testNodes())
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()
	run, err := db.Run(id)
	require.NoError(t, err)
	assert.Equal(t, id, run.ID)
}
