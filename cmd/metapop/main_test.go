package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/metapop/internal/persistence"
	"github.com/talgya/metapop/internal/scenario"
)

func writeScenario(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		scenario.PopulationsFile: ",London,York,Bath\n1944,800000,12000,5000\n",
		scenario.BirthsFile:      ",London,York,Bath\n1944,16000,240,100\n",
		scenario.LocationsFile:   ",London,York,Bath\nLong,-0.1278,-1.0815,-2.3590\nLat,51.5074,53.9600,51.3811\n",
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func TestParseConfigPrecedence(t *testing.T) {
	dir := t.TempDir()
	paramsPath := filepath.Join(dir, "params.json")
	require.NoError(t, os.WriteFile(paramsPath, []byte(`{"beta": 20, "seasonality": 0.1, "nticks": 10}`), 0o644))

	cfg, err := parseConfig([]string{
		"--params", paramsPath,
		"--param", "beta=25",
		"--param", "demog_scale:0.5",
		"--nticks", "7",
	})
	require.NoError(t, err)
	assert.Equal(t, 25.0, cfg.Beta)
	assert.Equal(t, 0.1, cfg.Seasonality)
	assert.Equal(t, 0.5, cfg.DemogScale)
	assert.Equal(t, 7, cfg.NTicks)
	assert.Equal(t, uint64(20241107), cfg.Seed)
}

func TestParseConfigEnv(t *testing.T) {
	t.Setenv("METAPOP_DB", "env.db")
	cfg, err := parseConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, "env.db", cfg.Output)

	cfg, err = parseConfig([]string{"--output", "flag.db"})
	require.NoError(t, err)
	assert.Equal(t, "flag.db", cfg.Output)
}

func TestParseConfigErrors(t *testing.T) {
	for _, args := range [][]string{
		{"--param", "nope=1"},
		{"--param", "beta"},
		{"--param", "seasonality=2"},
		{"--nticks", "-1"},
		{"stray"},
	} {
		_, err := parseConfig(args)
		assert.Error(t, err, args)
	}
}

func TestRunRecordsScenario(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "out", "run.db")
	cfg, err := parseConfig([]string{
		"--scenario", writeScenario(t),
		"--nticks", "26",
		"--seed", "3",
		"--output", dbPath,
	})
	require.NoError(t, err)
	require.NoError(t, run(context.Background(), cfg))

	db, err := persistence.Open(dbPath)
	require.NoError(t, err)
	defer db.Close()

	runs, err := db.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, persistence.StatusComplete, runs[0].Status)
	assert.Equal(t, int64(26), runs[0].Completed)
	assert.Equal(t, "3", runs[0].Seed)
	assert.Contains(t, runs[0].ParamsJSON, `"distance_metric":"haversine"`)

	nodes, err := db.Nodes(runs[0].ID)
	require.NoError(t, err)
	require.Len(t, nodes, 3)
	assert.Equal(t, "London", nodes[0].Name)

	rows, err := db.Trajectory(runs[0].ID)
	require.NoError(t, err)
	assert.Len(t, rows, 27*3)
}

func TestRunCanceled(t *testing.T) {
	cfg, err := parseConfig([]string{"--scenario", writeScenario(t), "--nticks", "5"})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, run(ctx, cfg))
}

func TestRunRecordsDrawnWorldSeed(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "world.db")
	cfg, err := parseConfig([]string{"--world-seed", "0", "--nticks", "1", "--output", dbPath})
	require.NoError(t, err)
	require.NoError(t, run(context.Background(), cfg))

	db, err := persistence.Open(dbPath)
	require.NoError(t, err)
	defer db.Close()
	runs, err := db.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 1)

	var recorded struct {
		WorldSeed int64 `json:"world_seed"`
	}
	require.NoError(t, json.Unmarshal([]byte(runs[0].ParamsJSON), &recorded))
	require.NotZero(t, recorded.WorldSeed)

	// The recorded seed rebuilds the same network.
	nodes, err := db.Nodes(runs[0].ID)
	require.NoError(t, err)
	cfg.WorldSeed = recorded.WorldSeed
	sc, err := loadScenario(cfg)
	require.NoError(t, err)
	require.Len(t, nodes, sc.Len())
	for i, n := range nodes {
		assert.Equal(t, sc.Settlements[i].Name, n.Name)
		assert.Equal(t, sc.Settlements[i].Population, n.Population)
	}
}
