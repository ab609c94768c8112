package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	name string
	log  *[]string
	fail uint64 // tick at which to fail; 0 never fails
}

func (r recorder) Name() string { return r.name }

func (r recorder) Step(tick uint64) error {
	if r.fail != 0 && tick == r.fail {
		return errors.New("boom")
	}
	*r.log = append(*r.log, r.name)
	return nil
}

func TestEngineRunsComponentsInOrder(t *testing.T) {
	var log []string
	e := NewEngine(recorder{name: "a", log: &log}, recorder{name: "b", log: &log})
	var hooked []uint64
	e.OnTick = func(tick uint64) error {
		hooked = append(hooked, tick)
		return nil
	}

	require.NoError(t, e.Run(context.Background(), 3))
	assert.Equal(t, []string{"a", "b", "a", "b", "a", "b"}, log)
	assert.Equal(t, []uint64{0, 1, 2}, hooked)
	assert.Equal(t, uint64(3), e.Tick)

	require.NoError(t, e.Run(context.Background(), 1))
	assert.Equal(t, []uint64{0, 1, 2, 3}, hooked)
}

func TestEngineStopsAtFirstError(t *testing.T) {
	var log []string
	e := NewEngine(recorder{name: "a", log: &log, fail: 2}, recorder{name: "b", log: &log})

	err := e.Run(context.Background(), 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tick 2")
	assert.Contains(t, err.Error(), "a")
	assert.Equal(t, uint64(2), e.Tick, "failed tick is not counted")
	assert.Len(t, log, 4)
}

func TestEngineHonorsCancel(t *testing.T) {
	var log []string
	e := NewEngine(recorder{name: "a", log: &log})
	ctx, cancel := context.WithCancel(context.Background())
	e.OnTick = func(tick uint64) error {
		if tick == 4 {
			cancel()
		}
		return nil
	}

	err := e.Run(ctx, 100)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, uint64(5), e.Tick)
}

func TestSimTime(t *testing.T) {
	assert.Equal(t, "Year 1 Biweek 1", SimTime(0))
	assert.Equal(t, "Year 1 Biweek 26", SimTime(25))
	assert.Equal(t, "Year 2 Biweek 1", SimTime(26))
}

func TestSeasonalForcing(t *testing.T) {
	assert.InDelta(t, 1.2, SeasonalForcing(0, 0.2), 1e-12)
	assert.InDelta(t, 0.8, SeasonalForcing(13, 0.2), 1e-12)
	assert.InDelta(t, SeasonalForcing(5, 0.2), SeasonalForcing(31, 0.2), 1e-12)
	assert.Equal(t, 1.0, SeasonalForcing(7, 0))
}

func TestSimulationPublishesSnapshots(t *testing.T) {
	sim, err := NewSimulation(exampleNodes(), exampleModel(), 7)
	require.NoError(t, err)

	snap := sim.Snapshot()
	assert.Equal(t, uint64(0), snap.Tick)
	assert.Equal(t, []int64{1000, 500, 200}, snap.Store.Totals())

	e := NewEngine(sim.Components()...)
	require.NoError(t, e.Run(context.Background(), 5))

	snap = sim.Snapshot()
	assert.Equal(t, uint64(5), snap.Tick)
	assert.Len(t, snap.History, 5)
	assert.True(t, snap.Store.Equal(sim.Store))
	assert.Equal(t, sim.Cumulative.Births, snap.Cumulative.Births)

	var births int64
	for _, st := range snap.History {
		births += st.Births
	}
	assert.Equal(t, births, Sum(snap.Cumulative.Births))

	// The published store is a copy.
	snap.Store.Compartment(0)[0] = -100
	assert.NotEqual(t, int64(-100), sim.Store.Count(0, 0))
}

func TestNewSimulationRejectsBadPolicy(t *testing.T) {
	m := exampleModel()
	m.Underflow = "wrap"
	_, err := NewSimulation(exampleNodes(), m, 1)
	assert.Error(t, err)
}
