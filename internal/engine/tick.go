// Package engine provides the stochastic SIR step and the tick loop that
// drives it.
package engine

import (
	"context"
	"fmt"
	"log/slog"
)

// Component is one update run every tick. Components run in the order they
// are listed on the Engine.
type Component interface {
	Name() string
	Step(tick uint64) error
}

// Engine drives the simulation forward one tick at a time.
type Engine struct {
	Tick       uint64      // Next tick to run (monotonic, never resets)
	Components []Component // Run in declared order every tick

	// OnTick runs after every component has finished the tick.
	OnTick func(tick uint64) error
}

// NewEngine creates an engine running the given components in order.
func NewEngine(components ...Component) *Engine {
	return &Engine{Components: components}
}

// Run advances nticks ticks. It stops at the first component error, or
// between ticks when ctx is done.
func (e *Engine) Run(ctx context.Context, nticks int) error {
	slog.Info("simulation engine started", "tick", e.Tick, "nticks", nticks)

	for i := 0; i < nticks; i++ {
		if err := ctx.Err(); err != nil {
			slog.Info("simulation engine interrupted", "tick", e.Tick)
			return err
		}
		if err := e.step(); err != nil {
			return err
		}
	}

	slog.Info("simulation engine stopped", "tick", e.Tick)
	return nil
}

// step runs every component for the current tick, then advances the counter.
func (e *Engine) step() error {
	tick := e.Tick
	for _, c := range e.Components {
		if err := c.Step(tick); err != nil {
			return fmt.Errorf("tick %d (%s) %s: %w", tick, SimTime(tick), c.Name(), err)
		}
	}
	if e.OnTick != nil {
		if err := e.OnTick(tick); err != nil {
			return fmt.Errorf("tick %d (%s) hook: %w", tick, SimTime(tick), err)
		}
	}
	e.Tick++
	return nil
}
