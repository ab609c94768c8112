// Package epi holds the vocabulary shared by the simulation packages:
// compartments, the biweekly calendar, and the error taxonomy.
package epi

import "errors"

// Compartment indexes one of the three disease states held per node.
type Compartment uint8

const (
	Susceptible Compartment = iota // S
	Infected                       // I
	Recovered                      // R
)

// NumCompartments is the number of compartments tracked per node.
const NumCompartments = 3

// Compartments lists every compartment in storage order.
var Compartments = [NumCompartments]Compartment{Susceptible, Infected, Recovered}

// TicksPerYear is the number of biweekly ticks in one simulated year.
const TicksPerYear = 26

// String returns the single-letter compartment name.
func (c Compartment) String() string {
	switch c {
	case Susceptible:
		return "S"
	case Infected:
		return "I"
	case Recovered:
		return "R"
	default:
		return "?"
	}
}

// Error taxonomy. None of these is recoverable where it is detected; callers
// wrap them with context and match with errors.Is.
var (
	// ErrInvalidParameter marks malformed or out-of-range model parameters.
	ErrInvalidParameter = errors.New("epi: invalid parameter")

	// ErrInvalidScenario marks initial data or state that breaks a node invariant.
	ErrInvalidScenario = errors.New("epi: invalid scenario")

	// ErrInvalidDraw marks a distribution parameter outside its valid domain.
	ErrInvalidDraw = errors.New("epi: invalid draw")
)
