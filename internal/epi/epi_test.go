package epi

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompartmentString(t *testing.T) {
	assert.Equal(t, "S", Susceptible.String())
	assert.Equal(t, "I", Infected.String())
	assert.Equal(t, "R", Recovered.String())
	assert.Equal(t, "?", Compartment(7).String())
}

func TestSentinelsSurviveWrapping(t *testing.T) {
	err := fmt.Errorf("node 3: %w", ErrInvalidScenario)
	assert.True(t, errors.Is(err, ErrInvalidScenario))
	assert.False(t, errors.Is(err, ErrInvalidDraw))
}
