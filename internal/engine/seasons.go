// Seasonal forcing and the biweekly calendar.
package engine

import (
	"fmt"
	"math"

	"github.com/talgya/metapop/internal/epi"
)

// SeasonalForcing returns the multiplier on transmission at tick:
// 1 + amplitude·cos(2π·tick/26). It repeats every TicksPerYear ticks.
func SeasonalForcing(tick uint64, amplitude float64) float64 {
	phase := float64(tick%epi.TicksPerYear) / float64(epi.TicksPerYear)
	return 1 + amplitude*math.Cos(2*math.Pi*phase)
}

// SimTime returns a human-readable simulation time string from a tick number.
func SimTime(tick uint64) string {
	year := tick/epi.TicksPerYear + 1
	biweek := tick%epi.TicksPerYear + 1
	return fmt.Sprintf("Year %d Biweek %d", year, biweek)
}
