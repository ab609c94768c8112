package world

import (
	"fmt"
	"math"

	"github.com/golang/geo/s2"
)

// EarthRadiusKm is the mean Earth radius used for great-circle distances.
const EarthRadiusKm = 6371.0088

// Position is a node location. For the planar metric X and Y are cartesian
// coordinates; for the haversine metric X is longitude and Y latitude in degrees.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Valid reports whether both coordinates are finite.
func (p Position) Valid() bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) && !math.IsNaN(p.Y) && !math.IsInf(p.Y, 0)
}

// Metric measures the distance between two positions.
type Metric uint8

const (
	MetricPlanar    Metric = iota // Euclidean, in coordinate units
	MetricHaversine               // Great-circle, in kilometers
)

// Distance returns the distance between a and b under m.
func (m Metric) Distance(a, b Position) float64 {
	switch m {
	case MetricHaversine:
		la := s2.LatLngFromDegrees(a.Y, a.X)
		lb := s2.LatLngFromDegrees(b.Y, b.X)
		return la.Distance(lb).Radians() * EarthRadiusKm
	default:
		return math.Hypot(a.X-b.X, a.Y-b.Y)
	}
}

// String returns the metric's configuration name.
func (m Metric) String() string {
	switch m {
	case MetricPlanar:
		return "planar"
	case MetricHaversine:
		return "haversine"
	default:
		return "unknown"
	}
}

// ParseMetric parses a metric name as written in parameter files.
func ParseMetric(name string) (Metric, error) {
	switch name {
	case "", "planar", "euclidean":
		return MetricPlanar, nil
	case "haversine", "great-circle":
		return MetricHaversine, nil
	default:
		return 0, fmt.Errorf("unknown distance metric %q", name)
	}
}
