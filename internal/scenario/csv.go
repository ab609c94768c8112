package scenario

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/talgya/metapop/internal/epi"
	"github.com/talgya/metapop/internal/world"
)

// Table file names inside a scenario directory.
const (
	PopulationsFile = "populations.csv"
	LocationsFile   = "locations.csv"
	BirthsFile      = "births.csv"
)

// wideTable is a CSV whose header names settlements (after a leading index
// column) and whose rows are labeled by their first cell.
type wideTable struct {
	names  []string
	labels []string
	rows   [][]string
}

// LoadCSV reads the three settlement tables from dir:
//
//   - populations.csv: header ",<name>,<name>,...", one row per period; the
//     first row is the initial population.
//   - births.csv: same layout; the first row is annual births.
//   - locations.csv: same header, rows labeled "Long" and "Lat" in degrees.
//
// Settlements are joined by name and sorted by population.
func LoadCSV(dir string) (*Scenario, error) {
	pops, err := readWide(filepath.Join(dir, PopulationsFile))
	if err != nil {
		return nil, err
	}
	births, err := readWide(filepath.Join(dir, BirthsFile))
	if err != nil {
		return nil, err
	}
	locs, err := readWide(filepath.Join(dir, LocationsFile))
	if err != nil {
		return nil, err
	}

	popRow, err := pops.firstRow()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", PopulationsFile, err)
	}
	birthRow, err := births.firstRow()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", BirthsFile, err)
	}
	longRow, err := locs.row("long")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", LocationsFile, err)
	}
	latRow, err := locs.row("lat")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", LocationsFile, err)
	}

	birthsByName := index(births.names, birthRow)
	longByName := index(locs.names, longRow)
	latByName := index(locs.names, latRow)

	sc := &Scenario{Metric: world.MetricHaversine}
	for i, name := range pops.names {
		b, okB := birthsByName[name]
		lon, okLon := longByName[name]
		lat, okLat := latByName[name]
		if !okB || !okLon || !okLat {
			return nil, fmt.Errorf("settlement %q missing from births or locations: %w", name, epi.ErrInvalidScenario)
		}

		pop, err := parseCount(popRow[i])
		if err != nil {
			return nil, fmt.Errorf("%s %q: %w", PopulationsFile, name, err)
		}
		nb, err := parseCount(b)
		if err != nil {
			return nil, fmt.Errorf("%s %q: %w", BirthsFile, name, err)
		}
		x, err := strconv.ParseFloat(strings.TrimSpace(lon), 64)
		if err != nil {
			return nil, fmt.Errorf("%s %q longitude: %w", LocationsFile, name, err)
		}
		y, err := strconv.ParseFloat(strings.TrimSpace(lat), 64)
		if err != nil {
			return nil, fmt.Errorf("%s %q latitude: %w", LocationsFile, name, err)
		}

		sc.Settlements = append(sc.Settlements, Settlement{
			Name:       name,
			Position:   world.Position{X: x, Y: y},
			Population: pop,
			Births:     nb,
		})
	}

	sc.SortByPopulation()
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return sc, nil
}

func readWide(path string) (*wideTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if len(records) == 0 || len(records[0]) < 2 {
		return nil, fmt.Errorf("%s: no settlement columns: %w", filepath.Base(path), epi.ErrInvalidScenario)
	}

	t := &wideTable{}
	for _, name := range records[0][1:] {
		t.names = append(t.names, strings.TrimSpace(name))
	}
	for _, rec := range records[1:] {
		t.labels = append(t.labels, strings.TrimSpace(rec[0]))
		t.rows = append(t.rows, rec[1:])
	}
	return t, nil
}

func (t *wideTable) firstRow() ([]string, error) {
	if len(t.rows) == 0 {
		return nil, fmt.Errorf("no data rows: %w", epi.ErrInvalidScenario)
	}
	return t.rows[0], nil
}

func (t *wideTable) row(label string) ([]string, error) {
	for i, l := range t.labels {
		if strings.EqualFold(l, label) {
			return t.rows[i], nil
		}
	}
	return nil, fmt.Errorf("no %q row: %w", label, epi.ErrInvalidScenario)
}

func index(names, values []string) map[string]string {
	out := make(map[string]string, len(names))
	for i, name := range names {
		if i < len(values) {
			out[name] = values[i]
		}
	}
	return out
}

// parseCount parses an integer count, truncating any fractional part.
func parseCount(s string) (int64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("count %q is not finite: %w", s, epi.ErrInvalidScenario)
	}
	if f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("count %q out of range: %w", s, epi.ErrInvalidScenario)
	}
	return int64(f), nil
}
