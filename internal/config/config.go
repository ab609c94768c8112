// Package config holds model and run parameters and merges them from
// defaults, a JSON parameter file, key=value overrides, and the environment.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/talgya/metapop/internal/epi"
	"github.com/talgya/metapop/internal/mixing"
	"github.com/talgya/metapop/internal/world"
)

// Model holds the epidemiological and mixing parameters.
type Model struct {
	Beta               float64 `json:"beta"`                // Transmission rate per tick
	Seasonality        float64 `json:"seasonality"`         // Amplitude of the annual cosine forcing
	MixingScale        float64 `json:"mixing_scale"`        // Global scale on spatial coupling
	DistanceExponent   float64 `json:"distance_exponent"`   // Gravity-model distance decay
	PopulationExponent float64 `json:"population_exponent"` // Gravity-model source-population weight
	DistanceOffset     float64 `json:"distance_offset"`     // Added to every pairwise distance
	DistanceMetric     string  `json:"distance_metric"`     // "planar", "haversine", or empty for the scenario's own
	Normalization      string  `json:"normalization"`       // "none" or "rows"
	DemogScale         float64 `json:"demog_scale"`         // Rescales births and deaths to the tick length
	Underflow          string  `json:"underflow"`           // "clamp" or "fail"
}

// Run holds the parameters of one simulation run.
type Run struct {
	NTicks      int    `json:"nticks"`
	Seed        uint64 `json:"seed"`
	Verbose     bool   `json:"verbose"`
	Output      string `json:"output"`       // SQLite path; empty disables persistence
	APIPort     int    `json:"api_port"`     // 0 disables the HTTP API
	Scenario    string `json:"scenario"`     // Directory of CSV tables; empty generates a world
	WorldSeed   int64  `json:"world_seed"`   // Seed for synthetic world generation
	WorldRadius int    `json:"world_radius"` // Hex radius for synthetic world generation
}

// Config is the full, flat parameter set.
type Config struct {
	Model
	Run
}

// UnderflowPolicies lists the accepted values of Model.Underflow.
var UnderflowPolicies = []string{"clamp", "fail"}

// Default returns the baseline parameters.
func Default() Config {
	mc := mixing.DefaultConfig()
	return Config{
		Model: Model{
			Beta:               32,
			Seasonality:        0.06,
			MixingScale:        mc.Scale,
			DistanceExponent:   mc.DistanceExponent,
			PopulationExponent: mc.PopulationExponent,
			DistanceOffset:     mc.DistanceOffset,
			DistanceMetric:     "", // Use the scenario's native metric
			Normalization:      mc.Normalization.String(),
			DemogScale:         1.0,
			Underflow:          "clamp",
		},
		Run: Run{
			NTicks:      365,
			Seed:        20241107,
			WorldSeed:   42,
			WorldRadius: 22,
		},
	}
}

// LoadFile merges a JSON parameter file over c. Keys absent from the file
// keep their current values; unknown keys are rejected.
func (c *Config) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("read params: %w", err)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("parse params %s: %w", path, err)
	}
	return nil
}

// Override applies one "key=value" or "key:value" override.
func (c *Config) Override(kv string) error {
	key, value, ok := strings.Cut(kv, "=")
	if !ok {
		key, value, ok = strings.Cut(kv, ":")
	}
	if !ok {
		return fmt.Errorf("override %q: want key=value or key:value", kv)
	}
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)

	set, found := c.setters()[key]
	if !found {
		return fmt.Errorf("override %q: unknown parameter %q", kv, key)
	}
	if err := set(value); err != nil {
		return fmt.Errorf("override %q: %w", kv, err)
	}
	return nil
}

// Keys returns every parameter name accepted by Override, sorted.
func (c *Config) Keys() []string {
	setters := c.setters()
	keys := make([]string, 0, len(setters))
	for k := range setters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (c *Config) setters() map[string]func(string) error {
	float := func(dst *float64) func(string) error {
		return func(v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return err
			}
			*dst = f
			return nil
		}
	}
	str := func(dst *string) func(string) error {
		return func(v string) error {
			*dst = v
			return nil
		}
	}
	return map[string]func(string) error{
		"beta":                float(&c.Beta),
		"seasonality":         float(&c.Seasonality),
		"mixing_scale":        float(&c.MixingScale),
		"distance_exponent":   float(&c.DistanceExponent),
		"population_exponent": float(&c.PopulationExponent),
		"distance_offset":     float(&c.DistanceOffset),
		"demog_scale":         float(&c.DemogScale),
		"distance_metric":     str(&c.DistanceMetric),
		"normalization":       str(&c.Normalization),
		"underflow":           str(&c.Underflow),
		"output":              str(&c.Output),
		"scenario":            str(&c.Scenario),
		"nticks": func(v string) error {
			n, err := strconv.Atoi(v)
			c.NTicks = n
			return err
		},
		"seed": func(v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			c.Seed = n
			return err
		},
		"verbose": func(v string) error {
			b, err := strconv.ParseBool(v)
			c.Verbose = b
			return err
		},
		"api_port": func(v string) error {
			n, err := strconv.Atoi(v)
			c.APIPort = n
			return err
		},
		"world_seed": func(v string) error {
			n, err := strconv.ParseInt(v, 10, 64)
			c.WorldSeed = n
			return err
		},
		"world_radius": func(v string) error {
			n, err := strconv.Atoi(v)
			c.WorldRadius = n
			return err
		},
	}
}

// ApplyEnv overrides run settings from METAPOP_* environment variables.
func (c *Config) ApplyEnv() error {
	c.Output = envOrDefault("METAPOP_DB", c.Output)
	if v := os.Getenv("METAPOP_API_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("METAPOP_API_PORT: %w", err)
		}
		c.APIPort = port
	}
	return nil
}

// Validate checks every parameter. Errors wrap epi.ErrInvalidParameter.
func (c Config) Validate() error {
	finite := func(name string, v float64) error {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s %v is not finite: %w", name, v, epi.ErrInvalidParameter)
		}
		return nil
	}
	if err := errors.Join(
		finite("beta", c.Beta),
		finite("seasonality", c.Seasonality),
		finite("demog_scale", c.DemogScale),
	); err != nil {
		return err
	}
	switch {
	case c.Beta < 0:
		return fmt.Errorf("beta %v must be non-negative: %w", c.Beta, epi.ErrInvalidParameter)
	case c.Seasonality < 0 || c.Seasonality > 1:
		return fmt.Errorf("seasonality %v outside [0,1]: %w", c.Seasonality, epi.ErrInvalidParameter)
	case c.DemogScale < 0:
		return fmt.Errorf("demog_scale %v must be non-negative: %w", c.DemogScale, epi.ErrInvalidParameter)
	case c.NTicks < 0:
		return fmt.Errorf("nticks %d must be non-negative: %w", c.NTicks, epi.ErrInvalidParameter)
	case c.APIPort < 0 || c.APIPort > 65535:
		return fmt.Errorf("api_port %d: %w", c.APIPort, epi.ErrInvalidParameter)
	case c.WorldRadius < 1:
		return fmt.Errorf("world_radius %d must be positive: %w", c.WorldRadius, epi.ErrInvalidParameter)
	}
	if !slices.Contains(UnderflowPolicies, c.Underflow) {
		return fmt.Errorf("underflow %q: want one of %v: %w", c.Underflow, UnderflowPolicies, epi.ErrInvalidParameter)
	}
	mc, err := c.MixingConfig()
	if err != nil {
		return err
	}
	return mc.Validate()
}

// MixingConfig converts the gravity parameters into a mixing.Config.
func (m Model) MixingConfig() (mixing.Config, error) {
	metric, err := world.ParseMetric(m.DistanceMetric)
	if err != nil {
		return mixing.Config{}, fmt.Errorf("%w: %w", err, epi.ErrInvalidParameter)
	}
	norm, err := mixing.ParseNormalization(m.Normalization)
	if err != nil {
		return mixing.Config{}, fmt.Errorf("%w: %w", err, epi.ErrInvalidParameter)
	}
	return mixing.Config{
		Scale:              m.MixingScale,
		DistanceExponent:   m.DistanceExponent,
		PopulationExponent: m.PopulationExponent,
		DistanceOffset:     m.DistanceOffset,
		Metric:             metric,
		Normalization:      norm,
	}, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
