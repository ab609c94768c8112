// Command metapop runs the stochastic SIR metapopulation simulation.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"

	"github.com/talgya/metapop/internal/api"
	"github.com/talgya/metapop/internal/config"
	"github.com/talgya/metapop/internal/engine"
	"github.com/talgya/metapop/internal/persistence"
	"github.com/talgya/metapop/internal/scenario"
	"github.com/talgya/metapop/internal/world"
)

func main() {
	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("simulation failed", "error", err)
		os.Exit(1)
	}
}

// paramList collects repeated --param flags.
type paramList []string

func (p *paramList) String() string { return strings.Join(*p, ",") }

func (p *paramList) Set(v string) error {
	*p = append(*p, v)
	return nil
}

// parseConfig builds the run configuration. Later sources win: defaults,
// the --params file, --param overrides, environment, then explicit flags.
func parseConfig(args []string) (config.Config, error) {
	cfg := config.Default()

	fs := flag.NewFlagSet("metapop", flag.ContinueOnError)
	var (
		nticks      = fs.Int("nticks", cfg.NTicks, "number of biweekly ticks to run")
		seed        = fs.Uint64("seed", cfg.Seed, "random seed (0 draws one from the OS)")
		verbose     = fs.Bool("verbose", false, "log every tick")
		output      = fs.String("output", "", "SQLite file to record the run in")
		paramsFile  = fs.String("params", "", "JSON parameter file")
		scenarioDir = fs.String("scenario", "", "directory of population, location, and birth tables")
		apiPort     = fs.Int("api-port", 0, "serve the HTTP API on this port (0 disables)")
		worldSeed   = fs.Int64("world-seed", cfg.WorldSeed, "seed for the generated world")
		worldRadius = fs.Int("world-radius", cfg.WorldRadius, "hex radius of the generated world")
		params      paramList
	)
	fs.Var(&params, "param", "parameter override key=value or key:value (repeatable)")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage of metapop:\n")
		fs.PrintDefaults()
		fmt.Fprintf(fs.Output(), "\nParameters: %s\n", strings.Join(cfg.Keys(), ", "))
	}
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	if fs.NArg() > 0 {
		return cfg, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	if *paramsFile != "" {
		if err := cfg.LoadFile(*paramsFile); err != nil {
			return cfg, err
		}
	}
	for _, kv := range params {
		if err := cfg.Override(kv); err != nil {
			return cfg, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "nticks":
			cfg.NTicks = *nticks
		case "seed":
			cfg.Seed = *seed
		case "verbose":
			cfg.Verbose = *verbose
		case "output":
			cfg.Output = *output
		case "scenario":
			cfg.Scenario = *scenarioDir
		case "api-port":
			cfg.APIPort = *apiPort
		case "world-seed":
			cfg.WorldSeed = *worldSeed
		case "world-radius":
			cfg.WorldRadius = *worldRadius
		}
	})

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// loadScenario reads the scenario tables, or generates a world when no
// directory is configured.
func loadScenario(cfg config.Config) (*scenario.Scenario, error) {
	if cfg.Scenario != "" {
		slog.Info("loading scenario", "dir", cfg.Scenario)
		return scenario.LoadCSV(cfg.Scenario)
	}
	gen := world.DefaultGenConfig()
	gen.Seed = cfg.WorldSeed
	gen.Radius = cfg.WorldRadius
	slog.Info("generating world", "seed", gen.Seed, "radius", gen.Radius)
	return scenario.FromWorld(gen)
}

func run(ctx context.Context, cfg config.Config) error {
	sc, err := loadScenario(cfg)
	if err != nil {
		return fmt.Errorf("scenario: %w", err)
	}
	if cfg.Scenario == "" {
		// Record the resolved seed so the run can be rebuilt.
		cfg.WorldSeed = sc.WorldSeed
	}
	if cfg.DistanceMetric == "" {
		cfg.DistanceMetric = sc.Metric.String()
	}
	nodes := sc.Nodes()

	sim, err := engine.NewSimulation(nodes, cfg.Model, cfg.Seed)
	if err != nil {
		return err
	}
	slog.Info("simulation initialized",
		"nodes", nodes.Len(),
		"population", humanize.Comma(sim.Snapshot().Stats.Population()),
		"seed", sim.Source.Seed(),
		"metric", cfg.DistanceMetric,
		"normalization", cfg.Normalization,
		"underflow", cfg.Underflow,
	)

	eng := engine.NewEngine(sim.Components()...)

	// ── Persistence ───────────────────────────────────────────────────
	var db *persistence.DB
	var runID string
	if cfg.Output != "" {
		if dir := filepath.Dir(cfg.Output); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("output dir: %w", err)
			}
		}
		db, err = persistence.Open(cfg.Output)
		if err != nil {
			return err
		}
		defer db.Close()

		// Record the seed actually used, not 0.
		recorded := cfg
		recorded.Seed = sim.Source.Seed()
		runID, err = db.CreateRun(recorded, nodes)
		if err != nil {
			return err
		}
		source := "generated"
		if cfg.Scenario != "" {
			source = cfg.Scenario
		}
		if err := db.SaveMeta(runID, "scenario", source); err != nil {
			return err
		}
		if err := db.SaveTick(runID, 0, sim.Store, nil); err != nil {
			return err
		}
		eng.OnTick = db.Recorder(runID, sim)
		slog.Info("recording run", "path", cfg.Output, "run_id", runID)
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	if cfg.APIPort > 0 {
		srv := &api.Server{Sim: sim, DB: db, RunID: runID, Port: cfg.APIPort}
		srv.Start(ctx)
	}

	runErr := eng.Run(ctx, cfg.NTicks)
	if db != nil {
		status := persistence.StatusComplete
		switch {
		case errors.Is(runErr, context.Canceled):
			status = persistence.StatusInterrupted
		case runErr != nil:
			status = persistence.StatusFailed
		}
		if err := db.FinishRun(runID, status); err != nil {
			slog.Warn("failed to finish run", "run_id", runID, "error", err)
		}
		if err := db.SaveMeta(runID, "ticks_completed", strconv.FormatUint(eng.Tick, 10)); err != nil {
			slog.Warn("failed to save meta", "run_id", runID, "error", err)
		}
	}
	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			slog.Info("run interrupted", "tick", eng.Tick)
			return nil
		}
		return runErr
	}

	snap := sim.Snapshot()
	slog.Info("run complete",
		"ticks", snap.Tick,
		"time", snap.Time,
		"population", humanize.Comma(snap.Stats.Population()),
		"susceptible", humanize.Comma(snap.Stats.Susceptible),
		"infected", humanize.Comma(snap.Stats.Infected),
		"recovered", humanize.Comma(snap.Stats.Recovered),
		"births", humanize.Comma(engine.Sum(snap.Cumulative.Births)),
		"deaths", humanize.Comma(engine.Sum(snap.Cumulative.Deaths)),
		"infections", humanize.Comma(engine.Sum(snap.Cumulative.Infections)),
	)
	return nil
}
