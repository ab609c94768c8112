// Package api provides the HTTP API for observing a running simulation.
// Every endpoint is GET and read-only. Simulation data is served from the
// snapshot published after each tick, never from the live store.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/talgya/metapop/internal/engine"
	"github.com/talgya/metapop/internal/epi"
	"github.com/talgya/metapop/internal/persistence"
	"github.com/talgya/metapop/internal/world"
)

// Server serves simulation state over HTTP.
type Server struct {
	Sim   *engine.Simulation
	DB    *persistence.DB // Optional; enables the run endpoints
	RunID string          // Run being recorded, if any
	Port  int
}

// Handler returns the routed API with CORS applied.
func (s *Server) Handler() http.Handler {
	runLimiter := NewRateLimiter(60, time.Minute)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/nodes", s.handleNodes)
	mux.HandleFunc("GET /api/v1/node/{idx}", s.handleNodeDetail)
	mux.HandleFunc("GET /api/v1/history", s.handleHistory)

	// Database-backed endpoints.
	mux.HandleFunc("GET /api/v1/runs", RateLimitMiddleware(runLimiter, s.handleRuns))
	mux.HandleFunc("GET /api/v1/run/{id}/trajectory", RateLimitMiddleware(runLimiter, s.handleTrajectory))

	return corsMiddleware(mux)
}

// Start serves the API in a goroutine until ctx is done.
func (s *Server) Start(ctx context.Context) {
	addr := fmt.Sprintf(":%d", s.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", addr, "db", s.DB != nil)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("HTTP server shutdown", "error", err)
		}
	}()
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS to a comma-separated list of extra allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.Sim.Snapshot()
	status := map[string]any{
		"name":             "metapop",
		"tick":             snap.Tick,
		"sim_time":         snap.Time,
		"seed":             strconv.FormatUint(s.Sim.Source.Seed(), 10),
		"nodes":            len(snap.Names),
		"population":       snap.Stats.Population(),
		"susceptible":      snap.Stats.Susceptible,
		"infected":         snap.Stats.Infected,
		"recovered":        snap.Stats.Recovered,
		"births_total":     engine.Sum(snap.Cumulative.Births),
		"deaths_total":     engine.Sum(snap.Cumulative.Deaths),
		"infections_total": engine.Sum(snap.Cumulative.Infections),
		"run_id":           s.RunID,
	}
	writeJSON(w, status)
}

type nodeSummary struct {
	Idx         int            `json:"idx"`
	Name        string         `json:"name"`
	Position    world.Position `json:"position"`
	Population  int64          `json:"population"`
	Susceptible int64          `json:"susceptible"`
	Infected    int64          `json:"infected"`
	Recovered   int64          `json:"recovered"`
}

func (s *Server) summarize(snap engine.Snapshot, n int) nodeSummary {
	name := strconv.Itoa(n)
	if n < len(snap.Names) {
		name = snap.Names[n]
	}
	return nodeSummary{
		Idx:         n,
		Name:        name,
		Position:    s.Sim.Nodes.Positions[n],
		Population:  snap.Store.Total(n),
		Susceptible: snap.Store.Count(epi.Susceptible, n),
		Infected:    snap.Store.Count(epi.Infected, n),
		Recovered:   snap.Store.Count(epi.Recovered, n),
	}
}

func (s *Server) handleNodes(w http.ResponseWriter, r *http.Request) {
	snap := s.Sim.Snapshot()
	result := make([]nodeSummary, snap.Store.Len())
	for n := range result {
		result[n] = s.summarize(snap, n)
	}
	writeJSON(w, result)
}

func (s *Server) handleNodeDetail(w http.ResponseWriter, r *http.Request) {
	snap := s.Sim.Snapshot()
	idx, err := strconv.Atoi(r.PathValue("idx"))
	if err != nil || idx < 0 || idx >= snap.Store.Len() {
		http.Error(w, "node not found", http.StatusNotFound)
		return
	}

	detail := struct {
		nodeSummary
		InitialPopulation  int64   `json:"initial_population"`
		AnnualBirths       int64   `json:"annual_births"`
		ExpectedBirths     float64 `json:"expected_births_per_tick"`
		DeathProbability   float64 `json:"death_probability_per_tick"`
		CumulativeBirths   int64   `json:"cumulative_births"`
		CumulativeDeaths   int64   `json:"cumulative_deaths"`
		CumulativeInfected int64   `json:"cumulative_infections"`
	}{
		nodeSummary:        s.summarize(snap, idx),
		InitialPopulation:  s.Sim.Params.Population[idx],
		AnnualBirths:       s.Sim.Params.Births[idx],
		ExpectedBirths:     s.Sim.Params.BiweekAvgBirths[idx],
		DeathProbability:   s.Sim.Params.BiweekDeathProb[idx],
		CumulativeBirths:   snap.Cumulative.Births[idx],
		CumulativeDeaths:   snap.Cumulative.Deaths[idx],
		CumulativeInfected: snap.Cumulative.Infections[idx],
	}
	writeJSON(w, detail)
}

// handleHistory returns per-tick totals. Query: from, to (tick, inclusive),
// limit (most recent entries kept).
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	snap := s.Sim.Snapshot()

	fromTick := uint64(0)
	toTick := ^uint64(0)
	limit := 0

	q := r.URL.Query()
	if f := q.Get("from"); f != "" {
		if v, err := strconv.ParseUint(f, 10, 64); err == nil {
			fromTick = v
		}
	}
	if t := q.Get("to"); t != "" {
		if v, err := strconv.ParseUint(t, 10, 64); err == nil {
			toTick = v
		}
	}
	if l := q.Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 {
			limit = v
		}
	}

	rows := []engine.SimStats{}
	for _, st := range snap.History {
		if st.Tick >= fromTick && st.Tick <= toTick {
			rows = append(rows, st)
		}
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}
	writeJSON(w, rows)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}
	runs, err := s.DB.Runs()
	if err != nil {
		slog.Error("runs query failed", "error", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []persistence.RunRecord{}
	}
	writeJSON(w, runs)
}

func (s *Server) handleTrajectory(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}
	id := r.PathValue("id")
	rows, err := s.DB.Trajectory(id)
	if err != nil {
		slog.Error("trajectory query failed", "run_id", id, "error", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	if len(rows) == 0 {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	writeJSON(w, rows)
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		slog.Warn("write response", "error", err)
	}
}
