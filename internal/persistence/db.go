// Package persistence provides SQLite-based storage of simulation runs:
// run metadata, the node table, and the per-tick S/I/R trajectory.
package persistence

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/metapop/internal/config"
	"github.com/talgya/metapop/internal/engine"
	"github.com/talgya/metapop/internal/epi"
	"github.com/talgya/metapop/internal/state"
)

// Run statuses.
const (
	StatusRunning     = "running"
	StatusComplete    = "complete"
	StatusFailed      = "failed"
	StatusInterrupted = "interrupted"
)

// DB wraps a SQLite connection for run storage.
type DB struct {
	conn *sqlx.DB
}

// RunRecord is one row of the runs table.
type RunRecord struct {
	ID         string         `db:"id" json:"id"`
	Seed       string         `db:"seed" json:"seed"` // Text: uint64 seeds overflow INTEGER
	NTicks     int            `db:"nticks" json:"nticks"`
	Nodes      int            `db:"nodes" json:"nodes"`
	ParamsJSON string         `db:"params_json" json:"params"`
	Status     string         `db:"status" json:"status"`
	StartedAt  string         `db:"started_at" json:"started_at"`
	FinishedAt sql.NullString `db:"finished_at" json:"-"`
	Completed  int64          `db:"completed" json:"completed"` // Ticks completed
}

// NodeRecord is one row of the nodes table.
type NodeRecord struct {
	Idx        int     `db:"idx" json:"idx"`
	Name       string  `db:"name" json:"name"`
	X          float64 `db:"x" json:"x"`
	Y          float64 `db:"y" json:"y"`
	Population int64   `db:"population" json:"population"`
	Births     int64   `db:"births" json:"births"`
}

// TrajectoryRow is the state of one node after a number of completed ticks,
// with the draws that produced it.
type TrajectoryRow struct {
	Tick       int64 `db:"tick" json:"tick"` // Ticks completed; 0 is the initial state
	Node       int   `db:"node" json:"node"`
	S          int64 `db:"s" json:"s"`
	I          int64 `db:"i" json:"i"`
	R          int64 `db:"r" json:"r"`
	Infections int64 `db:"infections" json:"infections"`
	Births     int64 `db:"births" json:"births"`
	Deaths     int64 `db:"deaths" json:"deaths"`
	Clamped    int64 `db:"clamped" json:"clamped"`
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		seed TEXT NOT NULL,
		nticks INTEGER NOT NULL,
		nodes INTEGER NOT NULL,
		params_json TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		completed INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS nodes (
		run_id TEXT NOT NULL,
		idx INTEGER NOT NULL,
		name TEXT NOT NULL,
		x REAL NOT NULL,
		y REAL NOT NULL,
		population INTEGER NOT NULL,
		births INTEGER NOT NULL,
		PRIMARY KEY (run_id, idx)
	);

	CREATE TABLE IF NOT EXISTS trajectory (
		run_id TEXT NOT NULL,
		tick INTEGER NOT NULL,
		node INTEGER NOT NULL,
		s INTEGER NOT NULL,
		i INTEGER NOT NULL,
		r INTEGER NOT NULL,
		infections INTEGER NOT NULL,
		births INTEGER NOT NULL,
		deaths INTEGER NOT NULL,
		clamped INTEGER NOT NULL,
		PRIMARY KEY (run_id, tick, node)
	);

	CREATE TABLE IF NOT EXISTS run_meta (
		run_id TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (run_id, key)
	);

	CREATE INDEX IF NOT EXISTS idx_trajectory_node ON trajectory(run_id, node);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// CreateRun records a new run with its parameters and node table and returns
// the run ID.
func (db *DB) CreateRun(cfg config.Config, nodes state.Nodes) (string, error) {
	params, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("marshal params: %w", err)
	}
	id := uuid.NewString()

	tx, err := db.conn.Beginx()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO runs
		(id, seed, nticks, nodes, params_json, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, strconv.FormatUint(cfg.Seed, 10), cfg.NTicks, nodes.Len(), string(params),
		StatusRunning, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.Preparex(`INSERT INTO nodes
		(run_id, idx, name, x, y, population, births)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", err
	}
	defer stmt.Close()

	for i := 0; i < nodes.Len(); i++ {
		name := strconv.Itoa(i)
		if i < len(nodes.Names) {
			name = nodes.Names[i]
		}
		p := nodes.Positions[i]
		if _, err := stmt.Exec(id, i, name, p.X, p.Y, nodes.Population[i], nodes.Births[i]); err != nil {
			return "", fmt.Errorf("insert node %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	slog.Info("run created", "run_id", id, "nodes", nodes.Len())
	return id, nil
}

// SaveTick writes the state after completed ticks. report is nil for the
// initial state.
func (db *DB) SaveTick(runID string, completed uint64, store *state.Store, report *engine.TickReport) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex(`INSERT OR REPLACE INTO trajectory
		(run_id, tick, node, s, i, r, infections, births, deaths, clamped)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for n := 0; n < store.Len(); n++ {
		var inf, births, deaths, clamped int64
		if report != nil {
			inf, births, deaths, clamped = report.Infections[n], report.Births[n], report.Deaths[n], report.Clamped[n]
		}
		_, err := stmt.Exec(runID, int64(completed), n,
			store.Count(epi.Susceptible, n), store.Count(epi.Infected, n), store.Count(epi.Recovered, n),
			inf, births, deaths, clamped,
		)
		if err != nil {
			return fmt.Errorf("insert tick %d node %d: %w", completed, n, err)
		}
	}

	if _, err := tx.Exec("UPDATE runs SET completed = ? WHERE id = ?", int64(completed), runID); err != nil {
		return err
	}
	return tx.Commit()
}

// FinishRun records a run's final status.
func (db *DB) FinishRun(runID, status string) error {
	_, err := db.conn.Exec("UPDATE runs SET status = ?, finished_at = ? WHERE id = ?",
		status, time.Now().UTC().Format(time.RFC3339), runID)
	return err
}

// SaveMeta stores a key-value pair for a run.
func (db *DB) SaveMeta(runID, key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO run_meta (run_id, key, value) VALUES (?, ?, ?)",
		runID, key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(runID, key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM run_meta WHERE run_id = ? AND key = ?", runID, key)
	return value, err
}

// Run returns one run by ID.
func (db *DB) Run(runID string) (RunRecord, error) {
	var r RunRecord
	err := db.conn.Get(&r, "SELECT * FROM runs WHERE id = ?", runID)
	return r, err
}

// Runs returns every run, most recent first.
func (db *DB) Runs() ([]RunRecord, error) {
	var runs []RunRecord
	err := db.conn.Select(&runs, "SELECT * FROM runs ORDER BY started_at DESC, id")
	return runs, err
}

// Nodes returns a run's node table in index order.
func (db *DB) Nodes(runID string) ([]NodeRecord, error) {
	var nodes []NodeRecord
	err := db.conn.Select(&nodes,
		"SELECT idx, name, x, y, population, births FROM nodes WHERE run_id = ? ORDER BY idx",
		runID,
	)
	return nodes, err
}

// Trajectory returns a run's trajectory ordered by tick then node.
func (db *DB) Trajectory(runID string) ([]TrajectoryRow, error) {
	var rows []TrajectoryRow
	err := db.conn.Select(&rows,
		`SELECT tick, node, s, i, r, infections, births, deaths, clamped
		 FROM trajectory WHERE run_id = ? ORDER BY tick, node`,
		runID,
	)
	return rows, err
}

// Recorder returns an engine OnTick hook that saves every completed tick of sim.
func (db *DB) Recorder(runID string, sim *engine.Simulation) func(tick uint64) error {
	return func(tick uint64) error {
		report := sim.LastReport
		return db.SaveTick(runID, tick+1, sim.Store, &report)
	}
}
