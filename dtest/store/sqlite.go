package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite-backed Store.
//
// It archives runs in a single-file database with zero setup, which makes
// it the right choice for local development and CI artifacts. WAL mode is
// enabled so readers are not blocked by the archiving writes.
//
// Schema:
//   - runs: one row per run with aggregate counts
//   - results: one row per node per run, phases stored as JSON
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (and if necessary creates) the database at path.
// Use ":memory:" for an in-memory database that is lost on Close.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	// SQLite supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) createTables(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER NOT NULL,
	total       INTEGER NOT NULL,
	passed      INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	errors      INTEGER NOT NULL,
	depfailed   INTEGER NOT NULL,
	skipped     INTEGER NOT NULL,
	unresolved  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS results (
	run_id      TEXT NOT NULL,
	node        TEXT NOT NULL,
	kind        TEXT NOT NULL,
	state       TEXT NOT NULL,
	phases      TEXT NOT NULL,
	duration_ms INTEGER NOT NULL,
	PRIMARY KEY (run_id, node),
	FOREIGN KEY (run_id) REFERENCES runs(id)
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// SaveRun implements Store.
func (s *SQLiteStore) SaveRun(ctx context.Context, run RunRecord) error {
	const q = `
INSERT INTO runs (id, started_at, finished_at, total, passed, failed, errors, depfailed, skipped, unresolved)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	started_at = excluded.started_at,
	finished_at = excluded.finished_at,
	total = excluded.total,
	passed = excluded.passed,
	failed = excluded.failed,
	errors = excluded.errors,
	depfailed = excluded.depfailed,
	skipped = excluded.skipped,
	unresolved = excluded.unresolved`
	_, err := s.db.ExecContext(ctx, q,
		run.ID, run.StartedAt.UnixMilli(), run.FinishedAt.UnixMilli(),
		run.Total, run.Passed, run.Failed, run.Errors,
		run.DepFailed, run.Skipped, run.Unresolved)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}
	return nil
}

// SaveResults implements Store. Results are written in one transaction.
func (s *SQLiteStore) SaveResults(ctx context.Context, results []NodeResult) error {
	if len(results) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const q = `
INSERT INTO results (run_id, node, kind, state, phases, duration_ms)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(run_id, node) DO UPDATE SET
	kind = excluded.kind,
	state = excluded.state,
	phases = excluded.phases,
	duration_ms = excluded.duration_ms`
	for _, res := range results {
		phases, err := json.Marshal(res.Phases)
		if err != nil {
			return fmt.Errorf("failed to marshal phases for %s: %w", res.Node, err)
		}
		_, err = tx.ExecContext(ctx, q,
			res.RunID, res.Node, res.Kind, res.State,
			string(phases), res.Duration.Milliseconds())
		if err != nil {
			return fmt.Errorf("failed to save result for %s: %w", res.Node, err)
		}
	}
	return tx.Commit()
}

// LoadRun implements Store.
func (s *SQLiteStore) LoadRun(ctx context.Context, runID string) (RunRecord, error) {
	const q = `
SELECT id, started_at, finished_at, total, passed, failed, errors, depfailed, skipped, unresolved
FROM runs WHERE id = ?`
	return scanRun(s.db.QueryRowContext(ctx, q, runID))
}

// ListRuns implements Store.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	q := `
SELECT id, started_at, finished_at, total, passed, failed, errors, depfailed, skipped, unresolved
FROM runs ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// Results implements Store.
func (s *SQLiteStore) Results(ctx context.Context, runID string) ([]NodeResult, error) {
	if _, err := s.LoadRun(ctx, runID); err != nil {
		return nil, err
	}
	const q = `
SELECT run_id, node, kind, state, phases, duration_ms
FROM results WHERE run_id = ? ORDER BY node`
	rows, err := s.db.QueryContext(ctx, q, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanResults(rows)
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (RunRecord, error) {
	var run RunRecord
	var started, finished int64
	err := row.Scan(&run.ID, &started, &finished, &run.Total, &run.Passed,
		&run.Failed, &run.Errors, &run.DepFailed, &run.Skipped, &run.Unresolved)
	if err == sql.ErrNoRows {
		return RunRecord{}, ErrNotFound
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("failed to scan run: %w", err)
	}
	run.StartedAt = time.UnixMilli(started)
	run.FinishedAt = time.UnixMilli(finished)
	return run, nil
}

func scanResults(rows *sql.Rows) ([]NodeResult, error) {
	var out []NodeResult
	for rows.Next() {
		var res NodeResult
		var phases string
		var durationMS int64
		err := rows.Scan(&res.RunID, &res.Node, &res.Kind, &res.State, &phases, &durationMS)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		if err := json.Unmarshal([]byte(phases), &res.Phases); err != nil {
			return nil, fmt.Errorf("failed to unmarshal phases for %s: %w", res.Node, err)
		}
		res.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, res)
	}
	return out, rows.Err()
}
