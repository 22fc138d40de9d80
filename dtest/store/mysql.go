package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is a MySQL/MariaDB implementation of Store.
//
// It archives runs in a shared relational database. Designed for:
//   - Teams archiving runs from many machines into one place
//   - Dashboards and audit trails built on historical run data
//   - Archives that must survive process and host restarts
//
// MySQLStore uses connection pooling and transactions for reliability.
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore creates a new MySQL-backed store.
//
// The DSN (Data Source Name) format is:
//
//	[username[:password]@][protocol[(address)]]/dbname[?param1=value1&...]
//
// Example DSNs:
//
//	user:password@tcp(localhost:3306)/testruns
//	user:password@tcp(127.0.0.1:3306)/testruns?parseTime=true
//
// Security Warning:
//
//	NEVER hardcode credentials in your source code. Use environment variables:
//	    dsn := os.Getenv("MYSQL_DSN")
//	    if dsn == "" {
//	        log.Fatal("MYSQL_DSN environment variable not set")
//	    }
//	    store, err := NewMySQLStore(dsn)
//
// The store automatically creates required tables if they don't exist and
// configures connection pooling.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	store := &MySQLStore{db: db}
	if err := store.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return store, nil
}

func (m *MySQLStore) createTables(ctx context.Context) error {
	runsTable := `
		CREATE TABLE IF NOT EXISTS test_runs (
			id VARCHAR(255) PRIMARY KEY,
			started_at BIGINT NOT NULL,
			finished_at BIGINT NOT NULL,
			total INT NOT NULL,
			passed INT NOT NULL,
			failed INT NOT NULL,
			errors INT NOT NULL,
			depfailed INT NOT NULL,
			skipped INT NOT NULL,
			unresolved INT NOT NULL,
			INDEX idx_started (started_at)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci
	`
	if _, err := m.db.ExecContext(ctx, runsTable); err != nil {
		return fmt.Errorf("failed to create test_runs table: %w", err)
	}

	resultsTable := `
		CREATE TABLE IF NOT EXISTS test_results (
			run_id VARCHAR(255) NOT NULL,
			node VARCHAR(255) NOT NULL,
			kind VARCHAR(16) NOT NULL,
			state VARCHAR(16) NOT NULL,
			phases JSON NOT NULL,
			duration_ms BIGINT NOT NULL,
			PRIMARY KEY (run_id, node),
			INDEX idx_run_id (run_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci
	`
	if _, err := m.db.ExecContext(ctx, resultsTable); err != nil {
		return fmt.Errorf("failed to create test_results table: %w", err)
	}
	return nil
}

// SaveRun implements Store.
func (m *MySQLStore) SaveRun(ctx context.Context, run RunRecord) error {
	const q = `
		INSERT INTO test_runs (id, started_at, finished_at, total, passed, failed, errors, depfailed, skipped, unresolved)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			started_at = VALUES(started_at),
			finished_at = VALUES(finished_at),
			total = VALUES(total),
			passed = VALUES(passed),
			failed = VALUES(failed),
			errors = VALUES(errors),
			depfailed = VALUES(depfailed),
			skipped = VALUES(skipped),
			unresolved = VALUES(unresolved)`
	_, err := m.db.ExecContext(ctx, q,
		run.ID, run.StartedAt.UnixMilli(), run.FinishedAt.UnixMilli(),
		run.Total, run.Passed, run.Failed, run.Errors,
		run.DepFailed, run.Skipped, run.Unresolved)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}
	return nil
}

// SaveResults implements Store. Results are written in one transaction.
func (m *MySQLStore) SaveResults(ctx context.Context, results []NodeResult) error {
	if len(results) == 0 {
		return nil
	}
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const q = `
		INSERT INTO test_results (run_id, node, kind, state, phases, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			kind = VALUES(kind),
			state = VALUES(state),
			phases = VALUES(phases),
			duration_ms = VALUES(duration_ms)`
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
func (m *MySQLStore) LoadRun(ctx context.Context, runID string) (RunRecord, error) {
	const q = `
		SELECT id, started_at, finished_at, total, passed, failed, errors, depfailed, skipped, unresolved
		FROM test_runs WHERE id = ?`
	return scanRun(m.db.QueryRowContext(ctx, q, runID))
}

// ListRuns implements Store.
func (m *MySQLStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	q := `
		SELECT id, started_at, finished_at, total, passed, failed, errors, depfailed, skipped, unresolved
		FROM test_runs ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := m.db.QueryContext(ctx, q, args...)
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
func (m *MySQLStore) Results(ctx context.Context, runID string) ([]NodeResult, error) {
	if _, err := m.LoadRun(ctx, runID); err != nil {
		return nil, err
	}
	const q = `
		SELECT run_id, node, kind, state, phases, duration_ms
		FROM test_results WHERE run_id = ? ORDER BY node`
	rows, err := m.db.QueryContext(ctx, q, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanResults(rows)
}

// Close implements Store.
func (m *MySQLStore) Close() error {
	return m.db.Close()
}
