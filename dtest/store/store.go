// Package store provides optional persistence for completed test runs.
//
// The live dependency graph is never persisted; it is rebuilt fresh for
// every run. What a Store archives is the outcome of finished runs: one
// run record with aggregate counts, plus one result row per node, so that
// historical runs can be listed and inspected after the process exits.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested run ID does not exist.
var ErrNotFound = errors.New("not found")

// RunRecord is the archived summary of one run.
type RunRecord struct {
	// ID is the unique run identifier.
	ID string

	// StartedAt and FinishedAt bound the run's wall-clock window.
	StartedAt  time.Time
	FinishedAt time.Time

	// Aggregate test counts (fixtures excluded, as in live reporting).
	Total      int
	Passed     int
	Failed     int
	Errors     int
	DepFailed  int
	Skipped    int
	Unresolved int
}

// PhaseOutcome is the archived outcome of one executed phase.
type PhaseOutcome struct {
	// Phase is "pre", "body" or "post".
	Phase string `json:"phase"`

	// Outcome is "success", "assertion_failure" or "unexpected_error".
	Outcome string `json:"outcome"`

	// Error is the preserved fault message; empty on success.
	Error string `json:"error,omitempty"`

	// DurationMS is the phase's execution time in milliseconds.
	DurationMS int64 `json:"duration_ms"`
}

// NodeResult is the archived terminal outcome of one node.
type NodeResult struct {
	// RunID identifies the run the result belongs to.
	RunID string

	// Node is the node's identity label.
	Node string

	// Kind is "test" or "fixture".
	Kind string

	// State is the node's terminal state name.
	State string

	// Phases lists the executed phases in order; empty for nodes that
	// never ran (DEPFAIL, SKIPPED).
	Phases []PhaseOutcome

	// Duration is the node's total execution time; zero when it never
	// ran.
	Duration time.Duration
}

// Store archives completed runs.
//
// Implementations: MemoryStore for tests and single-process use,
// SQLiteStore for zero-setup local persistence, MySQLStore for shared
// archives.
type Store interface {
	// SaveRun persists the run summary. Saving the same run ID again
	// replaces the record (the run finished once; retries are updates).
	SaveRun(ctx context.Context, run RunRecord) error

	// SaveResults persists the per-node results of a run.
	SaveResults(ctx context.Context, results []NodeResult) error

	// LoadRun retrieves one run summary. Returns ErrNotFound for an
	// unknown ID.
	LoadRun(ctx context.Context, runID string) (RunRecord, error)

	// ListRuns retrieves the most recent run summaries, newest first,
	// up to limit (unlimited when limit <= 0).
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)

	// Results retrieves the per-node results for a run, ordered by node
	// name. Returns ErrNotFound for an unknown ID.
	Results(ctx context.Context, runID string) ([]NodeResult, error)

	// Close releases any underlying resources.
	Close() error
}
