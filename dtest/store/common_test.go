package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

// runStoreScenario exercises the full Store contract against one backend.
// Every implementation must pass it unchanged.
func runStoreScenario(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	runs := []RunRecord{
		{ID: "run-001", StartedAt: base, FinishedAt: base.Add(time.Minute),
			Total: 3, Passed: 2, Failed: 1},
		{ID: "run-002", StartedAt: base.Add(time.Hour), FinishedAt: base.Add(time.Hour + time.Minute),
			Total: 3, Passed: 3},
	}

	t.Run("save and load run", func(t *testing.T) {
		for _, run := range runs {
			if err := s.SaveRun(ctx, run); err != nil {
				t.Fatalf("failed to save run: %v", err)
			}
		}

		got, err := s.LoadRun(ctx, "run-001")
		if err != nil {
			t.Fatalf("failed to load run: %v", err)
		}
		if got.Total != 3 || got.Passed != 2 || got.Failed != 1 {
			t.Errorf("expected counts 3/2/1, got %d/%d/%d", got.Total, got.Passed, got.Failed)
		}
		if !got.StartedAt.Equal(base) {
			t.Errorf("expected start %v, got %v", base, got.StartedAt)
		}
	})

	t.Run("load unknown run", func(t *testing.T) {
		_, err := s.LoadRun(ctx, "no-such-run")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("replace run record", func(t *testing.T) {
		updated := runs[0]
		updated.Passed = 3
		updated.Failed = 0
		if err := s.SaveRun(ctx, updated); err != nil {
			t.Fatalf("failed to replace run: %v", err)
		}
		got, err := s.LoadRun(ctx, "run-001")
		if err != nil {
			t.Fatalf("failed to load run: %v", err)
		}
		if got.Passed != 3 || got.Failed != 0 {
			t.Errorf("expected the replacement to win, got %d/%d", got.Passed, got.Failed)
		}
	})

	t.Run("list runs newest first", func(t *testing.T) {
		list, err := s.ListRuns(ctx, 0)
		if err != nil {
			t.Fatalf("failed to list runs: %v", err)
		}
		if len(list) != 2 {
			t.Fatalf("expected 2 runs, got %d", len(list))
		}
		if list[0].ID != "run-002" || list[1].ID != "run-001" {
			t.Errorf("expected [run-002 run-001], got [%s %s]", list[0].ID, list[1].ID)
		}

		limited, err := s.ListRuns(ctx, 1)
		if err != nil {
			t.Fatalf("failed to list runs with limit: %v", err)
		}
		if len(limited) != 1 || limited[0].ID != "run-002" {
			t.Errorf("expected only the newest run, got %v", limited)
		}
	})

	t.Run("save and read results", func(t *testing.T) {
		results := []NodeResult{
			{
				RunID: "run-001", Node: "pkg.test_b", Kind: "test", State: "FAIL",
				Phases: []PhaseOutcome{
					{Phase: "body", Outcome: "assertion_failure", Error: "expected 4, got 5", DurationMS: 12},
				},
				Duration: 12 * time.Millisecond,
			},
			{
				RunID: "run-001", Node: "pkg.test_a", Kind: "test", State: "OK",
				Phases: []PhaseOutcome{
					{Phase: "pre", Outcome: "success", DurationMS: 1},
					{Phase: "body", Outcome: "success", DurationMS: 7},
				},
				Duration: 8 * time.Millisecond,
			},
		}
		if err := s.SaveResults(ctx, results); err != nil {
			t.Fatalf("failed to save results: %v", err)
		}

		got, err := s.Results(ctx, "run-001")
		if err != nil {
			t.Fatalf("failed to read results: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 results, got %d", len(got))
		}
		// Ordered by node name.
		if got[0].Node != "pkg.test_a" || got[1].Node != "pkg.test_b" {
			t.Errorf("expected name order [test_a test_b], got [%s %s]", got[0].Node, got[1].Node)
		}
		if len(got[1].Phases) != 1 || got[1].Phases[0].Error != "expected 4, got 5" {
			t.Errorf("expected the fault preserved in phases, got %+v", got[1].Phases)
		}
		if got[0].Duration != 8*time.Millisecond {
			t.Errorf("expected duration 8ms, got %v", got[0].Duration)
		}
	})

	t.Run("results for unknown run", func(t *testing.T) {
		_, err := s.Results(ctx, "no-such-run")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}
