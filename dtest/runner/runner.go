// Package runner drives a registry's dependency graph to completion.
//
// The runner repeatedly evaluates readiness over the set of unresolved
// nodes, executes ready nodes on a bounded pool of goroutines, and lets
// the core's propagation rules resolve everything that can never run.
// When the graph quiesces with unresolved nodes left (a dependency cycle,
// for example) the run reports them as stuck instead of hanging.
package runner

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/dshills/dtest-go/dtest"
	"github.com/dshills/dtest-go/dtest/emit"
	"github.com/dshills/dtest-go/dtest/store"
)

// Runner executes every node in a registry, honoring dependency order.
type Runner struct {
	maxConcurrent int64
	emitter       emit.Emitter
	metrics       *dtest.Metrics
	store         store.Store
	skipRule      func(*dtest.Node) bool
	runID         string
}

// Option configures a Runner.
type Option func(*Runner)

// WithMaxConcurrent bounds the number of nodes executing at once. The
// default is 1, which runs the graph serially in a deterministic order.
func WithMaxConcurrent(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.maxConcurrent = int64(n)
		}
	}
}

// WithEmitter sets the observability emitter for the run. The default
// discards all events.
func WithEmitter(e emit.Emitter) Option {
	return func(r *Runner) {
		if e != nil {
			r.emitter = e
		}
	}
}

// WithMetrics sets the Prometheus metrics recorder. Nil disables metrics.
func WithMetrics(m *dtest.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithStore archives the finished run to s.
func WithStore(s store.Store) Option {
	return func(r *Runner) { r.store = s }
}

// WithSkipRule replaces the rule deciding which nodes are skipped before
// scheduling begins. The default skips nodes that requested it at
// declaration time.
func WithSkipRule(rule func(*dtest.Node) bool) Option {
	return func(r *Runner) {
		if rule != nil {
			r.skipRule = rule
		}
	}
}

// WithRunID fixes the run identifier instead of generating one.
func WithRunID(id string) Option {
	return func(r *Runner) {
		if id != "" {
			r.runID = id
		}
	}
}

// New creates a Runner with the given options applied.
func New(opts ...Option) *Runner {
	r := &Runner{
		maxConcurrent: 1,
		emitter:       emit.NewNullEmitter(),
		skipRule:      func(n *dtest.Node) bool { return n.SkipRequested() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Summary is the result of one run.
type Summary struct {
	// RunID identifies the run.
	RunID string

	// Counts aggregates the terminal test verdicts.
	Counts dtest.Counts

	// Stuck names the nodes that never resolved, sorted. Non-empty only
	// when the graph contains a cycle or an unsatisfiable dependency.
	Stuck []string

	// Started and Finished bound the run's wall-clock window.
	Started  time.Time
	Finished time.Time
}

// Run executes the registry's graph to quiescence and returns the summary.
//
// The only error conditions are context cancellation and a failure to
// archive the run; test failures are reported through the summary counts,
// not as an error.
func (r *Runner) Run(ctx context.Context, reg *dtest.Registry) (*Summary, error) {
	runID := r.runID
	if runID == "" {
		runID = uuid.NewString()
	}
	started := time.Now()
	nodes := reg.Nodes()

	reg.SetNotify(func(n *dtest.Node, s dtest.State) {
		r.metrics.RecordResult(n, s)
		r.emitter.Emit(emit.Event{
			RunID: runID,
			Node:  n.Name(),
			Kind:  n.Kind().String(),
			State: s.String(),
			Msg:   "transition",
			Meta:  transitionMeta(n, s),
		})
	})

	r.emitter.Emit(emit.Event{
		RunID: runID,
		Msg:   "run_start",
		Meta:  map[string]any{"nodes": len(nodes)},
	})

	// Honor skip requests before anything runs, so the cascades settle
	// while the whole graph is still UNSTARTED.
	for _, n := range nodes {
		if r.skipRule(n) {
			reg.PropagateSkip(n)
		}
	}

	waiting := make(map[*dtest.Node]struct{}, len(nodes))
	for _, n := range nodes {
		waiting[n] = struct{}{}
	}

	sem := semaphore.NewWeighted(r.maxConcurrent)
	done := make(chan struct{}, len(nodes))
	running := 0

	for len(waiting) > 0 || running > 0 {
		progressed := false
		// Deterministic sweep in declaration order.
		for _, n := range nodes {
			if _, ok := waiting[n]; !ok {
				continue
			}
			switch reg.Ready(n) {
			case dtest.Resolved:
				delete(waiting, n)
				progressed = true
			case dtest.Ready:
				delete(waiting, n)
				progressed = true
				if err := sem.Acquire(ctx, 1); err != nil {
					return r.finish(runID, nodes, waiting, started), err
				}
				running++
				go func(n *dtest.Node) {
					defer sem.Release(1)
					r.exec(ctx, n)
					done <- struct{}{}
				}(n)
			}
		}

		if running > 0 {
			select {
			case <-ctx.Done():
				return r.finish(runID, nodes, waiting, started), ctx.Err()
			case <-done:
				running--
			}
			continue
		}
		if !progressed {
			// Quiescent with nothing running: the remaining nodes can
			// never become ready.
			break
		}
	}

	summary := r.finish(runID, nodes, waiting, started)
	if r.store != nil {
		if err := r.archive(ctx, summary, nodes); err != nil {
			return summary, fmt.Errorf("failed to archive run %s: %w", runID, err)
		}
	}
	return summary, nil
}

// exec runs one node and records its phase latencies.
func (r *Runner) exec(ctx context.Context, n *dtest.Node) {
	r.metrics.NodeStarted()
	defer r.metrics.NodeFinished()

	rec := n.Run(ctx)
	for _, res := range rec.Phases() {
		r.metrics.RecordPhase(res)
	}
}

// finish tallies the run and emits the closing events.
func (r *Runner) finish(runID string, nodes []*dtest.Node, waiting map[*dtest.Node]struct{}, started time.Time) *Summary {
	summary := &Summary{
		RunID:    runID,
		Counts:   dtest.Tally(nodes),
		Started:  started,
		Finished: time.Now(),
	}
	for n := range waiting {
		summary.Stuck = append(summary.Stuck, n.Name())
	}
	sort.Strings(summary.Stuck)

	if len(summary.Stuck) > 0 {
		r.emitter.Emit(emit.Event{
			RunID: runID,
			Msg:   "stuck",
			Meta:  map[string]any{"stuck": summary.Stuck},
		})
	}
	r.emitter.Emit(emit.Event{
		RunID: runID,
		Msg:   "run_complete",
		Meta: map[string]any{
			"duration_ms": summary.Finished.Sub(summary.Started).Milliseconds(),
			"summary":     summary.Counts.String(),
		},
	})
	return summary
}

// archive persists the summary and per-node results.
func (r *Runner) archive(ctx context.Context, summary *Summary, nodes []*dtest.Node) error {
	run := store.RunRecord{
		ID:         summary.RunID,
		StartedAt:  summary.Started,
		FinishedAt: summary.Finished,
		Total:      summary.Counts.Total,
		Passed:     summary.Counts.Passed,
		Failed:     summary.Counts.Failed,
		Errors:     summary.Counts.Errors,
		DepFailed:  summary.Counts.DepFailed,
		Skipped:    summary.Counts.Skipped,
		Unresolved: summary.Counts.Unresolved,
	}
	if err := r.store.SaveRun(ctx, run); err != nil {
		return err
	}
	return r.store.SaveResults(ctx, buildResults(summary.RunID, nodes))
}

func buildResults(runID string, nodes []*dtest.Node) []store.NodeResult {
	out := make([]store.NodeResult, 0, len(nodes))
	for _, n := range nodes {
		res := store.NodeResult{
			RunID: runID,
			Node:  n.Name(),
			Kind:  n.Kind().String(),
			State: n.State().String(),
		}
		if rec := n.Result(); rec != nil {
			for _, pr := range rec.Phases() {
				po := store.PhaseOutcome{
					Phase:      string(pr.Phase),
					Outcome:    pr.Outcome.String(),
					DurationMS: pr.Duration.Milliseconds(),
				}
				if pr.Err != nil {
					po.Error = pr.Err.Error()
				}
				res.Phases = append(res.Phases, po)
				res.Duration += pr.Duration
			}
		}
		out = append(out, res)
	}
	return out
}

// transitionMeta enriches a transition event with fault detail and timing
// for nodes that actually ran.
func transitionMeta(n *dtest.Node, s dtest.State) map[string]any {
	rec := n.Result()
	if rec == nil {
		return nil
	}
	meta := map[string]any{}
	var total time.Duration
	for _, pr := range rec.Phases() {
		total += pr.Duration
		if pr.Err != nil {
			if _, seen := meta["error"]; !seen {
				meta["error"] = pr.Err.Error()
			}
		}
	}
	meta["duration_ms"] = total.Milliseconds()
	return meta
}
