package runner

import (
	"context"
	"sync"
	"testing"

	"github.com/dshills/dtest-go/dtest"
	"github.com/dshills/dtest-go/dtest/emit"
	"github.com/dshills/dtest-go/dtest/store"
)

// mustDeclare creates a node keyed by name, so helper closures sharing a
// body literal never collide.
func mustDeclare(t *testing.T, reg *dtest.Registry, d dtest.Declaration) *dtest.Node {
	t.Helper()
	if d.Key == nil {
		d.Key = d.Name
	}
	n, err := reg.Declare(d)
	if err != nil {
		t.Fatalf("failed to declare %s: %v", d.Name, err)
	}
	return n
}

// orderTracker records node execution order across goroutines.
type orderTracker struct {
	mu    sync.Mutex
	order []string
}

func (o *orderTracker) record(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.order = append(o.order, name)
}

func (o *orderTracker) names() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, len(o.order))
	copy(out, o.order)
	return out
}

func trackedTest(t *testing.T, reg *dtest.Registry, tr *orderTracker, name string) *dtest.Node {
	t.Helper()
	return mustDeclare(t, reg, dtest.Declaration{
		Name: name,
		Kind: dtest.KindTest,
		Body: func(ctx context.Context) error {
			tr.record(name)
			return nil
		},
	})
}

// captureEmitter collects events for assertions.
type captureEmitter struct {
	mu     sync.Mutex
	events []emit.Event
}

func (c *captureEmitter) Emit(event emit.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *captureEmitter) byMsg(msg string) []emit.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []emit.Event
	for _, e := range c.events {
		if e.Msg == msg {
			out = append(out, e)
		}
	}
	return out
}

// TestRunnerSerialOrder verifies a dependency chain executes in order with
// the default serial runner.
func TestRunnerSerialOrder(t *testing.T) {
	reg := dtest.NewRegistry()
	tr := &orderTracker{}

	a := trackedTest(t, reg, tr, "a")
	b := trackedTest(t, reg, tr, "b")
	c := trackedTest(t, reg, tr, "c")
	b.AddDependency(a)
	c.AddDependency(b)

	summary, err := New().Run(context.Background(), reg)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	want := []string{"a", "b", "c"}
	got := tr.names()
	if len(got) != len(want) {
		t.Fatalf("expected order %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}
	if summary.Counts.Passed != 3 {
		t.Errorf("expected 3 passed, got %d", summary.Counts.Passed)
	}
	if !summary.Counts.Success() {
		t.Error("expected a successful run")
	}
}

// TestRunnerFailurePoisonsDependents verifies dependents of a failed test
// finish DEPFAIL without running.
func TestRunnerFailurePoisonsDependents(t *testing.T) {
	reg := dtest.NewRegistry()
	tr := &orderTracker{}

	bad := mustDeclare(t, reg, dtest.Declaration{
		Name: "bad",
		Kind: dtest.KindTest,
		Body: func(ctx context.Context) error { return dtest.Failf("broken") },
	})
	child := trackedTest(t, reg, tr, "child")
	grandchild := trackedTest(t, reg, tr, "grandchild")
	child.AddDependency(bad)
	grandchild.AddDependency(child)

	summary, err := New().Run(context.Background(), reg)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(tr.names()) != 0 {
		t.Errorf("expected no poisoned node to run, ran %v", tr.names())
	}
	if summary.Counts.Failed != 1 || summary.Counts.DepFailed != 2 {
		t.Errorf("expected 1 failed and 2 depfailed, got %+v", summary.Counts)
	}
	if child.State() != dtest.StateDepFail || grandchild.State() != dtest.StateDepFail {
		t.Errorf("expected DEPFAIL states, got %s/%s", child.State(), grandchild.State())
	}
}

// TestRunnerHonorsSkipRequests verifies declaration-time skips cascade
// before anything runs.
func TestRunnerHonorsSkipRequests(t *testing.T) {
	reg := dtest.NewRegistry()
	tr := &orderTracker{}

	skipped := mustDeclare(t, reg, dtest.Declaration{
		Name: "skipped",
		Kind: dtest.KindTest,
		Skip: true,
		Body: func(ctx context.Context) error {
			tr.record("skipped")
			return nil
		},
	})
	dependent := trackedTest(t, reg, tr, "dependent")
	dependent.AddDependency(skipped)
	trackedTest(t, reg, tr, "independent")

	summary, err := New().Run(context.Background(), reg)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if summary.Counts.Skipped != 2 || summary.Counts.Passed != 1 {
		t.Errorf("expected 2 skipped and 1 passed, got %+v", summary.Counts)
	}
	got := tr.names()
	if len(got) != 1 || got[0] != "independent" {
		t.Errorf("expected only the independent test to run, ran %v", got)
	}
}

// TestRunnerFixtureChain verifies setup runs before the tests and the
// teardown runs last, even when a test fails.
func TestRunnerFixtureChain(t *testing.T) {
	reg := dtest.NewRegistry()
	tr := &orderTracker{}

	setUp := mustDeclare(t, reg, dtest.Declaration{
		Name: "setup",
		Kind: dtest.KindFixture,
		Body: func(ctx context.Context) error {
			tr.record("setup")
			return nil
		},
	})
	good := trackedTest(t, reg, tr, "good")
	bad := mustDeclare(t, reg, dtest.Declaration{
		Name: "bad",
		Kind: dtest.KindTest,
		Body: func(ctx context.Context) error {
			tr.record("bad")
			return dtest.Failf("broken")
		},
	})
	tearDown := mustDeclare(t, reg, dtest.Declaration{
		Name: "teardown",
		Kind: dtest.KindFixture,
		Body: func(ctx context.Context) error {
			tr.record("teardown")
			return nil
		},
	})

	good.AddDependency(setUp)
	bad.AddDependency(setUp)
	tearDown.AddDependency(good)
	tearDown.AddDependency(bad)
	if err := tearDown.SetPartner(setUp); err != nil {
		t.Fatalf("failed to pair teardown: %v", err)
	}

	summary, err := New().Run(context.Background(), reg)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	got := tr.names()
	if len(got) != 4 {
		t.Fatalf("expected 4 executions, got %v", got)
	}
	if got[0] != "setup" || got[3] != "teardown" {
		t.Errorf("expected setup first and teardown last, got %v", got)
	}
	if tearDown.State() != dtest.StateOK {
		t.Errorf("expected the teardown to run despite the failed test, got %s", tearDown.State())
	}
	if summary.Counts.Failed != 1 || summary.Counts.Passed != 1 {
		t.Errorf("expected 1 failed and 1 passed test, got %+v", summary.Counts)
	}
}

// TestRunnerNestedChainOrder verifies a three-level scope chain executes
// setups outermost first and teardowns innermost first.
func TestRunnerNestedChainOrder(t *testing.T) {
	reg := dtest.NewRegistry()
	tr := &orderTracker{}

	trackedFixture := func(name string) *dtest.Node {
		return mustDeclare(t, reg, dtest.Declaration{
			Name: name,
			Kind: dtest.KindFixture,
			Body: func(ctx context.Context) error {
				tr.record(name)
				return nil
			},
		})
	}

	levels := []string{"pkg", "mod", "cls"}
	kinds := []dtest.ScopeKind{dtest.ScopePackage, dtest.ScopeModule, dtest.ScopeClass}
	var scopes []*dtest.Scope
	var parent *dtest.Scope
	for i, level := range levels {
		sc := dtest.NewScope(level, kinds[i])
		if parent != nil {
			parent.AddChild(sc)
		}
		parent = sc
		if err := sc.SetSetUp(trackedFixture("S" + level)); err != nil {
			t.Fatalf("failed to set setup: %v", err)
		}
		if err := sc.SetTearDown(trackedFixture("D" + level)); err != nil {
			t.Fatalf("failed to set teardown: %v", err)
		}
		sc.AddMember(trackedTest(t, reg, tr, "T"+level))
		scopes = append(scopes, sc)
	}
	if err := dtest.BuildChain(scopes); err != nil {
		t.Fatalf("failed to build chain: %v", err)
	}

	summary, err := New().Run(context.Background(), reg)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !summary.Counts.Success() || summary.Counts.Passed != 3 {
		t.Fatalf("expected 3 passing tests, got %+v", summary.Counts)
	}

	got := tr.names()
	index := make(map[string]int, len(got))
	for i, name := range got {
		index[name] = i
	}
	before := func(first, second string) {
		t.Helper()
		if index[first] >= index[second] {
			t.Errorf("expected %s before %s, got order %v", first, second, got)
		}
	}

	before("Spkg", "Smod")
	before("Smod", "Scls")
	before("Dcls", "Dmod")
	before("Dmod", "Dpkg")
	for _, level := range levels {
		before("S"+level, "T"+level)
		before("T"+level, "D"+level)
	}
}

// TestRunnerStuckCycle verifies a dependency cycle is reported instead of
// hanging the run.
func TestRunnerStuckCycle(t *testing.T) {
	reg := dtest.NewRegistry()
	tr := &orderTracker{}

	a := trackedTest(t, reg, tr, "a")
	b := trackedTest(t, reg, tr, "b")
	free := trackedTest(t, reg, tr, "free")
	a.AddDependency(b)
	b.AddDependency(a)

	capture := &captureEmitter{}
	summary, err := New(WithEmitter(capture)).Run(context.Background(), reg)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(summary.Stuck) != 2 || summary.Stuck[0] != "a" || summary.Stuck[1] != "b" {
		t.Errorf("expected stuck [a b], got %v", summary.Stuck)
	}
	if summary.Counts.Unresolved != 2 {
		t.Errorf("expected 2 unresolved, got %d", summary.Counts.Unresolved)
	}
	if summary.Counts.Success() {
		t.Error("expected a stuck run to be unsuccessful")
	}
	if free.State() != dtest.StateOK {
		t.Errorf("expected the free test to finish OK, got %s", free.State())
	}
	if len(capture.byMsg("stuck")) != 1 {
		t.Error("expected one stuck event")
	}
}

// TestRunnerConcurrency verifies two independent nodes overlap when two
// workers are allowed.
func TestRunnerConcurrency(t *testing.T) {
	reg := dtest.NewRegistry()

	// Each body waits for the other to start; only a parallel runner can
	// satisfy the rendezvous.
	aStarted := make(chan struct{})
	bStarted := make(chan struct{})
	mustDeclare(t, reg, dtest.Declaration{
		Name: "a",
		Kind: dtest.KindTest,
		Body: func(ctx context.Context) error {
			close(aStarted)
			<-bStarted
			return nil
		},
	})
	mustDeclare(t, reg, dtest.Declaration{
		Name: "b",
		Kind: dtest.KindTest,
		Body: func(ctx context.Context) error {
			close(bStarted)
			<-aStarted
			return nil
		},
	})

	summary, err := New(WithMaxConcurrent(2)).Run(context.Background(), reg)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if summary.Counts.Passed != 2 {
		t.Errorf("expected both tests to pass, got %+v", summary.Counts)
	}
}

// TestRunnerEmitsLifecycleEvents verifies the run produces start,
// transition and completion events.
func TestRunnerEmitsLifecycleEvents(t *testing.T) {
	reg := dtest.NewRegistry()
	tr := &orderTracker{}
	trackedTest(t, reg, tr, "only")

	capture := &captureEmitter{}
	summary, err := New(
		WithEmitter(capture),
		WithRunID("run-fixed"),
	).Run(context.Background(), reg)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if summary.RunID != "run-fixed" {
		t.Errorf("expected the fixed run ID, got %s", summary.RunID)
	}

	if len(capture.byMsg("run_start")) != 1 {
		t.Error("expected one run_start event")
	}
	if len(capture.byMsg("run_complete")) != 1 {
		t.Error("expected one run_complete event")
	}
	transitions := capture.byMsg("transition")
	if len(transitions) != 1 {
		t.Fatalf("expected one transition event, got %d", len(transitions))
	}
	tr0 := transitions[0]
	if tr0.Node != "only" || tr0.State != "OK" || tr0.RunID != "run-fixed" {
		t.Errorf("unexpected transition event: %+v", tr0)
	}
	if _, ok := tr0.Meta["duration_ms"]; !ok {
		t.Error("expected duration_ms in transition meta")
	}
}

// TestRunnerArchivesToStore verifies the summary and per-node results
// reach the configured store.
func TestRunnerArchivesToStore(t *testing.T) {
	reg := dtest.NewRegistry()
	tr := &orderTracker{}
	trackedTest(t, reg, tr, "ok")
	mustDeclare(t, reg, dtest.Declaration{
		Name: "bad",
		Kind: dtest.KindTest,
		Body: func(ctx context.Context) error { return dtest.Failf("expected 4, got 5") },
	})

	mem := store.NewMemoryStore()
	_, err := New(
		WithStore(mem),
		WithRunID("run-archive"),
	).Run(context.Background(), reg)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	ctx := context.Background()
	run, err := mem.LoadRun(ctx, "run-archive")
	if err != nil {
		t.Fatalf("failed to load archived run: %v", err)
	}
	if run.Total != 2 || run.Passed != 1 || run.Failed != 1 {
		t.Errorf("expected archived counts 2/1/1, got %d/%d/%d", run.Total, run.Passed, run.Failed)
	}
	if !run.FinishedAt.After(run.StartedAt) && !run.FinishedAt.Equal(run.StartedAt) {
		t.Error("expected a sane archived time window")
	}

	results, err := mem.Results(ctx, "run-archive")
	if err != nil {
		t.Fatalf("failed to load archived results: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 archived results, got %d", len(results))
	}
	// Ordered by node name: bad before ok.
	if results[0].State != "FAIL" {
		t.Errorf("expected the failing result archived as FAIL, got %s", results[0].State)
	}
	if len(results[0].Phases) != 1 || results[0].Phases[0].Error != "expected 4, got 5" {
		t.Errorf("expected the fault preserved, got %+v", results[0].Phases)
	}
}

// TestRunnerCustomSkipRule verifies attribute-based skipping through
// WithSkipRule.
func TestRunnerCustomSkipRule(t *testing.T) {
	reg := dtest.NewRegistry()
	tr := &orderTracker{}

	mustDeclare(t, reg, dtest.Declaration{
		Name:  "slow",
		Kind:  dtest.KindTest,
		Attrs: map[string]any{"slow": true},
		Body: func(ctx context.Context) error {
			tr.record("slow")
			return nil
		},
	})
	trackedTest(t, reg, tr, "fast")

	rule := func(n *dtest.Node) bool {
		_, ok := n.Attr("slow")
		return ok
	}
	summary, err := New(WithSkipRule(rule)).Run(context.Background(), reg)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if summary.Counts.Skipped != 1 || summary.Counts.Passed != 1 {
		t.Errorf("expected 1 skipped and 1 passed, got %+v", summary.Counts)
	}
	got := tr.names()
	if len(got) != 1 || got[0] != "fast" {
		t.Errorf("expected only the fast test to run, ran %v", got)
	}
}

// TestRunnerContextCancellation verifies a cancelled context aborts the
// run with the context error and a partial summary.
func TestRunnerContextCancellation(t *testing.T) {
	reg := dtest.NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := false
	mustDeclare(t, reg, dtest.Declaration{
		Name: "never",
		Kind: dtest.KindTest,
		Body: func(ctx context.Context) error {
			ran = true
			return nil
		},
	})

	summary, err := New().Run(ctx, reg)
	if err == nil {
		t.Fatal("expected a context error")
	}
	if ran {
		t.Error("expected nothing to run after cancellation")
	}
	if summary == nil {
		t.Fatal("expected a partial summary alongside the error")
	}
	if summary.Counts.Unresolved != 1 {
		t.Errorf("expected the node left unresolved, got %+v", summary.Counts)
	}
}
