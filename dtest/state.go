// Package dtest provides a dependency-aware test execution core.
//
// Tests and fixtures are modeled as nodes in a dependency graph. Each node
// runs through a fault-isolated three-phase protocol (pre hook, body, post
// hook), and failure or skip outcomes propagate across the graph so that
// dependents of a failed or skipped node never run, while teardown fixtures
// still run whenever any guarded work ran.
package dtest

// State is the lifecycle state of a Node.
//
// UNSTARTED is the initial state, RUNNING is transient, and the remaining
// five states are terminal. A node enters a terminal state at most once;
// later transition attempts are no-ops.
type State string

const (
	// StateUnstarted is the initial state of every node.
	StateUnstarted State = "UNSTARTED"

	// StateRunning marks a node currently executing its phases.
	StateRunning State = "RUNNING"

	// StateOK marks a node whose phases all completed successfully.
	StateOK State = "OK"

	// StateFail marks a node that recorded an assertion-style failure.
	StateFail State = "FAIL"

	// StateError marks a node that recorded an unexpected error.
	StateError State = "ERROR"

	// StateDepFail marks a node that never ran because a dependency
	// failed or errored. It is surfaced like a failure to dependents but
	// is reportable separately from the node's own failure.
	StateDepFail State = "DEPFAIL"

	// StateSkipped marks a node that never ran, either by explicit
	// request or by propagation from a skipped neighbor.
	StateSkipped State = "SKIPPED"
)

// Terminal reports whether s is a final state. Terminal states are sticky:
// once entered, a node never transitions again.
func (s State) Terminal() bool {
	switch s {
	case StateOK, StateFail, StateError, StateDepFail, StateSkipped:
		return true
	}
	return false
}

// Failed reports whether s blocks dependents the way a failure does.
// DEPFAIL counts: a dependent of a dep-failed node is itself dep-failed.
func (s State) Failed() bool {
	return s == StateFail || s == StateError || s == StateDepFail
}

func (s State) String() string { return string(s) }

// Readiness is the answer to "can this node run now?".
type Readiness int

const (
	// Blocked means at least one dependency has not reached the state
	// the node needs; poll again later.
	Blocked Readiness = iota

	// Ready means every dependency is satisfied and the node may run.
	Ready

	// Resolved means the node will never run: evaluating readiness
	// transitioned it to DEPFAIL or SKIPPED, or it was already terminal.
	Resolved
)

func (r Readiness) String() string {
	switch r {
	case Blocked:
		return "blocked"
	case Ready:
		return "ready"
	case Resolved:
		return "resolved"
	}
	return "unknown"
}
