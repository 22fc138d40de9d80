// Package emit defines the observability event model and emitters for the
// test execution engine.
//
// The engine core stays free of I/O: state transitions are reported as
// events to a single Emitter per run, which can log them, convert them to
// OpenTelemetry spans, or discard them.
package emit

// Event is one observability event from a test run.
type Event struct {
	// RunID identifies the run that produced the event.
	RunID string

	// Node is the name of the node concerned; empty for run-level events.
	Node string

	// Kind is the node variant ("test" or "fixture"); empty for
	// run-level events.
	Kind string

	// State is the terminal state a transition event reports; empty for
	// other events.
	State string

	// Msg names the event: "transition", "run_start", "run_complete",
	// "stuck".
	Msg string

	// Meta carries additional structured data. Common keys:
	//   - "duration_ms": execution duration in milliseconds
	//   - "error": fault detail for failed phases
	//   - "stuck": names of nodes that never became ready
	Meta map[string]any
}
