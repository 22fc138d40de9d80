package emit

// Emitter receives observability events from a test run.
//
// Implementations should be:
//   - Non-blocking: avoid slowing down test execution
//   - Thread-safe: events may arrive concurrently from several nodes
//   - Resilient: an emitter failure must never fail the run
//
// Emit must not panic; errors should be handled internally.
type Emitter interface {
	Emit(event Event)
}
