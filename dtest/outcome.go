package dtest

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"
)

// Phase identifies one of the three execution phases of a node.
type Phase string

const (
	// PhasePre is the optional hook run immediately before the body.
	PhasePre Phase = "pre"

	// PhaseBody is the node's main unit of work.
	PhaseBody Phase = "body"

	// PhasePost is the optional hook run immediately after the body. It
	// runs even when earlier phases faulted.
	PhasePost Phase = "post"
)

// Outcome classifies the result of a single executed phase.
type Outcome int

const (
	// OutcomeSuccess means the phase completed normally.
	OutcomeSuccess Outcome = iota

	// OutcomeAssertionFailure means the phase reported an AssertionError.
	OutcomeAssertionFailure

	// OutcomeUnexpectedError means the phase returned any other error or
	// panicked.
	OutcomeUnexpectedError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeAssertionFailure:
		return "assertion_failure"
	case OutcomeUnexpectedError:
		return "unexpected_error"
	}
	return "unknown"
}

// PhaseResult records the outcome of one executed phase.
type PhaseResult struct {
	// Phase identifies which phase ran.
	Phase Phase

	// Outcome classifies the result.
	Outcome Outcome

	// Err is the fault preserved for reporting; nil on success. For a
	// panic this is the recovered value, wrapped when it was not already
	// an error.
	Err error

	// Stack holds the goroutine stack captured when the phase panicked.
	// Nil for returned errors and successes.
	Stack []byte

	// Duration is the phase's wall-clock execution time.
	Duration time.Duration
}

// Recorder accumulates per-phase outcomes for one node execution and
// reduces them to a single terminal verdict.
//
// Exactly one outcome is recorded per invoked phase; a phase that never ran
// (for example, a node with no pre hook) contributes nothing. Faults raised
// inside a phase are swallowed at the phase boundary so that subsequent
// phases can still be attempted, and are preserved in the PhaseResult.
type Recorder struct {
	mu      sync.Mutex
	results []PhaseResult
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Run executes fn inside a fault-isolation boundary for the given phase and
// records exactly one outcome. A nil error is recorded as success, an
// AssertionError (returned or panicked) as an assertion failure, and any
// other error or panic as an unexpected error. Panics never escape.
func (r *Recorder) Run(ctx context.Context, phase Phase, fn Callable) {
	start := time.Now()
	err, stack := invoke(ctx, fn)

	res := PhaseResult{
		Phase:    phase,
		Err:      err,
		Stack:    stack,
		Duration: time.Since(start),
	}
	switch {
	case err == nil:
		res.Outcome = OutcomeSuccess
	case isAssertion(err):
		res.Outcome = OutcomeAssertionFailure
	default:
		res.Outcome = OutcomeUnexpectedError
	}

	r.mu.Lock()
	r.results = append(r.results, res)
	r.mu.Unlock()
}

// invoke calls fn, converting a panic into an error plus the captured stack.
func invoke(ctx context.Context, fn Callable) (err error, stack []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			stack = debug.Stack()
			if e, ok := rec.(error); ok {
				err = e
			} else {
				err = fmt.Errorf("panic: %v", rec)
			}
		}
	}()
	err = fn(ctx)
	return
}

// Phases returns the recorded phase results in execution order.
func (r *Recorder) Phases() []PhaseResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]PhaseResult, len(r.results))
	copy(out, r.results)
	return out
}

// Phase returns the result recorded for phase p, if that phase ran.
func (r *Recorder) Phase(p Phase) (PhaseResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, res := range r.results {
		if res.Phase == p {
			return res, true
		}
	}
	return PhaseResult{}, false
}

// Verdict reduces the recorded outcomes to a terminal state: ERROR if any
// phase recorded an unexpected error, else FAIL if any recorded an assertion
// failure, else OK.
func (r *Recorder) Verdict() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	verdict := StateOK
	for _, res := range r.results {
		switch res.Outcome {
		case OutcomeUnexpectedError:
			return StateError
		case OutcomeAssertionFailure:
			verdict = StateFail
		}
	}
	return verdict
}

// OK reports whether the verdict is OK.
func (r *Recorder) OK() bool {
	return r.Verdict() == StateOK
}
