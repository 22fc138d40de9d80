package dtest

import (
	"fmt"
	"strings"
)

// Counts aggregates terminal verdicts across a set of nodes. Tests weigh 1
// and fixtures weigh 0, so fixture failures are visible in the graph but
// never counted as test failures; they surface only as downstream DEPFAILs.
type Counts struct {
	// Total is the number of tests considered.
	Total int

	// Passed counts tests that finished OK.
	Passed int

	// Failed counts tests that recorded an assertion failure.
	Failed int

	// Errors counts tests that recorded an unexpected error.
	Errors int

	// DepFailed counts tests that never ran because a dependency failed.
	DepFailed int

	// Skipped counts tests that never ran, explicitly or by propagation.
	Skipped int

	// Unresolved counts tests left in a non-terminal state, which
	// indicates a stuck graph (for example, a dependency cycle).
	Unresolved int
}

// Tally aggregates the current states of nodes.
func Tally(nodes []*Node) Counts {
	var c Counts
	for _, n := range nodes {
		w := n.Weight()
		c.Total += w
		switch n.State() {
		case StateOK:
			c.Passed += w
		case StateFail:
			c.Failed += w
		case StateError:
			c.Errors += w
		case StateDepFail:
			c.DepFailed += w
		case StateSkipped:
			c.Skipped += w
		default:
			c.Unresolved += w
		}
	}
	return c
}

// Success reports whether the run finished with no failures, errors or
// dependency failures. Skips are always non-fatal.
func (c Counts) Success() bool {
	return c.Failed == 0 && c.Errors == 0 && c.DepFailed == 0 && c.Unresolved == 0
}

// String renders a one-paragraph run summary.
func (c Counts) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d tests run", c.Total)
	if c.Passed > 0 {
		fmt.Fprintf(&b, "; %d passed", c.Passed)
	}
	if c.Skipped > 0 {
		fmt.Fprintf(&b, "; %d skipped", c.Skipped)
	}
	if bad := c.Failed + c.Errors + c.DepFailed; bad > 0 {
		var parts []string
		if c.Failed > 0 {
			parts = append(parts, fmt.Sprintf("%d failed", c.Failed))
		}
		if c.Errors > 0 {
			parts = append(parts, fmt.Sprintf("%d errors", c.Errors))
		}
		if c.DepFailed > 0 {
			parts = append(parts, fmt.Sprintf("%d failed due to dependencies", c.DepFailed))
		}
		fmt.Fprintf(&b, "; %d not passed (%s)", bad, strings.Join(parts, ", "))
	}
	if c.Unresolved > 0 {
		fmt.Fprintf(&b, "; %d unresolved", c.Unresolved)
	}
	return b.String()
}
