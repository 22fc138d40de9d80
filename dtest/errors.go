package dtest

import (
	"errors"
	"fmt"
)

// ErrPartnerAlreadySet indicates an attempt to pair a teardown fixture with
// a second setup fixture. A partner may be set at most once.
var ErrPartnerAlreadySet = errors.New("fixture partner already set")

// ErrNotFixture indicates an attempt to set a partner on a test node.
// Only teardown fixtures carry a partner edge.
var ErrNotFixture = errors.New("partner may only be set on a fixture")

// InvalidTestDefinitionError indicates that a declared unit of work is not
// invokable. It is returned at declaration time, before any node is created,
// and is fatal to that declaration only.
type InvalidTestDefinitionError struct {
	// Name is the declared name of the offending unit, if any.
	Name string
}

// Error implements the error interface.
func (e *InvalidTestDefinitionError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("invalid test definition %q: body is not invokable", e.Name)
	}
	return "invalid test definition: body is not invokable"
}

// AssertionError is an assertion-style failure reported by a test phase.
//
// A phase that returns (or panics with) an AssertionError is recorded as an
// assertion failure, which reduces to the FAIL verdict. Any other error or
// panic is recorded as an unexpected error and reduces to ERROR.
type AssertionError struct {
	// Message describes the failed expectation.
	Message string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return e.Message
}

// Failf builds an assertion failure with a formatted message. Returning the
// result from a test body marks the test FAIL rather than ERROR:
//
//	func testSum(ctx context.Context) error {
//	    if got := sum(2, 2); got != 4 {
//	        return dtest.Failf("sum(2, 2) = %d, want 4", got)
//	    }
//	    return nil
//	}
func Failf(format string, args ...any) error {
	return &AssertionError{Message: fmt.Sprintf(format, args...)}
}

// isAssertion reports whether err represents an assertion-style failure.
func isAssertion(err error) bool {
	var ae *AssertionError
	return errors.As(err, &ae)
}
