// Package verify turns balance and account-state comparisons into typed
// outcomes and violations.
package verify

import (
	"fmt"
)

// Outcome is the result of one named check.
type Outcome struct {
	Check    string
	Expected string
	Actual   string
	Passed   bool
}

func (o Outcome) String() string {
	status := "ok"
	if !o.Passed {
		status = "FAILED"
	}
	return fmt.Sprintf("%s: %s (expected %s, actual %s)", o.Check, status, o.Expected, o.Actual)
}

// InvariantViolation reports a failed check with its expected and actual values.
type InvariantViolation struct {
	Check    string
	Expected string
	Actual   string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violated: %s: expected %s, got %s", e.Check, e.Expected, e.Actual)
}

// Violation converts a failed outcome into an error. It returns nil for a passed outcome.
func (o Outcome) Violation() error {
	if o.Passed {
		return nil
	}
	return &InvariantViolation{Check: o.Check, Expected: o.Expected, Actual: o.Actual}
}

// Equal checks actual == expected.
func Equal[T comparable](check string, expected, actual T) Outcome {
	return Outcome{
		Check:    check,
		Expected: fmt.Sprint(expected),
		Actual:   fmt.Sprint(actual),
		Passed:   expected == actual,
	}
}

// Within checks |actual - expected| <= tolerance.
func Within(check string, expected, actual, tolerance uint64) Outcome {
	diff := actual - expected
	if expected > actual {
		diff = expected - actual
	}
	return Outcome{
		Check:    check,
		Expected: fmt.Sprintf("%d ± %d", expected, tolerance),
		Actual:   fmt.Sprint(actual),
		Passed:   diff <= tolerance,
	}
}

// AtMost checks actual <= limit.
func AtMost(check string, limit, actual uint64) Outcome {
	return Outcome{
		Check:    check,
		Expected: fmt.Sprintf("<= %d", limit),
		Actual:   fmt.Sprint(actual),
		Passed:   actual <= limit,
	}
}

// AtLeast checks actual >= floor.
func AtLeast(check string, floor, actual uint64) Outcome {
	return Outcome{
		Check:    check,
		Expected: fmt.Sprintf(">= %d", floor),
		Actual:   fmt.Sprint(actual),
		Passed:   actual >= floor,
	}
}

// FirstViolation returns the violation of the first failed outcome, or nil.
func FirstViolation(outcomes ...Outcome) error {
	for _, o := range outcomes {
		if err := o.Violation(); err != nil {
			return err
		}
	}
	return nil
}
