package engine

import (
	"errors"
	"fmt"
	"strings"
)

// CircularError reports a dependency path that returned to a name already
// being resolved on the same path. Always aborts the entire batch,
// regardless of evaluation mode.
type CircularError struct {
	// Cycle is the ordered stack suffix ending back at the repeated name,
	// e.g. ["a", "b", "a"].
	Cycle []string
}

func (e *CircularError) Error() string {
	return fmt.Sprintf("circular dependency: %s", strings.Join(e.Cycle, " -> "))
}

// IsCircularError reports whether err is (or wraps) a CircularError.
func IsCircularError(err error) bool {
	var ce *CircularError
	return errors.As(err, &ce)
}

// CalculationError reports that a registered function failed or that a
// context entry could not be coerced into a value. In fail-fast mode it
// aborts the batch immediately; coercion failures abort in every mode.
type CalculationError struct {
	// Name is the calculation or context entry at fault.
	Name string

	// Err is the original cause.
	Err error
}

func (e *CalculationError) Error() string {
	return fmt.Sprintf("calculation %q failed: %v", e.Name, e.Err)
}

func (e *CalculationError) Unwrap() error {
	return e.Err
}

// IsCalculationError reports whether err is (or wraps) a CalculationError.
func IsCalculationError(err error) bool {
	var ce *CalculationError
	return errors.As(err, &ce)
}

// MissingInputError reports that one or more requested targets could not
// be resolved because of absent or invalid base inputs. Raised only in
// fail-fast mode, after the diagnostic pass; best-effort mode omits the
// unresolved targets instead.
type MissingInputError struct {
	// Targets are the requested names that failed to resolve.
	Targets []string

	// Missing are base inputs never supplied and not derivable, sorted.
	Missing []string

	// Invalid are context entries that failed to coerce, sorted.
	Invalid []string
}

func (e *MissingInputError) Error() string {
	var b strings.Builder
	if len(e.Targets) == 1 {
		fmt.Fprintf(&b, "cannot resolve %q", e.Targets[0])
	} else {
		fmt.Fprintf(&b, "cannot resolve targets %s", strings.Join(e.Targets, ", "))
	}
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, ": missing: %s", strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		if len(e.Missing) > 0 {
			fmt.Fprintf(&b, "; invalid: %s", strings.Join(e.Invalid, ", "))
		} else {
			fmt.Fprintf(&b, ": invalid: %s", strings.Join(e.Invalid, ", "))
		}
	}
	return b.String()
}

// IsMissingInput reports whether err is (or wraps) a MissingInputError.
func IsMissingInput(err error) bool {
	var me *MissingInputError
	return errors.As(err, &me)
}
