package harness

import "fmt"

// checkExpectations compares resolved values against the scenario's
// expect block. Only declared targets are validated; extra results are
// not an error.
func checkExpectations(s *Scenario, result *Result) {
	for target, want := range s.Expect {
		got, ok := result.Values[target]
		if !ok {
			result.AddError(fmt.Sprintf("expectation on %q, but it was not requested", target))
			continue
		}
		if got != want {
			result.AddError(fmt.Sprintf("%s = %s, expected %s", target, got, want))
		}
	}
}
