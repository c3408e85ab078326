package harness

import (
	"context"
	"errors"
	"fmt"

	"github.com/mboyd/reckon/internal/engine"
	"github.com/mboyd/reckon/internal/formulas"
	"github.com/mboyd/reckon/internal/metric"
	"github.com/mboyd/reckon/internal/registry"
)

// Run executes a scenario against an isolated registry of the built-in
// formulas and validates its expectations. The returned Result carries
// the full evaluation trace regardless of pass/fail; the error return is
// reserved for harness-level problems (a scenario that cannot even be
// set up), never for expectation failures.
func Run(s *Scenario) (*Result, error) {
	reg := registry.New()
	if err := formulas.RegisterBuiltins(reg); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}

	pol := metric.DefaultPolicy()
	pol.Places = s.Places

	rec := &traceRecorder{}
	eng := engine.New(reg,
		engine.WithDefaultPolicy(pol),
		engine.WithRecorder(rec),
	)

	var opts []engine.EvalOption
	if s.Partial {
		opts = append(opts, engine.WithPartial())
	}

	result := NewResult()
	values, err := eng.EvaluateMany(context.Background(), s.Targets, engine.Context(s.Context), opts...)
	if rec.events != nil {
		result.Trace = rec.events
	}

	if err != nil {
		checkExpectedError(s, err, result)
		return result, nil
	}
	if s.ExpectError != "" {
		result.AddError(fmt.Sprintf("expected %s error, evaluation succeeded", s.ExpectError))
		return result, nil
	}

	for _, target := range s.Targets {
		v, ok := values[target]
		switch {
		case !ok:
			result.Values[target] = "unresolved"
		case v.IsAbsent():
			result.Values[target] = "absent"
		default:
			result.Values[target] = v.Decimal().Text('f')
		}
	}
	checkExpectations(s, result)
	return result, nil
}

// checkExpectedError validates a hard evaluation failure against the
// scenario's expect_error declaration.
func checkExpectedError(s *Scenario, err error, result *Result) {
	kind := classify(err)
	if s.ExpectError == "" {
		result.AddError(fmt.Sprintf("unexpected %s error: %v", kind, err))
		return
	}
	if kind != s.ExpectError {
		result.AddError(fmt.Sprintf("expected %s error, got %s: %v", s.ExpectError, kind, err))
		return
	}

	if kind == "missing_input" {
		var miss *engine.MissingInputError
		errors.As(err, &miss)
		if s.ExpectMissing != nil && !equalStrings(miss.Missing, s.ExpectMissing) {
			result.AddError(fmt.Sprintf("missing payload %v, expected %v", miss.Missing, s.ExpectMissing))
		}
		if s.ExpectInvalid != nil && !equalStrings(miss.Invalid, s.ExpectInvalid) {
			result.AddError(fmt.Sprintf("invalid payload %v, expected %v", miss.Invalid, s.ExpectInvalid))
		}
	}
}

func classify(err error) string {
	switch {
	case engine.IsCircularError(err):
		return "cycle"
	case engine.IsMissingInput(err):
		return "missing_input"
	case engine.IsCalculationError(err):
		return "calculation"
	default:
		return "unknown"
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
