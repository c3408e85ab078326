package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mboyd/reckon/internal/metric"
	"github.com/mboyd/reckon/internal/registry"
)

// constFn returns a fixed integer result.
func constFn(n int64) registry.Func {
	return func(_ map[string]metric.Value, _ metric.Policy) (metric.Value, error) {
		return metric.FromInt(n, ""), nil
	}
}

// sumFn adds all dependency values.
func sumFn(deps map[string]metric.Value, _ metric.Policy) (metric.Value, error) {
	out := metric.FromInt(0, "")
	for _, v := range deps {
		out = out.Add(v)
	}
	return out, nil
}

func mustFloat(t *testing.T, v metric.Value) float64 {
	t.Helper()
	f, ok := v.Float64()
	require.True(t, ok, "value %s is not a scalar", v)
	return f
}

// =============================================================================
// Basic resolution
// =============================================================================

func TestEvaluate_LeafCalculation(t *testing.T) {
	reg := registry.New()
	err := reg.Register("double", []string{"x"}, func(deps map[string]metric.Value, _ metric.Policy) (metric.Value, error) {
		return deps["x"].Mul(metric.FromInt(2, "")), nil
	})
	require.NoError(t, err)

	eng := New(reg)
	v, err := eng.Evaluate(context.Background(), "double", Context{"x": 5})
	require.NoError(t, err)
	assert.Equal(t, 10.0, mustFloat(t, v))
}

func TestEvaluate_ChainedDependencies(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register("b", []string{"a"}, func(deps map[string]metric.Value, _ metric.Policy) (metric.Value, error) {
		return deps["a"].Add(metric.FromInt(1, "")), nil
	}))
	require.NoError(t, reg.Register("c", []string{"b"}, func(deps map[string]metric.Value, _ metric.Policy) (metric.Value, error) {
		return deps["b"].Add(metric.FromInt(1, "")), nil
	}))

	eng := New(reg)
	v, err := eng.Evaluate(context.Background(), "c", Context{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, 3.0, mustFloat(t, v))
}

func TestEvaluate_StringAndFloatInputs(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register("sum", []string{"a", "b"}, sumFn))

	eng := New(reg)
	v, err := eng.Evaluate(context.Background(), "sum", Context{"a": "1.25", "b": 2.75})
	require.NoError(t, err)
	assert.Equal(t, 4.0, mustFloat(t, v))
}

// =============================================================================
// Memoization
// =============================================================================

func TestEvaluateMany_FunctionInvokedAtMostOncePerCall(t *testing.T) {
	reg := registry.New()
	calls := 0
	require.NoError(t, reg.Register("shared", []string{"x"}, func(deps map[string]metric.Value, _ metric.Policy) (metric.Value, error) {
		calls++
		return deps["x"], nil
	}))
	require.NoError(t, reg.Register("left", []string{"shared"}, sumFn))
	require.NoError(t, reg.Register("right", []string{"shared"}, sumFn))

	eng := New(reg)
	results, err := eng.EvaluateMany(context.Background(), []string{"left", "right", "shared"}, Context{"x": 3})
	require.NoError(t, err)
	assert.Len(t, results, 3)
	assert.Equal(t, 1, calls, "shared must be computed exactly once per call")
}

func TestEvaluateMany_NoCrossCallCaching(t *testing.T) {
	reg := registry.New()
	calls := 0
	require.NoError(t, reg.Register("tracked", []string{"x"}, func(deps map[string]metric.Value, _ metric.Policy) (metric.Value, error) {
		calls++
		return deps["x"], nil
	}))

	eng := New(reg)
	first, err := eng.EvaluateMany(context.Background(), []string{"tracked"}, Context{"x": 1})
	require.NoError(t, err)
	second, err := eng.EvaluateMany(context.Background(), []string{"tracked"}, Context{"x": 2})
	require.NoError(t, err)

	assert.Equal(t, 2, calls, "each call owns a fresh cache")
	assert.Equal(t, 1.0, mustFloat(t, first["tracked"]))
	assert.Equal(t, 2.0, mustFloat(t, second["tracked"]), "no value leaks from the first call")
}

// =============================================================================
// Context precedence
// =============================================================================

func TestEvaluate_ContextShadowsRegistration(t *testing.T) {
	reg := registry.New()
	calls := 0
	require.NoError(t, reg.Register("x", nil, func(_ map[string]metric.Value, _ metric.Policy) (metric.Value, error) {
		calls++
		return metric.FromInt(99, ""), nil
	}))

	eng := New(reg)
	v, err := eng.Evaluate(context.Background(), "x", Context{"x": 7})
	require.NoError(t, err)
	assert.Equal(t, 7.0, mustFloat(t, v))
	assert.Equal(t, 0, calls, "registered function must not run when context supplies the name")
}

func TestEvaluate_PrebuiltValueInContext(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register("sum", []string{"a", "b"}, sumFn))

	eng := New(reg)
	v, err := eng.Evaluate(context.Background(), "sum", Context{
		"a": metric.FromInt(10, "usd"),
		"b": metric.FromInt(5, "usd"),
	})
	require.NoError(t, err)
	assert.Equal(t, 15.0, mustFloat(t, v))
}

// =============================================================================
// Circular dependencies
// =============================================================================

func TestEvaluate_DirectCycle(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register("a", []string{"b"}, sumFn))
	require.NoError(t, reg.Register("b", []string{"a"}, sumFn))

	eng := New(reg)
	for _, target := range []string{"a", "b"} {
		_, err := eng.Evaluate(context.Background(), target, Context{})
		require.Error(t, err, "target %s", target)

		var circ *CircularError
		require.ErrorAs(t, err, &circ)
		assert.Contains(t, circ.Cycle, "a")
		assert.Contains(t, circ.Cycle, "b")
		assert.Equal(t, circ.Cycle[0], circ.Cycle[len(circ.Cycle)-1], "cycle closes on the repeated name")
	}
}

func TestEvaluate_CycleAbortsWholeBatchEvenInPartialMode(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register("a", []string{"b"}, sumFn))
	require.NoError(t, reg.Register("b", []string{"a"}, sumFn))
	require.NoError(t, reg.Register("fine", nil, constFn(1)))

	eng := New(reg)
	_, err := eng.EvaluateMany(context.Background(), []string{"fine", "a"}, Context{}, WithPartial())
	require.Error(t, err)
	assert.True(t, IsCircularError(err))
}

func TestEvaluate_CycleBrokenByContext(t *testing.T) {
	// A context entry for a name inside the cycle short-circuits it.
	reg := registry.New()
	require.NoError(t, reg.Register("a", []string{"b"}, sumFn))
	require.NoError(t, reg.Register("b", []string{"a"}, sumFn))

	eng := New(reg)
	v, err := eng.Evaluate(context.Background(), "a", Context{"b": 4})
	require.NoError(t, err)
	assert.Equal(t, 4.0, mustFloat(t, v))
}

// =============================================================================
// Missing inputs and partial evaluation
// =============================================================================

func TestEvaluate_MissingInput_FailFast(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register("total", []string{"a", "b"}, sumFn))

	eng := New(reg)
	_, err := eng.Evaluate(context.Background(), "total", Context{"a": 1})
	require.Error(t, err)

	var miss *MissingInputError
	require.ErrorAs(t, err, &miss)
	assert.Equal(t, []string{"total"}, miss.Targets)
	assert.Equal(t, []string{"b"}, miss.Missing)
	assert.Empty(t, miss.Invalid)
	assert.Contains(t, miss.Error(), `cannot resolve "total"`)
	assert.Contains(t, miss.Error(), "missing: b")
}

func TestEvaluateMany_MissingInput_MultiTargetMessage(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register("t1", []string{"a"}, sumFn))
	require.NoError(t, reg.Register("t2", []string{"b"}, sumFn))

	eng := New(reg)
	_, err := eng.EvaluateMany(context.Background(), []string{"t1", "t2"}, Context{})
	require.Error(t, err)

	var miss *MissingInputError
	require.ErrorAs(t, err, &miss)
	assert.Equal(t, []string{"t1", "t2"}, miss.Targets)
	assert.Equal(t, []string{"a", "b"}, miss.Missing)
	assert.Contains(t, miss.Error(), "cannot resolve targets t1, t2")
}

func TestEvaluateMany_Partial_OmitsUnresolvedTargets(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register("total", []string{"a", "b"}, sumFn))
	require.NoError(t, reg.Register("half", []string{"a"}, sumFn))

	eng := New(reg)
	results, err := eng.EvaluateMany(context.Background(), []string{"total", "half"}, Context{"a": 1}, WithPartial())
	require.NoError(t, err)

	_, hasTotal := results["total"]
	assert.False(t, hasTotal, "unresolvable target must simply be absent")
	assert.Equal(t, 1.0, mustFloat(t, results["half"]))
}

func TestEvaluate_Partial_SingleTargetDegradesToAbsent(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register("total", []string{"a"}, sumFn))

	eng := New(reg)
	v, err := eng.Evaluate(context.Background(), "total", Context{}, WithPartial())
	require.NoError(t, err)
	assert.True(t, v.IsAbsent())
}

func TestDiagnosis_SeparatesMissingFromInvalid(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register("total", []string{"a", "b"}, sumFn))

	// "a" is never supplied; "b" is supplied but cannot coerce. Because
	// "a" is attempted first and leaves total unresolved, "b" is only
	// examined by the diagnostic pass.
	eng := New(reg)
	_, err := eng.Evaluate(context.Background(), "total", Context{"b": struct{}{}})
	require.Error(t, err)

	var miss *MissingInputError
	require.ErrorAs(t, err, &miss)
	assert.Equal(t, []string{"a"}, miss.Missing)
	assert.Equal(t, []string{"b"}, miss.Invalid)
	assert.Contains(t, miss.Error(), "invalid: b")
}

// =============================================================================
// Coercion and calculation failures
// =============================================================================

func TestEvaluate_CoercionFailureIsHardEvenInPartialMode(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register("total", []string{"a"}, sumFn))

	eng := New(reg)
	_, err := eng.Evaluate(context.Background(), "total", Context{"a": struct{}{}}, WithPartial())
	require.Error(t, err)

	var calc *CalculationError
	require.ErrorAs(t, err, &calc)
	assert.Equal(t, "a", calc.Name)
}

func TestEvaluate_FunctionError_FailFast(t *testing.T) {
	reg := registry.New()
	boom := errors.New("ledger out of balance")
	require.NoError(t, reg.Register("bad", nil, func(_ map[string]metric.Value, _ metric.Policy) (metric.Value, error) {
		return metric.Absent(""), boom
	}))

	eng := New(reg)
	_, err := eng.Evaluate(context.Background(), "bad", Context{})
	require.Error(t, err)

	var calc *CalculationError
	require.ErrorAs(t, err, &calc)
	assert.Equal(t, "bad", calc.Name)
	assert.ErrorIs(t, err, boom)
}

func TestEvaluate_FunctionError_PartialTreatsAsUnresolved(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register("bad", nil, func(_ map[string]metric.Value, _ metric.Policy) (metric.Value, error) {
		return metric.Absent(""), errors.New("boom")
	}))
	require.NoError(t, reg.Register("good", nil, constFn(1)))

	eng := New(reg)
	results, err := eng.EvaluateMany(context.Background(), []string{"bad", "good"}, Context{}, WithPartial())
	require.NoError(t, err)
	_, hasBad := results["bad"]
	assert.False(t, hasBad)
	assert.Equal(t, 1.0, mustFloat(t, results["good"]))
}

func TestEvaluate_StrictArithmeticFailureSurfaces(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register("ratio", []string{"num", "den"}, func(deps map[string]metric.Value, _ metric.Policy) (metric.Value, error) {
		return deps["num"].Div(deps["den"]), nil
	}))

	strict := metric.DefaultPolicy()
	strict.Strict = true
	eng := New(reg, WithDefaultPolicy(strict))

	_, err := eng.Evaluate(context.Background(), "ratio", Context{"num": 1, "den": 0})
	require.Error(t, err)
	assert.True(t, IsCalculationError(err))
	assert.ErrorIs(t, err, metric.ErrDivisionByZero)
}

func TestEvaluate_LenientDivisionByZeroPropagatesAbsent(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register("ratio", []string{"num", "den"}, func(deps map[string]metric.Value, _ metric.Policy) (metric.Value, error) {
		return deps["num"].Div(deps["den"]), nil
	}))

	eng := New(reg)
	v, err := eng.Evaluate(context.Background(), "ratio", Context{"num": 1, "den": 0})
	require.NoError(t, err)
	assert.True(t, v.IsAbsent())
}

// =============================================================================
// Policy precedence
// =============================================================================

func TestPolicyPrecedence_PerMetricOverride(t *testing.T) {
	reg := registry.New()
	third := func(deps map[string]metric.Value, _ metric.Policy) (metric.Value, error) {
		return deps["n"].Div(metric.FromInt(3, "")), nil
	}
	require.NoError(t, reg.Register("precise", []string{"n"}, third))
	require.NoError(t, reg.Register("coarse", []string{"n"}, third))

	eng := New(reg)
	fine := metric.DefaultPolicy()
	fine.Places = 4
	eng.SetMetricPolicy("precise", fine)

	results, err := eng.EvaluateMany(context.Background(), []string{"precise", "coarse"}, Context{"n": 1})
	require.NoError(t, err)
	assert.Equal(t, "0.3333", results["precise"].Decimal().Text('f'), "per-metric override applies")
	assert.Equal(t, "0.33", results["coarse"].Decimal().Text('f'), "sibling keeps the engine default")
}

func TestPolicyPrecedence_PerCallBeatsPerMetric(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register("r", []string{"n"}, func(deps map[string]metric.Value, _ metric.Policy) (metric.Value, error) {
		return deps["n"].Div(metric.FromInt(3, "")), nil
	}))

	eng := New(reg)
	fine := metric.DefaultPolicy()
	fine.Places = 4
	eng.SetMetricPolicy("r", fine)

	coarse := metric.DefaultPolicy()
	coarse.Places = 1
	v, err := eng.Evaluate(context.Background(), "r", Context{"n": 1}, WithPolicy(coarse))
	require.NoError(t, err)
	assert.Equal(t, "0.3", v.Decimal().Text('f'))
}

func TestPolicyPrecedence_AmbientBeatsEngineDefault(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register("r", []string{"n"}, func(deps map[string]metric.Value, _ metric.Policy) (metric.Value, error) {
		return deps["n"].Div(metric.FromInt(3, "")), nil
	}))

	eng := New(reg)
	ambient := metric.DefaultPolicy()
	ambient.Places = 5
	ctx := metric.WithAmbient(context.Background(), ambient)

	v, err := eng.Evaluate(ctx, "r", Context{"n": 1})
	require.NoError(t, err)
	assert.Equal(t, "0.33333", v.Decimal().Text('f'))
}

func TestPolicyPrecedence_PerMetricBeatsAmbient(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register("r", []string{"n"}, func(deps map[string]metric.Value, _ metric.Policy) (metric.Value, error) {
		return deps["n"].Div(metric.FromInt(3, "")), nil
	}))

	eng := New(reg)
	perMetric := metric.DefaultPolicy()
	perMetric.Places = 4
	eng.SetMetricPolicy("r", perMetric)

	ambient := metric.DefaultPolicy()
	ambient.Places = 5
	ctx := metric.WithAmbient(context.Background(), ambient)

	v, err := eng.Evaluate(ctx, "r", Context{"n": 1})
	require.NoError(t, err)
	assert.Equal(t, "0.3333", v.Decimal().Text('f'))
}

func TestClearMetricPolicy(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register("r", nil, constFn(1)))

	eng := New(reg)
	p := metric.DefaultPolicy()
	p.Places = 7
	eng.SetMetricPolicy("r", p)
	_, ok := eng.MetricPolicy("r")
	require.True(t, ok)

	eng.ClearMetricPolicy("r")
	_, ok = eng.MetricPolicy("r")
	assert.False(t, ok)
}

// =============================================================================
// Provenance hook
// =============================================================================

type stubRecorder struct {
	mu      sync.Mutex
	names   []string
	failAll bool
}

func (s *stubRecorder) Record(_ context.Context, name string, _ metric.Value, _ map[string]metric.Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return errors.New("recorder down")
	}
	s.names = append(s.names, name)
	return nil
}

func TestRecorder_CalledForComputedNamesOnly(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register("sum", []string{"a", "b"}, sumFn))

	rec := &stubRecorder{}
	eng := New(reg, WithRecorder(rec))

	_, err := eng.Evaluate(context.Background(), "sum", Context{"a": 1, "b": 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"sum"}, rec.names, "context entries are not recorded")
}

func TestRecorder_FailureNeverAltersResult(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register("sum", []string{"a", "b"}, sumFn))

	rec := &stubRecorder{failAll: true}
	eng := New(reg, WithRecorder(rec))

	v, err := eng.Evaluate(context.Background(), "sum", Context{"a": 1, "b": 2})
	require.NoError(t, err)
	assert.Equal(t, 3.0, mustFloat(t, v))
}

// =============================================================================
// Concurrency
// =============================================================================

func TestEvaluateMany_ConcurrentCallsShareNoState(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register("double", []string{"x"}, func(deps map[string]metric.Value, _ metric.Policy) (metric.Value, error) {
		return deps["x"].Mul(metric.FromInt(2, "")), nil
	}))

	eng := New(reg)
	var wg sync.WaitGroup
	for i := 1; i <= 16; i++ {
		wg.Add(1)
		go func(n int64) {
			defer wg.Done()
			v, err := eng.Evaluate(context.Background(), "double", Context{"x": n})
			if err != nil {
				t.Errorf("evaluate %d: %v", n, err)
				return
			}
			f, _ := v.Float64()
			if f != float64(2*n) {
				t.Errorf("double(%d) = %v, want %d", n, f, 2*n)
			}
		}(int64(i))
	}
	wg.Wait()
}

// =============================================================================
// Evaluate wrapper
// =============================================================================

func TestEvaluate_UnregisteredTargetFailFast(t *testing.T) {
	eng := New(registry.New())
	_, err := eng.Evaluate(context.Background(), "nothing", Context{})
	require.Error(t, err)

	var miss *MissingInputError
	require.ErrorAs(t, err, &miss)
	assert.Equal(t, []string{"nothing"}, miss.Missing)
}

func TestErrorHelpers(t *testing.T) {
	circ := fmt.Errorf("wrapped: %w", &CircularError{Cycle: []string{"a", "a"}})
	assert.True(t, IsCircularError(circ))
	assert.False(t, IsCircularError(errors.New("plain")))

	calc := fmt.Errorf("wrapped: %w", &CalculationError{Name: "x", Err: errors.New("boom")})
	assert.True(t, IsCalculationError(calc))

	miss := fmt.Errorf("wrapped: %w", &MissingInputError{Targets: []string{"t"}})
	assert.True(t, IsMissingInput(miss))
}
