package engine

import (
	"context"
	"errors"
	"sort"

	"github.com/mboyd/reckon/internal/metric"
	"github.com/mboyd/reckon/internal/registry"
)

// resolution is the ephemeral state of one Evaluate/EvaluateMany call:
// the shared memoization cache, the explicit stack of in-progress names,
// and the caller's inputs. Nothing here outlives the call.
type resolution struct {
	eng    *Engine
	ctx    context.Context
	inputs Context
	cfg    *evalConfig

	cache   map[string]metric.Value
	stack   []string
	onStack map[string]bool
}

// resolve attempts to produce a value for name, caching on success.
//
// The boolean is the soft outcome: false means "unresolved" (a missing
// base input somewhere beneath name), which is expected control flow, not
// an error. The error is reserved for hard aborts: circular dependencies,
// coercion failures, and (fail-fast mode) function errors.
func (r *resolution) resolve(name string) (bool, error) {
	// 1. Memo hit: a name is computed at most once per call.
	if _, ok := r.cache[name]; ok {
		return true, nil
	}

	// 2. Already being resolved on this path: circular dependency. The
	// cycle is the ordered stack suffix closed with name again.
	if r.onStack[name] {
		start := 0
		for i, n := range r.stack {
			if n == name {
				start = i
				break
			}
		}
		cycle := append([]string(nil), r.stack[start:]...)
		cycle = append(cycle, name)
		return false, &CircularError{Cycle: cycle}
	}

	// 3. Context entries shadow same-named registrations. Deliberate
	// short-circuit: a supplied value wins over a derivable one.
	if raw, ok := r.inputs[name]; ok {
		pol := r.eng.effectivePolicy(r.ctx, name, r.cfg.override)
		v, err := metric.Coerce(raw, pol)
		if err != nil {
			return false, &CalculationError{Name: name, Err: err}
		}
		r.cache[name] = v
		return true, nil
	}

	fn, err := r.eng.reg.Lookup(name)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			// 4. A base input the caller did not supply. Soft failure;
			// deliberately not cached, so sibling targets re-attempt it.
			return false, nil
		}
		return false, err
	}

	deps, err := r.eng.reg.DependenciesOf(name)
	if err != nil {
		return false, err
	}

	// 5. Resolve dependencies with the stack extended by name.
	r.stack = append(r.stack, name)
	r.onStack[name] = true
	defer func() {
		r.stack = r.stack[:len(r.stack)-1]
		delete(r.onStack, name)
	}()

	for _, dep := range deps {
		ok, err := r.resolve(dep)
		if err != nil {
			return false, err
		}
		if !ok {
			// This name is unresolved too. Stop here; the diagnostic
			// pass re-walks the registry, so unvisited siblings are
			// still accounted for.
			return false, nil
		}
	}

	// 6. All dependencies resolved: invoke under the effective policy.
	depValues := make(map[string]metric.Value, len(deps))
	for _, dep := range deps {
		depValues[dep] = r.cache[dep]
	}
	pol := r.eng.effectivePolicy(r.ctx, name, r.cfg.override)

	result, err := fn(depValues, pol)
	if err == nil && result.Err() != nil {
		// Strict-policy arithmetic failure inside the formula.
		err = result.Err()
	}
	if err != nil {
		if r.cfg.partial {
			r.eng.log.Warn("calculation failed, treating as unresolved",
				"name", name, "error", err)
			return false, nil
		}
		return false, &CalculationError{Name: name, Err: err}
	}

	result = result.Round(pol)
	r.cache[name] = result

	if r.eng.recorder != nil {
		if err := r.eng.recorder.Record(r.ctx, name, result, depValues); err != nil {
			r.eng.log.Warn("provenance record failed", "name", name, "error", err)
		}
	}
	return true, nil
}

// diagnose explains why the failed targets could not be resolved. It
// re-walks the registry from each failed target and classifies every
// reachable name: cached names are fine, context entries that refuse to
// coerce are invalid, unsupplied unregistered names are missing base
// inputs, and registered names recurse into their own dependencies.
//
// Runs only in fail-fast mode, only after resolution left targets
// unresolved.
func (r *resolution) diagnose(failed []string) *MissingInputError {
	var (
		missing = make(map[string]bool)
		invalid = make(map[string]bool)
		visited = make(map[string]bool)
	)

	var walk func(name string)
	walk = func(name string) {
		if visited[name] {
			return
		}
		visited[name] = true

		if _, ok := r.cache[name]; ok {
			return
		}
		if raw, ok := r.inputs[name]; ok {
			pol := r.eng.effectivePolicy(r.ctx, name, r.cfg.override)
			if _, err := metric.Coerce(raw, pol); err != nil {
				invalid[name] = true
			}
			return
		}
		deps, err := r.eng.reg.DependenciesOf(name)
		if err != nil {
			missing[name] = true
			return
		}
		for _, dep := range deps {
			walk(dep)
		}
	}

	for _, target := range failed {
		walk(target)
	}

	return &MissingInputError{
		Targets: failed,
		Missing: sortedKeys(missing),
		Invalid: sortedKeys(invalid),
	}
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
