package engine

import (
	"fmt"
	"sort"

	"github.com/mboyd/reckon/internal/registry"
)

// TransitiveDependencies returns every name reachable from target through
// declared dependency sets, sorted, including unregistered base inputs and
// excluding target itself. A cycle anywhere in the reachable graph returns
// a CircularError.
//
// Introspection utility for tooling; not on the resolution hot path.
func (e *Engine) TransitiveDependencies(target string) ([]string, error) {
	if !e.reg.Contains(target) {
		return nil, fmt.Errorf("transitive dependencies of %q: %w", target, registry.ErrNotFound)
	}

	seen := make(map[string]bool)
	onStack := make(map[string]bool)
	var stack []string

	var visit func(name string) error
	visit = func(name string) error {
		stack = append(stack, name)
		onStack[name] = true
		defer func() {
			stack = stack[:len(stack)-1]
			delete(onStack, name)
		}()

		deps, err := e.reg.DependenciesOf(name)
		if err != nil {
			return nil // base input, leaf
		}
		for _, dep := range deps {
			if onStack[dep] {
				start := 0
				for i, n := range stack {
					if n == dep {
						start = i
						break
					}
				}
				cycle := append([]string(nil), stack[start:]...)
				cycle = append(cycle, dep)
				return &CircularError{Cycle: cycle}
			}
			if seen[dep] {
				continue
			}
			seen[dep] = true
			if err := visit(dep); err != nil {
				return err
			}
		}
		return nil
	}

	if err := visit(target); err != nil {
		return nil, err
	}

	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// ValidateDependencies checks that target's dependency graph is
// well-formed: target is registered and no cycle is reachable from it.
// Unregistered dependencies are legal (they are base inputs expected from
// context) and do not fail validation.
func (e *Engine) ValidateDependencies(target string) error {
	_, err := e.TransitiveDependencies(target)
	return err
}
