package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/mboyd/reckon/internal/metric"
)

// Func is the signature of a calculation. It receives the resolved value
// of every declared dependency, keyed by dependency name, plus the
// effective policy chosen for this calculation, and produces one value.
type Func func(deps map[string]metric.Value, pol metric.Policy) (metric.Value, error)

// Registration failures. All are detected at Register time and are fatal
// to the registration call.
var (
	ErrInvalidName       = errors.New("calculation name must be a non-empty identifier")
	ErrSelfDependency    = errors.New("calculation cannot depend on itself")
	ErrAlreadyRegistered = errors.New("calculation already registered")
	ErrNotFound          = errors.New("calculation not registered")
)

type entry struct {
	fn        Func
	dependsOn []string
}

// Registry is the durable, process-lifetime store of calculation
// definitions. It is pure bookkeeping: it never executes a calculation.
//
// All reads and writes serialize through one mutex. Typical usage
// registers everything at start-up and then only reads, so the lock is
// effectively uncontended on the resolution path.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New creates an empty registry. Applications own the instance and inject
// it into the engine; tests create isolated registries freely.
func New() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register stores a calculation under name with its declared dependency
// names. The dependency slice is defensively copied.
func (r *Registry) Register(name string, dependsOn []string, fn Func) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("register: %w", ErrInvalidName)
	}
	for _, dep := range dependsOn {
		if dep == name {
			return fmt.Errorf("register %q: %w", name, ErrSelfDependency)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("register %q: %w", name, ErrAlreadyRegistered)
	}
	deps := make([]string, len(dependsOn))
	copy(deps, dependsOn)
	r.entries[name] = &entry{fn: fn, dependsOn: deps}
	return nil
}

// Lookup returns the function registered under name.
func (r *Registry) Lookup(name string) (Func, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("lookup %q: %w", name, ErrNotFound)
	}
	return e.fn, nil
}

// DependenciesOf returns a copy of the declared dependency names of name.
func (r *Registry) DependenciesOf(name string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("dependencies of %q: %w", name, ErrNotFound)
	}
	deps := make([]string, len(e.dependsOn))
	copy(deps, e.dependsOn)
	return deps, nil
}

// Contains reports whether name is registered.
func (r *Registry) Contains(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.entries[name]
	return ok
}

// ListAll returns a copy of the full name to dependency-set mapping.
// Mutating the returned map does not affect the registry.
func (r *Registry) ListAll() map[string][]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string][]string, len(r.entries))
	for name, e := range r.entries {
		deps := make([]string, len(e.dependsOn))
		copy(deps, e.dependsOn)
		out[name] = deps
	}
	return out
}

// Unregister removes name and scrubs it from every other registration's
// dependency set (best-effort graph repair). No-op when name is absent.
// Intended for tests and administrative tooling.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[name]; !ok {
		return
	}
	delete(r.entries, name)
	for _, e := range r.entries {
		kept := e.dependsOn[:0]
		for _, dep := range e.dependsOn {
			if dep != name {
				kept = append(kept, dep)
			}
		}
		e.dependsOn = kept
	}
}

// ScanForCycles walks the whole dependency graph depth-first and returns
// every cycle found, each as the ordered name sequence ending back at its
// first name. A back edge is a dependency already on the active recursion
// stack. An acyclic graph returns nil.
//
// This is a diagnostic utility for tooling; normal resolution detects
// cycles lazily on its own stack.
func (r *Registry) ScanForCycles() [][]string {
	r.mu.Lock()
	graph := make(map[string][]string, len(r.entries))
	for name, e := range r.entries {
		graph[name] = append([]string(nil), e.dependsOn...)
	}
	r.mu.Unlock()

	names := make([]string, 0, len(graph))
	for name := range graph {
		names = append(names, name)
	}
	sort.Strings(names)

	var (
		cycles  [][]string
		done    = make(map[string]bool)
		onStack = make(map[string]bool)
		stack   []string
	)

	var visit func(name string)
	visit = func(name string) {
		stack = append(stack, name)
		onStack[name] = true

		for _, dep := range graph[name] {
			if _, registered := graph[dep]; !registered {
				continue // base input, cannot participate in a cycle
			}
			if onStack[dep] {
				// Back edge: the cycle is the stack suffix from dep,
				// closed with dep again.
				start := 0
				for i, n := range stack {
					if n == dep {
						start = i
						break
					}
				}
				cycle := append([]string(nil), stack[start:]...)
				cycle = append(cycle, dep)
				cycles = append(cycles, cycle)
				continue
			}
			if !done[dep] {
				visit(dep)
			}
		}

		stack = stack[:len(stack)-1]
		onStack[name] = false
		done[name] = true
	}

	for _, name := range names {
		if !done[name] {
			visit(name)
		}
	}
	return cycles
}
