package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/mboyd/reckon/internal/metric"
	"github.com/mboyd/reckon/internal/registry"
)

// Context is the caller-supplied mapping of already-known names to raw
// values. Values may be raw scalars (Go numerics, decimal strings),
// pre-built metric.Values, or []any literal sequences; they are coerced on
// first use. Callers build the full map up front; there is no keyword-style
// merging.
type Context map[string]any

// Recorder is the optional provenance hook. After the engine produces a
// result for a registered calculation it calls Record with the name, the
// result, and the resolved inputs. Record failures never abort or alter
// the calculation; the engine logs and continues.
type Recorder interface {
	Record(ctx context.Context, name string, result metric.Value, inputs map[string]metric.Value) error
}

// Engine resolves requested targets against a registry of calculation
// definitions. It holds no per-call state: every Evaluate/EvaluateMany
// call owns a private cache and resolution stack, so concurrent calls on
// one Engine are safe.
type Engine struct {
	reg      *registry.Registry
	fallback metric.Policy
	recorder Recorder
	log      *slog.Logger

	// Per-metric policy overrides, set administratively ahead of time.
	mu       sync.Mutex
	perName  map[string]metric.Policy
}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithDefaultPolicy sets the engine-level default policy, used when no
// per-call, per-metric, or ambient policy applies.
func WithDefaultPolicy(p metric.Policy) Option {
	return func(e *Engine) {
		e.fallback = p
	}
}

// WithRecorder attaches a provenance recorder.
func WithRecorder(rec Recorder) Option {
	return func(e *Engine) {
		e.recorder = rec
	}
}

// WithLogger sets the logger used for best-effort failures. Defaults to
// slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// New creates an Engine over reg.
func New(reg *registry.Registry, opts ...Option) *Engine {
	e := &Engine{
		reg:      reg,
		fallback: metric.DefaultPolicy(),
		log:      slog.Default(),
		perName:  make(map[string]metric.Policy),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the registry this engine resolves against.
func (e *Engine) Registry() *registry.Registry { return e.reg }

// SetMetricPolicy installs a per-metric policy override for name. The
// override outranks ambient and engine-default policies but yields to an
// explicit per-call policy.
func (e *Engine) SetMetricPolicy(name string, p metric.Policy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.perName[name] = p
}

// ClearMetricPolicy removes the per-metric override for name, if any.
func (e *Engine) ClearMetricPolicy(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.perName, name)
}

// MetricPolicy returns the per-metric override for name, if set.
func (e *Engine) MetricPolicy(name string) (metric.Policy, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.perName[name]
	return p, ok
}

// EvalOption configures a single Evaluate/EvaluateMany call.
type EvalOption func(*evalConfig)

type evalConfig struct {
	override *metric.Policy
	partial  bool
}

// WithPolicy sets an explicit per-call policy override, the highest rung
// of the precedence chain. It applies to every name resolved in the call.
func WithPolicy(p metric.Policy) EvalOption {
	return func(c *evalConfig) {
		c.override = &p
	}
}

// WithPartial switches the call to best-effort mode: unresolvable targets
// are omitted from the result instead of raising MissingInputError, and a
// failing calculation function is logged and treated as unresolved rather
// than aborting. Circular dependencies and coercion failures still abort.
func WithPartial() EvalOption {
	return func(c *evalConfig) {
		c.partial = true
	}
}

// effectivePolicy evaluates the precedence chain for one resolved name:
// per-call override > per-metric override > ambient > engine default.
// It runs once per name, not once per call, so different calculations in
// one batch may legitimately use different policies.
func (e *Engine) effectivePolicy(ctx context.Context, name string, override *metric.Policy) metric.Policy {
	if override != nil {
		return *override
	}
	if p, ok := e.MetricPolicy(name); ok {
		return p
	}
	if p, ok := metric.AmbientPolicy(ctx); ok {
		return p
	}
	return e.fallback
}

// Evaluate resolves a single target and returns its value.
//
// In fail-fast mode (the default) an unresolvable target yields a
// MissingInputError. In best-effort mode (WithPartial) an unresolvable
// target degrades to an absent value with no error. Cycles, coercion
// failures, and (fail-fast) function errors abort with their hard error
// in both modes.
func (e *Engine) Evaluate(ctx context.Context, target string, inputs Context, opts ...EvalOption) (metric.Value, error) {
	results, err := e.EvaluateMany(ctx, []string{target}, inputs, opts...)
	if err != nil {
		return metric.Absent(""), err
	}
	v, ok := results[target]
	if !ok {
		return metric.Absent(""), nil
	}
	return v, nil
}

// EvaluateMany resolves each target against one shared per-call cache and
// returns a name to value mapping.
//
// Fail-fast mode: success means every requested target is present; any
// unresolved target triggers the diagnostic pass and a MissingInputError.
// Best-effort mode: the mapping simply omits targets that did not resolve.
func (e *Engine) EvaluateMany(ctx context.Context, targets []string, inputs Context, opts ...EvalOption) (map[string]metric.Value, error) {
	cfg := &evalConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	r := &resolution{
		eng:     e,
		ctx:     ctx,
		inputs:  inputs,
		cfg:     cfg,
		cache:   make(map[string]metric.Value),
		onStack: make(map[string]bool),
	}

	var failed []string
	for _, target := range targets {
		ok, err := r.resolve(target)
		if err != nil {
			return nil, err
		}
		if !ok {
			failed = append(failed, target)
		}
	}

	if len(failed) > 0 && !cfg.partial {
		return nil, r.diagnose(failed)
	}

	results := make(map[string]metric.Value, len(targets))
	for _, target := range targets {
		if v, ok := r.cache[target]; ok {
			results[target] = v
		}
	}
	return results, nil
}
