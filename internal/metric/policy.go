package metric

import (
	"context"

	"github.com/cockroachdb/apd/v3"
)

// Policy is an immutable configuration record controlling how values are
// computed and displayed. The engine never mutates a Policy; it only selects
// one per resolved name and passes it through to the calculation function
// and the resulting Value.
type Policy struct {
	// Places is the number of decimal places results are rounded to.
	Places int32

	// Rounding selects the rounding mode applied at Places.
	Rounding apd.Rounder

	// Strict controls arithmetic failure behavior. When false (lenient),
	// undefined operations (absent operands, division by zero) propagate
	// an absent value. When true, the resulting Value carries an error
	// that the engine surfaces as a calculation failure.
	Strict bool

	// Grouping enables digit grouping (thousands separators) when the
	// value is rendered.
	Grouping bool

	// Locale is the BCP 47 tag used for rendering.
	Locale string
}

// DefaultPolicy returns the process-wide default policy: two decimal
// places, half-up rounding, lenient arithmetic, grouped digits, English
// locale.
func DefaultPolicy() Policy {
	return Policy{
		Places:   2,
		Rounding: apd.RoundHalfUp,
		Strict:   false,
		Grouping: true,
		Locale:   "en",
	}
}

type ambientKey struct{}

// WithAmbient returns a context carrying p as the ambient policy. The
// ambient policy applies to every resolution performed under the returned
// context unless a per-call or per-metric override takes precedence.
// Because the policy rides on the context, nested scopes restore naturally
// on every exit path and never leak across goroutines.
func WithAmbient(ctx context.Context, p Policy) context.Context {
	return context.WithValue(ctx, ambientKey{}, p)
}

// AmbientPolicy returns the ambient policy carried by ctx, if any.
func AmbientPolicy(ctx context.Context) (Policy, bool) {
	p, ok := ctx.Value(ambientKey{}).(Policy)
	return p, ok
}
