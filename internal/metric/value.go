package metric

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/apd/v3"
)

// decCtx is the shared arithmetic context. Precision 34 matches IEEE
// decimal128 and is far beyond anything a financial formula needs; rounding
// to display precision happens separately via Policy.
var decCtx = apd.BaseContext.WithPrecision(34)

// Arithmetic failure causes, surfaced via Value.Err when the governing
// policy is strict.
var (
	ErrAbsentOperand  = errors.New("operation on absent value")
	ErrDivisionByZero = errors.New("division by zero")
	ErrNotScalar      = errors.New("operation on series value")
)

// Value is the unit of data flowing through the calculation graph: an
// arbitrary-precision decimal tagged with a unit and the policy it was
// produced under. A Value may instead be absent (the null of this system)
// or a series of scalar values.
//
// Arithmetic never panics. Undefined operations propagate absence; under a
// strict policy the propagated value additionally carries an error that the
// engine turns into a calculation failure.
type Value struct {
	dec    apd.Decimal
	series []Value
	unit   string
	policy Policy
	absent bool
	err    error
}

// New constructs a scalar Value from a decimal under the default policy.
func New(d *apd.Decimal, unit string) Value {
	v := Value{unit: unit, policy: DefaultPolicy()}
	v.dec.Set(d)
	return v
}

// FromInt constructs a scalar Value from an integer.
func FromInt(n int64, unit string) Value {
	return New(apd.New(n, 0), unit)
}

// FromFloat constructs a scalar Value from a float64. NaN and infinities
// coerce to an absent value rather than an error.
func FromFloat(f float64, unit string) Value {
	var d apd.Decimal
	// apd.SetFloat64 accepts NaN and infinities as valid non-finite
	// decimals rather than returning an error, so check the form too.
	if _, err := d.SetFloat64(f); err != nil || d.Form != apd.Finite {
		return Absent(unit)
	}
	return New(&d, unit)
}

// FromString parses a decimal string into a scalar Value.
func FromString(s string, unit string) (Value, error) {
	d, _, err := apd.NewFromString(s)
	if err != nil {
		return Absent(unit), fmt.Errorf("parse decimal %q: %w", s, err)
	}
	return New(d, unit), nil
}

// Absent returns the absent value with the given unit tag.
func Absent(unit string) Value {
	return Value{unit: unit, policy: DefaultPolicy(), absent: true}
}

// Series constructs a series Value from scalar items.
func Series(items ...Value) Value {
	return Value{series: items, policy: DefaultPolicy()}
}

// IsAbsent reports whether the value is absent.
func (v Value) IsAbsent() bool { return v.absent }

// IsSeries reports whether the value holds a series rather than a scalar.
func (v Value) IsSeries() bool { return v.series != nil }

// Items returns the elements of a series value, or nil for scalars.
func (v Value) Items() []Value { return v.series }

// Err returns the arithmetic error attached to the value, set only when a
// strict policy was in effect at the failing operation.
func (v Value) Err() error { return v.err }

// Unit returns the unit tag.
func (v Value) Unit() string { return v.unit }

// WithUnit returns a copy of the value re-tagged with unit.
func (v Value) WithUnit(unit string) Value {
	v.unit = unit
	return v
}

// Policy returns the policy the value was produced under.
func (v Value) Policy() Policy { return v.policy }

// WithPolicy returns a copy of the value stamped with p.
func (v Value) WithPolicy(p Policy) Value {
	v.policy = p
	return v
}

// Decimal returns a copy of the underlying decimal. Absent and series
// values return zero.
func (v Value) Decimal() *apd.Decimal {
	var d apd.Decimal
	d.Set(&v.dec)
	return &d
}

// Float64 returns the scalar as a float64. Absent and series values
// return 0 and false.
func (v Value) Float64() (float64, bool) {
	if v.absent || v.IsSeries() {
		return 0, false
	}
	f, err := v.dec.Float64()
	if err != nil {
		return 0, false
	}
	return f, true
}

// String renders the value for debugging. Display rendering belongs to the
// format package.
func (v Value) String() string {
	switch {
	case v.absent:
		return "absent"
	case v.IsSeries():
		return fmt.Sprintf("series(%d)", len(v.series))
	case v.unit != "":
		return v.dec.Text('f') + " " + v.unit
	default:
		return v.dec.Text('f')
	}
}

// Cmp compares two scalar values: -1, 0, or +1. Comparison involving an
// absent or series value reports false.
func (v Value) Cmp(o Value) (int, bool) {
	if v.absent || o.absent || v.IsSeries() || o.IsSeries() {
		return 0, false
	}
	return v.dec.Cmp(&o.dec), true
}

// undefined produces the result of an undefined operation: absent, and
// carrying cause when the policy is strict.
func (v Value) undefined(cause error) Value {
	out := Absent(v.unit)
	out.policy = v.policy
	if v.policy.Strict {
		out.err = cause
	}
	return out
}

// binaryGuard checks both operands for absence or series-ness and returns
// the propagated result when the operation is undefined.
func (v Value) binaryGuard(o Value) (Value, bool) {
	if v.IsSeries() || o.IsSeries() {
		return v.undefined(ErrNotScalar), false
	}
	if v.absent || o.absent {
		return v.undefined(ErrAbsentOperand), false
	}
	return Value{}, true
}

// resultUnit keeps the unit when both operands agree or one is unitless.
func resultUnit(a, b string) string {
	switch {
	case a == b:
		return a
	case a == "":
		return b
	case b == "":
		return a
	default:
		return ""
	}
}

// Add returns v + o. Absence propagates.
func (v Value) Add(o Value) Value {
	if bad, ok := v.binaryGuard(o); !ok {
		return bad
	}
	out := Value{unit: resultUnit(v.unit, o.unit), policy: v.policy}
	decCtx.Add(&out.dec, &v.dec, &o.dec)
	return out
}

// Sub returns v - o. Absence propagates.
func (v Value) Sub(o Value) Value {
	if bad, ok := v.binaryGuard(o); !ok {
		return bad
	}
	out := Value{unit: resultUnit(v.unit, o.unit), policy: v.policy}
	decCtx.Sub(&out.dec, &v.dec, &o.dec)
	return out
}

// Mul returns v * o. Absence propagates.
func (v Value) Mul(o Value) Value {
	if bad, ok := v.binaryGuard(o); !ok {
		return bad
	}
	out := Value{unit: resultUnit(v.unit, o.unit), policy: v.policy}
	decCtx.Mul(&out.dec, &v.dec, &o.dec)
	return out
}

// Div returns v / o. Absence propagates; division by zero is undefined and
// yields absent (with an error under a strict policy).
func (v Value) Div(o Value) Value {
	if bad, ok := v.binaryGuard(o); !ok {
		return bad
	}
	if o.dec.IsZero() {
		return v.undefined(ErrDivisionByZero)
	}
	out := Value{unit: resultUnit(v.unit, o.unit), policy: v.policy}
	// apd's Quo pads exact quotients with trailing zeros out to the
	// context precision; reduce to the conventional minimal form.
	decCtx.Quo(&out.dec, &v.dec, &o.dec)
	out.dec.Reduce(&out.dec)
	return out
}

// Neg returns -v. Absence propagates.
func (v Value) Neg() Value {
	if v.IsSeries() {
		return v.undefined(ErrNotScalar)
	}
	if v.absent {
		return v.undefined(ErrAbsentOperand)
	}
	out := Value{unit: v.unit, policy: v.policy}
	decCtx.Neg(&out.dec, &v.dec)
	return out
}

// Round returns the value quantized to p.Places using p.Rounding, stamped
// with p. Absent and series values pass through unchanged apart from the
// policy stamp.
func (v Value) Round(p Policy) Value {
	v.policy = p
	if v.absent || v.IsSeries() {
		return v
	}
	ctx := *decCtx
	ctx.Rounding = p.Rounding
	var out Value
	out.unit = v.unit
	out.policy = p
	out.err = v.err
	ctx.Quantize(&out.dec, &v.dec, -p.Places)
	return out
}
