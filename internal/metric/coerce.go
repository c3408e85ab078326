package metric

import (
	"fmt"

	"github.com/cockroachdb/apd/v3"
)

// Coerce converts a caller-supplied raw input into a Value under pol.
//
// Accepted inputs: Value (passed through), nil (absent), Go integer and
// float types, decimal strings, *apd.Decimal, and []any of any of the
// above (coerced element-wise into a series). Anything else is a coercion
// failure, which the engine reports as an invalid input rather than a
// missing one.
func Coerce(raw any, pol Policy) (Value, error) {
	switch x := raw.(type) {
	case Value:
		return x, nil
	case nil:
		return Absent("").WithPolicy(pol), nil
	case int:
		return FromInt(int64(x), "").WithPolicy(pol), nil
	case int32:
		return FromInt(int64(x), "").WithPolicy(pol), nil
	case int64:
		return FromInt(x, "").WithPolicy(pol), nil
	case uint:
		return FromInt(int64(x), "").WithPolicy(pol), nil
	case float32:
		return FromFloat(float64(x), "").WithPolicy(pol), nil
	case float64:
		return FromFloat(x, "").WithPolicy(pol), nil
	case string:
		v, err := FromString(x, "")
		if err != nil {
			return Absent(""), err
		}
		return v.WithPolicy(pol), nil
	case *apd.Decimal:
		return New(x, "").WithPolicy(pol), nil
	case apd.Decimal:
		return New(&x, "").WithPolicy(pol), nil
	case []any:
		items := make([]Value, len(x))
		for i, elem := range x {
			v, err := Coerce(elem, pol)
			if err != nil {
				return Absent(""), fmt.Errorf("series element %d: %w", i, err)
			}
			if v.IsSeries() {
				return Absent(""), fmt.Errorf("series element %d: nested series not supported", i)
			}
			items[i] = v
		}
		return Series(items...).WithPolicy(pol), nil
	default:
		return Absent(""), fmt.Errorf("cannot coerce %T into a value", raw)
	}
}
