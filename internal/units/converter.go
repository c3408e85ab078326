// Package units provides the unit-conversion registry consumed by
// formulas and formatting. Conversions are exact decimal factors on a
// graph of unit names; Convert searches the graph breadth-first, so
// multi-hop conversions work as long as each hop was registered.
package units

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/apd/v3"

	"github.com/mboyd/reckon/internal/metric"
)

// ErrNoPath is returned when no chain of registered conversions links the
// source unit to the requested one.
var ErrNoPath = errors.New("no conversion path")

var convCtx = apd.BaseContext.WithPrecision(34)

type edge struct {
	to     string
	factor apd.Decimal
}

// Converter is a mutex-guarded conversion graph. Like the calculation
// registry it is typically populated at start-up and then only read.
type Converter struct {
	mu    sync.Mutex
	edges map[string][]edge
}

// NewConverter creates an empty converter.
func NewConverter() *Converter {
	return &Converter{edges: make(map[string][]edge)}
}

// Register records that 1 from = factor to, along with the inverse edge.
// A zero factor is rejected because its inverse is undefined.
func (c *Converter) Register(from, to string, factor *apd.Decimal) error {
	if from == "" || to == "" || from == to {
		return fmt.Errorf("register conversion %q -> %q: units must be distinct and non-empty", from, to)
	}
	if factor.IsZero() {
		return fmt.Errorf("register conversion %q -> %q: factor must be non-zero", from, to)
	}

	var inverse apd.Decimal
	if _, err := convCtx.Quo(&inverse, apd.New(1, 0), factor); err != nil {
		return fmt.Errorf("register conversion %q -> %q: %w", from, to, err)
	}
	// apd's Quo pads exact quotients with trailing zeros out to the
	// context precision; reduce so conversions keep minimal exponents.
	inverse.Reduce(&inverse)

	c.mu.Lock()
	defer c.mu.Unlock()

	fwd := edge{to: to}
	fwd.factor.Set(factor)
	c.edges[from] = append(c.edges[from], fwd)

	back := edge{to: from}
	back.factor.Set(&inverse)
	c.edges[to] = append(c.edges[to], back)
	return nil
}

// Convert returns v expressed in unit to. The search is breadth-first
// over registered edges, so the shortest hop chain wins; factors along
// the path are multiplied exactly. Absent values convert trivially (only
// the unit tag changes). Series and unitless values cannot be converted.
func (c *Converter) Convert(v metric.Value, to string) (metric.Value, error) {
	from := v.Unit()
	if from == to {
		return v, nil
	}
	if v.IsSeries() {
		return v, fmt.Errorf("convert to %q: %w", to, metric.ErrNotScalar)
	}
	if from == "" {
		return v, fmt.Errorf("convert to %q: value has no unit: %w", to, ErrNoPath)
	}
	if v.IsAbsent() {
		return v.WithUnit(to), nil
	}

	factor, err := c.pathFactor(from, to)
	if err != nil {
		return v, err
	}

	var out apd.Decimal
	if _, err := convCtx.Mul(&out, v.Decimal(), factor); err != nil {
		return v, fmt.Errorf("convert %q -> %q: %w", from, to, err)
	}
	return metric.New(&out, to).WithPolicy(v.Policy()), nil
}

// pathFactor finds the combined factor along the shortest registered path.
func (c *Converter) pathFactor(from, to string) (*apd.Decimal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	type node struct {
		unit   string
		factor apd.Decimal
	}

	start := node{unit: from}
	start.factor.Set(apd.New(1, 0))
	queue := []node{start}
	visited := map[string]bool{from: true}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for _, e := range c.edges[cur.unit] {
			if visited[e.to] {
				continue
			}
			var next node
			next.unit = e.to
			if _, err := convCtx.Mul(&next.factor, &cur.factor, &e.factor); err != nil {
				return nil, fmt.Errorf("convert %q -> %q: %w", from, to, err)
			}
			if e.to == to {
				f := next.factor
				return &f, nil
			}
			visited[e.to] = true
			queue = append(queue, next)
		}
	}
	return nil, fmt.Errorf("convert %q -> %q: %w", from, to, ErrNoPath)
}
