package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mboyd/reckon/internal/metric"
	"github.com/mboyd/reckon/internal/registry"
)

func passthrough(deps map[string]metric.Value, _ metric.Policy) (metric.Value, error) {
	for _, v := range deps {
		return v, nil
	}
	return metric.Absent(""), nil
}

func TestTransitiveDependencies(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register("gross_profit", []string{"revenue", "cogs"}, passthrough))
	require.NoError(t, reg.Register("gross_margin", []string{"gross_profit", "revenue"}, passthrough))

	eng := New(reg)
	deps, err := eng.TransitiveDependencies("gross_margin")
	require.NoError(t, err)
	assert.Equal(t, []string{"cogs", "gross_profit", "revenue"}, deps,
		"sorted, transitive, base inputs included, target excluded")
}

func TestTransitiveDependencies_UnregisteredTarget(t *testing.T) {
	eng := New(registry.New())
	_, err := eng.TransitiveDependencies("nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, registry.ErrNotFound)
}

func TestTransitiveDependencies_CycleDetected(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register("top", []string{"a"}, passthrough))
	require.NoError(t, reg.Register("a", []string{"b"}, passthrough))
	require.NoError(t, reg.Register("b", []string{"a"}, passthrough))

	eng := New(reg)
	_, err := eng.TransitiveDependencies("top")
	require.Error(t, err)

	var circ *CircularError
	require.ErrorAs(t, err, &circ)
	assert.Equal(t, []string{"a", "b", "a"}, circ.Cycle)
}

func TestTransitiveDependencies_SharedSubtreeVisitedOnce(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register("base", []string{"x"}, passthrough))
	require.NoError(t, reg.Register("l", []string{"base"}, passthrough))
	require.NoError(t, reg.Register("r", []string{"base"}, passthrough))
	require.NoError(t, reg.Register("top", []string{"l", "r"}, passthrough))

	eng := New(reg)
	deps, err := eng.TransitiveDependencies("top")
	require.NoError(t, err)
	assert.Equal(t, []string{"base", "l", "r", "x"}, deps)
}

func TestValidateDependencies(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register("ok", []string{"input"}, passthrough))
	require.NoError(t, reg.Register("a", []string{"b"}, passthrough))
	require.NoError(t, reg.Register("b", []string{"a"}, passthrough))

	eng := New(reg)
	assert.NoError(t, eng.ValidateDependencies("ok"))
	assert.True(t, IsCircularError(eng.ValidateDependencies("a")))
}
