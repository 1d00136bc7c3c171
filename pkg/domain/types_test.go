package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeSetExplicit(t *testing.T) {
	s := NewTypeSet("b", "a", "b")

	assert.False(t, s.IsWildcard())
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []Key{"a", "b"}, s.Keys())
	assert.True(t, s.Contains("a"))
	assert.False(t, s.Contains("c"))
	assert.Equal(t, "{a, b}", s.String())
}

func TestTypeSetWildcard(t *testing.T) {
	s := Wildcard()

	assert.True(t, s.IsWildcard())
	assert.True(t, s.Contains("anything"))
	assert.Zero(t, s.Len())
	assert.Nil(t, s.Keys())
	assert.Equal(t, "*", s.String())
}

func TestTypeSetAnyKeyPromotesToWildcard(t *testing.T) {
	s := NewTypeSet("a", Any, "b")

	assert.True(t, s.IsWildcard())
	assert.True(t, s.Contains("c"))
}

func TestQueryCloneIsShallow(t *testing.T) {
	q := Query{"id": "1", "tags": []string{"x"}}
	c := q.Clone()

	c["id"] = "2"
	assert.Equal(t, "1", q["id"])

	// Nested values stay shared.
	require.IsType(t, []string{}, c["tags"])
	assert.Equal(t, q["tags"], c["tags"])
}

func TestContextCarriesValues(t *testing.T) {
	pipe := struct{ name string }{"p"}
	ctx := NewContext(pipe)

	assert.NotEmpty(t, ctx.ID)
	assert.Equal(t, pipe, ctx.Pipeline)

	_, ok := ctx.Value(ContextKeyExpiration)
	assert.False(t, ok)

	ctx.SetValue(ContextKeyExpiration, 300)
	v, ok := ctx.Value(ContextKeyExpiration)
	require.True(t, ok)
	assert.Equal(t, 300, v)
}

func TestContextIDsUnique(t *testing.T) {
	a := NewContext(nil)
	b := NewContext(nil)
	assert.NotEqual(t, a.ID, b.ID)
}
