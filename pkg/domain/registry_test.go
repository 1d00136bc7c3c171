package domain

import (
	"context"
	"errors"
	"iter"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceBuilderDispatch(t *testing.T) {
	src := NewSourceBuilder().
		Provide("user", func(_ context.Context, q Query, _ *Context) (any, error) {
			return "user:" + q["id"].(string), nil
		}, nil).
		Build()

	assert.Equal(t, []Key{"user"}, src.Provides().Keys())

	v, err := src.Get(context.Background(), "user", Query{"id": "7"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "user:7", v)

	_, err = src.Get(context.Background(), "order", Query{}, nil)
	require.ErrorIs(t, err, ErrUnsupported)

	// GetMany through a nil slot is unsupported even for a declared type.
	_, err = src.GetMany(context.Background(), "user", Query{}, nil)
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestSinkBuilderPutManyFallsBackToPut(t *testing.T) {
	var got []any
	sink := NewSinkBuilder().
		Accept("user", func(_ context.Context, item any, _ *Context) error {
			got = append(got, item)
			return nil
		}, nil).
		Build()

	err := sink.PutMany(context.Background(), "user", slices.Values([]any{"a", "b"}), nil)
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, got)

	err = sink.Put(context.Background(), "order", "x", nil)
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestSinkBuilderPutManyStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	sink := NewSinkBuilder().
		Accept("user", func(_ context.Context, item any, _ *Context) error {
			calls++
			if item == "bad" {
				return boom
			}
			return nil
		}, nil).
		Build()

	err := sink.PutMany(context.Background(), "user", slices.Values([]any{"a", "bad", "c"}), nil)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
}

func TestWildcardSinkAcceptsEveryType(t *testing.T) {
	var got []any
	sink := NewSinkBuilder().
		Accept(Any, func(_ context.Context, item any, _ *Context) error {
			got = append(got, item)
			return nil
		}, nil).
		Build()

	assert.True(t, sink.Accepts().IsWildcard())
	require.NoError(t, sink.Put(context.Background(), "user", "a", nil))
	require.NoError(t, sink.Put(context.Background(), "order", "b", nil))
	assert.Equal(t, []any{"a", "b"}, got)
}

func TestTransformerBuilderDeclaresTransforms(t *testing.T) {
	tr := NewTransformerBuilder().
		WithCost(3).
		Register("celsius", "fahrenheit", Typed(func(_ context.Context, c float64, _ *Context) (any, error) {
			return c*9/5 + 32, nil
		})).
		Register("celsius", "kelvin", Typed(func(_ context.Context, c float64, _ *Context) (any, error) {
			return c + 273.15, nil
		})).
		Build()

	assert.Equal(t, 3, tr.Cost())
	declared := tr.Transforms()
	require.Contains(t, declared, Key("celsius"))
	assert.ElementsMatch(t, []Key{"fahrenheit", "kelvin"}, declared["celsius"].Keys())

	out, err := tr.Transform(context.Background(), "kelvin", 0.0, nil)
	require.NoError(t, err)
	assert.InDelta(t, 273.15, out, 1e-9)
}

func TestTransformerCostClamped(t *testing.T) {
	tr := NewTransformerBuilder().WithCost(0).Build()
	assert.Equal(t, 1, tr.Cost())
}

func TestTransformerMultiFromDispatchByTrial(t *testing.T) {
	tr := NewTransformerBuilder().
		Register("int", "text", Typed(func(_ context.Context, v int, _ *Context) (any, error) {
			return "int", nil
		})).
		Register("upper", "text", Typed(func(_ context.Context, v string, _ *Context) (any, error) {
			return strings.ToUpper(v), nil
		})).
		Build()

	out, err := tr.Transform(context.Background(), "text", "abc", nil)
	require.NoError(t, err)
	assert.Equal(t, "ABC", out)

	out, err = tr.Transform(context.Background(), "text", 5, nil)
	require.NoError(t, err)
	assert.Equal(t, "int", out)

	// No candidate takes a float.
	_, err = tr.Transform(context.Background(), "text", 1.5, nil)
	require.ErrorIs(t, err, ErrUnsupported)

	// Unknown target type.
	_, err = tr.Transform(context.Background(), "binary", "abc", nil)
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestTransformerPropagatesRealErrors(t *testing.T) {
	boom := errors.New("backend down")
	tr := NewTransformerBuilder().
		Register("a", "b", func(_ context.Context, _ any, _ *Context) (any, error) {
			return nil, boom
		}).
		Register("c", "b", Typed(func(_ context.Context, v int, _ *Context) (any, error) {
			return v, nil
		})).
		Build()

	_, err := tr.Transform(context.Background(), "b", 1, nil)
	require.ErrorIs(t, err, boom)
}

func staticSource(key Key, values map[string]any) Source {
	return NewSourceBuilder().
		Provide(key, func(_ context.Context, q Query, _ *Context) (any, error) {
			id, _ := q["id"].(string)
			if v, ok := values[id]; ok {
				return v, nil
			}
			return nil, NotFound(key)
		}, func(_ context.Context, _ Query, _ *Context) (iter.Seq2[any, error], error) {
			if len(values) == 0 {
				return nil, NotFound(key)
			}
			return func(yield func(any, error) bool) {
				ids := make([]string, 0, len(values))
				for id := range values {
					ids = append(ids, id)
				}
				slices.Sort(ids)
				for _, id := range ids {
					if !yield(values[id], nil) {
						return
					}
				}
			}, nil
		}).
		Build()
}

func TestCompositeSourceFallsThrough(t *testing.T) {
	first := staticSource("user", map[string]any{"1": "alice"})
	second := staticSource("user", map[string]any{"2": "bob"})

	composite, err := NewCompositeSource(first, second)
	require.NoError(t, err)
	assert.Equal(t, []Key{"user"}, composite.Provides().Keys())

	v, err := composite.Get(context.Background(), "user", Query{"id": "2"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "bob", v)

	_, err = composite.Get(context.Background(), "user", Query{"id": "3"}, nil)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = composite.Get(context.Background(), "order", Query{}, nil)
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestCompositeSourceRejectsWildcardMembers(t *testing.T) {
	wild := NewSourceBuilder().Provide(Any, nil, nil).Build()
	_, err := NewCompositeSource(wild)
	require.Error(t, err)
}

func TestCompositeSinkDeliversToAllMembers(t *testing.T) {
	var a, b []any
	first := NewSinkBuilder().Accept("user", func(_ context.Context, item any, _ *Context) error {
		a = append(a, item)
		return nil
	}, nil).Build()
	second := NewSinkBuilder().Accept("user", func(_ context.Context, item any, _ *Context) error {
		b = append(b, item)
		return nil
	}, nil).Build()

	composite, err := NewCompositeSink(first, second)
	require.NoError(t, err)

	require.NoError(t, composite.Put(context.Background(), "user", "x", nil))
	assert.Equal(t, []any{"x"}, a)
	assert.Equal(t, []any{"x"}, b)

	require.NoError(t, composite.PutMany(context.Background(), "user", slices.Values([]any{"y", "z"}), nil))
	assert.Equal(t, []any{"x", "y", "z"}, a)
	assert.Equal(t, []any{"x", "y", "z"}, b)
}
