package typegraph

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshpipe/meshpipe/pkg/domain"
)

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// passthrough builds a transformer that converts between the named pairs by
// tagging values, which makes the taken path observable in tests.
func passthrough(cost int, pairs ...[2]domain.Key) domain.Transformer {
	b := domain.NewTransformerBuilder().WithCost(cost)
	for _, pair := range pairs {
		to := pair[1]
		b.Register(pair[0], to, func(_ context.Context, value any, _ *domain.Context) (any, error) {
			return fmt.Sprintf("%v->%s", value, to), nil
		})
	}
	return b.Build()
}

func pair(from, to domain.Key) [2]domain.Key { return [2]domain.Key{from, to} }

func TestBuildSkipsWildcardCapabilities(t *testing.T) {
	wildSource := domain.NewSourceBuilder().Provide(domain.Any, nil, nil).Build()
	wildSink := domain.NewSinkBuilder().Accept(domain.Any, nil, nil).Build()
	narrow := domain.NewSourceBuilder().Provide("user", nil, nil).Build()

	g := Build([]domain.Source{wildSource, narrow}, []domain.Sink{wildSink}, nil, discard())

	assert.Equal(t, []domain.Key{"user"}, g.Nodes())
	assert.Empty(t, g.SinksFor("user"))
	require.Len(t, g.SourcesFor("user"), 1)
}

func TestBuildKeepsCheapestEdge(t *testing.T) {
	cheap := passthrough(1, pair("a", "b"))
	expensive := passthrough(5, pair("a", "b"))

	g := Build(nil, nil, []domain.Transformer{expensive, cheap}, discard())

	tr, cost, ok := g.Edge("a", "b")
	require.True(t, ok)
	assert.Equal(t, 1, cost)
	assert.Same(t, cheap, tr)
}

func TestBuildEqualCostEdgeKeepsFirst(t *testing.T) {
	first := passthrough(2, pair("a", "b"))
	second := passthrough(2, pair("a", "b"))

	g := Build(nil, nil, []domain.Transformer{first, second}, discard())

	tr, cost, ok := g.Edge("a", "b")
	require.True(t, ok)
	assert.Equal(t, 2, cost)
	assert.Same(t, first, tr)
}

func TestSuccessorsSorted(t *testing.T) {
	tr := passthrough(1, pair("a", "c"), pair("a", "b"), pair("a", "d"))
	g := Build(nil, nil, []domain.Transformer{tr}, discard())

	assert.Equal(t, []domain.Key{"b", "c", "d"}, g.Successors("a"))
	assert.Nil(t, g.Successors("b"))
}

func TestNodeAnnotations(t *testing.T) {
	source := domain.NewSourceBuilder().Provide("user", nil, nil).Build()
	sink := domain.NewSinkBuilder().Accept("user", nil, nil).Accept("order", nil, nil).Build()

	g := Build([]domain.Source{source}, []domain.Sink{sink}, nil, discard())

	require.Len(t, g.SourcesFor("user"), 1)
	require.Len(t, g.SinksFor("user"), 1)
	require.Len(t, g.SinksFor("order"), 1)
	assert.Empty(t, g.SourcesFor("order"))
	assert.Nil(t, g.SourcesFor("missing"))
}
