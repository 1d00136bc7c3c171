package typegraph

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/meshpipe/meshpipe/pkg/domain"
)

func TestResolveChainsTransformers(t *testing.T) {
	ab := passthrough(1, pair("a", "b"))
	bc := passthrough(1, pair("b", "c"))
	g := Build(nil, nil, []domain.Transformer{ab, bc}, discard())

	chain, err := g.Resolve("a", "c")
	require.NoError(t, err)
	assert.Equal(t, 2, chain.Cost)
	require.Len(t, chain.Steps, 2)
	assert.Equal(t, domain.Key("b"), chain.Steps[0].To)
	assert.Equal(t, domain.Key("c"), chain.Steps[1].To)

	out, err := chain.Apply(context.Background(), "x", nil)
	require.NoError(t, err)
	assert.Equal(t, "x->b->c", out)
}

func TestResolvePrefersCheaperPath(t *testing.T) {
	direct := passthrough(5, pair("a", "c"))
	viaB := passthrough(1, pair("a", "b"), pair("b", "c"))
	g := Build(nil, nil, []domain.Transformer{direct, viaB}, discard())

	chain, err := g.Resolve("a", "c")
	require.NoError(t, err)
	assert.Equal(t, 2, chain.Cost)
	assert.Len(t, chain.Steps, 2)
}

func TestResolveIdentity(t *testing.T) {
	g := Build(nil, nil, nil, discard())

	chain, err := g.Resolve("ghost", "ghost")
	require.NoError(t, err)
	assert.True(t, chain.IsIdentity())
	assert.Zero(t, chain.Cost)

	out, err := chain.Apply(context.Background(), 42, nil)
	require.NoError(t, err)
	assert.Equal(t, 42, out)
}

func TestResolveNoPath(t *testing.T) {
	ab := passthrough(1, pair("a", "b"))
	g := Build(nil, nil, []domain.Transformer{ab}, discard())

	// Reachable only in the other direction.
	_, err := g.Resolve("b", "a")
	require.ErrorIs(t, err, domain.ErrNoConversion)

	// Unknown endpoint.
	_, err = g.Resolve("a", "zzz")
	require.ErrorIs(t, err, domain.ErrNoConversion)
}

func TestResolveEqualCostDeterministic(t *testing.T) {
	// Two cost-2 paths a->c: via b1 and via b2. The lexicographically
	// smaller intermediate must win every time.
	tr := passthrough(1,
		pair("a", "b1"), pair("b1", "c"),
		pair("a", "b2"), pair("b2", "c"),
	)

	for range 50 {
		g := Build(nil, nil, []domain.Transformer{tr}, discard())
		chain, err := g.Resolve("a", "c")
		require.NoError(t, err)
		require.Len(t, chain.Steps, 2)
		assert.Equal(t, domain.Key("b1"), chain.Steps[0].To)
	}
}

func TestBestToPicksCheapestCandidate(t *testing.T) {
	tr := passthrough(1, pair("a", "t"), pair("b", "m"), pair("m", "t"))
	g := Build(nil, nil, []domain.Transformer{tr}, discard())

	winner, chain, err := g.BestTo("t", []domain.Key{"b", "a"})
	require.NoError(t, err)
	assert.Equal(t, domain.Key("a"), winner)
	assert.Equal(t, 1, chain.Cost)
}

func TestBestToTieFavorsSmallerKey(t *testing.T) {
	tr := passthrough(1, pair("x", "t"), pair("y", "t"))
	g := Build(nil, nil, []domain.Transformer{tr}, discard())

	winner, chain, err := g.BestTo("t", []domain.Key{"y", "x"})
	require.NoError(t, err)
	assert.Equal(t, domain.Key("x"), winner)
	assert.Equal(t, 1, chain.Cost)
}

func TestBestToNoViableCandidate(t *testing.T) {
	g := Build(nil, nil, []domain.Transformer{passthrough(1, pair("a", "b"))}, discard())

	_, _, err := g.BestTo("zzz", []domain.Key{"a", "b"})
	require.ErrorIs(t, err, domain.ErrNoConversion)
}

func TestBestFromPicksCheapestCandidate(t *testing.T) {
	tr := passthrough(1, pair("s", "a"), pair("s", "m"), pair("m", "b"))
	g := Build(nil, nil, []domain.Transformer{tr}, discard())

	winner, chain, err := g.BestFrom("s", []domain.Key{"b", "a"})
	require.NoError(t, err)
	assert.Equal(t, domain.Key("a"), winner)
	assert.Equal(t, 1, chain.Cost)
}

func TestRoundTripThroughInverseConverters(t *testing.T) {
	double := domain.NewTransformerBuilder().
		Register("n", "doubled", domain.Typed(func(_ context.Context, v int, _ *domain.Context) (any, error) {
			return v * 2, nil
		})).
		Build()
	halve := domain.NewTransformerBuilder().
		Register("doubled", "n", domain.Typed(func(_ context.Context, v int, _ *domain.Context) (any, error) {
			return v / 2, nil
		})).
		Build()
	g := Build(nil, nil, []domain.Transformer{double, halve}, discard())

	there, err := g.Resolve("n", "doubled")
	require.NoError(t, err)
	back, err := g.Resolve("doubled", "n")
	require.NoError(t, err)

	mid, err := there.Apply(context.Background(), 21, nil)
	require.NoError(t, err)
	out, err := back.Apply(context.Background(), mid, nil)
	require.NoError(t, err)
	assert.Equal(t, 21, out)
}

func TestLossyRoundTripTruncates(t *testing.T) {
	toInt := domain.NewTransformerBuilder().
		Register("float", "int", domain.Typed(func(_ context.Context, v float64, _ *domain.Context) (any, error) {
			return int(v), nil
		})).
		Build()
	toFloat := domain.NewTransformerBuilder().
		Register("int", "float", domain.Typed(func(_ context.Context, v int, _ *domain.Context) (any, error) {
			return float64(v), nil
		})).
		Build()
	g := Build(nil, nil, []domain.Transformer{toInt, toFloat}, discard())

	there, err := g.Resolve("float", "int")
	require.NoError(t, err)
	back, err := g.Resolve("int", "float")
	require.NoError(t, err)

	mid, err := there.Apply(context.Background(), 2.9, nil)
	require.NoError(t, err)
	// Truncation, not rounding.
	assert.Equal(t, 2, mid)

	out, err := back.Apply(context.Background(), mid, nil)
	require.NoError(t, err)
	assert.Equal(t, 2.0, out)
}

// Linear chains have exactly one path, so the resolved cost must equal the
// per-step cost times the hop count regardless of chain length.
func TestResolveLinearChainProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		length := rapid.IntRange(2, 12).Draw(rt, "length")
		cost := rapid.IntRange(1, 9).Draw(rt, "cost")

		pairs := make([][2]domain.Key, 0, length-1)
		for i := 0; i < length-1; i++ {
			pairs = append(pairs, pair(
				domain.Key(fmt.Sprintf("t%02d", i)),
				domain.Key(fmt.Sprintf("t%02d", i+1)),
			))
		}
		g := Build(nil, nil, []domain.Transformer{passthrough(cost, pairs...)}, discard())

		from := domain.Key("t00")
		to := domain.Key(fmt.Sprintf("t%02d", length-1))
		chain, err := g.Resolve(from, to)
		if err != nil {
			rt.Fatalf("resolve %s to %s: %v", from, to, err)
		}
		if len(chain.Steps) != length-1 {
			rt.Fatalf("expected %d steps, got %d", length-1, len(chain.Steps))
		}
		if chain.Cost != cost*(length-1) {
			rt.Fatalf("expected cost %d, got %d", cost*(length-1), chain.Cost)
		}
	})
}
