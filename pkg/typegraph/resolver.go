package typegraph

import (
	"container/heap"
	"context"
	"fmt"
	"slices"

	"github.com/meshpipe/meshpipe/pkg/domain"
)

// Step is one conversion of a chain: apply Transformer toward To.
type Step struct {
	Transformer domain.Transformer
	To          domain.Key
}

// Chain is an ordered conversion path between two types. An empty chain is
// the identity conversion at cost 0.
type Chain struct {
	From domain.Key
	To   domain.Key
	// Steps are applied in order; each step's To is the intermediate type
	// the value has after that step.
	Steps []Step
	// Cost is the sum of the step costs.
	Cost int
}

// IsIdentity reports whether the chain performs no conversion.
func (c *Chain) IsIdentity() bool {
	return len(c.Steps) == 0
}

// Apply runs the value through every step of the chain.
func (c *Chain) Apply(ctx context.Context, value any, pctx *domain.Context) (any, error) {
	for _, step := range c.Steps {
		converted, err := step.Transformer.Transform(ctx, step.To, value, pctx)
		if err != nil {
			return nil, fmt.Errorf("converting to %q: %w", step.To, err)
		}
		value = converted
	}
	return value, nil
}

// Identity returns the zero-cost chain from a type to itself.
func Identity(key domain.Key) *Chain {
	return &Chain{From: key, To: key}
}

// Resolve finds the minimum-cost conversion chain from one type to another.
// Resolving a type to itself returns the identity chain whether or not the
// type appears in the graph. When either type is absent or no path exists,
// the error wraps domain.ErrNoConversion.
//
// Among equal-cost paths the result is deterministic: the search orders its
// frontier by (distance, key) and relaxes on strict improvement only, so
// lexicographically smaller type keys win ties.
func (g *Graph) Resolve(from, to domain.Key) (*Chain, error) {
	if from == to {
		return Identity(from), nil
	}
	if !g.HasNode(from) || !g.HasNode(to) {
		return nil, fmt.Errorf("%w: %q to %q", domain.ErrNoConversion, from, to)
	}

	path, ok := g.shortestPath(from, to)
	if !ok {
		return nil, fmt.Errorf("%w: %q to %q", domain.ErrNoConversion, from, to)
	}

	chain := &Chain{From: from, To: to}
	for i := 1; i < len(path); i++ {
		e := g.edges[path[i-1]][path[i]]
		chain.Steps = append(chain.Steps, Step{Transformer: e.transformer, To: path[i]})
		chain.Cost += e.cost
	}
	return chain, nil
}

// BestTo resolves every candidate toward the target and returns the cheapest
// success. Candidates are tried in lexicographic order and only a strictly
// cheaper chain replaces the incumbent, so ties favor the smaller key. When
// no candidate can reach the target the error wraps domain.ErrNoConversion
// and names all candidates tried.
func (g *Graph) BestTo(to domain.Key, candidates []domain.Key) (domain.Key, *Chain, error) {
	return g.best(candidates, func(candidate domain.Key) (*Chain, error) {
		return g.Resolve(candidate, to)
	})
}

// BestFrom resolves the source type toward every candidate and returns the
// cheapest success, with the same tie-break and failure behavior as BestTo.
func (g *Graph) BestFrom(from domain.Key, candidates []domain.Key) (domain.Key, *Chain, error) {
	return g.best(candidates, func(candidate domain.Key) (*Chain, error) {
		return g.Resolve(from, candidate)
	})
}

func (g *Graph) best(candidates []domain.Key, resolve func(domain.Key) (*Chain, error)) (domain.Key, *Chain, error) {
	ordered := slices.Clone(candidates)
	slices.Sort(ordered)

	var (
		winner domain.Key
		chain  *Chain
	)
	for _, candidate := range ordered {
		c, err := resolve(candidate)
		if err != nil {
			continue
		}
		if chain == nil || c.Cost < chain.Cost {
			winner = candidate
			chain = c
		}
	}
	if chain == nil {
		return "", nil, fmt.Errorf("%w: no viable candidate among %v", domain.ErrNoConversion, ordered)
	}
	return winner, chain, nil
}

// shortestPath runs Dijkstra's algorithm over the edge costs and returns the
// node sequence from source to target inclusive.
func (g *Graph) shortestPath(from, to domain.Key) ([]domain.Key, bool) {
	dist := map[domain.Key]int{from: 0}
	prev := make(map[domain.Key]domain.Key)
	done := make(map[domain.Key]bool)

	frontier := &keyHeap{{key: from, dist: 0}}
	for frontier.Len() > 0 {
		item := heap.Pop(frontier).(keyDist)
		if done[item.key] {
			continue
		}
		done[item.key] = true
		if item.key == to {
			break
		}
		for _, next := range g.Successors(item.key) {
			candidate := item.dist + g.edges[item.key][next].cost
			current, seen := dist[next]
			switch {
			case !seen || candidate < current:
				dist[next] = candidate
				prev[next] = item.key
				heap.Push(frontier, keyDist{key: next, dist: candidate})
			case candidate == current && item.key < prev[next]:
				// Same distance through a smaller predecessor: keep the
				// path choice independent of map iteration order.
				prev[next] = item.key
			}
		}
	}

	if !done[to] {
		return nil, false
	}
	path := []domain.Key{to}
	for at := to; at != from; {
		at = prev[at]
		path = append(path, at)
	}
	slices.Reverse(path)
	return path, true
}

type keyDist struct {
	key  domain.Key
	dist int
}

// keyHeap orders the frontier by (distance, key) so equal-cost searches pop
// in a deterministic order.
type keyHeap []keyDist

func (h keyHeap) Len() int { return len(h) }
func (h keyHeap) Less(i, j int) bool {
	if h[i].dist != h[j].dist {
		return h[i].dist < h[j].dist
	}
	return h[i].key < h[j].key
}
func (h keyHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *keyHeap) Push(x any)        { *h = append(*h, x.(keyDist)) }
func (h *keyHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func describe(v any) string {
	return fmt.Sprintf("%T", v)
}
