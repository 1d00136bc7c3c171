// Package typegraph builds the directed graph of type conversions declared by
// a pipeline's capabilities and resolves minimum-cost conversion chains over
// it.
//
// Nodes are type keys; an edge (from, to) carries the cheapest transformer
// known for that ordered pair. Nodes are annotated with the sources and sinks
// that natively handle the type. Wildcard capabilities never enter the graph:
// they match every type directly and need no path search. The graph is built
// once, is immutable afterward, and is safe for unsynchronized concurrent
// reads.
package typegraph

import (
	"log/slog"
	"slices"

	"github.com/meshpipe/meshpipe/pkg/domain"
)

type node struct {
	sources []domain.Source
	sinks   []domain.Sink
}

type edge struct {
	cost        int
	transformer domain.Transformer
}

// Graph is the immutable type-conversion graph.
type Graph struct {
	nodes map[domain.Key]*node
	edges map[domain.Key]map[domain.Key]edge
}

// Build constructs the graph from the full set of registered capabilities.
// Absence of a path between two types is not a construction error; it
// surfaces later as a no-conversion result during resolution.
func Build(sources []domain.Source, sinks []domain.Sink, transformers []domain.Transformer, logger *slog.Logger) *Graph {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Graph{
		nodes: make(map[domain.Key]*node),
		edges: make(map[domain.Key]map[domain.Key]edge),
	}

	for _, source := range sources {
		provides := source.Provides()
		if provides.IsWildcard() {
			logger.Debug("skipping wildcard source in type graph", "source", describe(source))
			continue
		}
		for _, key := range provides.Keys() {
			n := g.ensureNode(key)
			n.sources = append(n.sources, source)
		}
		logger.Debug("added source to type graph", "source", describe(source), "provides", provides.String())
	}

	for _, sink := range sinks {
		accepts := sink.Accepts()
		if accepts.IsWildcard() {
			logger.Debug("skipping wildcard sink in type graph", "sink", describe(sink))
			continue
		}
		for _, key := range accepts.Keys() {
			n := g.ensureNode(key)
			n.sinks = append(n.sinks, sink)
		}
		logger.Debug("added sink to type graph", "sink", describe(sink), "accepts", accepts.String())
	}

	for _, transformer := range transformers {
		cost := transformer.Cost()
		for from, toSet := range transformer.Transforms() {
			for _, to := range toSet.Keys() {
				g.ensureNode(from)
				g.ensureNode(to)
				g.addEdge(from, to, cost, transformer)
			}
		}
		logger.Debug("added transformer to type graph", "transformer", describe(transformer), "cost", cost)
	}

	return g
}

func (g *Graph) ensureNode(key domain.Key) *node {
	n, ok := g.nodes[key]
	if !ok {
		n = &node{}
		g.nodes[key] = n
	}
	return n
}

// addEdge keeps at most one edge per ordered pair: the cheapest transformer
// wins, ties keep the first seen.
func (g *Graph) addEdge(from, to domain.Key, cost int, transformer domain.Transformer) {
	out, ok := g.edges[from]
	if !ok {
		out = make(map[domain.Key]edge)
		g.edges[from] = out
	}
	if current, ok := out[to]; ok && current.cost <= cost {
		return
	}
	out[to] = edge{cost: cost, transformer: transformer}
}

// HasNode reports whether the key appears in the graph.
func (g *Graph) HasNode(key domain.Key) bool {
	_, ok := g.nodes[key]
	return ok
}

// Nodes returns every type key in the graph in lexicographic order.
func (g *Graph) Nodes() []domain.Key {
	keys := make([]domain.Key, 0, len(g.nodes))
	for k := range g.nodes {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Edge returns the cheapest transformer for the ordered pair, if any.
func (g *Graph) Edge(from, to domain.Key) (domain.Transformer, int, bool) {
	e, ok := g.edges[from][to]
	if !ok {
		return nil, 0, false
	}
	return e.transformer, e.cost, true
}

// Successors returns the keys reachable from the given key in one step, in
// lexicographic order.
func (g *Graph) Successors(from domain.Key) []domain.Key {
	out := g.edges[from]
	if len(out) == 0 {
		return nil
	}
	keys := make([]domain.Key, 0, len(out))
	for k := range out {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// SourcesFor returns the sources that natively provide the key.
func (g *Graph) SourcesFor(key domain.Key) []domain.Source {
	if n, ok := g.nodes[key]; ok {
		return slices.Clone(n.sources)
	}
	return nil
}

// SinksFor returns the sinks that natively accept the key.
func (g *Graph) SinksFor(key domain.Key) []domain.Sink {
	if n, ok := g.nodes[key]; ok {
		return slices.Clone(n.sinks)
	}
	return nil
}
