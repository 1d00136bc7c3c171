package pipeline

import (
	"errors"
	"fmt"

	"github.com/meshpipe/meshpipe/pkg/domain"
	"github.com/meshpipe/meshpipe/pkg/typegraph"
)

// newSinkHandler binds a sink to the cheapest reachable candidate type.
// Candidates are tried in argument order; a direct acceptance (including via
// wildcard) always beats a computed chain, and among computed chains only a
// strictly cheaper one displaces an earlier candidate's, so ties keep the
// first candidate. The returned index identifies the winning candidate.
func newSinkHandler(g *typegraph.Graph, sink domain.Sink, candidates ...domain.Key) (*sinkHandler, int, error) {
	accepts := sink.Accepts()

	for i, candidate := range candidates {
		if accepts.Contains(candidate) {
			return &sinkHandler{sink: sink, bound: candidate, chain: typegraph.Identity(candidate)}, i, nil
		}
	}

	var (
		winner      *sinkHandler
		winnerIndex = -1
	)
	for i, candidate := range candidates {
		bound, chain, err := g.BestFrom(candidate, accepts.Keys())
		if err != nil {
			continue
		}
		if winner == nil || chain.Cost < winner.chain.Cost {
			winner = &sinkHandler{sink: sink, bound: bound, chain: chain}
			winnerIndex = i
		}
	}
	if winner == nil {
		return nil, -1, fmt.Errorf("%w: sink cannot accept any of %v", domain.ErrNoConversion, candidates)
	}
	return winner, winnerIndex, nil
}

// newSourceHandler binds a source to the requested type, resolving the
// cheapest provided type when the source does not provide it directly, and
// precomputes the sink fan-out sets. Each eligible sink is evaluated against
// both the resident type and the requested type; the cheaper binding wins
// and decides whether the sink fires before or after conversion (ties favor
// before). Sinks unreachable from both types are excluded, not errors.
func newSourceHandler(g *typegraph.Graph, source domain.Source, sinks []domain.Sink, requested domain.Key) (*sourceHandler, error) {
	provides := source.Provides()

	handler := &sourceHandler{source: source, requested: requested}
	if provides.Contains(requested) {
		handler.bound = requested
		handler.chain = typegraph.Identity(requested)
	} else {
		bound, chain, err := g.BestTo(requested, provides.Keys())
		if err != nil {
			return nil, fmt.Errorf("source cannot provide %q: %w", requested, err)
		}
		handler.bound = bound
		handler.chain = chain
	}

	for _, sink := range sinks {
		sh, index, err := newSinkHandler(g, sink, handler.bound, requested)
		if err != nil {
			if errors.Is(err, domain.ErrNoConversion) {
				continue
			}
			return nil, err
		}
		if index == 0 {
			handler.before = append(handler.before, sh)
		} else {
			handler.after = append(handler.after, sh)
		}
	}

	return handler, nil
}
