package pipeline

import (
	"context"
	"iter"
	"slices"

	"github.com/meshpipe/meshpipe/pkg/domain"
	"github.com/meshpipe/meshpipe/pkg/typegraph"
)

// sinkHandler is the smallest executable write unit: one sink bound to the
// type it will be handed, with the conversion chain from the upstream type to
// that bound type.
type sinkHandler struct {
	sink  domain.Sink
	bound domain.Key
	chain *typegraph.Chain
}

func (h *sinkHandler) put(ctx context.Context, item any, pctx *domain.Context) error {
	converted, err := h.chain.Apply(ctx, item, pctx)
	if err != nil {
		return err
	}
	return h.sink.Put(ctx, h.bound, converted, pctx)
}

// putMany converts lazily, one item per pull; the sink decides whether to
// materialize the sequence.
func (h *sinkHandler) putMany(ctx context.Context, items iter.Seq[any], pctx *domain.Context) error {
	if h.chain.IsIdentity() {
		return h.sink.PutMany(ctx, h.bound, items, pctx)
	}

	var convErr error
	converted := func(yield func(any) bool) {
		for item := range items {
			value, err := h.chain.Apply(ctx, item, pctx)
			if err != nil {
				convErr = err
				return
			}
			if !yield(value) {
				return
			}
		}
	}
	if err := h.sink.PutMany(ctx, h.bound, converted, pctx); err != nil {
		return err
	}
	return convErr
}

// sourceHandler is the smallest executable read unit: one source bound to the
// resident type it will be asked for, the conversion chain to the requested
// type, and the precomputed fan-out sets. Sinks in the before set receive the
// raw resident-typed value; sinks in the after set receive the converted
// value.
type sourceHandler struct {
	source    domain.Source
	bound     domain.Key
	requested domain.Key
	chain     *typegraph.Chain
	before    []*sinkHandler
	after     []*sinkHandler
}

// get fetches one value, fans it out and converts it. A not-found result
// from the source propagates unchanged and triggers no sink writes.
func (h *sourceHandler) get(ctx context.Context, q domain.Query, pctx *domain.Context) (any, error) {
	result, err := h.source.Get(ctx, h.bound, q.Clone(), pctx)
	if err != nil {
		return nil, err
	}

	for _, sink := range h.before {
		if err := sink.put(ctx, result, pctx); err != nil {
			return nil, err
		}
	}

	converted, err := h.chain.Apply(ctx, result, pctx)
	if err != nil {
		return nil, err
	}

	for _, sink := range h.after {
		if err := sink.put(ctx, converted, pctx); err != nil {
			return nil, err
		}
	}

	return converted, nil
}

// getAll materializes the source's sequence, fans the whole collection out as
// bulk writes, and returns the converted collection.
func (h *sourceHandler) getAll(ctx context.Context, q domain.Query, pctx *domain.Context) ([]any, error) {
	upstream, err := h.source.GetMany(ctx, h.bound, q.Clone(), pctx)
	if err != nil {
		return nil, err
	}

	var items []any
	for item, err := range upstream {
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	for _, sink := range h.before {
		if err := sink.putMany(ctx, slices.Values(items), pctx); err != nil {
			return nil, err
		}
	}

	converted := make([]any, len(items))
	for i, item := range items {
		value, err := h.chain.Apply(ctx, item, pctx)
		if err != nil {
			return nil, err
		}
		converted[i] = value
	}

	for _, sink := range h.after {
		if err := sink.putMany(ctx, slices.Values(converted), pctx); err != nil {
			return nil, err
		}
	}

	return converted, nil
}

// stream returns a lazy sequence that fans out and converts one upstream item
// per pull. Work for item n+1 never starts before item n has been yielded,
// and abandoning the sequence stops the upstream pulls.
func (h *sourceHandler) stream(ctx context.Context, q domain.Query, pctx *domain.Context) (iter.Seq2[any, error], error) {
	upstream, err := h.source.GetMany(ctx, h.bound, q.Clone(), pctx)
	if err != nil {
		return nil, err
	}

	seq := func(yield func(any, error) bool) {
		for item, err := range upstream {
			if err != nil {
				yield(nil, err)
				return
			}
			for _, sink := range h.before {
				if err := sink.put(ctx, item, pctx); err != nil {
					yield(nil, err)
					return
				}
			}
			converted, err := h.chain.Apply(ctx, item, pctx)
			if err != nil {
				yield(nil, err)
				return
			}
			for _, sink := range h.after {
				if err := sink.put(ctx, converted, pctx); err != nil {
					yield(nil, err)
					return
				}
			}
			if !yield(converted, nil) {
				return
			}
		}
	}
	return seq, nil
}
