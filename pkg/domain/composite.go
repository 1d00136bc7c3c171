package domain

import (
	"context"
	"errors"
	"iter"
	"slices"
)

// CompositeSource aggregates several sources behind a single capability. A
// lookup tries every member that provides the requested type in registration
// order, falling through on not-found, and each member receives its own copy
// of the query. Wildcard members cannot be indexed by type and are rejected
// at construction.
type CompositeSource struct {
	byType   map[Key][]Source
	provides TypeSet
}

// NewCompositeSource indexes the given sources by provided type.
func NewCompositeSource(sources ...Source) (*CompositeSource, error) {
	c := &CompositeSource{byType: make(map[Key][]Source)}
	var keys []Key
	for _, src := range sources {
		provides := src.Provides()
		if provides.IsWildcard() {
			return nil, errors.New("composite source members must declare explicit types")
		}
		for _, k := range provides.Keys() {
			if _, seen := c.byType[k]; !seen {
				keys = append(keys, k)
			}
			c.byType[k] = append(c.byType[k], src)
		}
	}
	c.provides = NewTypeSet(keys...)
	return c, nil
}

// Provides returns the union of the member sources' types.
func (c *CompositeSource) Provides() TypeSet { return c.provides }

// Get tries each providing member in order, skipping not-found results.
func (c *CompositeSource) Get(ctx context.Context, key Key, q Query, pctx *Context) (any, error) {
	sources, ok := c.byType[key]
	if !ok {
		return nil, UnsupportedType(key)
	}
	for _, src := range sources {
		value, err := src.Get(ctx, key, q.Clone(), pctx)
		if err == nil {
			return value, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return nil, NotFound(key)
}

// GetMany returns the first providing member's sequence, skipping members
// that report not-found.
func (c *CompositeSource) GetMany(ctx context.Context, key Key, q Query, pctx *Context) (iter.Seq2[any, error], error) {
	sources, ok := c.byType[key]
	if !ok {
		return nil, UnsupportedType(key)
	}
	for _, src := range sources {
		seq, err := src.GetMany(ctx, key, q.Clone(), pctx)
		if err == nil {
			return seq, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return nil, NotFound(key)
}

// CompositeSink aggregates several sinks behind a single capability. A write
// is delivered to every member that accepts the type; bulk writes are
// materialized once and replayed to each member. Wildcard members are
// rejected at construction, like CompositeSource.
type CompositeSink struct {
	byType  map[Key][]Sink
	accepts TypeSet
}

// NewCompositeSink indexes the given sinks by accepted type.
func NewCompositeSink(sinks ...Sink) (*CompositeSink, error) {
	c := &CompositeSink{byType: make(map[Key][]Sink)}
	var keys []Key
	for _, sink := range sinks {
		accepts := sink.Accepts()
		if accepts.IsWildcard() {
			return nil, errors.New("composite sink members must declare explicit types")
		}
		for _, k := range accepts.Keys() {
			if _, seen := c.byType[k]; !seen {
				keys = append(keys, k)
			}
			c.byType[k] = append(c.byType[k], sink)
		}
	}
	c.accepts = NewTypeSet(keys...)
	return c, nil
}

// Accepts returns the union of the member sinks' types.
func (c *CompositeSink) Accepts() TypeSet { return c.accepts }

// Put delivers the item to every accepting member.
func (c *CompositeSink) Put(ctx context.Context, key Key, item any, pctx *Context) error {
	sinks, ok := c.byType[key]
	if !ok {
		return UnsupportedType(key)
	}
	for _, sink := range sinks {
		if err := sink.Put(ctx, key, item, pctx); err != nil {
			return err
		}
	}
	return nil
}

// PutMany materializes the sequence once and delivers it to every accepting
// member.
func (c *CompositeSink) PutMany(ctx context.Context, key Key, items iter.Seq[any], pctx *Context) error {
	sinks, ok := c.byType[key]
	if !ok {
		return UnsupportedType(key)
	}
	materialized := slices.Collect(items)
	for _, sink := range sinks {
		if err := sink.PutMany(ctx, key, slices.Values(materialized), pctx); err != nil {
			return err
		}
	}
	return nil
}
