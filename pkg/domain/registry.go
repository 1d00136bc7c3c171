package domain

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
)

// The builders below assemble capabilities from per-type functions. Each
// capability's dispatch table is populated once at construction and exposed
// read-only through Provides/Accepts/Transforms, so the routing engine only
// ever consumes declared facts; there is no runtime registration.

// GetFunc fetches a single value for a query.
type GetFunc func(ctx context.Context, q Query, pctx *Context) (any, error)

// GetManyFunc fetches a lazy sequence of values for a query.
type GetManyFunc func(ctx context.Context, q Query, pctx *Context) (iter.Seq2[any, error], error)

// PutFunc stores a single value.
type PutFunc func(ctx context.Context, item any, pctx *Context) error

// PutManyFunc stores a lazy sequence of values.
type PutManyFunc func(ctx context.Context, items iter.Seq[any], pctx *Context) error

// TransformFunc converts one value. It returns an error wrapping
// ErrUnsupported when the value is not of the from-type it was registered
// for, which lets a transformer with several from-types sharing a target
// dispatch by trial.
type TransformFunc func(ctx context.Context, value any, pctx *Context) (any, error)

// Typed adapts a strongly typed conversion function into a TransformFunc,
// rejecting values of any other dynamic type with ErrUnsupported.
func Typed[F any](fn func(ctx context.Context, value F, pctx *Context) (any, error)) TransformFunc {
	return func(ctx context.Context, value any, pctx *Context) (any, error) {
		v, ok := value.(F)
		if !ok {
			return nil, fmt.Errorf("%w: %T", ErrUnsupported, value)
		}
		return fn(ctx, v, pctx)
	}
}

type sourceEntry struct {
	get     GetFunc
	getMany GetManyFunc
}

// SourceBuilder assembles a Source from per-type fetch functions.
type SourceBuilder struct {
	entries map[Key]sourceEntry
}

// NewSourceBuilder creates an empty source builder.
func NewSourceBuilder() *SourceBuilder {
	return &SourceBuilder{entries: make(map[Key]sourceEntry)}
}

// Provide registers the fetch functions for one type key. Either function may
// be nil; requests through a nil slot fail with ErrUnsupported. Registering
// the same key twice replaces the previous functions.
func (b *SourceBuilder) Provide(key Key, get GetFunc, getMany GetManyFunc) *SourceBuilder {
	b.entries[key] = sourceEntry{get: get, getMany: getMany}
	return b
}

// Build produces the immutable source.
func (b *SourceBuilder) Build() Source {
	entries := make(map[Key]sourceEntry, len(b.entries))
	for k, e := range b.entries {
		entries[k] = e
	}
	keys := make([]Key, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	return &funcSource{entries: entries, provides: NewTypeSet(keys...)}
}

type funcSource struct {
	entries  map[Key]sourceEntry
	provides TypeSet
}

func (s *funcSource) Provides() TypeSet { return s.provides }

// entry resolves the dispatch slot for a key, falling back to the wildcard
// slot when one was registered.
func (s *funcSource) entry(key Key) (sourceEntry, bool) {
	if e, ok := s.entries[key]; ok {
		return e, true
	}
	e, ok := s.entries[Any]
	return e, ok
}

func (s *funcSource) Get(ctx context.Context, key Key, q Query, pctx *Context) (any, error) {
	entry, ok := s.entry(key)
	if !ok || entry.get == nil {
		return nil, UnsupportedType(key)
	}
	return entry.get(ctx, q, pctx)
}

func (s *funcSource) GetMany(ctx context.Context, key Key, q Query, pctx *Context) (iter.Seq2[any, error], error) {
	entry, ok := s.entry(key)
	if !ok || entry.getMany == nil {
		return nil, UnsupportedType(key)
	}
	return entry.getMany(ctx, q, pctx)
}

type sinkEntry struct {
	put     PutFunc
	putMany PutManyFunc
}

// SinkBuilder assembles a Sink from per-type store functions.
type SinkBuilder struct {
	entries map[Key]sinkEntry
}

// NewSinkBuilder creates an empty sink builder.
func NewSinkBuilder() *SinkBuilder {
	return &SinkBuilder{entries: make(map[Key]sinkEntry)}
}

// Accept registers the store functions for one type key. A nil putMany falls
// back to draining the sequence through put.
func (b *SinkBuilder) Accept(key Key, put PutFunc, putMany PutManyFunc) *SinkBuilder {
	b.entries[key] = sinkEntry{put: put, putMany: putMany}
	return b
}

// Build produces the immutable sink.
func (b *SinkBuilder) Build() Sink {
	entries := make(map[Key]sinkEntry, len(b.entries))
	for k, e := range b.entries {
		entries[k] = e
	}
	keys := make([]Key, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	return &funcSink{entries: entries, accepts: NewTypeSet(keys...)}
}

type funcSink struct {
	entries map[Key]sinkEntry
	accepts TypeSet
}

func (s *funcSink) Accepts() TypeSet { return s.accepts }

func (s *funcSink) entry(key Key) (sinkEntry, bool) {
	if e, ok := s.entries[key]; ok {
		return e, true
	}
	e, ok := s.entries[Any]
	return e, ok
}

func (s *funcSink) Put(ctx context.Context, key Key, item any, pctx *Context) error {
	entry, ok := s.entry(key)
	if !ok || entry.put == nil {
		return UnsupportedType(key)
	}
	return entry.put(ctx, item, pctx)
}

func (s *funcSink) PutMany(ctx context.Context, key Key, items iter.Seq[any], pctx *Context) error {
	entry, ok := s.entry(key)
	if !ok {
		return UnsupportedType(key)
	}
	if entry.putMany != nil {
		return entry.putMany(ctx, items, pctx)
	}
	if entry.put == nil {
		return UnsupportedType(key)
	}
	for item := range items {
		if err := entry.put(ctx, item, pctx); err != nil {
			return err
		}
	}
	return nil
}

type transformEntry struct {
	from Key
	fn   TransformFunc
}

// TransformerBuilder assembles a Transformer from per-pair conversion
// functions.
type TransformerBuilder struct {
	cost    int
	entries map[Key][]transformEntry // to-type → candidate conversions
}

// NewTransformerBuilder creates an empty transformer builder with the default
// cost of 1.
func NewTransformerBuilder() *TransformerBuilder {
	return &TransformerBuilder{cost: 1, entries: make(map[Key][]transformEntry)}
}

// WithCost sets the per-step cost. Values below 1 are clamped to 1.
func (b *TransformerBuilder) WithCost(cost int) *TransformerBuilder {
	b.cost = max(cost, 1)
	return b
}

// Register declares a (from, to) conversion. When several from-types share a
// target, Transform tries their functions in registration order and each
// function rejects foreign values with ErrUnsupported (see Typed).
func (b *TransformerBuilder) Register(from, to Key, fn TransformFunc) *TransformerBuilder {
	b.entries[to] = append(b.entries[to], transformEntry{from: from, fn: fn})
	return b
}

// Build produces the immutable transformer.
func (b *TransformerBuilder) Build() Transformer {
	entries := make(map[Key][]transformEntry, len(b.entries))
	transforms := make(map[Key][]Key)
	for to, candidates := range b.entries {
		entries[to] = slices.Clone(candidates)
		for _, c := range candidates {
			transforms[c.from] = append(transforms[c.from], to)
		}
	}
	declared := make(map[Key]TypeSet, len(transforms))
	for from, tos := range transforms {
		declared[from] = NewTypeSet(tos...)
	}
	return &funcTransformer{cost: b.cost, entries: entries, transforms: declared}
}

type funcTransformer struct {
	cost       int
	entries    map[Key][]transformEntry
	transforms map[Key]TypeSet
}

func (t *funcTransformer) Transforms() map[Key]TypeSet { return t.transforms }

func (t *funcTransformer) Cost() int { return t.cost }

func (t *funcTransformer) Transform(ctx context.Context, to Key, value any, pctx *Context) (any, error) {
	candidates, ok := t.entries[to]
	if !ok {
		return nil, UnsupportedConversion(to)
	}
	for _, c := range candidates {
		out, err := c.fn(ctx, value, pctx)
		if err == nil {
			return out, nil
		}
		if !IsUnsupported(err) {
			return nil, err
		}
	}
	return nil, UnsupportedConversion(to)
}

// IsUnsupported reports whether err wraps ErrUnsupported.
func IsUnsupported(err error) bool {
	return errors.Is(err, ErrUnsupported)
}
