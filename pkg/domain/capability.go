package domain

import (
	"context"
	"iter"
)

// Source produces values of its declared types for a query.
//
// Get and GetMany return an error wrapping ErrNotFound when no data matches
// the query, ErrUnsupported when asked for an undeclared type, and propagate
// any other failure unmodified. GetMany returns a lazy sequence; the sequence
// must tolerate the consumer stopping early, and per-item failures surface
// through the sequence's error position.
type Source interface {
	// Provides declares the types this source can produce, or the wildcard.
	Provides() TypeSet

	Get(ctx context.Context, key Key, q Query, pctx *Context) (any, error)

	GetMany(ctx context.Context, key Key, q Query, pctx *Context) (iter.Seq2[any, error], error)
}

// Sink accepts values of its declared types for storage.
//
// Put and PutMany must not fail for types the sink declared acceptance of;
// they return an error wrapping ErrUnsupported for undeclared types. PutMany
// receives a lazy sequence and decides itself whether to materialize it.
type Sink interface {
	// Accepts declares the types this sink can store, or the wildcard.
	Accepts() TypeSet

	Put(ctx context.Context, key Key, item any, pctx *Context) error

	PutMany(ctx context.Context, key Key, items iter.Seq[any], pctx *Context) error
}

// Transformer converts values between types at a declared cost.
//
// Transform is a pure function of (to, value); it returns an error wrapping
// ErrUnsupported when invoked for a pair it never declared.
type Transformer interface {
	// Transforms maps each from-type to the set of types it can become.
	Transforms() map[Key]TypeSet

	// Cost is the positive weight of one conversion step. Cheaper
	// transformers win when several offer the same (from, to) pair.
	Cost() int

	Transform(ctx context.Context, to Key, value any, pctx *Context) (any, error)
}
