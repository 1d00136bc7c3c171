package domain

import "github.com/google/uuid"

// Well-known context value keys.
const (
	// ContextKeyExpiration carries a freshness hint (a time.Time or a
	// time.Duration) that caching sinks may honor when storing fan-out
	// results.
	ContextKeyExpiration = "expires"
)

// Context is the request-scoped key-value bag threaded through every source,
// sink and transformer call of one top-level pipeline operation. A fresh
// Context is created per operation and is never shared across concurrent
// operations, so it needs no synchronization.
type Context struct {
	// ID uniquely identifies the top-level operation, for log correlation.
	ID string

	// Pipeline is a back-reference to the owning pipeline. It is typed as
	// any to keep this package free of engine dependencies; callers that
	// need it assert to *pipeline.Pipeline.
	Pipeline any

	values map[string]any
}

// NewContext creates a context for one top-level pipeline operation.
func NewContext(pipeline any) *Context {
	return &Context{
		ID:       uuid.NewString(),
		Pipeline: pipeline,
		values:   make(map[string]any),
	}
}

// Value returns the request-scoped value stored under key.
func (c *Context) Value(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// SetValue stores a request-scoped value under key, replacing any previous
// value.
func (c *Context) SetValue(key string, value any) {
	c.values[key] = value
}
