package domain

import (
	"errors"
	"fmt"
)

// Common pipeline errors. Engine code matches on these with errors.Is; the
// wrapped messages carry the offending type keys.
var (
	// ErrNotFound indicates a source or sink had no data for this specific
	// query. The orchestrator treats it as recoverable and falls through to
	// the next handler.
	ErrNotFound = errors.New("not found")

	// ErrUnsupported indicates a capability was handed a type it never
	// declared support for. Never retried.
	ErrUnsupported = errors.New("unsupported type")

	// ErrNoConversion indicates the routing engine found no conversion path
	// between the required types. Raised at handler-build time and cached as
	// a permanent no-route result for the pipeline's lifetime.
	ErrNoConversion = errors.New("no conversion path")
)

// UnsupportedType builds the error a source or sink returns when asked for a
// type outside its declared set.
func UnsupportedType(k Key) error {
	return fmt.Errorf("%w: %q", ErrUnsupported, k)
}

// UnsupportedConversion builds the error a transformer returns when invoked
// for a (from, to) pair it never registered.
func UnsupportedConversion(to Key) error {
	return fmt.Errorf("%w: no conversion to %q", ErrUnsupported, to)
}

// NotFound builds a not-found error naming the requested type.
func NotFound(k Key) error {
	return fmt.Errorf("%w: %q", ErrNotFound, k)
}
