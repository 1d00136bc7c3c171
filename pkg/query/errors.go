package query

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// ErrValidation is the class of all data-validation failures. Every
// validation error type below unwraps to it, so callers can match the whole
// class with errors.Is while still asserting the concrete type with
// errors.As.
var ErrValidation = errors.New("invalid query")

// MissingKeyError reports a required key absent from the query.
type MissingKeyError struct {
	Key string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("query is missing required key %q", e.Key)
}

func (e *MissingKeyError) Unwrap() error { return ErrValidation }

// WrongValueTypeError reports a key whose value is not of (and not coercible
// to) any allowed type.
type WrongValueTypeError struct {
	Key      string
	Expected []reflect.Type
	Actual   reflect.Type
}

func (e *WrongValueTypeError) Error() string {
	names := make([]string, len(e.Expected))
	for i, t := range e.Expected {
		names[i] = t.String()
	}
	return fmt.Sprintf("query key %q must be of type %s, got %s",
		e.Key, strings.Join(names, " or "), e.Actual)
}

func (e *WrongValueTypeError) Unwrap() error { return ErrValidation }

// BoundKeyExistenceError reports an all-or-none violation: some keys of an
// optional group are present while others are absent.
type BoundKeyExistenceError struct {
	Present []string
	Absent  []string
}

func (e *BoundKeyExistenceError) Error() string {
	return fmt.Sprintf("query keys %v are bound to %v: all or none must be present",
		e.Present, e.Absent)
}

func (e *BoundKeyExistenceError) Unwrap() error { return ErrValidation }

// StructureError reports programmer misuse of the validator builder, such as
// attaching two type constraints to one key. It is not a data-validation
// error and deliberately does not unwrap to ErrValidation.
type StructureError struct {
	Message string
}

func (e *StructureError) Error() string {
	return "query validator misuse: " + e.Message
}
