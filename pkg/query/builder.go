// Package query implements the declarative query validator: a small boolean
// tree over a request's key set with type checking, coercion and defaulting.
//
// Validators are composed with a fluent builder and evaluated against a
// domain.Query, which they may mutate in place:
//
//	v := query.Has("region").As(query.Type[string]()).
//		Also().CanHave("count").WithDefault(20).
//		MustBuild()
//
//	if err := v.Validate(q, pctx); err != nil { ... }
//
// Data failures (missing key, wrong type, all-or-none violations) unwrap to
// ErrValidation. Misusing the builder itself is a programmer error reported
// as a *StructureError from Build, never as a validation error.
package query

import (
	"reflect"

	"github.com/meshpipe/meshpipe/pkg/domain"
)

// Type returns the reflect.Type token for T, for use with As and AsAnyOf.
func Type[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Validator is an immutable, reusable validation tree.
type Validator struct {
	root *rootNode
}

// Validate checks the query, coercing and defaulting values in place. A nil
// error means the query satisfies every declaration.
func (v *Validator) Validate(q domain.Query, pctx *domain.Context) error {
	_, err := v.root.evaluate(q, pctx)
	return err
}

// Builder assembles a Validator. Methods latch the first structural misuse
// and become no-ops afterward; Build returns the latched error.
type Builder struct {
	root    *rootNode
	current *keyNode
	group   node // the And/Or group being extended, or the root
	err     error
}

// New creates an empty builder.
func New() *Builder {
	return &Builder{root: &rootNode{}}
}

// Has starts a new declaration for a required key.
func Has(key string) *Builder {
	return New().Has(key)
}

// CanHave starts a new declaration for an optional key.
func CanHave(key string) *Builder {
	return New().CanHave(key)
}

// Has starts a new top-level declaration for a required key. A previous
// declaration must be closed with Also first.
func (b *Builder) Has(key string) *Builder {
	return b.declare(key, true, "Has")
}

// CanHave starts a new top-level declaration for an optional key. A previous
// declaration must be closed with Also first.
func (b *Builder) CanHave(key string) *Builder {
	return b.declare(key, false, "CanHave")
}

func (b *Builder) declare(key string, required bool, method string) *Builder {
	if b.err != nil {
		return b
	}
	if b.current != nil {
		return b.fail("a key is already selected; use Also before " + method)
	}
	n := &keyNode{key: key, required: required}
	b.root.children = append(b.root.children, n)
	b.current = n
	b.group = b.root
	return b
}

// As attaches a type constraint to the selected key.
func (b *Builder) As(t reflect.Type) *Builder {
	return b.AsAnyOf(t)
}

// AsAnyOf attaches a type constraint allowing any of the given types.
func (b *Builder) AsAnyOf(types ...reflect.Type) *Builder {
	if b.err != nil {
		return b
	}
	if b.current == nil {
		return b.fail("no key is selected; use Has or CanHave before As")
	}
	if b.current.typ != nil {
		return b.fail("key " + b.current.key + " already has a type constraint")
	}
	if len(types) == 0 {
		return b.fail("As requires at least one type")
	}
	b.current.typ = &typeNode{key: b.current.key, types: types}
	return b
}

// And extends the current group with another key of the same required-ness,
// promoting a bare key into an AND group on first use. All keys of the group
// obey the all-or-none rule when optional.
func (b *Builder) And(key string) *Builder {
	if b.err != nil {
		return b
	}
	if b.current == nil {
		return b.fail("no key is selected; use Has or CanHave before And")
	}
	group, ok := b.group.(*andNode)
	if !ok {
		group = &andNode{children: []node{b.current}}
		b.replaceInGroup(b.current, group)
		b.group = group
	}
	n := &keyNode{key: key, required: b.current.required}
	group.children = append(group.children, n)
	b.current = n
	return b
}

// Or extends the current group with an alternative key of the same
// required-ness, promoting a bare key into an OR group on first use.
func (b *Builder) Or(key string) *Builder {
	if b.err != nil {
		return b
	}
	if b.current == nil {
		return b.fail("no key is selected; use Has or CanHave before Or")
	}
	group, ok := b.group.(*orNode)
	if !ok {
		group = &orNode{children: []node{b.current}}
		b.replaceInGroup(b.current, group)
		b.group = group
	}
	n := &keyNode{key: key, required: b.current.required}
	group.children = append(group.children, n)
	b.current = n
	return b
}

// Also closes the current declaration so a new Has or CanHave may start.
func (b *Builder) Also() *Builder {
	if b.err != nil {
		return b
	}
	if b.current == nil {
		return b.fail("no key is selected; use Has or CanHave before Also")
	}
	b.current = nil
	b.group = nil
	return b
}

// WithDefault appends a literal default to the selected optional key,
// implicitly constraining the key to the value's type. The literal is
// deep-copied into the query on every evaluation.
func (b *Builder) WithDefault(value any) *Builder {
	return b.withDefault(value, nil, reflect.TypeOf(value))
}

// WithDefaultFunc appends a computed default: the supplier runs with the
// query and context each time the key is absent. The explicit type hint is
// the implied type constraint.
func (b *Builder) WithDefaultFunc(supplier func(domain.Query, *domain.Context) any, supplies reflect.Type) *Builder {
	if supplier == nil {
		return b.fail("WithDefaultFunc requires a supplier")
	}
	return b.withDefault(nil, supplier, supplies)
}

func (b *Builder) withDefault(value any, supplier func(domain.Query, *domain.Context) any, t reflect.Type) *Builder {
	if b.err != nil {
		return b
	}
	if b.current == nil {
		return b.fail("no key is selected; use CanHave before WithDefault")
	}
	if b.current.typ != nil {
		return b.fail("key " + b.current.key + " already has a type constraint")
	}
	if b.current.required {
		return b.fail("key " + b.current.key + " is required and cannot take a default; use CanHave")
	}
	if t == nil {
		return b.fail("cannot infer a type for the default of key " + b.current.key)
	}
	b.current.typ = &typeNode{
		key:   b.current.key,
		types: []reflect.Type{t},
		def:   &defaultNode{key: b.current.key, value: value, supplier: supplier},
	}
	return b
}

// Build returns the validator, or the first structural misuse encountered.
func (b *Builder) Build() (*Validator, error) {
	if b.err != nil {
		return nil, b.err
	}
	return &Validator{root: b.root}, nil
}

// MustBuild is Build for statically known declarations; it panics on
// structural misuse.
func (b *Builder) MustBuild() *Validator {
	v, err := b.Build()
	if err != nil {
		panic(err)
	}
	return v
}

func (b *Builder) fail(msg string) *Builder {
	if b.err == nil {
		b.err = &StructureError{Message: msg}
	}
	return b
}

// replaceInGroup swaps the just-promoted key node for its new group within
// the container that holds it.
func (b *Builder) replaceInGroup(old node, replacement node) {
	replace := func(children []node) {
		for i, c := range children {
			if c == old {
				children[i] = replacement
				return
			}
		}
	}
	switch g := b.group.(type) {
	case *rootNode:
		replace(g.children)
	case *andNode:
		replace(g.children)
	case *orNode:
		replace(g.children)
	}
}
