package query

import (
	"errors"
	"reflect"
	"strings"

	"github.com/meshpipe/meshpipe/pkg/domain"
)

// A validation tree evaluates against a query map. Each node reports whether
// its keys are present; a node may legitimately report absence instead of
// failing only if it is falsifiable — an optional key, or a group composed
// entirely of falsifiable children. That flag drives the all-or-none
// semantics for grouped optional keys.
type node interface {
	// evaluate reports key presence and may mutate the query in place
	// (coercion, defaulting).
	evaluate(q domain.Query, pctx *domain.Context) (bool, error)
	falsifiable() bool
	describe() string
}

type keyNode struct {
	key      string
	required bool
	typ      *typeNode
}

func (n *keyNode) falsifiable() bool { return !n.required }

func (n *keyNode) describe() string { return n.key }

func (n *keyNode) evaluate(q domain.Query, pctx *domain.Context) (bool, error) {
	value, ok := q[n.key]
	if !ok {
		if n.required {
			return false, &MissingKeyError{Key: n.key}
		}
		if n.typ != nil && n.typ.def != nil {
			n.typ.def.apply(q, pctx)
			return true, nil
		}
		return false, nil
	}
	if n.typ != nil {
		if err := n.typ.check(q, value); err != nil {
			return false, err
		}
	}
	return true, nil
}

type typeNode struct {
	key   string
	types []reflect.Type
	def   *defaultNode
}

// check verifies the value is an instance of an allowed type, coercing named
// string kinds from a plain string input and normalizing the stored value to
// the coerced form.
func (n *typeNode) check(q domain.Query, value any) error {
	actual := reflect.TypeOf(value)
	for _, allowed := range n.types {
		if actual == allowed {
			return nil
		}
	}
	for _, allowed := range n.types {
		if coerced, ok := coerce(value, allowed); ok {
			q[n.key] = coerced
			return nil
		}
	}
	return &WrongValueTypeError{Key: n.key, Expected: n.types, Actual: actual}
}

// coerce converts a plain string into a named string type (an enumerated
// value type). Other kinds never coerce: numeric conversions can lose
// information and are the caller's responsibility.
func coerce(value any, target reflect.Type) (any, bool) {
	if target.Kind() != reflect.String {
		return nil, false
	}
	v := reflect.ValueOf(value)
	if v.Kind() != reflect.String || !v.Type().ConvertibleTo(target) {
		return nil, false
	}
	return v.Convert(target).Interface(), true
}

type defaultNode struct {
	key      string
	value    any
	supplier func(domain.Query, *domain.Context) any
}

// apply writes the default into the query. A literal default is deep-copied
// per evaluation so successive queries never alias one another's values.
func (n *defaultNode) apply(q domain.Query, pctx *domain.Context) {
	if n.supplier != nil {
		q[n.key] = n.supplier(q, pctx)
		return
	}
	q[n.key] = deepCopy(n.value)
}

func deepCopy(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = deepCopy(item)
		}
		return out
	case domain.Query:
		out := make(domain.Query, len(v))
		for k, item := range v {
			out[k] = deepCopy(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = deepCopy(item)
		}
		return out
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out
	case []int:
		out := make([]int, len(v))
		copy(out, v)
		return out
	default:
		return v
	}
}

type andNode struct {
	children []node
}

func (n *andNode) falsifiable() bool {
	for _, c := range n.children {
		if !c.falsifiable() {
			return false
		}
	}
	return true
}

func (n *andNode) describe() string {
	return "(" + joinDescriptions(n.children, " AND ") + ")"
}

// evaluate runs every child without short-circuiting so a type error on a
// later child is still surfaced. All children present succeeds; all children
// absent succeeds when the whole group is falsifiable; a mixed result is an
// all-or-none violation.
func (n *andNode) evaluate(q domain.Query, pctx *domain.Context) (bool, error) {
	var firstErr error
	var present, absent []string
	for _, c := range n.children {
		ok, err := c.evaluate(q, pctx)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if ok {
			present = append(present, c.describe())
		} else {
			absent = append(absent, c.describe())
		}
	}
	if firstErr != nil {
		return false, firstErr
	}
	if len(absent) == 0 {
		return true, nil
	}
	if len(present) == 0 && n.falsifiable() {
		return false, nil
	}
	return false, &BoundKeyExistenceError{Present: present, Absent: absent}
}

type orNode struct {
	children []node
}

func (n *orNode) falsifiable() bool {
	for _, c := range n.children {
		if !c.falsifiable() {
			return false
		}
	}
	return true
}

func (n *orNode) describe() string {
	return "(" + joinDescriptions(n.children, " OR ") + ")"
}

// evaluate runs every child without short-circuiting. At least one present
// child succeeds; an entirely absent falsifiable group succeeds reporting
// absence; otherwise the first missing-key or grouping error is re-raised.
// Type errors propagate immediately.
func (n *orNode) evaluate(q domain.Query, pctx *domain.Context) (bool, error) {
	var deferred error
	anyPresent := false
	for _, c := range n.children {
		ok, err := c.evaluate(q, pctx)
		if err != nil {
			var missing *MissingKeyError
			var bound *BoundKeyExistenceError
			if errors.As(err, &missing) || errors.As(err, &bound) {
				if deferred == nil {
					deferred = err
				}
				continue
			}
			return false, err
		}
		if ok {
			anyPresent = true
		}
	}
	if anyPresent {
		return true, nil
	}
	if deferred != nil {
		return false, deferred
	}
	return false, nil
}

// rootNode evaluates its declarations as independent requirements: every
// declaration must evaluate without error, but a falsifiable declaration
// reporting absence is fine. The all-or-none rule applies only to explicit
// And/Or groupings, never across top-level declarations.
type rootNode struct {
	children []node
}

func (n *rootNode) falsifiable() bool { return true }

func (n *rootNode) describe() string {
	return joinDescriptions(n.children, "; ")
}

func (n *rootNode) evaluate(q domain.Query, pctx *domain.Context) (bool, error) {
	for _, c := range n.children {
		if _, err := c.evaluate(q, pctx); err != nil {
			return false, err
		}
	}
	return true, nil
}

func joinDescriptions(children []node, sep string) string {
	parts := make([]string, len(children))
	for i, c := range children {
		parts[i] = c.describe()
	}
	return strings.Join(parts, sep)
}
