package domain

import (
	"slices"
	"strings"
)

// Key identifies a logical data shape in the pipeline. Keys are opaque,
// comparable tokens: two capabilities interoperate exactly when they declare
// the same Key. Equal-cost routing decisions are broken by the lexicographic
// order of keys, so key naming is part of a deployment's routing contract.
type Key string

// Any is the wildcard key. A capability that declares the wildcard handles
// every type directly and never participates in graph search.
const Any Key = "*"

// TypeSet is the set of type keys a capability declares. A TypeSet is either
// an explicit set of keys or the wildcard, which contains every key.
type TypeSet struct {
	wildcard bool
	keys     map[Key]struct{}
}

// NewTypeSet builds an explicit type set from the given keys. Passing Any as
// one of the keys yields the wildcard set.
func NewTypeSet(keys ...Key) TypeSet {
	set := TypeSet{keys: make(map[Key]struct{}, len(keys))}
	for _, k := range keys {
		if k == Any {
			return Wildcard()
		}
		set.keys[k] = struct{}{}
	}
	return set
}

// Wildcard returns the type set that contains every key.
func Wildcard() TypeSet {
	return TypeSet{wildcard: true}
}

// IsWildcard reports whether the set contains every key.
func (s TypeSet) IsWildcard() bool {
	return s.wildcard
}

// Contains reports whether k is in the set.
func (s TypeSet) Contains(k Key) bool {
	if s.wildcard {
		return true
	}
	_, ok := s.keys[k]
	return ok
}

// Len returns the number of explicit keys. The wildcard set has length zero.
func (s TypeSet) Len() int {
	return len(s.keys)
}

// Keys returns the explicit keys in lexicographic order. The wildcard set
// returns nil.
func (s TypeSet) Keys() []Key {
	if s.wildcard || len(s.keys) == 0 {
		return nil
	}
	keys := make([]Key, 0, len(s.keys))
	for k := range s.keys {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// String renders the set for logs and error messages.
func (s TypeSet) String() string {
	if s.wildcard {
		return string(Any)
	}
	keys := s.Keys()
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = string(k)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
