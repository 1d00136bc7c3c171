package domain

// Query is a mutable string-keyed request map. Validators may coerce or
// default values in place before a source executes the query.
type Query map[string]any

// Clone returns a shallow copy of the query. The pipeline clones the
// caller's query before handing it to a source so that source-side mutation
// cannot leak back to the caller or across handlers.
func (q Query) Clone() Query {
	if q == nil {
		return Query{}
	}
	out := make(Query, len(q))
	for k, v := range q {
		out[k] = v
	}
	return out
}
