package store

import "github.com/nodesync/go-merge-engine/pkg/op"

// Object is a fully materialized row: its reference plus its column
// values, keyed by column name. A value may be any JSON-representable Go
// type; the merge engine only ever interprets the columns named in a
// caller-supplied Schema (for FK columns) or unique.Constraint (for
// constrained columns).
type Object struct {
	Ref    op.ObjRef
	Fields map[string]interface{}
}

// Clone returns a copy of o safe for independent mutation (used when a
// fetched object's column values are overlaid or rewritten).
func (o *Object) Clone() *Object {
	if o == nil {
		return nil
	}
	return &Object{Ref: o.Ref, Fields: cloneFields(o.Fields)}
}

func cloneFields(f map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}
