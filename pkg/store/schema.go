package store

import (
	"encoding/json"
	"math"

	"github.com/nodesync/go-merge-engine/pkg/op"
)

// FKColumn describes one foreign-key column of a type: Column is the field
// name in Object.Fields carrying the referenced primary key, and
// TargetType is the type_tag of the table it points into.
type FKColumn struct {
	Column     string
	TargetType string
}

// Schema maps a type_tag to the foreign-key columns its objects carry.
// Schema introspection is explicitly out of scope for the merge engine
// (spec.md §4.2/§9); the embedder supplies it.
type Schema map[string][]FKColumn

// Neighbors returns the ObjRefs that obj's FK columns point to. Missing or
// non-integer FK values are skipped rather than erroring — a column that
// isn't set simply has no edge.
func (s Schema) Neighbors(obj *Object) []op.ObjRef {
	if obj == nil {
		return nil
	}
	cols := s[obj.Ref.TypeTag]
	if len(cols) == 0 {
		return nil
	}
	refs := make([]op.ObjRef, 0, len(cols))
	for _, col := range cols {
		v, ok := obj.Fields[col.Column]
		if !ok || v == nil {
			continue
		}
		pk, ok := toInt64(v)
		if !ok {
			continue
		}
		refs = append(refs, op.ObjRef{TypeTag: col.TargetType, PK: pk})
	}
	return refs
}

// HasFK reports whether obj FK target holds, i.e. one of obj's FK columns
// points at target (spec.md §3's `FK` relation).
func (s Schema) HasFK(obj *Object, target op.ObjRef) bool {
	for _, ref := range s.Neighbors(obj) {
		if ref == target {
			return true
		}
	}
	return false
}

// FKColumnTo returns the column name of obj's type that points at
// targetType, if any. Used by the PK-remap step to know which field to
// rewrite when a remote op's FK target gets a new primary key.
func (s Schema) FKColumnTo(typeTag, targetType string) (string, bool) {
	for _, col := range s[typeTag] {
		if col.TargetType == targetType {
			return col.Column, true
		}
	}
	return "", false
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}
