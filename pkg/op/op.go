// Package op defines the operation algebra the merge engine reconciles:
// object references, the three operation kinds, and the journals built
// from them.
package op

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Kind is the tag of an Op: insert, update, or delete.
type Kind uint8

const (
	// KindInsert marks an Op that creates an object.
	KindInsert Kind = iota
	// KindUpdate marks an Op that mutates an existing object.
	KindUpdate
	// KindDelete marks an Op that removes an object.
	KindDelete
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindInsert:
		return "insert"
	case KindUpdate:
		return "update"
	case KindDelete:
		return "delete"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// ObjRef is a (type_tag, primary_key) pair uniquely identifying a row.
// References are value-equal.
type ObjRef struct {
	TypeTag string
	PK      int64
}

// String renders the reference for logs and error messages.
func (r ObjRef) String() string {
	return fmt.Sprintf("%s(%d)", r.TypeTag, r.PK)
}

// Payload is the opaque, JSON-encoded body (for inserts, the full row; for
// updates, a field-level delta) carried by an Op. It is opaque to the merge
// engine except where the unique-constraint checker or the PK-remap step
// needs to read or rewrite a named field.
type Payload = json.RawMessage

// Op is a single journal entry: an insert, update, or delete of one object,
// with a monotonic sequence number giving total order within its journal.
//
// Equality of two Ops is by (Ref, Kind, Seq); Payload is not part of
// identity.
type Op struct {
	Ref     ObjRef
	Kind    Kind
	Seq     int64
	Payload Payload
}

// Insert constructs an insert Op.
func Insert(ref ObjRef, seq int64, payload Payload) Op {
	return Op{Ref: ref, Kind: KindInsert, Seq: seq, Payload: payload}
}

// Update constructs an update Op.
func Update(ref ObjRef, seq int64, delta Payload) Op {
	return Op{Ref: ref, Kind: KindUpdate, Seq: seq, Payload: delta}
}

// Delete constructs a delete Op. Deletes never carry a payload.
func Delete(ref ObjRef, seq int64) Op {
	return Op{Ref: ref, Kind: KindDelete, Seq: seq}
}

// Equal reports whether two Ops have the same identity: (Ref, Kind, Seq).
func (o Op) Equal(other Op) bool {
	return o.Ref == other.Ref && o.Kind == other.Kind && o.Seq == other.Seq
}

// SortBySeq sorts ops in place by ascending sequence number. Ties (which
// should not occur within a single journal) are broken by Kind so sorts
// remain deterministic: Insert < Update < Delete.
func SortBySeq(ops []Op) {
	sort.SliceStable(ops, func(i, j int) bool {
		if ops[i].Seq != ops[j].Seq {
			return ops[i].Seq < ops[j].Seq
		}
		return ops[i].Kind < ops[j].Kind
	})
}
