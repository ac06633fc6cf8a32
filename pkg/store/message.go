package store

import (
	"context"

	"github.com/nodesync/go-merge-engine/pkg/op"
)

// MessageStore is the object store backed by a remote message's attached
// object snapshots. The server is required to populate it with every
// object that could be needed for FK evaluation of conflicts; a miss here
// is always a protocol violation from the merge engine's point of view
// (spec.md §4.2).
type MessageStore struct {
	snapshots map[op.ObjRef]*Object
}

// NewMessageStore builds a MessageStore from a remote message's snapshots.
func NewMessageStore(snapshots map[op.ObjRef]*Object) *MessageStore {
	if snapshots == nil {
		snapshots = map[op.ObjRef]*Object{}
	}
	return &MessageStore{snapshots: snapshots}
}

// Fetch implements Store.
func (m *MessageStore) Fetch(_ context.Context, ref op.ObjRef) (*Object, error) {
	obj, ok := m.snapshots[ref]
	if !ok {
		return nil, ErrNotFound
	}
	return obj.Clone(), nil
}

// MaxPK implements Store. The resolver's PK-remap rule (spec.md §4.5 rule
// 4) always consults the local replica's MaxPK, never the message's; this
// exists so MessageStore satisfies Store in full for tests and tooling
// that only have a message to work with.
func (m *MessageStore) MaxPK(_ context.Context, typeTag string) (int64, error) {
	var max int64
	for ref := range m.snapshots {
		if ref.TypeTag == typeTag && ref.PK > max {
			max = ref.PK
		}
	}
	return max, nil
}

// Put adds or overwrites a snapshot. The resolver only ever reads a
// message's snapshots (via Fetch, staging what it needs into its own
// working set); Put exists for callers that build or extend a
// MessageStore directly — tests, and tooling that assembles a message
// from a live fetch rather than deserializing one whole.
func (m *MessageStore) Put(obj *Object) {
	m.snapshots[obj.Ref] = obj
}
