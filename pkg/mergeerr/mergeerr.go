// Package mergeerr holds the typed error taxonomy the merge engine surfaces
// across its boundary (spec.md §6/§7). Every fatal condition a caller might
// need to branch on is a distinct type here rather than an opaque wrapped
// error, mirroring how pkg/crud.ActionError carries structured context in
// the teacher reconciler.
package mergeerr

import (
	"fmt"

	"github.com/nodesync/go-merge-engine/pkg/op"
)

// Side names which object store a FetchMissing error came from.
type Side string

const (
	// SideLocalDB is the local replica (current database state).
	SideLocalDB Side = "local_db"
	// SideMessage is the remote message's attached object snapshots.
	SideMessage Side = "message"
)

// FetchMissing is returned when an object store lookup that the detector
// or resolver requires to evaluate a foreign-key relation comes back empty.
// A miss on the local side for a dependency conflict is always fatal
// (spec.md §4.4). A miss on the message side is also fatal, but surfaces
// as MessageIntegrity rather than FetchMissing.
type FetchMissing struct {
	Side Side
	Ref  op.ObjRef
}

func (e *FetchMissing) Error() string {
	return fmt.Sprintf("merge: object %s missing from %s store", e.Ref, e.Side)
}

// UnmatchedLocalSequence is a non-fatal warning (not an error returned from
// Merge) raised when a local per-object operation sequence doesn't match
// any of the four local-dialect compression patterns — probable external
// intervention or primary-key recycling. The compressor passes the
// original sequence through unchanged for that object and the merge
// continues.
type UnmatchedLocalSequence struct {
	Ref op.ObjRef
	Ops []op.Op
}

func (w *UnmatchedLocalSequence) Error() string {
	return fmt.Sprintf("merge: local operation sequence for %s did not match a known "+
		"compression pattern (probable external intervention or PK recycling); %d ops kept as-is",
		w.Ref, len(w.Ops))
}

// UniqueConstraintCollision is returned when the unique-constraint checker
// finds two objects whose final column values collide on a unique
// constraint and the collision cannot be resolved with a two-phase
// temporary-value rewrite (spec.md §4.7).
type UniqueConstraintCollision struct {
	Constraint string
	Refs       []op.ObjRef
	Values     []interface{}
	// CrossOrigin is true when the collision involves an object this merge
	// did not itself write — i.e. it originates from independent writes on
	// different nodes rather than from compression hiding an intermediate
	// swap state.
	CrossOrigin bool
}

func (e *UniqueConstraintCollision) Error() string {
	kind := "compression-induced"
	if e.CrossOrigin {
		kind = "cross-origin"
	}
	return fmt.Sprintf("merge: unique constraint %q violated (%s) by %v with values %v",
		e.Constraint, kind, e.Refs, e.Values)
}

// ExecutionFailed wraps an error returned by the replica while applying the
// resolved remote operation set. The transaction has already been rolled
// back and no local journal changes were committed.
type ExecutionFailed struct {
	Err error
}

func (e *ExecutionFailed) Error() string {
	return fmt.Sprintf("merge: execution failed, transaction rolled back: %v", e.Err)
}

func (e *ExecutionFailed) Unwrap() error {
	return e.Err
}

// MessageIntegrity is returned when the remote message itself violates the
// protocol contract with the merge engine — most commonly a reversed
// -dependency fetch miss against the message store, which the server was
// supposed to have populated.
type MessageIntegrity struct {
	Detail string
}

func (e *MessageIntegrity) Error() string {
	return fmt.Sprintf("merge: message integrity violation: %s", e.Detail)
}

// InvariantViolation signals a programmer error: an internal invariant the
// engine maintains (e.g. one-op-per-object after compression) did not hold.
// It should never occur given correct inputs and is not meant to be
// recovered from.
type InvariantViolation struct {
	Detail string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("merge: internal invariant violated: %s", e.Detail)
}
