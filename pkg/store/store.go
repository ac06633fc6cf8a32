package store

import (
	"context"
	"errors"

	"github.com/nodesync/go-merge-engine/pkg/op"
)

// ErrNotFound is returned by Store.Fetch when no object exists for a
// reference. Whether a miss is fatal is a decision the caller makes (the
// detector and resolver turn it into mergeerr.FetchMissing or
// mergeerr.MessageIntegrity depending on which store and which conflict
// kind it came from) — the store itself stays opinion-free.
var ErrNotFound = errors.New("store: object not found")

// ErrAlreadyExists is returned by Replica.Insert when a row already
// occupies the target reference.
var ErrAlreadyExists = errors.New("store: object already exists")

// Store is the single capability set shared by the local-DB object store
// and the message object store, so the conflict detector never has to
// branch on which kind of store it is talking to (spec.md §4.2, §9).
type Store interface {
	// Fetch returns the object for ref, or ErrNotFound.
	Fetch(ctx context.Context, ref op.ObjRef) (*Object, error)
	// MaxPK returns the highest primary key currently assigned within
	// typeTag, or 0 if the type has no rows.
	MaxPK(ctx context.Context, typeTag string) (int64, error)
}

// Replica is the consumed interface (spec.md §6) the executor applies the
// resolved remote operation set against, inside a single transactional
// scope.
type Replica interface {
	Begin() error
	Insert(ctx context.Context, obj *Object) error
	Update(ctx context.Context, ref op.ObjRef, delta map[string]interface{}) error
	Delete(ctx context.Context, ref op.ObjRef) error
	Commit() error
	Rollback() error
	AdvanceVersion(version string) error
}
