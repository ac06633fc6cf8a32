package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodesync/go-merge-engine/pkg/op"
)

func TestMemStoreFetchNotFound(t *testing.T) {
	ms, err := NewMemStore()
	require.NoError(t, err)

	_, err = ms.Fetch(context.Background(), op.ObjRef{TypeTag: "account", PK: 1})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemStoreInsertFetchRoundTrip(t *testing.T) {
	ms, err := NewMemStore()
	require.NoError(t, err)

	ref := op.ObjRef{TypeTag: "account", PK: 1}
	require.NoError(t, ms.Begin())
	require.NoError(t, ms.Insert(context.Background(), &Object{Ref: ref, Fields: map[string]interface{}{"name": "a"}}))
	require.NoError(t, ms.Commit())

	got, err := ms.Fetch(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, "a", got.Fields["name"])
}

func TestMemStoreInsertDuplicateFails(t *testing.T) {
	ms, err := NewMemStore()
	require.NoError(t, err)

	ref := op.ObjRef{TypeTag: "account", PK: 1}
	require.NoError(t, ms.Begin())
	require.NoError(t, ms.Insert(context.Background(), &Object{Ref: ref}))
	err = ms.Insert(context.Background(), &Object{Ref: ref})
	assert.ErrorIs(t, err, ErrAlreadyExists)
	require.NoError(t, ms.Rollback())
}

func TestMemStoreUpdateMergesOverExisting(t *testing.T) {
	ms, err := NewMemStore()
	require.NoError(t, err)

	ref := op.ObjRef{TypeTag: "account", PK: 1}
	require.NoError(t, ms.Begin())
	require.NoError(t, ms.Insert(context.Background(), &Object{Ref: ref, Fields: map[string]interface{}{
		"name": "a", "balance": int64(10),
	}}))
	require.NoError(t, ms.Update(context.Background(), ref, map[string]interface{}{"balance": int64(20)}))
	require.NoError(t, ms.Commit())

	got, err := ms.Fetch(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, "a", got.Fields["name"])
	assert.Equal(t, int64(20), got.Fields["balance"])
}

func TestMemStoreUpdateMissingFails(t *testing.T) {
	ms, err := NewMemStore()
	require.NoError(t, err)

	require.NoError(t, ms.Begin())
	err = ms.Update(context.Background(), op.ObjRef{TypeTag: "account", PK: 1}, nil)
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, ms.Rollback())
}

func TestMemStoreDelete(t *testing.T) {
	ms, err := NewMemStore()
	require.NoError(t, err)

	ref := op.ObjRef{TypeTag: "account", PK: 1}
	require.NoError(t, ms.Begin())
	require.NoError(t, ms.Insert(context.Background(), &Object{Ref: ref}))
	require.NoError(t, ms.Commit())

	require.NoError(t, ms.Begin())
	require.NoError(t, ms.Delete(context.Background(), ref))
	require.NoError(t, ms.Commit())

	_, err = ms.Fetch(context.Background(), ref)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemStoreRollbackDiscardsWrites(t *testing.T) {
	ms, err := NewMemStore()
	require.NoError(t, err)

	ref := op.ObjRef{TypeTag: "account", PK: 1}
	require.NoError(t, ms.Begin())
	require.NoError(t, ms.Insert(context.Background(), &Object{Ref: ref}))
	require.NoError(t, ms.Rollback())

	_, err = ms.Fetch(context.Background(), ref)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemStoreBeginSerializesWriters(t *testing.T) {
	ms, err := NewMemStore()
	require.NoError(t, err)

	require.NoError(t, ms.Begin())
	err = ms.Begin()
	assert.Error(t, err, "a second Begin before Commit/Rollback must fail")
	require.NoError(t, ms.Rollback())

	require.NoError(t, ms.Begin(), "Begin must succeed again once the first transaction ends")
	require.NoError(t, ms.Rollback())
}

func TestMemStoreOperationsWithoutBeginFail(t *testing.T) {
	ms, err := NewMemStore()
	require.NoError(t, err)

	ctx := context.Background()
	ref := op.ObjRef{TypeTag: "account", PK: 1}
	assert.ErrorIs(t, ms.Insert(ctx, &Object{Ref: ref}), errNoTxn)
	assert.ErrorIs(t, ms.Update(ctx, ref, nil), errNoTxn)
	assert.ErrorIs(t, ms.Delete(ctx, ref), errNoTxn)
	assert.ErrorIs(t, ms.Commit(), errNoTxn)
	assert.ErrorIs(t, ms.Rollback(), errNoTxn)
}

func TestMemStoreMaxPK(t *testing.T) {
	ms, err := NewMemStore()
	require.NoError(t, err)

	require.NoError(t, ms.Begin())
	require.NoError(t, ms.Insert(context.Background(), &Object{Ref: op.ObjRef{TypeTag: "account", PK: 1}}))
	require.NoError(t, ms.Insert(context.Background(), &Object{Ref: op.ObjRef{TypeTag: "account", PK: 5}}))
	require.NoError(t, ms.Insert(context.Background(), &Object{Ref: op.ObjRef{TypeTag: "order", PK: 99}}))
	require.NoError(t, ms.Commit())

	max, err := ms.MaxPK(context.Background(), "account")
	require.NoError(t, err)
	assert.Equal(t, int64(5), max)

	max, err = ms.MaxPK(context.Background(), "widget")
	require.NoError(t, err)
	assert.Equal(t, int64(0), max)
}

func TestMemStoreAdvanceVersion(t *testing.T) {
	ms, err := NewMemStore()
	require.NoError(t, err)

	assert.Equal(t, "", ms.Version())
	require.NoError(t, ms.AdvanceVersion("v2"))
	assert.Equal(t, "v2", ms.Version())
}

func TestMemStoreTxnFetchSeesUncommittedWrites(t *testing.T) {
	ms, err := NewMemStore()
	require.NoError(t, err)

	ref := op.ObjRef{TypeTag: "account", PK: 1}
	require.NoError(t, ms.Begin())
	require.NoError(t, ms.Insert(context.Background(), &Object{Ref: ref, Fields: map[string]interface{}{"name": "a"}}))

	obj, ok, err := ms.TxnFetch(ref)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a", obj.Fields["name"])

	require.NoError(t, ms.Rollback())

	_, ok, err = ms.TxnFetch(ref)
	assert.ErrorIs(t, err, errNoTxn)
	assert.False(t, ok)
}

func TestMemStoreTxnScanAndSet(t *testing.T) {
	ms, err := NewMemStore()
	require.NoError(t, err)

	require.NoError(t, ms.Begin())
	require.NoError(t, ms.Insert(context.Background(), &Object{
		Ref: op.ObjRef{TypeTag: "account", PK: 1}, Fields: map[string]interface{}{"email": "a@x.com"},
	}))
	require.NoError(t, ms.Insert(context.Background(), &Object{
		Ref: op.ObjRef{TypeTag: "account", PK: 2}, Fields: map[string]interface{}{"email": "b@x.com"},
	}))

	rows, err := ms.TxnScan("account")
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	require.NoError(t, ms.TxnSet(op.ObjRef{TypeTag: "account", PK: 2}, map[string]interface{}{"email": "__tmp__"}))
	obj, ok, err := ms.TxnFetch(op.ObjRef{TypeTag: "account", PK: 2})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "__tmp__", obj.Fields["email"])

	require.NoError(t, ms.Commit())
}
