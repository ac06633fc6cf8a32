package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodesync/go-merge-engine/pkg/op"
)

func TestMessageStoreFetch(t *testing.T) {
	ref := op.ObjRef{TypeTag: "account", PK: 1}
	ms := NewMessageStore(map[op.ObjRef]*Object{
		ref: {Ref: ref, Fields: map[string]interface{}{"name": "a"}},
	})

	got, err := ms.Fetch(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, "a", got.Fields["name"])

	_, err = ms.Fetch(context.Background(), op.ObjRef{TypeTag: "account", PK: 2})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMessageStoreFetchReturnsClone(t *testing.T) {
	ref := op.ObjRef{TypeTag: "account", PK: 1}
	original := &Object{Ref: ref, Fields: map[string]interface{}{"name": "a"}}
	ms := NewMessageStore(map[op.ObjRef]*Object{ref: original})

	got, err := ms.Fetch(context.Background(), ref)
	require.NoError(t, err)
	got.Fields["name"] = "mutated"

	assert.Equal(t, "a", original.Fields["name"], "mutating the fetched clone must not affect the stored snapshot")
}

func TestMessageStoreMaxPK(t *testing.T) {
	ms := NewMessageStore(map[op.ObjRef]*Object{
		{TypeTag: "account", PK: 1}: {},
		{TypeTag: "account", PK: 7}: {},
		{TypeTag: "order", PK: 50}: {},
	})

	max, err := ms.MaxPK(context.Background(), "account")
	require.NoError(t, err)
	assert.Equal(t, int64(7), max)

	max, err = ms.MaxPK(context.Background(), "widget")
	require.NoError(t, err)
	assert.Equal(t, int64(0), max)
}

func TestMessageStorePut(t *testing.T) {
	ms := NewMessageStore(nil)
	ref := op.ObjRef{TypeTag: "account", PK: 3}
	ms.Put(&Object{Ref: ref, Fields: map[string]interface{}{"name": "new"}})

	got, err := ms.Fetch(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, "new", got.Fields["name"])
}
