package conflict

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodesync/go-merge-engine/pkg/mergeerr"
	"github.com/nodesync/go-merge-engine/pkg/op"
	"github.com/nodesync/go-merge-engine/pkg/store"
)

func testSchema() store.Schema {
	return store.Schema{
		"child": {{Column: "parent_id", TargetType: "parent"}},
	}
}

func TestDetectDirectConflict(t *testing.T) {
	ref := op.ObjRef{TypeTag: "account", PK: 1}
	localDB, err := store.NewMemStore()
	require.NoError(t, err)
	message := store.NewMessageStore(nil)

	remote := []op.Op{op.Update(ref, 1, nil)}
	local := []op.Op{op.Update(ref, 2, nil)}

	sets, err := Detect(context.Background(), remote, local, localDB, message, testSchema())
	require.NoError(t, err)
	require.Len(t, sets.Direct, 1)
	assert.Empty(t, sets.Dependency)
	assert.Empty(t, sets.ReversedDependency)
	assert.Empty(t, sets.Insert)
}

func TestDetectInsertConflict(t *testing.T) {
	ref := op.ObjRef{TypeTag: "account", PK: 7}
	localDB, err := store.NewMemStore()
	require.NoError(t, err)
	message := store.NewMessageStore(nil)

	remote := []op.Op{op.Insert(ref, 1, nil)}
	local := []op.Op{op.Insert(ref, 2, nil)}

	sets, err := Detect(context.Background(), remote, local, localDB, message, testSchema())
	require.NoError(t, err)
	require.Len(t, sets.Insert, 1)
	assert.Empty(t, sets.Direct)
}

func TestDetectDependencyConflict(t *testing.T) {
	parent := op.ObjRef{TypeTag: "parent", PK: 1}
	child := op.ObjRef{TypeTag: "child", PK: 10}

	localDB, err := store.NewMemStore()
	require.NoError(t, err)
	message := store.NewMessageStore(nil)

	remote := []op.Op{op.Delete(parent, 1)}
	// A local insert's effective FK value comes from its own payload —
	// the row doesn't exist in the replica yet.
	local := []op.Op{op.Insert(child, 2, op.Payload(`{"parent_id":1}`))}

	sets, err := Detect(context.Background(), remote, local, localDB, message, testSchema())
	require.NoError(t, err)
	require.Len(t, sets.Dependency, 1)
	assert.Equal(t, parent, sets.Dependency[0].Remote.Ref)
	assert.Equal(t, child, sets.Dependency[0].Local.Ref)
}

func TestDetectDependencyFetchMissingIsFatal(t *testing.T) {
	parent := op.ObjRef{TypeTag: "parent", PK: 1}
	child := op.ObjRef{TypeTag: "child", PK: 10}

	localDB, err := store.NewMemStore()
	require.NoError(t, err)
	message := store.NewMessageStore(nil)

	remote := []op.Op{op.Delete(parent, 1)}
	// A local update implies the row already exists in the replica; a
	// miss there is fatal.
	local := []op.Op{op.Update(child, 2, op.Payload(`{"parent_id":1}`))}

	_, err = Detect(context.Background(), remote, local, localDB, message, testSchema())
	require.Error(t, err)
	var fm *mergeerr.FetchMissing
	require.ErrorAs(t, err, &fm)
	assert.Equal(t, mergeerr.SideLocalDB, fm.Side)
	assert.Equal(t, child, fm.Ref)
}

func TestDetectReversedDependencyConflict(t *testing.T) {
	parent := op.ObjRef{TypeTag: "parent", PK: 1}
	child := op.ObjRef{TypeTag: "child", PK: 10}

	localDB, err := store.NewMemStore()
	require.NoError(t, err)
	message := store.NewMessageStore(map[op.ObjRef]*store.Object{
		child: {Ref: child, Fields: map[string]interface{}{"parent_id": int64(1)}},
	})

	remote := []op.Op{op.Update(child, 1, nil)}
	local := []op.Op{op.Delete(parent, 2)}

	sets, err := Detect(context.Background(), remote, local, localDB, message, testSchema())
	require.NoError(t, err)
	require.Len(t, sets.ReversedDependency, 1)
	assert.Equal(t, child, sets.ReversedDependency[0].Remote.Ref)
	assert.Equal(t, parent, sets.ReversedDependency[0].Local.Ref)
}

func TestDetectReversedDependencyFetchMissingIsMessageIntegrity(t *testing.T) {
	parent := op.ObjRef{TypeTag: "parent", PK: 1}
	child := op.ObjRef{TypeTag: "child", PK: 10}

	localDB, err := store.NewMemStore()
	require.NoError(t, err)
	message := store.NewMessageStore(nil)

	remote := []op.Op{op.Update(child, 1, nil)}
	local := []op.Op{op.Delete(parent, 2)}

	_, err = Detect(context.Background(), remote, local, localDB, message, testSchema())
	require.Error(t, err)
	var mi *mergeerr.MessageIntegrity
	require.ErrorAs(t, err, &mi)
}

func TestDetectNoConflicts(t *testing.T) {
	localDB, err := store.NewMemStore()
	require.NoError(t, err)
	message := store.NewMessageStore(nil)

	remote := []op.Op{op.Insert(op.ObjRef{TypeTag: "account", PK: 1}, 1, nil)}
	local := []op.Op{op.Insert(op.ObjRef{TypeTag: "account", PK: 2}, 1, nil)}

	sets, err := Detect(context.Background(), remote, local, localDB, message, testSchema())
	require.NoError(t, err)
	assert.Empty(t, sets.Direct)
	assert.Empty(t, sets.Dependency)
	assert.Empty(t, sets.ReversedDependency)
	assert.Empty(t, sets.Insert)
}
