package unique

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodesync/go-merge-engine/pkg/mergeerr"
	"github.com/nodesync/go-merge-engine/pkg/op"
	"github.com/nodesync/go-merge-engine/pkg/store"
)

func seedAccounts(t *testing.T, ms *store.MemStore, rows map[op.ObjRef]string) {
	require.NoError(t, ms.Begin())
	for ref, email := range rows {
		require.NoError(t, ms.Insert(context.Background(), &store.Object{
			Ref: ref, Fields: map[string]interface{}{"email": email},
		}))
	}
	require.NoError(t, ms.Commit())
}

func TestCheckerNoCollision(t *testing.T) {
	ms, err := store.NewMemStore()
	require.NoError(t, err)
	seedAccounts(t, ms, map[op.ObjRef]string{
		{TypeTag: "account", PK: 1}: "a@x.com",
		{TypeTag: "account", PK: 2}: "b@x.com",
	})

	require.NoError(t, ms.Begin())
	defer ms.Rollback()

	c := NewChecker(ms, []Constraint{{Name: "accounts_email", TypeTag: "account", Columns: []string{"email"}}}, nil)
	assert.NoError(t, c.Check(context.Background()))
}

func TestCheckerCrossOriginCollisionIsFatal(t *testing.T) {
	ms, err := store.NewMemStore()
	require.NoError(t, err)
	refA := op.ObjRef{TypeTag: "account", PK: 1}
	refB := op.ObjRef{TypeTag: "account", PK: 2}
	seedAccounts(t, ms, map[op.ObjRef]string{refA: "dup@x.com", refB: "dup@x.com"})

	require.NoError(t, ms.Begin())
	defer ms.Rollback()

	// Neither row was touched by this merge: a pre-existing, cross-origin
	// duplicate.
	c := NewChecker(ms, []Constraint{{Name: "accounts_email", TypeTag: "account", Columns: []string{"email"}}}, nil)
	err = c.Check(context.Background())
	require.Error(t, err)
	var collision *mergeerr.UniqueConstraintCollision
	require.ErrorAs(t, err, &collision)
	assert.True(t, collision.CrossOrigin)
	assert.ElementsMatch(t, []op.ObjRef{refA, refB}, collision.Refs)
}

func TestCheckerCompressionInducedCollisionSurfacesWhenUnresolved(t *testing.T) {
	ms, err := store.NewMemStore()
	require.NoError(t, err)
	refA := op.ObjRef{TypeTag: "account", PK: 1}
	refB := op.ObjRef{TypeTag: "account", PK: 2}
	seedAccounts(t, ms, map[op.ObjRef]string{refA: "dup@x.com", refB: "dup@x.com"})

	require.NoError(t, ms.Begin())
	defer ms.Rollback()

	// Both rows were written by this merge's own remote execution set.
	c := NewChecker(ms, []Constraint{{
		Name: "accounts_email", TypeTag: "account", Columns: []string{"email"}, AllowTempSwap: true,
	}}, []op.ObjRef{refA, refB})

	err = c.Check(context.Background())
	require.Error(t, err)
	var collision *mergeerr.UniqueConstraintCollision
	require.ErrorAs(t, err, &collision)
	assert.False(t, collision.CrossOrigin)
}

func TestCheckerIgnoresRowsMissingTheConstrainedColumn(t *testing.T) {
	ms, err := store.NewMemStore()
	require.NoError(t, err)
	require.NoError(t, ms.Begin())
	require.NoError(t, ms.Insert(context.Background(), &store.Object{Ref: op.ObjRef{TypeTag: "account", PK: 1}}))
	require.NoError(t, ms.Insert(context.Background(), &store.Object{Ref: op.ObjRef{TypeTag: "account", PK: 2}}))
	require.NoError(t, ms.Commit())

	require.NoError(t, ms.Begin())
	defer ms.Rollback()

	c := NewChecker(ms, []Constraint{{Name: "accounts_email", TypeTag: "account", Columns: []string{"email"}}}, nil)
	assert.NoError(t, c.Check(context.Background()))
}
