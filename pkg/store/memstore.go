package store

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	memdb "github.com/hashicorp/go-memdb"

	"github.com/nodesync/go-merge-engine/pkg/op"
)

const objectsTable = "objects"

// row is the memdb-stored representation of an Object: a flat struct with
// a composite string key, since memdb indexes on struct fields and the
// merge engine's tables are not known at compile time (every type_tag
// shares this one generic table).
type row struct {
	Key     string
	TypeTag string
	PK      int64
	Fields  map[string]interface{}
}

func rowKey(ref op.ObjRef) string {
	return ref.TypeTag + ":" + strconv.FormatInt(ref.PK, 10)
}

var objectsTableSchema = &memdb.TableSchema{
	Name: objectsTable,
	Indexes: map[string]*memdb.IndexSchema{
		"id": {
			Name:    "id",
			Unique:  true,
			Indexer: &memdb.StringFieldIndex{Field: "Key"},
		},
		"type": {
			Name:    "type",
			Unique:  false,
			Indexer: &memdb.StringFieldIndex{Field: "TypeTag"},
		},
	},
}

var errNoTxn = fmt.Errorf("store: no transaction in progress, call Begin first")

// MemStore is the local-DB object store and Replica: an in-memory,
// go-memdb-backed replica, generalizing the teacher's per-entity
// KongState tables to one generic table keyed by (type_tag, pk).
//
// A MemStore serializes merges: Begin takes an exclusive write lock held
// until Commit or Rollback, matching spec.md §5's "exclusive write lock on
// the replica (or an equivalent serializable transaction) for the
// duration of execution".
type MemStore struct {
	db *memdb.MemDB

	writeMu sync.Mutex
	txn     *memdb.Txn

	versionMu sync.RWMutex
	version   string
}

// NewMemStore creates an empty in-memory replica.
func NewMemStore() (*MemStore, error) {
	schema := &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			objectsTable: objectsTableSchema,
		},
	}
	db, err := memdb.NewMemDB(schema)
	if err != nil {
		return nil, fmt.Errorf("store: creating replica: %w", err)
	}
	return &MemStore{db: db}, nil
}

// Seed inserts obj directly, bypassing transactions — for building fixture
// state ahead of a merge, not for use by the engine itself.
func (m *MemStore) Seed(obj *Object) error {
	txn := m.db.Txn(true)
	defer txn.Abort()
	if err := txn.Insert(objectsTable, &row{
		Key: rowKey(obj.Ref), TypeTag: obj.Ref.TypeTag, PK: obj.Ref.PK, Fields: cloneFields(obj.Fields),
	}); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

// Fetch implements Store, reading outside of any open write transaction.
func (m *MemStore) Fetch(_ context.Context, ref op.ObjRef) (*Object, error) {
	txn := m.db.Txn(false)
	defer txn.Abort()
	raw, err := txn.First(objectsTable, "id", rowKey(ref))
	if err != nil {
		return nil, fmt.Errorf("store: fetch %s: %w", ref, err)
	}
	if raw == nil {
		return nil, ErrNotFound
	}
	r := raw.(*row)
	return &Object{Ref: ref, Fields: cloneFields(r.Fields)}, nil
}

// MaxPK implements Store.
func (m *MemStore) MaxPK(_ context.Context, typeTag string) (int64, error) {
	txn := m.db.Txn(false)
	defer txn.Abort()
	it, err := txn.Get(objectsTable, "type", typeTag)
	if err != nil {
		return 0, fmt.Errorf("store: max pk %s: %w", typeTag, err)
	}
	var max int64
	for raw := it.Next(); raw != nil; raw = it.Next() {
		r := raw.(*row)
		if r.PK > max {
			max = r.PK
		}
	}
	return max, nil
}

// Begin implements Replica, starting the single write transaction a merge
// executes its remote operation set under.
func (m *MemStore) Begin() error {
	m.writeMu.Lock()
	if m.txn != nil {
		m.writeMu.Unlock()
		return fmt.Errorf("store: transaction already in progress")
	}
	m.txn = m.db.Txn(true)
	return nil
}

// Insert implements Replica.
func (m *MemStore) Insert(_ context.Context, obj *Object) error {
	if m.txn == nil {
		return errNoTxn
	}
	existing, err := m.txn.First(objectsTable, "id", rowKey(obj.Ref))
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("store: insert %s: %w", obj.Ref, ErrAlreadyExists)
	}
	return m.txn.Insert(objectsTable, &row{
		Key: rowKey(obj.Ref), TypeTag: obj.Ref.TypeTag, PK: obj.Ref.PK, Fields: cloneFields(obj.Fields),
	})
}

// Update implements Replica, applying delta on top of the row's current
// (possibly already-staged-this-transaction) field values.
func (m *MemStore) Update(_ context.Context, ref op.ObjRef, delta map[string]interface{}) error {
	if m.txn == nil {
		return errNoTxn
	}
	raw, err := m.txn.First(objectsTable, "id", rowKey(ref))
	if err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("store: update %s: %w", ref, ErrNotFound)
	}
	r := raw.(*row)
	merged := cloneFields(r.Fields)
	for k, v := range delta {
		merged[k] = v
	}
	return m.txn.Insert(objectsTable, &row{Key: r.Key, TypeTag: r.TypeTag, PK: r.PK, Fields: merged})
}

// Delete implements Replica.
func (m *MemStore) Delete(_ context.Context, ref op.ObjRef) error {
	if m.txn == nil {
		return errNoTxn
	}
	raw, err := m.txn.First(objectsTable, "id", rowKey(ref))
	if err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("store: delete %s: %w", ref, ErrNotFound)
	}
	return m.txn.Delete(objectsTable, raw)
}

// Commit implements Replica.
func (m *MemStore) Commit() error {
	if m.txn == nil {
		return errNoTxn
	}
	m.txn.Commit()
	m.txn = nil
	m.writeMu.Unlock()
	return nil
}

// Rollback implements Replica.
func (m *MemStore) Rollback() error {
	if m.txn == nil {
		return errNoTxn
	}
	m.txn.Abort()
	m.txn = nil
	m.writeMu.Unlock()
	return nil
}

// AdvanceVersion implements Replica.
func (m *MemStore) AdvanceVersion(version string) error {
	m.versionMu.Lock()
	defer m.versionMu.Unlock()
	m.version = version
	return nil
}

// Version returns the replica's current local version identifier.
func (m *MemStore) Version() string {
	m.versionMu.RLock()
	defer m.versionMu.RUnlock()
	return m.version
}

// TxnFetch reads ref's current value within the open write transaction,
// seeing this merge's own staged-but-uncommitted writes. Used by the
// unique-constraint checker, which must evaluate constraints against the
// post-execution projection before Commit (spec.md §4.7).
func (m *MemStore) TxnFetch(ref op.ObjRef) (*Object, bool, error) {
	if m.txn == nil {
		return nil, false, errNoTxn
	}
	raw, err := m.txn.First(objectsTable, "id", rowKey(ref))
	if err != nil {
		return nil, false, err
	}
	if raw == nil {
		return nil, false, nil
	}
	r := raw.(*row)
	return &Object{Ref: ref, Fields: cloneFields(r.Fields)}, true, nil
}

// TxnScan returns every object of typeTag within the open write
// transaction, staged writes included.
func (m *MemStore) TxnScan(typeTag string) ([]*Object, error) {
	if m.txn == nil {
		return nil, errNoTxn
	}
	it, err := m.txn.Get(objectsTable, "type", typeTag)
	if err != nil {
		return nil, err
	}
	var out []*Object
	for raw := it.Next(); raw != nil; raw = it.Next() {
		r := raw.(*row)
		out = append(out, &Object{Ref: op.ObjRef{TypeTag: r.TypeTag, PK: r.PK}, Fields: cloneFields(r.Fields)})
	}
	return out, nil
}

// TxnSet overwrites ref's fields within the open write transaction — used
// by the unique-constraint checker's two-phase temporary-value rewrite.
func (m *MemStore) TxnSet(ref op.ObjRef, fields map[string]interface{}) error {
	if m.txn == nil {
		return errNoTxn
	}
	return m.txn.Insert(objectsTable, &row{
		Key: rowKey(ref), TypeTag: ref.TypeTag, PK: ref.PK, Fields: cloneFields(fields),
	})
}
