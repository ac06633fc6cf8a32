// Package conflict computes the four disjoint conflict sets a merge must
// resolve: direct, dependency, reversed-dependency, and insert (spec.md
// §4.4).
package conflict

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/nodesync/go-merge-engine/pkg/mergeerr"
	"github.com/nodesync/go-merge-engine/pkg/op"
	"github.com/nodesync/go-merge-engine/pkg/store"
)

// Pair is one (remote_op, local_op) conflict.
type Pair struct {
	Remote op.Op
	Local  op.Op
}

// Sets holds the four disjoint conflict categories produced by Detect.
type Sets struct {
	Direct             []Pair
	Dependency         []Pair
	ReversedDependency []Pair
	Insert             []Pair
}

// Detect partitions compressed local and compressed remote ops into the
// four conflict categories. localDB and message are the two object
// stores the dependency tests fetch against; schema supplies the FK
// relation.
//
// The dependency and reversed-dependency passes run concurrently since
// they fetch against independent stores and neither can affect the
// other's outcome.
func Detect(ctx context.Context, remote, local []op.Op, localDB, message store.Store, schema store.Schema) (*Sets, error) {
	byKind := func(ops []op.Op) (insert, update, del []op.Op) {
		for _, o := range ops {
			switch o.Kind {
			case op.KindInsert:
				insert = append(insert, o)
			case op.KindUpdate:
				update = append(update, o)
			case op.KindDelete:
				del = append(del, o)
			}
		}
		return
	}

	Im, Um, Dm := byKind(remote)
	Il, Ul, Dl := byKind(local)

	sets := &Sets{
		Direct: directConflicts(Um, Dm, Ul, Dl),
		Insert: insertConflicts(Im, Il),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		deps, err := dependencyConflicts(gctx, Dm, Il, Ul, localDB, schema)
		if err != nil {
			return err
		}
		sets.Dependency = deps
		return nil
	})
	g.Go(func() error {
		rdeps, err := reversedDependencyConflicts(gctx, Im, Um, Dl, message, schema)
		if err != nil {
			return err
		}
		sets.ReversedDependency = rdeps
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sets, nil
}

// directConflicts: remote update/delete vs local update/delete on the same
// ObjRef.
func directConflicts(Um, Dm, Ul, Dl []op.Op) []Pair {
	remoteSide := append(append([]op.Op(nil), Um...), Dm...)
	localSide := append(append([]op.Op(nil), Ul...), Dl...)

	localByRef := make(map[op.ObjRef]op.Op, len(localSide))
	for _, l := range localSide {
		localByRef[l.Ref] = l
	}

	var pairs []Pair
	for _, r := range remoteSide {
		if l, ok := localByRef[r.Ref]; ok {
			pairs = append(pairs, Pair{Remote: r, Local: l})
		}
	}
	return pairs
}

// insertConflicts: remote insert vs local insert on the same ObjRef.
func insertConflicts(Im, Il []op.Op) []Pair {
	localByRef := make(map[op.ObjRef]op.Op, len(Il))
	for _, l := range Il {
		localByRef[l.Ref] = l
	}

	var pairs []Pair
	for _, r := range Im {
		if l, ok := localByRef[r.Ref]; ok {
			pairs = append(pairs, Pair{Remote: r, Local: l})
		}
	}
	return pairs
}

// dependencyConflicts: a remote Delete(p) conflicts with a local
// Insert|Update(c) whose effective value has c FK p. A local insert's
// effective value is its own payload (the row doesn't exist in the
// replica yet); a local update's is its delta folded onto the replica's
// current row, and a fetch miss there is fatal — a compressed local
// update implies the row already exists.
func dependencyConflicts(ctx context.Context, Dm, Il, Ul []op.Op, localDB store.Store, schema store.Schema) ([]Pair, error) {
	children := append(append([]op.Op(nil), Il...), Ul...)
	if len(Dm) == 0 || len(children) == 0 {
		return nil, nil
	}

	var pairs []Pair
	for _, c := range children {
		obj, err := effectiveLocalObject(ctx, c, localDB)
		if err != nil {
			return nil, err
		}
		for _, r := range Dm {
			if schema.HasFK(obj, r.Ref) {
				pairs = append(pairs, Pair{Remote: r, Local: c})
			}
		}
	}
	return pairs, nil
}

// effectiveLocalObject returns the object value a local Insert or Update
// op implies, for FK evaluation purposes. An Insert's payload fully
// describes the row; an Update carries only a delta, folded onto the
// replica's current row.
func effectiveLocalObject(ctx context.Context, c op.Op, localDB store.Store) (*store.Object, error) {
	fields, err := payloadFields(c.Payload)
	if err != nil {
		return nil, fmt.Errorf("conflict: decoding payload for %s: %w", c.Ref, err)
	}

	switch c.Kind {
	case op.KindInsert:
		return &store.Object{Ref: c.Ref, Fields: fields}, nil
	case op.KindUpdate:
		base, err := localDB.Fetch(ctx, c.Ref)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, &mergeerr.FetchMissing{Side: mergeerr.SideLocalDB, Ref: c.Ref}
			}
			return nil, fmt.Errorf("conflict: fetching %s from local db: %w", c.Ref, err)
		}
		merged := base.Clone()
		for k, v := range fields {
			merged.Fields[k] = v
		}
		return merged, nil
	default:
		return nil, fmt.Errorf("conflict: unexpected local op kind %s for dependency check", c.Kind)
	}
}

func payloadFields(p op.Payload) (map[string]interface{}, error) {
	if len(p) == 0 {
		return map[string]interface{}{}, nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(p, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// reversedDependencyConflicts: a remote Insert|Update(c) conflicts with a
// local Delete(p) whose fetched (message-store) value has c FK p. A fetch
// miss on the message side is always a message-integrity violation — the
// server is required to have attached every object needed for FK
// evaluation.
func reversedDependencyConflicts(ctx context.Context, Im, Um, Dl []op.Op, message store.Store, schema store.Schema) ([]Pair, error) {
	remoteChildren := append(append([]op.Op(nil), Im...), Um...)
	if len(Dl) == 0 || len(remoteChildren) == 0 {
		return nil, nil
	}

	var pairs []Pair
	for _, r := range remoteChildren {
		obj, err := message.Fetch(ctx, r.Ref)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, &mergeerr.MessageIntegrity{
					Detail: fmt.Sprintf("object %s missing from message snapshots, needed for FK evaluation", r.Ref),
				}
			}
			return nil, fmt.Errorf("conflict: fetching %s from message: %w", r.Ref, err)
		}
		for _, l := range Dl {
			if schema.HasFK(obj, l.Ref) {
				pairs = append(pairs, Pair{Remote: r, Local: l})
			}
		}
	}
	return pairs, nil
}
