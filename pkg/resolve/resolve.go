// Package resolve applies the merge engine's fixed conflict-resolution
// strategy (spec.md §4.5) to the conflict sets produced by pkg/conflict,
// producing a rewritten remote operation set and the local-journal entries
// to drop.
package resolve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/nodesync/go-merge-engine/pkg/conflict"
	"github.com/nodesync/go-merge-engine/pkg/mergeerr"
	"github.com/nodesync/go-merge-engine/pkg/op"
	"github.com/nodesync/go-merge-engine/pkg/store"
)

// Plan is the resolver's output: the final remote operation set to
// execute, the local object references whose entire original journal
// group should be dropped, and the bookkeeping a MergeReport surfaces to
// the caller.
//
// LocalPrune names references, not raw sequence numbers: a compressed
// local op can represent several original journal entries folded
// together, and reverting or confirming it must drop the whole group, not
// just the one sequence number the compressed op carries. The caller
// (pkg/merge) expands each ref into its original entries' sequence
// numbers via the same grouping the compressor used.
type Plan struct {
	RemoteExec []op.Op
	LocalPrune []op.ObjRef

	PKRemap               map[op.ObjRef]op.ObjRef
	RevertedRemoteDeletes []op.ObjRef
	RevertedLocalDeletes  []op.ObjRef
	DroppedRemote         []op.Op
}

// Resolve is a pure function of the conflict sets and the two object
// stores; it does not touch the replica.
func Resolve(
	ctx context.Context,
	remote []op.Op,
	sets *conflict.Sets,
	localDB, message store.Store,
	schema store.Schema,
) (*Plan, error) {
	working := make(map[op.ObjRef]op.Op, len(remote))
	for _, r := range remote {
		working[r.Ref] = r
	}

	plan := &Plan{PKRemap: map[op.ObjRef]op.ObjRef{}}
	localPrune := map[op.ObjRef]bool{}
	dropped := map[op.ObjRef]bool{}

	drop := func(ref op.ObjRef) {
		if o, ok := working[ref]; ok {
			plan.DroppedRemote = append(plan.DroppedRemote, o)
		}
		dropped[ref] = true
		delete(working, ref)
	}

	// Rule 1a — dependency: revert the remote delete of the parent by
	// reinserting it from the message snapshot (unless the replica still
	// holds it), and drop the delete.
	for _, pair := range sets.Dependency {
		parent := pair.Remote.Ref
		if dropped[parent] {
			continue
		}
		drop(parent)
		if _, err := localDB.Fetch(ctx, parent); errors.Is(err, store.ErrNotFound) {
			snapshot, err := fetchSnapshotOp(ctx, message, parent, pair.Remote.Seq)
			if err != nil {
				return nil, err
			}
			working[parent] = snapshot
		} else if err != nil {
			return nil, err
		}
		plan.RevertedRemoteDeletes = append(plan.RevertedRemoteDeletes, parent)
	}

	// Rule 1b — reversed dependency: revert the local delete of the
	// parent by removing it from the journal and emitting a compensating
	// insert into the remote execution set, built from the message
	// snapshot the child's FK evaluation already required to exist. No
	// insert is emitted when the replica still holds the parent.
	for _, pair := range sets.ReversedDependency {
		parent := pair.Local.Ref
		localPrune[parent] = true
		plan.RevertedLocalDeletes = append(plan.RevertedLocalDeletes, parent)
		if _, already := working[parent]; already {
			continue
		}
		if _, err := localDB.Fetch(ctx, parent); err == nil {
			continue
		} else if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		snapshot, err := fetchSnapshotOp(ctx, message, parent, pair.Remote.Seq)
		if err != nil {
			return nil, err
		}
		working[parent] = snapshot
	}

	// Rules 2, 3, 5 — direct conflicts on the same ObjRef.
	for _, pair := range sets.Direct {
		ref := pair.Remote.Ref
		if dropped[ref] {
			continue
		}
		switch {
		case pair.Remote.Kind == op.KindDelete && pair.Local.Kind == op.KindDelete:
			// Rule 5: delete-delete confirmed; drop both sides.
			drop(ref)
			localPrune[pair.Local.Ref] = true
		case pair.Remote.Kind == op.KindDelete:
			// Remote delete collides with a local non-delete: suppressed.
			drop(ref)
		case pair.Local.Kind == op.KindDelete:
			// Local delete collides with a remote non-delete: reverted.
			localPrune[pair.Local.Ref] = true
		default:
			// Rule 3: update-update, local wins, remote dropped.
			drop(ref)
		}
	}

	// Rule 4 — insert-insert: remap the remote insert's primary key and
	// propagate the rewrite through every other remote op's FK payload,
	// in sequence_no order so replays are deterministic.
	insertPairs := append([]conflict.Pair(nil), sets.Insert...)
	sort.SliceStable(insertPairs, func(i, j int) bool { return insertPairs[i].Remote.Seq < insertPairs[j].Remote.Seq })
	for _, pair := range insertPairs {
		oldRef := pair.Remote.Ref
		if dropped[oldRef] {
			continue
		}
		remapped, ok := working[oldRef]
		if !ok {
			continue
		}

		maxPK, err := localDB.MaxPK(ctx, oldRef.TypeTag)
		if err != nil {
			return nil, fmt.Errorf("resolve: max pk for %s: %w", oldRef.TypeTag, err)
		}
		newRef := op.ObjRef{TypeTag: oldRef.TypeTag, PK: maxPK + 1}
		plan.PKRemap[oldRef] = newRef

		delete(working, oldRef)
		remapped.Ref = newRef
		working[newRef] = remapped

		for ref, o := range working {
			if ref == newRef {
				continue
			}
			rewritten, changed, err := remapFKPayload(o, oldRef, newRef, schema)
			if err != nil {
				return nil, err
			}
			if changed {
				working[ref] = rewritten
			}
		}
	}

	execOps := make([]op.Op, 0, len(working))
	for _, o := range working {
		execOps = append(execOps, o)
	}
	op.SortBySeq(execOps)
	plan.RemoteExec = execOps

	for ref := range localPrune {
		plan.LocalPrune = append(plan.LocalPrune, ref)
	}
	sort.Slice(plan.LocalPrune, func(i, j int) bool {
		if plan.LocalPrune[i].TypeTag != plan.LocalPrune[j].TypeTag {
			return plan.LocalPrune[i].TypeTag < plan.LocalPrune[j].TypeTag
		}
		return plan.LocalPrune[i].PK < plan.LocalPrune[j].PK
	})

	return plan, nil
}

// fetchSnapshotOp builds a synthetic Insert op from message's snapshot of
// ref, assigning it the conflicting remote op's sequence number so it
// interleaves correctly with the rest of the remote execution set.
func fetchSnapshotOp(ctx context.Context, message store.Store, ref op.ObjRef, seq int64) (op.Op, error) {
	obj, err := message.Fetch(ctx, ref)
	if err != nil {
		return op.Op{}, &mergeerr.MessageIntegrity{
			Detail: fmt.Sprintf("reverting delete of %s requires its message snapshot: %v", ref, err),
		}
	}
	payload, err := json.Marshal(obj.Fields)
	if err != nil {
		return op.Op{}, fmt.Errorf("resolve: encoding snapshot of %s: %w", ref, err)
	}
	return op.Insert(ref, seq, payload), nil
}

// remapFKPayload rewrites o's FK column pointing at oldRef to point at
// newRef instead, if o's type has such a column and its current payload
// value matches oldRef's primary key.
func remapFKPayload(o op.Op, oldRef, newRef op.ObjRef, schema store.Schema) (op.Op, bool, error) {
	col, ok := schema.FKColumnTo(o.Ref.TypeTag, oldRef.TypeTag)
	if !ok || len(o.Payload) == 0 {
		return o, false, nil
	}
	result := gjson.GetBytes(o.Payload, col)
	if !result.Exists() || result.Int() != oldRef.PK {
		return o, false, nil
	}
	rewritten, err := sjson.SetBytes(o.Payload, col, newRef.PK)
	if err != nil {
		return o, false, fmt.Errorf("resolve: rewriting FK column %q on %s: %w", col, o.Ref, err)
	}
	o.Payload = rewritten
	return o, true, nil
}
