// Package merge is the merge engine's entry point: it wires the journal
// compressor, conflict detector, resolver, executor, and unique-constraint
// checker into the single `merge(local, remote) → Report | error`
// operation described by spec.md §2 and §6.
package merge

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/nodesync/go-merge-engine/pkg/conflict"
	"github.com/nodesync/go-merge-engine/pkg/cprint"
	"github.com/nodesync/go-merge-engine/pkg/exec"
	"github.com/nodesync/go-merge-engine/pkg/journal"
	"github.com/nodesync/go-merge-engine/pkg/mergeerr"
	"github.com/nodesync/go-merge-engine/pkg/op"
	"github.com/nodesync/go-merge-engine/pkg/resolve"
	"github.com/nodesync/go-merge-engine/pkg/store"
	"github.com/nodesync/go-merge-engine/pkg/unique"
)

// JournalPruner is the consumed journal interface: an immutable snapshot
// read at merge start, and a remove of the sequence numbers the resolver
// confirmed or reverted. No in-place edits (spec.md §6).
type JournalPruner interface {
	ReadSnapshot(ctx context.Context) ([]op.Op, error)
	Remove(ctx context.Context, sequenceNos []int64) error
}

// Message is the remote message a pull delivers: the server's operations,
// the object snapshots needed for FK evaluation, and the version the
// replica should advance to once this merge commits.
type Message struct {
	Ops           []op.Op
	Snapshots     map[op.ObjRef]*store.Object
	TargetVersion string
}

// Input bundles everything one merge invocation needs.
type Input struct {
	Journal JournalPruner
	Message Message
	Replica store.Replica
	// LocalDB is a read-only view of the same data Replica holds, used by
	// the detector and resolver for fetches that happen before Replica's
	// transaction opens.
	LocalDB     store.Store
	Schema      store.Schema
	Constraints []unique.Constraint

	// Warn receives non-fatal local-compression warnings. Defaults to
	// cprint.WarnPrintln when nil.
	Warn func(w *mergeerr.UnmatchedLocalSequence)
}

// Report is the MergeReport spec.md §6 describes: the bookkeeping
// surfaced to the caller on a successful merge.
type Report struct {
	CorrelationID         string
	PKRemap               map[op.ObjRef]op.ObjRef
	RevertedRemoteDeletes []op.ObjRef
	RevertedLocalDeletes  []op.ObjRef
	DroppedRemote         []op.Op
	WarningCount          int
	NewVersion            string
}

// Merge reconciles in.Message against in.Journal's current snapshot and
// applies the outcome to in.Replica. It is a single bounded computation:
// on any fatal error up to and including execution, the replica and
// journal are left exactly as they were before the call (spec.md §5
// atomicity). The journal prune runs after the replica has committed and
// is not part of that transaction: if in.Journal.Remove fails, the
// committed replica changes stand and the error is returned. Warnings
// raised along the way are non-fatal and do not affect these guarantees.
func Merge(ctx context.Context, in Input) (*Report, error) {
	correlationID := uuid.NewString()

	warn := in.Warn
	if warn == nil {
		warn = func(w *mergeerr.UnmatchedLocalSequence) {
			cprint.WarnPrintln(w.Error())
		}
	}

	localSnapshot, err := in.Journal.ReadSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("merge: reading local journal snapshot: %w", err)
	}

	warningCount := 0
	countingWarn := func(w *mergeerr.UnmatchedLocalSequence) {
		warningCount++
		warn(w)
	}

	compressedLocal, err := journal.Compress(localSnapshot, journal.LocalDialect, countingWarn)
	if err != nil {
		return nil, fmt.Errorf("merge: compressing local journal: %w", err)
	}
	compressedRemote, err := journal.Compress(in.Message.Ops, journal.RemoteDialect, nil)
	if err != nil {
		return nil, fmt.Errorf("merge: compressing remote message: %w", err)
	}

	message := store.NewMessageStore(in.Message.Snapshots)

	sets, err := conflict.Detect(ctx, compressedRemote, compressedLocal, in.LocalDB, message, in.Schema)
	if err != nil {
		return nil, err
	}

	plan, err := resolve.Resolve(ctx, compressedRemote, sets, in.LocalDB, message, in.Schema)
	if err != nil {
		return nil, err
	}

	touched := make([]op.ObjRef, 0, len(plan.RemoteExec))
	for _, o := range plan.RemoteExec {
		touched = append(touched, o.Ref)
	}

	var checker exec.Checker
	if txnStore, ok := in.Replica.(unique.TxnStore); ok && len(in.Constraints) > 0 {
		checker = unique.NewChecker(txnStore, in.Constraints, touched)
	}

	if err := exec.Execute(ctx, in.Replica, plan.RemoteExec, in.Message.TargetVersion, checker); err != nil {
		return nil, err
	}

	prunedSeqs := localPruneSeqs(localSnapshot, compressedLocal, plan.LocalPrune)
	if len(prunedSeqs) > 0 {
		if err := in.Journal.Remove(ctx, prunedSeqs); err != nil {
			return nil, fmt.Errorf("merge: pruning local journal after commit: %w", err)
		}
	}

	return &Report{
		CorrelationID:         correlationID,
		PKRemap:               plan.PKRemap,
		RevertedRemoteDeletes: plan.RevertedRemoteDeletes,
		RevertedLocalDeletes:  plan.RevertedLocalDeletes,
		DroppedRemote:         plan.DroppedRemote,
		WarningCount:          warningCount,
		NewVersion:            in.Message.TargetVersion,
	}, nil
}

// localPruneSeqs computes the full set of original local-journal sequence
// numbers to drop at commit: every entry belonging to a per-object group
// that either (a) compressed away to nothing (spec.md §8 scenario 6 — an
// insert undone by a later delete, with no surviving op to even consider
// for conflict), or (b) was explicitly confirmed or reverted by the
// resolver (plan.LocalPrune). Pruning by ref rather than by the compressed
// op's own sequence number matters because one compressed op can stand in
// for several folded original entries (e.g. update,update,delete folding
// to a single delete); dropping only the compressed op's seq would leave
// the folded-away updates stranded in the physical journal forever.
func localPruneSeqs(localSnapshot []op.Op, compressedLocal []op.Op, resolverPrune []op.ObjRef) []int64 {
	survived := make(map[op.ObjRef]bool, len(compressedLocal))
	for _, o := range compressedLocal {
		survived[o.Ref] = true
	}

	prune := make(map[op.ObjRef]bool, len(resolverPrune))
	for _, ref := range resolverPrune {
		prune[ref] = true
	}

	var seqs []int64
	for _, group := range journal.Group(localSnapshot) {
		if survived[group.Ref] && !prune[group.Ref] {
			continue
		}
		for _, o := range group.Ops {
			seqs = append(seqs, o.Seq)
		}
	}
	return seqs
}
