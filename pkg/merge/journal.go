package merge

import (
	"context"
	"sync"

	"github.com/nodesync/go-merge-engine/pkg/op"
)

// MemJournal is an in-memory JournalPruner: a mutex-guarded slice of
// pending local operations. It is a reference implementation for tests
// and simple embedders; a real deployment's journal is durable (backed by
// the replica's own storage) and is expected to implement JournalPruner
// itself.
type MemJournal struct {
	mu  sync.Mutex
	ops []op.Op
}

// NewMemJournal builds a journal seeded with ops.
func NewMemJournal(ops []op.Op) *MemJournal {
	return &MemJournal{ops: append([]op.Op(nil), ops...)}
}

// ReadSnapshot implements JournalPruner, returning a defensive copy so the
// caller's subsequent mutation of its own slice can't alter the snapshot
// a merge is working from.
func (j *MemJournal) ReadSnapshot(_ context.Context) ([]op.Op, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]op.Op(nil), j.ops...), nil
}

// Remove implements JournalPruner, dropping every op whose sequence number
// appears in sequenceNos.
func (j *MemJournal) Remove(_ context.Context, sequenceNos []int64) error {
	if len(sequenceNos) == 0 {
		return nil
	}
	drop := make(map[int64]bool, len(sequenceNos))
	for _, seq := range sequenceNos {
		drop[seq] = true
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	kept := j.ops[:0]
	for _, o := range j.ops {
		if !drop[o.Seq] {
			kept = append(kept, o)
		}
	}
	j.ops = kept
	return nil
}

// Append adds ops to the journal — used by tests and by an embedder's
// mutation-tracking write path, not by the merge engine itself.
func (j *MemJournal) Append(ops ...op.Op) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.ops = append(j.ops, ops...)
}
