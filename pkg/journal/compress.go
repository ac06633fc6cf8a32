package journal

import (
	"encoding/json"
	"fmt"

	"dario.cat/mergo"

	"github.com/nodesync/go-merge-engine/pkg/mergeerr"
	"github.com/nodesync/go-merge-engine/pkg/op"
)

// Dialect selects which compression rule set Compress applies to a group.
type Dialect int

const (
	// LocalDialect assumes no primary-key recycling, so a delete always
	// terminates a per-object sequence when one is present.
	LocalDialect Dialect = iota
	// RemoteDialect permits reinsertion after deletion, since remote
	// history is multi-origin.
	RemoteDialect
)

// WarnFunc receives non-fatal warnings the local dialect raises when a
// per-object sequence matches none of its four patterns.
type WarnFunc func(*mergeerr.UnmatchedLocalSequence)

// Compress groups ops by ObjRef and collapses each group to at most one
// operation, per dialect. The result is sorted by sequence number.
//
// For the local dialect, a group matching none of the four known patterns
// is reported via warn (if non-nil) and passed through unchanged rather
// than causing Compress to fail — the only place the engine tolerates a
// broken input invariant.
func Compress(ops []op.Op, dialect Dialect, warn WarnFunc) ([]op.Op, error) {
	groups := Group(ops)
	result := make([]op.Op, 0, len(groups))
	passedThrough := map[op.ObjRef]bool{}

	for _, g := range groups {
		switch dialect {
		case LocalDialect:
			folded, matched, err := compressLocal(g.Ops)
			if err != nil {
				return nil, err
			}
			if !matched {
				if warn != nil {
					warn(&mergeerr.UnmatchedLocalSequence{Ref: g.Ref, Ops: g.Ops})
				}
				result = append(result, g.Ops...)
				passedThrough[g.Ref] = true
				continue
			}
			if folded != nil {
				result = append(result, *folded)
			}
		case RemoteDialect:
			folded, err := compressRemote(g.Ops)
			if err != nil {
				return nil, err
			}
			if folded != nil {
				result = append(result, *folded)
			}
		default:
			return nil, fmt.Errorf("journal: unknown dialect %d", dialect)
		}
	}

	op.SortBySeq(result)
	checked := result
	if len(passedThrough) > 0 {
		checked = make([]op.Op, 0, len(result))
		for _, o := range result {
			if !passedThrough[o.Ref] {
				checked = append(checked, o)
			}
		}
	}
	if err := assertOnePerObject(checked); err != nil {
		return nil, err
	}
	return result, nil
}

// assertOnePerObject enforces spec.md §8 invariant (2): a compressed
// journal carries at most one operation per ObjRef. Compress builds result
// one ref-group at a time and appends at most one folded op per matched
// group (warned, passed-through groups are left out of the check), so
// this should never trip given a correctly-functioning compressor; it
// exists to surface a broken invariant as a typed error instead of letting
// a duplicate silently reach the conflict detector.
func assertOnePerObject(ops []op.Op) error {
	seen := make(map[op.ObjRef]bool, len(ops))
	for _, o := range ops {
		if seen[o.Ref] {
			return &mergeerr.InvariantViolation{
				Detail: fmt.Sprintf("compressed journal carries more than one operation for %s", o.Ref),
			}
		}
		seen[o.Ref] = true
	}
	return nil
}

// localState is the compression automaton's state, keyed on the run of
// operation kinds seen so far for one object (spec.md §9: a small finite
// state machine rather than regex matching).
type localState int

const (
	lsStart localState = iota
	lsInsert
	lsUpdate
	lsDone
	lsInvalid
)

// compressLocal runs the local-dialect automaton over one object's ordered
// operations. matched is false when the sequence matches none of the four
// local patterns, in which case the caller must warn and pass ops through.
func compressLocal(ops []op.Op) (folded *op.Op, matched bool, err error) {
	if len(ops) == 0 {
		return nil, true, nil
	}

	cur := lsStart
	seenDoneFrom := lsStart
	for _, o := range ops {
		next := lsInvalid
		switch cur {
		case lsStart:
			switch o.Kind {
			case op.KindInsert:
				next = lsInsert
			case op.KindUpdate:
				next = lsUpdate
			case op.KindDelete:
				next = lsDone
			}
		case lsInsert:
			switch o.Kind {
			case op.KindUpdate:
				next = lsInsert
			case op.KindDelete:
				next = lsDone
			}
		case lsUpdate:
			switch o.Kind {
			case op.KindUpdate:
				next = lsUpdate
			case op.KindDelete:
				next = lsDone
			}
		}
		if next == lsDone {
			seenDoneFrom = cur
		}
		cur = next
		if cur == lsInvalid {
			break
		}
	}

	ref := ops[0].Ref
	last := ops[len(ops)-1]

	switch cur {
	case lsInsert:
		payload, err := foldPayload(ops[0].Payload, tailPayloads(ops))
		if err != nil {
			return nil, false, err
		}
		o := op.Insert(ref, last.Seq, payload)
		return &o, true, nil
	case lsUpdate:
		payload, err := foldPayload(ops[0].Payload, tailPayloads(ops))
		if err != nil {
			return nil, false, err
		}
		o := op.Update(ref, last.Seq, payload)
		return &o, true, nil
	case lsDone:
		if seenDoneFrom == lsInsert {
			return nil, true, nil // "i u* d" -> ∅
		}
		o := op.Delete(ref, last.Seq) // "u* d" -> d (zero or more u's)
		return &o, true, nil
	default:
		return nil, false, nil
	}
}

// tailPayloads returns the payloads of every operation after the first,
// skipping a trailing delete (which carries none).
func tailPayloads(ops []op.Op) []op.Payload {
	out := make([]op.Payload, 0, len(ops)-1)
	for _, o := range ops[1:] {
		if o.Kind == op.KindDelete {
			continue
		}
		out = append(out, o.Payload)
	}
	return out
}

// compressRemote applies the remote dialect's total rule set, which
// depends only on the first and last kind in the sequence (spec.md §4.3:
// the middle run is irrelevant).
func compressRemote(ops []op.Op) (*op.Op, error) {
	if len(ops) == 0 {
		return nil, nil
	}
	ref := ops[0].Ref
	first := ops[0]
	last := ops[len(ops)-1]

	if len(ops) == 1 {
		single := first
		return &single, nil
	}

	switch {
	case first.Kind == op.KindInsert && last.Kind == op.KindDelete:
		return nil, nil
	case first.Kind == op.KindInsert:
		o := op.Insert(ref, last.Seq, last.Payload)
		return &o, nil
	case first.Kind == op.KindUpdate && last.Kind == op.KindDelete:
		o := op.Delete(ref, last.Seq)
		return &o, nil
	case first.Kind == op.KindUpdate:
		o := op.Update(ref, last.Seq, last.Payload)
		return &o, nil
	case first.Kind == op.KindDelete && last.Kind == op.KindDelete:
		o := op.Delete(ref, last.Seq)
		return &o, nil
	case first.Kind == op.KindDelete:
		o := op.Update(ref, last.Seq, last.Payload)
		return &o, nil
	default:
		return nil, fmt.Errorf("journal: unreachable remote compression case for %s", ref)
	}
}

// foldPayload merges a run of update payloads onto base, later values
// overriding earlier ones, producing the folded payload a compressed
// insert or update carries.
func foldPayload(base op.Payload, deltas []op.Payload) (op.Payload, error) {
	acc, err := payloadToMap(base)
	if err != nil {
		return nil, err
	}
	for _, d := range deltas {
		dm, err := payloadToMap(d)
		if err != nil {
			return nil, err
		}
		if err := mergo.Merge(&acc, dm, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("journal: folding payload: %w", err)
		}
	}
	return mapToPayload(acc)
}

func payloadToMap(p op.Payload) (map[string]interface{}, error) {
	if len(p) == 0 {
		return map[string]interface{}{}, nil
	}
	m := map[string]interface{}{}
	if err := json.Unmarshal(p, &m); err != nil {
		return nil, fmt.Errorf("journal: decoding payload: %w", err)
	}
	return m, nil
}

func mapToPayload(m map[string]interface{}) (op.Payload, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("journal: encoding payload: %w", err)
	}
	return op.Payload(b), nil
}
