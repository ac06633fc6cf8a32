// Package exec applies a resolved remote operation set to the replica
// inside a single transactional scope (spec.md §4.6).
package exec

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nodesync/go-merge-engine/pkg/crud"
	"github.com/nodesync/go-merge-engine/pkg/mergeerr"
	"github.com/nodesync/go-merge-engine/pkg/op"
	"github.com/nodesync/go-merge-engine/pkg/store"
)

// Checker is the capability the unique-constraint checker (pkg/unique)
// implements: inspect (and, best-effort, rewrite) the transaction's staged
// state before it commits.
type Checker interface {
	Check(ctx context.Context) error
}

// Execute applies ops, in the order given, to replica inside Begin/Commit.
// On any error the transaction is rolled back and wrapped as
// mergeerr.ExecutionFailed; no local journal changes are committed by the
// caller in that case. version is the message's target version,
// advanced only on success. checker, if non-nil, runs after every op is
// staged but before Commit, and its error (already typed, e.g.
// mergeerr.UniqueConstraintCollision) is returned unwrapped.
func Execute(ctx context.Context, replica store.Replica, ops []op.Op, version string, checker Checker) error {
	if err := replica.Begin(); err != nil {
		return &mergeerr.ExecutionFailed{Err: err}
	}

	registry := &crud.Registry{}
	actions := &replicaActions{replica: replica}

	for _, o := range ops {
		kind := crud.Kind(o.Ref.TypeTag)
		if _, err := registry.Get(kind); err != nil {
			registry.MustRegister(kind, actions)
		}
		if err := apply(ctx, registry, kind, o); err != nil {
			_ = replica.Rollback()
			return &mergeerr.ExecutionFailed{Err: err}
		}
	}

	if checker != nil {
		if err := checker.Check(ctx); err != nil {
			_ = replica.Rollback()
			return err
		}
	}

	if err := replica.AdvanceVersion(version); err != nil {
		_ = replica.Rollback()
		return &mergeerr.ExecutionFailed{Err: err}
	}

	if err := replica.Commit(); err != nil {
		return &mergeerr.ExecutionFailed{Err: err}
	}
	return nil
}

// rowPayload is the Event.Obj/OldObj shape this package uses: the
// teacher's Entity carries its identifying fields inline on the struct
// itself (a Kong service has its own "id" field); the merge engine's rows
// are opaque maps, so ref travels alongside Fields instead.
type rowPayload struct {
	Ref    op.ObjRef
	Fields map[string]interface{}
}

// apply dispatches o through registry, the way the teacher's Syncer builds
// a crud.Event and drives it through processor.Do(ctx, event.Kind,
// event.Op, event) rather than branching on operation type inline. Every
// type_tag resolves to the same replicaActions here; a caller embedding
// this package for a type that needs bespoke handling (audit side effects,
// derived-column computation) can register its own crud.Actions per kind
// ahead of a custom executor.
func apply(ctx context.Context, registry *crud.Registry, kind crud.Kind, o op.Op) error {
	event := crud.Event{Kind: kind}

	switch o.Kind {
	case op.KindInsert:
		fields, err := decodePayload(o.Payload)
		if err != nil {
			return fmt.Errorf("exec: decoding insert payload for %s: %w", o.Ref, err)
		}
		event.Op = crud.Create
		event.Obj = rowPayload{Ref: o.Ref, Fields: fields}
	case op.KindUpdate:
		fields, err := decodePayload(o.Payload)
		if err != nil {
			return fmt.Errorf("exec: decoding update payload for %s: %w", o.Ref, err)
		}
		event.Op = crud.Update
		event.Obj = rowPayload{Ref: o.Ref, Fields: fields}
	case op.KindDelete:
		event.Op = crud.Delete
		event.Obj = rowPayload{Ref: o.Ref}
	default:
		return fmt.Errorf("exec: unknown op kind %s for %s", o.Kind, o.Ref)
	}

	_, err := registry.Do(ctx, kind, event.Op, event)
	return err
}

// replicaActions implements crud.Actions over a store.Replica: the default
// dispatch target every type_tag's crud.Kind registers to, unwrapping the
// crud.Event each registry call carries (via crud.EventFromArg, as the
// teacher's Actions implementations do) back into the Replica calls
// pkg/store exposes.
type replicaActions struct {
	replica store.Replica
}

func (a *replicaActions) Create(ctx context.Context, args ...crud.Arg) (crud.Arg, error) {
	p := crud.EventFromArg(args[0]).Obj.(rowPayload)
	return nil, a.replica.Insert(ctx, &store.Object{Ref: p.Ref, Fields: p.Fields})
}

func (a *replicaActions) Update(ctx context.Context, args ...crud.Arg) (crud.Arg, error) {
	p := crud.EventFromArg(args[0]).Obj.(rowPayload)
	return nil, a.replica.Update(ctx, p.Ref, p.Fields)
}

func (a *replicaActions) Delete(ctx context.Context, args ...crud.Arg) (crud.Arg, error) {
	p := crud.EventFromArg(args[0]).Obj.(rowPayload)
	return nil, a.replica.Delete(ctx, p.Ref)
}

func decodePayload(p op.Payload) (map[string]interface{}, error) {
	if len(p) == 0 {
		return map[string]interface{}{}, nil
	}
	m := map[string]interface{}{}
	if err := json.Unmarshal(p, &m); err != nil {
		return nil, err
	}
	return m, nil
}
