package crud

import (
	"context"
	"fmt"
	"sync"
)

// Kind identifies the entity type (type_tag) an Actions implementation
// handles, e.g. "account", "order_line".
type Kind string

// Registry maps a Kind to the Actions implementation responsible for
// executing CRUD operations against that entity type's backing store.
//
// The zero value is ready to use.
type Registry struct {
	mu      sync.RWMutex
	actions map[Kind]Actions
}

// Register associates kind with a, failing if kind is empty, a is nil, or
// kind is already registered.
func (r *Registry) Register(kind Kind, a Actions) error {
	if kind == "" {
		return fmt.Errorf("crud: kind must not be empty")
	}
	if a == nil {
		return fmt.Errorf("crud: actions for kind %q must not be nil", kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.actions == nil {
		r.actions = map[Kind]Actions{}
	}
	if _, ok := r.actions[kind]; ok {
		return fmt.Errorf("crud: kind %q already registered", kind)
	}
	r.actions[kind] = a
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(kind Kind, a Actions) {
	if err := r.Register(kind, a); err != nil {
		panic(err)
	}
}

// Get returns the Actions registered for kind.
func (r *Registry) Get(kind Kind) (Actions, error) {
	if kind == "" {
		return nil, fmt.Errorf("crud: kind must not be empty")
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.actions[kind]
	if !ok {
		return nil, fmt.Errorf("crud: no actions registered for kind %q", kind)
	}
	return a, nil
}

// Create dispatches to the Create method of the Actions registered for kind.
func (r *Registry) Create(ctx context.Context, kind Kind, args ...Arg) (Arg, error) {
	a, err := r.Get(kind)
	if err != nil {
		return nil, err
	}
	return a.Create(ctx, args...)
}

// Update dispatches to the Update method of the Actions registered for kind.
func (r *Registry) Update(ctx context.Context, kind Kind, args ...Arg) (Arg, error) {
	a, err := r.Get(kind)
	if err != nil {
		return nil, err
	}
	return a.Update(ctx, args...)
}

// Delete dispatches to the Delete method of the Actions registered for kind.
func (r *Registry) Delete(ctx context.Context, kind Kind, args ...Arg) (Arg, error) {
	a, err := r.Get(kind)
	if err != nil {
		return nil, err
	}
	return a.Delete(ctx, args...)
}

// Do dispatches args to the method of the Actions registered for kind that
// corresponds to op.
func (r *Registry) Do(ctx context.Context, kind Kind, op Op, args ...Arg) (Arg, error) {
	switch op {
	case Create:
		return r.Create(ctx, kind, args...)
	case Update:
		return r.Update(ctx, kind, args...)
	case Delete:
		return r.Delete(ctx, kind, args...)
	default:
		return nil, fmt.Errorf("crud: unknown operation %q", op.String())
	}
}
