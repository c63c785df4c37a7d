package ddoccache

import (
	"context"
	"fmt"
	"sync"
)

// NoDDocID is the sentinel a KeyOps.DDocID implementation returns when the
// key variant carries no design-document identifier at all (e.g., a key
// naming a whole database rather than one ddoc).  do_refresh prepends this
// sentinel to every requested ddocid list so such keys are always swept by
// a database-wide refresh.
const NoDDocID = "\x00no_ddocid"

// Value is the opaque payload produced by Recover.  The cache never
// inspects it beyond an equality check (reflect.DeepEqual) used to decide
// between the "updated" and "update_noop" observability events.
type Value = any

// Key is an opaque tagged value: a variant tag plus a per-variant argument.
// Two keys are equal iff Tag and Arg are equal, so Arg must be a comparable
// type (a string, an int, a small struct of comparable fields, …) — exactly
// as required to use Key as a map key.
type Key struct {
	Tag string
	Arg any
}

func (k Key) String() string { return fmt.Sprintf("%s:%v", k.Tag, k.Arg) }

// KeyOps is the per-variant capability a key dispatches to: deriving the
// owning database name and design-document id, and performing the
// (expensive, possibly failing) recovery of the value itself.  Implementing
// this interface, and registering it under a tag, is how a caller plugs a
// new kind of cached lookup into the engine without the engine ever
// knowing what the value looks like.
type KeyOps interface {
	// DBName returns the logical database name owning arg.
	DBName(arg any) string
	// DDocID returns the design-document id for arg, or NoDDocID if the
	// variant has none.
	DDocID(arg any) string
	// Recover fetches the value for arg.  May block; must honor ctx
	// cancellation.  A non-nil error (or a panic, which the opener turns
	// into an error) is treated as a recover-failure.
	Recover(ctx context.Context, arg any) (Value, error)
}

// Registry dispatches a Key's Tag to its registered KeyOps.  Safe for
// concurrent use; typically populated once at startup.
type Registry struct {
	mu  sync.RWMutex
	ops map[string]KeyOps
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{ops: make(map[string]KeyOps)}
}

// Register binds tag to ops, overwriting any prior binding.
func (r *Registry) Register(tag string, ops KeyOps) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops[tag] = ops
}

// Lookup returns the KeyOps registered for tag, if any.
func (r *Registry) Lookup(tag string) (KeyOps, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ops, ok := r.ops[tag]
	return ops, ok
}

// dbname and ddocid are small helpers used by the coordinator so it never
// needs to hold onto a KeyOps itself — only the Registry and a Key.
func (r *Registry) dbname(k Key) (string, error) {
	ops, ok := r.Lookup(k.Tag)
	if !ok {
		return "", fmt.Errorf("ddoccache: no KeyOps registered for tag %q", k.Tag)
	}
	return ops.DBName(k.Arg), nil
}

func (r *Registry) ddocid(k Key) (string, error) {
	ops, ok := r.Lookup(k.Tag)
	if !ok {
		return "", fmt.Errorf("ddoccache: no KeyOps registered for tag %q", k.Tag)
	}
	return ops.DDocID(k.Arg), nil
}

func (r *Registry) recover(ctx context.Context, k Key) (val Value, err error) {
	ops, ok := r.Lookup(k.Tag)
	if !ok {
		return nil, fmt.Errorf("ddoccache: no KeyOps registered for tag %q", k.Tag)
	}
	return ops.Recover(ctx, k.Arg)
}
