// Package presence tracks which user identities are currently online by
// mapping each identity to the handle of its live connection.
package presence

import "github.com/google/uuid"

// Handle identifies one live connection instance. It is unique per connection
// and invalid once the connection closes.
type Handle = uuid.UUID

// Registry is a bidirectional identity<->handle map. The forward direction
// answers "is this user online, and on which connection"; the reverse
// direction answers "whose connection just closed" in O(1) instead of a scan.
//
// The registry has no internal locking: it is owned by the hub's single
// dispatch loop and must only be touched from there.
type Registry struct {
	byIdentity map[string]Handle
	byHandle   map[Handle]string
}

// NewRegistry returns an empty registry. Construct one per service instance
// and inject it into the dispatcher; there is no package-level state.
func NewRegistry() *Registry {
	return &Registry{
		byIdentity: make(map[string]Handle),
		byHandle:   make(map[Handle]string),
	}
}

// SetOnline records identity as online on the given handle, unconditionally
// replacing any previous mapping for that identity. If the handle was
// previously bound to a different identity (a re-setup on the same
// connection), the stale binding is dropped so the map stays one-to-one.
func (r *Registry) SetOnline(identity string, handle Handle) {
	if old, ok := r.byIdentity[identity]; ok && old != handle {
		delete(r.byHandle, old)
	}
	if old, ok := r.byHandle[handle]; ok && old != identity {
		delete(r.byIdentity, old)
	}
	r.byIdentity[identity] = handle
	r.byHandle[handle] = identity
}

// IdentityByHandle returns the identity currently bound to handle. It reports
// false when the handle is unknown, which callers treat as a normal no-op:
// the connection either never completed setup or was evicted by a newer one.
func (r *Registry) IdentityByHandle(handle Handle) (string, bool) {
	identity, ok := r.byHandle[handle]
	return identity, ok
}

// HandleByIdentity returns the live connection handle for identity, if any.
func (r *Registry) HandleByIdentity(identity string) (Handle, bool) {
	handle, ok := r.byIdentity[identity]
	return handle, ok
}

// Online reports whether identity has a live connection.
func (r *Registry) Online(identity string) bool {
	_, ok := r.byIdentity[identity]
	return ok
}

// RemoveByIdentity deletes the mapping for identity if present; it is a no-op
// otherwise.
func (r *Registry) RemoveByIdentity(identity string) {
	if handle, ok := r.byIdentity[identity]; ok {
		delete(r.byHandle, handle)
		delete(r.byIdentity, identity)
	}
}

// Len returns the number of online identities.
func (r *Registry) Len() int {
	return len(r.byIdentity)
}
