// Package presence tracks which user identity is online on which connection.
package presence

import (
	"sync"

	"github.com/collab-hub/relay/internal/model"
)

// Registry maps identities to live connections. At most one entry exists per
// identity: the first join wins until that connection goes away.
type Registry struct {
	mu      sync.RWMutex
	entries []model.PresenceEntry // join order
	byUser  map[string]string     // identity -> connection
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byUser: make(map[string]string)}
}

// Join records identity as online on connID. It reports whether the registry
// changed; a join for an identity that is already online is a no-op.
func (r *Registry) Join(identity, connID string) bool {
	if identity == "" || connID == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byUser[identity]; ok {
		return false
	}
	r.byUser[identity] = connID
	r.entries = append(r.entries, model.PresenceEntry{UserID: identity, SocketID: connID})
	return true
}

// Remove drops every entry held by connID and returns how many were removed.
func (r *Registry) Remove(connID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.entries[:0]
	removed := 0
	for _, e := range r.entries {
		if e.SocketID == connID {
			delete(r.byUser, e.UserID)
			removed++
			continue
		}
		kept = append(kept, e)
	}
	clear(r.entries[len(kept):])
	r.entries = kept
	return removed
}

// Lookup returns the connection of identity. A miss means the user is offline.
func (r *Registry) Lookup(identity string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	connID, ok := r.byUser[identity]
	return connID, ok
}

// Snapshot returns the online users in join order.
func (r *Registry) Snapshot() []model.PresenceEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.PresenceEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Len returns the number of online identities.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
