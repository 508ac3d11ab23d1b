// Package presence maps user identities to live connection IDs. The same
// registry type backs both chat presence and WebRTC call registration,
// which are kept as two independent instances.
package presence

import (
	"sort"
	"sync"
)

// Registry is a bidirectional user-to-connection mapping. At most one
// connection is retained per user; registering again replaces the entry
// (last-connect-wins) without touching the superseded transport.
type Registry struct {
	mu     sync.Mutex
	byUser map[string]string // userID -> connID
	byConn map[string]string // connID -> userID
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[string]string),
		byConn: make(map[string]string),
	}
}

// Register stores or overwrites the mapping for userID. A previous
// connection for the same user becomes a ghost: it stays open but no
// longer receives targeted events, and its eventual disconnect is a no-op.
func (r *Registry) Register(userID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.byUser[userID]; ok && prev != connID {
		delete(r.byConn, prev)
	}
	r.byUser[userID] = connID
	r.byConn[connID] = userID
}

// Lookup returns the live connection ID for userID.
func (r *Registry) Lookup(userID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	connID, ok := r.byUser[userID]
	return connID, ok
}

// Unregister removes the entry for whichever user currently maps to
// connID. A stale connID (already replaced by a newer connection for the
// same user) is a no-op, which covers the multi-tab disconnect race.
func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	userID, ok := r.byConn[connID]
	if !ok {
		return
	}
	delete(r.byConn, connID)
	if r.byUser[userID] == connID {
		delete(r.byUser, userID)
	}
}

// Snapshot returns the sorted set of registered user IDs.
func (r *Registry) Snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	users := make([]string, 0, len(r.byUser))
	for u := range r.byUser {
		users = append(users, u)
	}
	sort.Strings(users)
	return users
}

// Count returns the number of registered users.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byUser)
}
