// Package user is the boundary to the external user directory. The core
// owns no profile data; it only needs the sidebar listing.
package user

import (
	"context"
	"sort"
	"sync"
)

// User is a directory summary of one account.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Directory lists known users for the sidebar.
type Directory interface {
	// ListOthers returns every user except excludeID, ordered by name.
	ListOthers(ctx context.Context, excludeID string) ([]User, error)
}

// MemoryDirectory is an in-memory Directory, seeded from configuration.
type MemoryDirectory struct {
	mu    sync.RWMutex
	users map[string]User
}

// NewMemoryDirectory creates a directory holding the given users.
func NewMemoryDirectory(users []User) *MemoryDirectory {
	d := &MemoryDirectory{users: make(map[string]User, len(users))}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

// Add inserts or updates a user.
func (d *MemoryDirectory) Add(u User) {
	d.mu.Lock()
	d.users[u.ID] = u
	d.mu.Unlock()
}

// ListOthers returns every user except excludeID, ordered by name.
func (d *MemoryDirectory) ListOthers(ctx context.Context, excludeID string) ([]User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	result := make([]User, 0, len(d.users))
	for id, u := range d.users {
		if id == excludeID {
			continue
		}
		result = append(result, u)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}
