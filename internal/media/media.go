// Package media is the boundary to the external upload service that
// hosts inline image and audio payloads. The core only depends on the
// Uploader contract; a failed upload fails the message send.
package media

import (
	"context"
	"fmt"
	"sync"
)

// Options control how a payload is stored by the upload service.
type Options struct {
	// Folder groups uploads on the remote side (e.g. "voice_messages").
	Folder string
	// ResourceType hints the payload kind to the service; "auto" lets
	// the service detect it.
	ResourceType string
}

// Uploader stores an inline payload externally and returns its URL.
type Uploader interface {
	Upload(ctx context.Context, payload string, opts Options) (string, error)
}

// MemoryUploader keeps uploads in memory and hands out synthetic URLs.
// It stands in for the real upload service in tests and development.
type MemoryUploader struct {
	mu      sync.Mutex
	uploads map[string]string
	next    int
}

// NewMemoryUploader creates an empty in-memory uploader.
func NewMemoryUploader() *MemoryUploader {
	return &MemoryUploader{uploads: make(map[string]string)}
}

// Upload stores the payload and returns a synthetic URL for it.
func (u *MemoryUploader) Upload(ctx context.Context, payload string, opts Options) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.next++
	folder := opts.Folder
	if folder == "" {
		folder = "uploads"
	}
	url := fmt.Sprintf("memory://%s/%d", folder, u.next)
	u.uploads[url] = payload
	return url, nil
}

// Get returns a previously uploaded payload by URL.
func (u *MemoryUploader) Get(url string) (string, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	payload, ok := u.uploads[url]
	return payload, ok
}
