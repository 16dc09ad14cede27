package blobstore

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrNoStore is returned when no blob store is registered for a URL.
var ErrNoStore = errors.New("no blob store registered")

// IsRemote reports whether location is a URL with a non-file scheme.
func IsRemote(location string) bool {
	scheme, _, ok := strings.Cut(location, "://")
	return ok && scheme != "" && scheme != "file"
}

// Router resolves store URLs against blob stores registered by prefix,
// e.g. "s3://lookups" or "minio://play.min.io/lookups".
type Router struct {
	mu     sync.RWMutex
	stores map[string]BlobStore
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{stores: make(map[string]BlobStore)}
}

// Register binds prefix to store, replacing an earlier registration.
func (r *Router) Register(prefix string, store BlobStore) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stores[strings.TrimSuffix(prefix, "/")] = store
}

// Len returns the number of registered prefixes.
func (r *Router) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.stores)
}

// Resolve returns the store with the longest prefix matching url and the blob
// name relative to that prefix.
func (r *Router) Resolve(url string) (BlobStore, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		best    string
		store   BlobStore
		matched bool
	)
	for prefix, s := range r.stores {
		if !strings.HasPrefix(url, prefix+"/") {
			continue
		}
		if !matched || len(prefix) > len(best) {
			best, store, matched = prefix, s, true
		}
	}
	if !matched {
		return nil, "", fmt.Errorf("%w for %q", ErrNoStore, url)
	}
	return store, url[len(best)+1:], nil
}
