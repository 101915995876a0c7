// Package tokens keeps the API keys accepted by the service in memory.
package tokens

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrInvalidAPIKey signals that the provided API key is not known.
	ErrInvalidAPIKey = errors.New("invalid api key")
	// ErrStoreNotReady signals that no token list has been loaded yet.
	ErrStoreNotReady = errors.New("token store not ready")
)

// Entry is the per-key policy.
type Entry struct {
	// RateLimit is the number of requests per limiter interval; 0 means unlimited.
	RateLimit int
}

// Repository loads the full token list.
type Repository interface {
	LoadTokens(ctx context.Context) (map[string]Entry, error)
}

// Cache is a concurrency-safe snapshot of the token list.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewCache returns an empty, not yet ready cache.
func NewCache() *Cache {
	return &Cache{}
}

// Replace swaps the snapshot. The map is copied.
func (c *Cache) Replace(m map[string]Entry) {
	entries := make(map[string]Entry, len(m))
	for k, v := range m {
		entries[k] = v
	}
	c.mu.Lock()
	c.entries = entries
	c.mu.Unlock()
}

// Ready reports whether a snapshot was loaded at least once.
func (c *Cache) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries != nil
}

// Validate checks key against the snapshot.
func (c *Cache) Validate(key string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.entries == nil {
		return ErrStoreNotReady
	}
	if _, ok := c.entries[key]; !ok {
		return ErrInvalidAPIKey
	}
	return nil
}

// RateLimit returns the limit of key, 0 when unknown.
func (c *Cache) RateLimit(key string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries[key].RateLimit
}
