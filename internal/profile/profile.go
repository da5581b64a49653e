// Package profile caches the public projection of an account. Entries are
// disposable: a miss is always answered from the account store and every
// change to an account's media invalidates its entry.
package profile

import (
	"context"
	"sync"
)

// MediaSummary is the public view of one owned media object.
type MediaSummary struct {
	RemoteID    string `json:"remoteId"`
	DisplayName string `json:"displayName"`
	Link        string `json:"link"`
}

// Entry is the cached projection. It never carries credential material.
type Entry struct {
	ID       string         `json:"id"`
	Username string         `json:"username"`
	Email    string         `json:"email"`
	Media    []MediaSummary `json:"media"`
}

// Cache is a read-through cache keyed by account identifier.
//
// Every Invalidate advances the account's generation. A reader that missed
// takes the generation before loading from the account store and hands it
// to Put, which drops the entry if an invalidation happened in between.
type Cache interface {
	// Get returns the entry and true on a hit.
	Get(ctx context.Context, accountID string) (Entry, bool, error)
	// Generation returns the current invalidation counter of accountID.
	Generation(ctx context.Context, accountID string) (int64, error)
	// Put stores entry if accountID is still at gen and reports whether it did.
	Put(ctx context.Context, accountID string, gen int64, entry Entry) (bool, error)
	Invalidate(ctx context.Context, accountID string) error
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]Entry
	gens    map[string]int64
}

// NewMemoryCache returns an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]Entry),
		gens:    make(map[string]int64),
	}
}

func (c *MemoryCache) Get(_ context.Context, accountID string) (Entry, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[accountID]
	if !ok {
		return Entry{}, false, nil
	}
	return e.clone(), true, nil
}

func (c *MemoryCache) Generation(_ context.Context, accountID string) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gens[accountID], nil
}

func (c *MemoryCache) Put(_ context.Context, accountID string, gen int64, entry Entry) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[accountID] != gen {
		return false, nil
	}
	c.entries[accountID] = entry.clone()
	return true, nil
}

func (c *MemoryCache) Invalidate(_ context.Context, accountID string) error {
	c.mu.Lock()
	c.gens[accountID]++
	delete(c.entries, accountID)
	c.mu.Unlock()
	return nil
}

func (e Entry) clone() Entry {
	e.Media = append([]MediaSummary(nil), e.Media...)
	return e
}
