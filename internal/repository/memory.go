package repository

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"archpipe/internal/model"
)

// MemoryStore is a bounded in-process store. Entries are cloned on the way in
// and out so callers never share state with the cache.
type MemoryStore struct {
	cache *expirable.LRU[string, *model.CacheEntry]
	mu    sync.Mutex // serializes Touch
}

// NewMemoryStore creates a store holding at most size entries. retention bounds
// how long any entry is kept regardless of its own expiry; 0 keeps entries
// until evicted.
func NewMemoryStore(size int, retention time.Duration) *MemoryStore {
	if size <= 0 {
		size = 1024
	}
	return &MemoryStore{cache: expirable.NewLRU[string, *model.CacheEntry](size, nil, retention)}
}

// Get returns a copy of the entry
func (s *MemoryStore) Get(_ context.Context, hash string) (*model.CacheEntry, error) {
	e, ok := s.cache.Get(hash)
	if !ok {
		return nil, nil
	}
	return e.Clone(), nil
}

// Put stores a copy of entry
func (s *MemoryStore) Put(_ context.Context, entry *model.CacheEntry) error {
	s.cache.Add(entry.InputHash, entry.Clone())
	return nil
}

// Touch increments the hit count and updates the last use time
func (s *MemoryStore) Touch(_ context.Context, hash string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.cache.Peek(hash)
	if !ok {
		return nil
	}
	updated := e.Clone()
	updated.HitCount++
	updated.LastUsedAt = at
	s.cache.Add(hash, updated)
	return nil
}

// Len returns the number of cached entries
func (s *MemoryStore) Len() int { return s.cache.Len() }

// Close is a no-op
func (s *MemoryStore) Close() error { return nil }
