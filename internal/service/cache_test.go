package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archpipe/internal/model"
)

// mapStore is a minimal CacheStore for tests
type mapStore struct {
	mu      sync.Mutex
	entries map[string]*model.CacheEntry
	failGet bool
}

func newMapStore() *mapStore {
	return &mapStore{entries: map[string]*model.CacheEntry{}}
}

func (s *mapStore) Get(_ context.Context, hash string) (*model.CacheEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet {
		return nil, errors.New("store down")
	}
	return s.entries[hash].Clone(), nil
}

func (s *mapStore) Put(_ context.Context, e *model.CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.InputHash] = e.Clone()
	return nil
}

func (s *mapStore) Touch(_ context.Context, hash string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[hash]; ok {
		e.HitCount++
		e.LastUsedAt = at
	}
	return nil
}

func TestCacheKeyCanonical(t *testing.T) {
	base := model.NewDesignRequest("30평 아파트, 침실 2개", "ko", "", model.DesignContext{})

	tests := []struct {
		name  string
		req   model.DesignRequest
		equal bool
	}{
		{"whitespace and case", model.NewDesignRequest("  30평   아파트,  침실 2개 ", "ko-KR", "", model.DesignContext{}), true},
		{"full width digits", model.NewDesignRequest("３０평 아파트, 침실 ２개", "ko", "", model.DesignContext{}), true},
		{"different text", model.NewDesignRequest("40평 아파트, 침실 2개", "ko", "", model.DesignContext{}), false},
		{"different locale", model.NewDesignRequest("30평 아파트, 침실 2개", "en", "", model.DesignContext{}), false},
		{"with context", model.NewDesignRequest("30평 아파트, 침실 2개", "ko", "", model.DesignContext{Location: "Seoul"}), false},
		{"with hint", model.NewDesignRequest("30평 아파트, 침실 2개", "ko", "apartment", model.DesignContext{}), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			same := CacheKey("extract", base) == CacheKey("extract", tt.req)
			assert.Equal(t, tt.equal, same)
		})
	}

	assert.NotEqual(t, CacheKey("extract", base), CacheKey("analysis", base))
}

func TestResultCacheLookupAndStore(t *testing.T) {
	store := newMapStore()
	c := NewResultCache(store, time.Hour, time.Minute, zerolog.Nop())
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	req := model.NewDesignRequest("사무실 100m2", "ko", "", model.DesignContext{})
	hash := CacheKey("extract", req)

	var out map[string]any
	_, ok := c.Lookup(context.Background(), hash, &out)
	assert.False(t, ok)

	c.Store(context.Background(), hash, req, map[string]any{"buildingType": "OFFICE"}, 0.8, false)
	stored := store.entries[hash]
	require.NotNil(t, stored)
	require.NotNil(t, stored.ExpiresAt)
	assert.Equal(t, now.Add(time.Hour), *stored.ExpiresAt)

	now = now.Add(time.Minute)
	entry, ok := c.Lookup(context.Background(), hash, &out)
	require.True(t, ok)
	assert.Equal(t, "OFFICE", out["buildingType"])
	assert.Equal(t, int64(1), entry.HitCount)
	assert.Equal(t, now, entry.LastUsedAt)
	assert.Equal(t, int64(1), store.entries[hash].HitCount)

	now = now.Add(2 * time.Hour)
	_, ok = c.Lookup(context.Background(), hash, &out)
	assert.False(t, ok)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.ExpiredMisses)
	assert.Equal(t, int64(1), stats.Stores)
}

func TestResultCacheFallbackTTL(t *testing.T) {
	store := newMapStore()
	c := NewResultCache(store, 0, time.Minute, zerolog.Nop())
	req := model.NewDesignRequest("house", "en", "", model.DesignContext{})

	c.Store(context.Background(), "a", req, 1, 0.9, false)
	c.Store(context.Background(), "b", req, 1, 0.3, true)

	assert.Nil(t, store.entries["a"].ExpiresAt, "zero ttl never expires")
	require.NotNil(t, store.entries["b"].ExpiresAt)
}

func TestResultCacheStoreErrorsAreMisses(t *testing.T) {
	store := newMapStore()
	store.failGet = true
	c := NewResultCache(store, time.Hour, time.Hour, zerolog.Nop())

	var out any
	_, ok := c.Lookup(context.Background(), "x", &out)
	assert.False(t, ok)
	assert.Equal(t, int64(1), c.Stats().Errors)
}

func TestResultCacheDisabled(t *testing.T) {
	c := NewResultCache(nil, time.Hour, time.Hour, zerolog.Nop())
	assert.False(t, c.Enabled())

	c.Store(context.Background(), "x", model.DesignRequest{}, 1, 1, false)
	var out any
	_, ok := c.Lookup(context.Background(), "x", &out)
	assert.False(t, ok)

	entry, err := c.Entry(context.Background(), "x")
	assert.NoError(t, err)
	assert.Nil(t, entry)
}
