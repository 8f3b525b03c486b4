package service

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"archpipe/internal/model"
	"archpipe/internal/utils"
)

// CacheStore persists cache entries. Get returns (nil, nil) on a miss.
type CacheStore interface {
	Get(ctx context.Context, hash string) (*model.CacheEntry, error)
	Put(ctx context.Context, entry *model.CacheEntry) error
	Touch(ctx context.Context, hash string, at time.Time) error
}

// CacheStats are best-effort counters of cache traffic
type CacheStats struct {
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	ExpiredMisses int64 `json:"expiredMisses"`
	Stores        int64 `json:"stores"`
	Errors        int64 `json:"errors"`
}

// ResultCache memoizes pipeline results by content hash. Store failures are
// logged and treated as misses; they never fail a request.
type ResultCache struct {
	store       CacheStore
	ttl         time.Duration
	fallbackTTL time.Duration
	logger      zerolog.Logger
	now         func() time.Time

	hits, misses, expired, stores, errors atomic.Int64
}

// NewResultCache wraps store. A nil store disables caching. ttl applies to
// provider-backed results and fallbackTTL to fallback results; zero means no expiry.
func NewResultCache(store CacheStore, ttl, fallbackTTL time.Duration, logger zerolog.Logger) *ResultCache {
	return &ResultCache{
		store:       store,
		ttl:         ttl,
		fallbackTTL: fallbackTTL,
		logger:      logger.With().Str("component", "cache").Logger(),
		now:         time.Now,
	}
}

// Enabled reports whether a store is configured
func (c *ResultCache) Enabled() bool { return c != nil && c.store != nil }

// CacheKey hashes the canonical form of a request within a namespace.
// Whitespace, case and full-width differences in the text map to the same key.
func CacheKey(namespace string, req model.DesignRequest) string {
	ctxJSON := "{}"
	if !req.Context.IsZero() {
		if data, err := json.Marshal(req.Context); err == nil {
			ctxJSON = string(data)
		}
	}
	return utils.ContentHash(
		namespace,
		utils.CanonicalizeText(req.Text),
		model.NormalizeLocale(req.Locale),
		utils.CanonicalizeText(req.BuildingTypeHint),
		ctxJSON,
	)
}

// Lookup decodes a live entry into out and records the hit. The returned entry
// reflects the hit.
func (c *ResultCache) Lookup(ctx context.Context, hash string, out any) (*model.CacheEntry, bool) {
	if !c.Enabled() {
		return nil, false
	}
	entry, err := c.store.Get(ctx, hash)
	if err != nil {
		c.errors.Add(1)
		c.logger.Warn().Err(err).Str("hash", hash).Msg("cache read failed")
		return nil, false
	}
	now := c.now().UTC()
	if entry == nil {
		c.misses.Add(1)
		return nil, false
	}
	if entry.Expired(now) {
		c.expired.Add(1)
		return nil, false
	}
	if err := json.Unmarshal(entry.Result, out); err != nil {
		c.errors.Add(1)
		c.logger.Warn().Err(err).Str("hash", hash).Msg("cache entry is corrupt, ignoring")
		return nil, false
	}

	if err := c.store.Touch(ctx, hash, now); err != nil {
		c.errors.Add(1)
		c.logger.Warn().Err(err).Str("hash", hash).Msg("cache touch failed")
	}
	c.hits.Add(1)
	entry.HitCount++
	entry.LastUsedAt = now
	return entry, true
}

// Store saves value under hash. Fallback results use the fallback TTL.
func (c *ResultCache) Store(ctx context.Context, hash string, req model.DesignRequest, value any, confidence float64, fallback bool) {
	if !c.Enabled() {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		c.errors.Add(1)
		c.logger.Warn().Err(err).Str("hash", hash).Msg("cache value not serializable")
		return
	}

	now := c.now().UTC()
	entry := &model.CacheEntry{
		InputHash:  hash,
		InputText:  utils.TruncateRunes(req.Text, 4000),
		Result:     data,
		Language:   model.NormalizeLocale(req.Locale),
		Confidence: confidence,
		CreatedAt:  now,
		LastUsedAt: now,
	}
	ttl := c.ttl
	if fallback {
		ttl = c.fallbackTTL
	}
	if ttl > 0 {
		exp := now.Add(ttl)
		entry.ExpiresAt = &exp
	}

	if err := c.store.Put(ctx, entry); err != nil {
		c.errors.Add(1)
		c.logger.Warn().Err(err).Str("hash", hash).Msg("cache write failed")
		return
	}
	c.stores.Add(1)
}

// Entry returns the stored entry without recording a hit
func (c *ResultCache) Entry(ctx context.Context, hash string) (*model.CacheEntry, error) {
	if !c.Enabled() {
		return nil, nil
	}
	return c.store.Get(ctx, hash)
}

// Stats returns a snapshot of the counters
func (c *ResultCache) Stats() CacheStats {
	if c == nil {
		return CacheStats{}
	}
	return CacheStats{
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		ExpiredMisses: c.expired.Load(),
		Stores:        c.stores.Load(),
		Errors:        c.errors.Load(),
	}
}
