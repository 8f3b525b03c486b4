package model

import (
	"encoding/json"
	"time"
)

// CacheEntry is a memoized pipeline result keyed by the content hash of its input
type CacheEntry struct {
	InputHash  string          `json:"inputHash"`
	InputText  string          `json:"inputText"`
	Result     json.RawMessage `json:"result"`
	Language   string          `json:"language"`
	Confidence float64         `json:"confidence"`
	HitCount   int64           `json:"hitCount"`
	CreatedAt  time.Time       `json:"createdAt"`
	LastUsedAt time.Time       `json:"lastUsedAt"`
	ExpiresAt  *time.Time      `json:"expiresAt,omitempty"`
}

// Expired reports whether the entry's TTL has passed at the given instant
func (e *CacheEntry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && !now.Before(*e.ExpiresAt)
}

// Clone returns a deep copy so stores never share mutable state with callers
func (e *CacheEntry) Clone() *CacheEntry {
	if e == nil {
		return nil
	}
	out := *e
	if e.Result != nil {
		out.Result = append(json.RawMessage(nil), e.Result...)
	}
	if e.ExpiresAt != nil {
		t := *e.ExpiresAt
		out.ExpiresAt = &t
	}
	return &out
}
