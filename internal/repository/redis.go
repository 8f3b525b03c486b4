package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/gomodule/redigo/redis"

	"archpipe/internal/model"
)

// RedisStore keeps each entry in a hash: the JSON entry plus separately
// updated hit and last-use fields. Expiry is delegated to Redis.
type RedisStore struct {
	pool   *redis.Pool
	prefix string
}

// NewRedisStore creates a pooled store
func NewRedisStore(addr, password string, db int, prefix string) *RedisStore {
	pool := &redis.Pool{
		MaxIdle:     8,
		IdleTimeout: 4 * time.Minute,
		DialContext: func(ctx context.Context) (redis.Conn, error) {
			return redis.DialContext(ctx, "tcp", addr,
				redis.DialPassword(password),
				redis.DialDatabase(db),
				redis.DialConnectTimeout(5*time.Second),
			)
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}
	return NewRedisStoreFromPool(pool, prefix)
}

// NewRedisStoreFromPool wraps an existing pool
func NewRedisStoreFromPool(pool *redis.Pool, prefix string) *RedisStore {
	return &RedisStore{pool: pool, prefix: prefix}
}

func (s *RedisStore) key(hash string) string { return s.prefix + hash }

// Ping checks connectivity
func (s *RedisStore) Ping(ctx context.Context) error {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer conn.Close()
	if _, err := redis.DoContext(conn, ctx, "PING"); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}
	return nil
}

// Get loads one entry
func (s *RedisStore) Get(ctx context.Context, hash string) (*model.CacheEntry, error) {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get redis connection: %w", err)
	}
	defer conn.Close()

	fields, err := redis.StringMap(redis.DoContext(conn, ctx, "HGETALL", s.key(hash)))
	if err != nil {
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}
	raw, ok := fields["entry"]
	if !ok {
		return nil, nil
	}

	var e model.CacheEntry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return nil, fmt.Errorf("failed to decode cache entry: %w", err)
	}
	if hits, err := strconv.ParseInt(fields["hits"], 10, 64); err == nil {
		e.HitCount = hits
	}
	if ms, err := strconv.ParseInt(fields["last_used"], 10, 64); err == nil {
		e.LastUsedAt = time.UnixMilli(ms).UTC()
	}
	return &e, nil
}

// Put replaces an entry
func (s *RedisStore) Put(ctx context.Context, entry *model.CacheEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to get redis connection: %w", err)
	}
	defer conn.Close()

	key := s.key(entry.InputHash)
	_ = conn.Send("MULTI")
	_ = conn.Send("DEL", key)
	_ = conn.Send("HSET", key, "entry", data, "hits", entry.HitCount, "last_used", entry.LastUsedAt.UnixMilli())
	if entry.ExpiresAt != nil {
		_ = conn.Send("PEXPIREAT", key, entry.ExpiresAt.UnixMilli())
	}
	if _, err := redis.DoContext(conn, ctx, "EXEC"); err != nil {
		return fmt.Errorf("failed to put cache entry: %w", err)
	}
	return nil
}

// Touch increments the hit count and updates the last use time of an existing entry
func (s *RedisStore) Touch(ctx context.Context, hash string, at time.Time) error {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to get redis connection: %w", err)
	}
	defer conn.Close()

	key := s.key(hash)
	exists, err := redis.Bool(redis.DoContext(conn, ctx, "EXISTS", key))
	if err != nil {
		return fmt.Errorf("failed to touch cache entry: %w", err)
	}
	if !exists {
		return nil
	}
	_ = conn.Send("MULTI")
	_ = conn.Send("HINCRBY", key, "hits", 1)
	_ = conn.Send("HSET", key, "last_used", at.UnixMilli())
	if _, err := redis.DoContext(conn, ctx, "EXEC"); err != nil {
		return fmt.Errorf("failed to touch cache entry: %w", err)
	}
	return nil
}

// Close closes the pool
func (s *RedisStore) Close() error {
	return s.pool.Close()
}
