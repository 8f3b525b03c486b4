package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"archpipe/internal/config"
	"archpipe/internal/model"
)

// Store persists CacheEntry records keyed by input hash.
// Get returns (nil, nil) when the key is absent.
type Store interface {
	Get(ctx context.Context, hash string) (*model.CacheEntry, error)
	Put(ctx context.Context, entry *model.CacheEntry) error
	Touch(ctx context.Context, hash string, at time.Time) error
	Close() error
}

// Open creates the store selected by cfg.Backend. Backend "none" returns a nil store.
func Open(ctx context.Context, cfg config.CacheConfig, logger zerolog.Logger) (Store, error) {
	backend := strings.ToLower(cfg.Backend)
	logger.Info().Str("backend", backend).Msg("opening result cache")

	switch backend {
	case "", "memory":
		return NewMemoryStore(cfg.Size, cfg.TTL), nil
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("CACHE_BACKEND=postgres requires DATABASE_URL")
		}
		s, err := NewPostgresStore(cfg.DatabaseURL, 10, 5)
		if err != nil {
			return nil, err
		}
		return migrated(ctx, s)
	case "sqlite":
		s, err := NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return migrated(ctx, s)
	case "redis":
		s := NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.KeyPrefix)
		if err := s.Ping(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
		return s, nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

// migrated closes s when its schema cannot be created
func migrated(ctx context.Context, s *SQLStore) (Store, error) {
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}
