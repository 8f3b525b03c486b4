package service

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"archpipe/internal/config"
	"archpipe/internal/model"
	"archpipe/internal/repository"
)

// purgeInterval is how often expired rows are removed from stores that do
// not expire entries on their own
const purgeInterval = time.Hour

type expiringStore interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// BuildPipeline assembles the pipeline from configuration. The returned closer
// stops background work and releases the cache store.
func BuildPipeline(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Pipeline, io.Closer, error) {
	pc := cfg.Pipeline

	table, err := LoadSchemaTable(pc.SchemaDefaultsFile)
	if err != nil {
		return nil, nil, err
	}
	agents, err := LoadAgentSpecs(pc.AgentSpecsFile, table)
	if err != nil {
		return nil, nil, err
	}

	store, err := repository.Open(ctx, cfg.Cache, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open cache store: %w", err)
	}

	normalizer := NewNormalizer(table)
	fallback := NewFallbackAnalyzer(table, pc.FallbackCeiling)
	providers := NewProvidersFromConfig(ctx, cfg.Providers, logger)

	orchestrator := NewOrchestrator(providers, normalizer, fallback, logger,
		WithAttemptTimeout(pc.AttemptTimeout),
		WithRetryDelay(pc.RetryDelay),
		WithAttemptObserver(attemptMetrics(logger)),
	)
	dispatcher := NewDispatcher(pc.AgentTimeout, pc.AggregationMargin, normalizer, NewScorer(pc.FallbackCeiling), logger)

	var cacheStore CacheStore
	if store != nil {
		cacheStore = store
	}
	cache := NewResultCache(cacheStore, cfg.Cache.TTL, cfg.Cache.FallbackTTL, logger)

	pipeline := NewPipeline(
		NewPromptBuilder(normalizer, pc.PromptMinChars, pc.PromptMaxChars),
		orchestrator,
		dispatcher,
		cache,
		agents,
		GenerationConfig{Temperature: pc.Temperature, MaxTokens: pc.MaxTokens, JSONMode: true},
		logger,
	)

	jctx, stop := context.WithCancel(context.Background())
	if es, ok := store.(expiringStore); ok {
		go purgeExpired(jctx, es, purgeInterval, logger)
	}

	available := 0
	for _, p := range providers {
		if p.Available() {
			available++
		}
	}
	if available == 0 {
		logger.Warn().Msg("no provider is configured, every result comes from the fallback analyzer")
	}
	logger.Info().
		Int("providers", len(providers)).
		Int("available", available).
		Int("agents", len(agents)).
		Str("cache", cfg.Cache.Backend).
		Msg("pipeline ready")

	return pipeline, closerFunc(func() error {
		stop()
		if store != nil {
			return store.Close()
		}
		return nil
	}), nil
}

// attemptMetrics is the default attempt observer: it keeps running per-provider
// failure counts in the log stream
func attemptMetrics(logger zerolog.Logger) AttemptObserver {
	type counts struct{ total, failed int }
	byProvider := map[string]*counts{}
	var mu sync.Mutex

	return func(a model.GenerationAttempt) {
		mu.Lock()
		c, ok := byProvider[a.Provider]
		if !ok {
			c = &counts{}
			byProvider[a.Provider] = c
		}
		c.total++
		if a.Outcome != model.OutcomeSuccess {
			c.failed++
		}
		total, failed := c.total, c.failed
		mu.Unlock()

		if failed > 0 && failed == total && total%5 == 0 {
			logger.Warn().Str("provider", a.Provider).Int("failed", failed).Msg("provider has not succeeded yet")
		}
	}
}

func purgeExpired(ctx context.Context, store expiringStore, every time.Duration, logger zerolog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := store.DeleteExpired(ctx, now.UTC())
			if err != nil {
				logger.Warn().Err(err).Msg("cache purge failed")
				continue
			}
			if n > 0 {
				logger.Debug().Int64("rows", n).Msg("expired cache entries purged")
			}
		}
	}
}
