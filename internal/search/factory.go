package search

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/enrichr/internal/config"
	"github.com/raphaelgruber/enrichr/internal/metrics"
	"github.com/redis/go-redis/v9"
)

// New builds the configured fetcher stack: SerpAPI, rate limiter, then the optional cache.
// The returned close function releases cache connections and is never nil.
func New(ctx context.Context, cfg config.Config, mc *metrics.Collector) (Fetcher, func() error, error) {
	noop := func() error { return nil }

	var fetcher Fetcher = NewSerpAPI(cfg.SerpAPIKey, cfg.SearchResults,
		WithBaseURL(cfg.SerpAPIURL),
		WithMetrics(mc),
	)
	fetcher = NewRateLimited(fetcher, cfg.SearchRPS)

	switch cfg.Cache {
	case config.CacheOff, "":
		return fetcher, noop, nil

	case config.CacheMemory:
		return NewCachedFetcher(fetcher, NewMemoryCache(cfg.CacheSize, cfg.CacheTTL), cfg.SearchResults, mc), noop, nil

	case config.CacheRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, noop, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, noop, fmt.Errorf("connect redis: %w", err)
		}
		cache := NewRedisCache(client, cfg.CacheTTL)
		return NewCachedFetcher(fetcher, cache, cfg.SearchResults, mc), client.Close, nil

	default:
		return nil, noop, fmt.Errorf("unsupported cache mode: %s", cfg.Cache)
	}
}
