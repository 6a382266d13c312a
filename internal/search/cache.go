package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/raphaelgruber/enrichr/internal/metrics"
	"github.com/raphaelgruber/enrichr/internal/models"
	"github.com/redis/go-redis/v9"
)

// Cache stores search results keyed by exact query text.
type Cache interface {
	Get(ctx context.Context, key string) ([]models.EvidenceRecord, bool, error)
	Set(ctx context.Context, key string, records []models.EvidenceRecord) error
}

// MemoryCache is a size-bounded in-process cache with per-entry expiry.
type MemoryCache struct {
	lru *expirable.LRU[string, []models.EvidenceRecord]
}

// NewMemoryCache creates a cache holding at most size entries for ttl each.
func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	return &MemoryCache{lru: expirable.NewLRU[string, []models.EvidenceRecord](size, nil, ttl)}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]models.EvidenceRecord, bool, error) {
	records, ok := c.lru.Get(key)
	return records, ok, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, records []models.EvidenceRecord) error {
	c.lru.Add(key, records)
	return nil
}

// Len returns the number of cached queries.
func (c *MemoryCache) Len() int {
	return c.lru.Len()
}

const redisKeyPrefix = "enrichr:search:" // enrichr:search:{results}:{query}

// RedisCache shares search results between runs and processes.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache stores entries in client for ttl. A zero ttl keeps entries forever.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]models.EvidenceRecord, bool, error) {
	data, err := c.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var records []models.EvidenceRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, false, fmt.Errorf("decode cached results: %w", err)
	}
	return records, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, records []models.EvidenceRecord) error {
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	if err := c.client.Set(ctx, redisKeyPrefix+key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// CachedFetcher consults a Cache before delegating. Only successful fetches are stored.
// Cache errors are logged and treated as misses.
type CachedFetcher struct {
	next    Fetcher
	cache   Cache
	results int
	metrics *metrics.Collector
}

// NewCachedFetcher wraps next. results is part of the cache key since it changes the answer set.
func NewCachedFetcher(next Fetcher, cache Cache, results int, mc *metrics.Collector) *CachedFetcher {
	return &CachedFetcher{next: next, cache: cache, results: results, metrics: mc}
}

func (f *CachedFetcher) key(query string) string {
	return strconv.Itoa(f.results) + ":" + query
}

// Fetch returns cached results for query when present.
func (f *CachedFetcher) Fetch(ctx context.Context, query string) ([]models.EvidenceRecord, error) {
	key := f.key(query)

	records, ok, err := f.cache.Get(ctx, key)
	if err != nil {
		slog.Warn("search cache read failed", "error", err)
	} else if ok {
		f.metrics.RecordCacheHit()
		return records, nil
	}

	records, err = f.next.Fetch(ctx, query)
	if err != nil {
		return nil, err
	}

	if err := f.cache.Set(ctx, key, records); err != nil {
		slog.Warn("search cache write failed", "error", err)
	}
	return records, nil
}
