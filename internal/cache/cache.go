// Package cache stores catalog listing pages in Redis.
//
// Keys embed a generation number; Invalidate bumps the generation so every
// earlier page becomes unreachable and expires by TTL.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"storefront/internal/query"
)

// Config holds cache configuration.
type Config struct {
	RedisAddr string
	Password  string
	DB        int
	Prefix    string
	TTL       time.Duration
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		RedisAddr: "localhost:6379",
		Prefix:    "catalog:list:",
		TTL:       5 * time.Minute,
	}
}

// Stats tracks cache statistics.
type Stats struct {
	Hits          uint64 `json:"hits"`
	Misses        uint64 `json:"misses"`
	Sets          uint64 `json:"sets"`
	Invalidations uint64 `json:"invalidations"`
	Errors        uint64 `json:"errors"`
}

type ListCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	stats  Stats
}

func New(client *redis.Client, prefix string, ttl time.Duration) *ListCache {
	return &ListCache{client: client, prefix: prefix, ttl: ttl}
}

// Dial connects using cfg and verifies the connection.
func Dial(ctx context.Context, cfg Config) (*ListCache, error) {
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.Password, DB: cfg.DB})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
	}
	return New(client, cfg.Prefix, cfg.TTL), nil
}

func (c *ListCache) genKey() string { return c.prefix + "gen" }

func (c *ListCache) generation(ctx context.Context) (int64, error) {
	g, err := c.client.Get(ctx, c.genKey()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return g, err
}

func (c *ListCache) pageKey(gen int64, key string) string {
	return c.prefix + strconv.FormatInt(gen, 10) + ":" + key
}

// Get returns the cached page for key, reporting a miss as false.
func (c *ListCache) Get(ctx context.Context, key string) (query.Page, bool, error) {
	gen, err := c.generation(ctx)
	if err != nil {
		atomic.AddUint64(&c.stats.Errors, 1)
		return query.Page{}, false, fmt.Errorf("cache generation: %w", err)
	}
	data, err := c.client.Get(ctx, c.pageKey(gen, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			atomic.AddUint64(&c.stats.Misses, 1)
			return query.Page{}, false, nil
		}
		atomic.AddUint64(&c.stats.Errors, 1)
		return query.Page{}, false, fmt.Errorf("cache get error: %w", err)
	}
	var page query.Page
	if err := json.Unmarshal(data, &page); err != nil {
		atomic.AddUint64(&c.stats.Errors, 1)
		return query.Page{}, false, fmt.Errorf("cache unmarshal error: %w", err)
	}
	atomic.AddUint64(&c.stats.Hits, 1)
	return page, true, nil
}

func (c *ListCache) Set(ctx context.Context, key string, page query.Page) error {
	gen, err := c.generation(ctx)
	if err != nil {
		atomic.AddUint64(&c.stats.Errors, 1)
		return fmt.Errorf("cache generation: %w", err)
	}
	data, err := json.Marshal(page)
	if err != nil {
		atomic.AddUint64(&c.stats.Errors, 1)
		return fmt.Errorf("cache marshal error: %w", err)
	}
	if err := c.client.Set(ctx, c.pageKey(gen, key), data, c.ttl).Err(); err != nil {
		atomic.AddUint64(&c.stats.Errors, 1)
		return fmt.Errorf("cache set error: %w", err)
	}
	atomic.AddUint64(&c.stats.Sets, 1)
	return nil
}

// Invalidate drops every cached page.
func (c *ListCache) Invalidate(ctx context.Context) error {
	if err := c.client.Incr(ctx, c.genKey()).Err(); err != nil {
		atomic.AddUint64(&c.stats.Errors, 1)
		return fmt.Errorf("cache invalidate error: %w", err)
	}
	atomic.AddUint64(&c.stats.Invalidations, 1)
	return nil
}

// GetStats returns a snapshot of the counters.
func (c *ListCache) GetStats() Stats {
	return Stats{
		Hits:          atomic.LoadUint64(&c.stats.Hits),
		Misses:        atomic.LoadUint64(&c.stats.Misses),
		Sets:          atomic.LoadUint64(&c.stats.Sets),
		Invalidations: atomic.LoadUint64(&c.stats.Invalidations),
		Errors:        atomic.LoadUint64(&c.stats.Errors),
	}
}

func (c *ListCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *ListCache) Close() error {
	return c.client.Close()
}
