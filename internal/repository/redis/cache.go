// Package redis provides the ephemeral shared state the engine keeps
// outside the process: a short-TTL cache for LLM plan responses keyed
// by site-model hash, run-status fan-out for the control API, and the
// fixed-window counters behind API rate limiting.
package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/qaengine/qaengine/internal/config"
	"github.com/qaengine/qaengine/internal/domain"
)

// Cache provides Redis caching functionality
type Cache struct {
	client *redis.Client
}

// Key prefixes for different cache types
const (
	PrefixPlan      = "plan:"
	PrefixRunStatus = "runstatus:"
	PrefixRateLimit = "ratelimit:"
)

// Default TTLs
const (
	PlanCacheTTL    = 6 * time.Hour
	RunStatusTTL    = 24 * time.Hour
	RateLimitWindow = 1 * time.Minute
)

// New creates a new Redis cache client
func New(cfg config.RedisConfig) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &Cache{client: client}, nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// Health checks Redis connectivity
func (c *Cache) Health(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Client returns the underlying Redis client for advanced operations
func (c *Cache) Client() *redis.Client {
	return c.client
}

// SiteModelHash derives the plan-cache key input: a stable hash over
// the site model's page ids and types, so an unchanged site reuses the
// cached plan instead of paying for another LLM call.
func SiteModelHash(site *domain.SiteModel) string {
	h := sha256.New()
	fmt.Fprint(h, site.BaseURL)
	for _, pm := range site.Pages {
		fmt.Fprintf(h, "|%s:%s", pm.PageID, pm.PageType)
	}
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// GetPlan retrieves a cached plan for the given site-model hash.
// A miss returns (nil, nil).
func (c *Cache) GetPlan(ctx context.Context, siteHash string) (*domain.TestPlan, error) {
	data, err := c.client.Get(ctx, PrefixPlan+siteHash).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var p domain.TestPlan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// SetPlan caches a plan for the given site-model hash.
func (c *Cache) SetPlan(ctx context.Context, siteHash string, p *domain.TestPlan) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, PrefixPlan+siteHash, data, PlanCacheTTL).Err()
}

// InvalidatePlan drops the cached plan for a site-model hash.
func (c *Cache) InvalidatePlan(ctx context.Context, siteHash string) error {
	return c.client.Del(ctx, PrefixPlan+siteHash).Err()
}

// GetRunState retrieves a cached run lifecycle state.
func (c *Cache) GetRunState(ctx context.Context, runID string) (domain.RunState, error) {
	state, err := c.client.Get(ctx, PrefixRunStatus+runID).Result()
	if err != nil {
		if err == redis.Nil {
			return "", nil
		}
		return "", err
	}
	return domain.RunState(state), nil
}

// SetRunState publishes a run's lifecycle state for the API's
// status endpoint.
func (c *Cache) SetRunState(ctx context.Context, runID string, state domain.RunState) error {
	return c.client.Set(ctx, PrefixRunStatus+runID, string(state), RunStatusTTL).Err()
}

// CheckRateLimit increments the fixed-window counter for key and
// reports whether the request is still within limit.
func (c *Cache) CheckRateLimit(ctx context.Context, key string, limit int) (bool, int, error) {
	fullKey := PrefixRateLimit + key

	count, err := c.client.Incr(ctx, fullKey).Result()
	if err != nil {
		return false, 0, err
	}
	if count == 1 {
		c.client.Expire(ctx, fullKey, RateLimitWindow)
	}

	return int(count) <= limit, int(count), nil
}

// Generic cache operations

// Get retrieves raw bytes; a miss returns (nil, nil).
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

// Set stores raw bytes with a TTL.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

// Delete removes a key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}
