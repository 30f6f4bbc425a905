package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/lendsaas/backend/internal/domain/billing"
)

// DefaultUsageCacheTTL is how long a counter read is served from cache
const DefaultUsageCacheTTL = 30 * time.Second

const usageKeyPrefix = "usage:"

func usageKey(prefix string, tenantID uuid.UUID, period string, kind billing.ResourceKind) string {
	return fmt.Sprintf("%s%s:%s:%s", prefix, tenantID, period, kind)
}

// RedisUsageCache implements billing.UsageCache on Redis so every instance
// sees the same invalidations.
type RedisUsageCache struct {
	client    *redis.Client
	ttl       time.Duration
	keyPrefix string
}

// NewRedisUsageCache creates a usage cache over an existing client
func NewRedisUsageCache(client *redis.Client, ttl time.Duration) *RedisUsageCache {
	if ttl <= 0 {
		ttl = DefaultUsageCacheTTL
	}
	return &RedisUsageCache{client: client, ttl: ttl, keyPrefix: usageKeyPrefix}
}

// Get returns the cached counter; ok is false on a miss
func (c *RedisUsageCache) Get(ctx context.Context, tenantID uuid.UUID, period string, kind billing.ResourceKind) (int64, bool, error) {
	v, err := c.client.Get(ctx, usageKey(c.keyPrefix, tenantID, period, kind)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read usage cache: %w", err)
	}
	return v, true, nil
}

// Set stores the counter with the cache TTL (SET key value EX ttl)
func (c *RedisUsageCache) Set(ctx context.Context, tenantID uuid.UUID, period string, kind billing.ResourceKind, value int64) error {
	if err := c.client.Set(ctx, usageKey(c.keyPrefix, tenantID, period, kind), value, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write usage cache: %w", err)
	}
	return nil
}

// Invalidate drops the cached counter
func (c *RedisUsageCache) Invalidate(ctx context.Context, tenantID uuid.UUID, period string, kind billing.ResourceKind) error {
	if err := c.client.Del(ctx, usageKey(c.keyPrefix, tenantID, period, kind)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate usage cache: %w", err)
	}
	return nil
}

// InMemoryUsageCache implements billing.UsageCache for a single instance.
// Other instances never see its invalidations, so it relies on the TTL alone
// to bound staleness across a fleet.
type InMemoryUsageCache struct {
	mu      sync.RWMutex
	entries map[string]usageEntry
	ttl     time.Duration
	now     func() time.Time
}

type usageEntry struct {
	value     int64
	expiresAt time.Time
}

// NewInMemoryUsageCache creates an in-memory usage cache
func NewInMemoryUsageCache(ttl time.Duration) *InMemoryUsageCache {
	if ttl <= 0 {
		ttl = DefaultUsageCacheTTL
	}
	return &InMemoryUsageCache{
		entries: make(map[string]usageEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the cached counter; expired entries are misses
func (c *InMemoryUsageCache) Get(_ context.Context, tenantID uuid.UUID, period string, kind billing.ResourceKind) (int64, bool, error) {
	key := usageKey("", tenantID, period, kind)

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return 0, false, nil
	}
	if !c.now().Before(e.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return 0, false, nil
	}
	return e.value, true, nil
}

// Set stores the counter with the cache TTL
func (c *InMemoryUsageCache) Set(_ context.Context, tenantID uuid.UUID, period string, kind billing.ResourceKind, value int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[usageKey("", tenantID, period, kind)] = usageEntry{value: value, expiresAt: c.now().Add(c.ttl)}
	return nil
}

// Invalidate drops the cached counter
func (c *InMemoryUsageCache) Invalidate(_ context.Context, tenantID uuid.UUID, period string, kind billing.ResourceKind) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, usageKey("", tenantID, period, kind))
	return nil
}

// Size returns the number of entries, expired ones included
func (c *InMemoryUsageCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

var (
	_ billing.UsageCache = (*RedisUsageCache)(nil)
	_ billing.UsageCache = (*InMemoryUsageCache)(nil)
)
