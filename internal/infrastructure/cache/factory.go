package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lendsaas/backend/internal/domain/billing"
	"github.com/lendsaas/backend/internal/domain/shared"
	"github.com/lendsaas/backend/internal/infrastructure/config"
)

// Factory creates the Redis-backed usage cache and idempotency store, sharing
// one client, and falls back to in-memory implementations when Redis is
// disabled or unreachable.
type Factory struct {
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
	pingTimeout           time.Duration

	mu      sync.Mutex
	client  *redis.Client
	dialed  bool
	dialErr error
}

// FactoryOption is a functional option for configuring the factory
type FactoryOption func(*Factory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) FactoryOption {
	return func(f *Factory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to in-memory stores when
// Redis is unavailable. Default is true.
func WithInMemoryFallback(allow bool) FactoryOption {
	return func(f *Factory) {
		f.allowInMemoryFallback = allow
	}
}

// NewFactory creates a new factory
func NewFactory(cfg config.RedisConfig, opts ...FactoryOption) *Factory {
	f := &Factory{
		redisConfig:           cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
		pingTimeout:           5 * time.Second,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// redisClient connects once and reuses the outcome for every store
func (f *Factory) redisClient(ctx context.Context) (*redis.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.dialed {
		return f.client, f.dialErr
	}
	f.dialed = true

	if !f.redisConfig.Enabled {
		f.dialErr = fmt.Errorf("redis is disabled")
		return nil, f.dialErr
	}

	client := redis.NewClient(&redis.Options{
		Addr:     f.redisConfig.Addr(),
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, f.pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		f.dialErr = fmt.Errorf("failed to connect to Redis: %w", err)
		return nil, f.dialErr
	}

	f.client = client
	return client, nil
}

// CreateUsageCache returns a Redis usage cache, or an in-memory one when
// Redis cannot be used and fallback is allowed.
func (f *Factory) CreateUsageCache(ctx context.Context, ttl time.Duration) (billing.UsageCache, error) {
	client, err := f.redisClient(ctx)
	if err == nil {
		f.logger.Info("using Redis usage cache", zap.Duration("ttl", ttl))
		return NewRedisUsageCache(client, ttl), nil
	}
	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("redis required for usage cache but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory usage cache. "+
		"Invalidations will not reach other instances; staleness is bounded by the TTL.",
		zap.Duration("ttl", ttl),
		zap.Error(err),
	)
	return NewInMemoryUsageCache(ttl), nil
}

// CreateIdempotencyStore returns a Redis idempotency store, or an in-memory
// one when Redis cannot be used and fallback is allowed.
func (f *Factory) CreateIdempotencyStore(ctx context.Context) (shared.IdempotencyStore, error) {
	client, err := f.redisClient(ctx)
	if err == nil {
		f.logger.Info("using Redis idempotency store")
		return NewRedisIdempotencyStore(client, idempotencyKeyPrefix), nil
	}
	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("redis required for idempotency but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory idempotency store. "+
		"Multiple instances may each send the same notification.",
		zap.Error(err),
	)
	return NewInMemoryIdempotencyStore(), nil
}

// Close closes the shared Redis client, if one was opened
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.client == nil {
		return nil
	}
	err := f.client.Close()
	f.client = nil
	return err
}
