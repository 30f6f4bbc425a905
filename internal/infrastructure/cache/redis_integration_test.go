//go:build integration

package cache

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/lendsaas/backend/internal/domain/billing"
	"github.com/lendsaas/backend/internal/infrastructure/config"
)

func startRedis(t *testing.T) config.RedisConfig {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "Failed to start Redis container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Warning: Failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)
	p, err := strconv.Atoi(port.Port())
	require.NoError(t, err)

	return config.RedisConfig{Enabled: true, Host: host, Port: p}
}

func TestRedisStores(t *testing.T) {
	f := NewFactory(startRedis(t), WithInMemoryFallback(false))
	defer f.Close()
	ctx := context.Background()
	tenantID := uuid.New()

	t.Run("usage cache", func(t *testing.T) {
		usage, err := f.CreateUsageCache(ctx, time.Second)
		require.NoError(t, err)
		require.IsType(t, &RedisUsageCache{}, usage)

		require.NoError(t, usage.Set(ctx, tenantID, "2025-01", billing.ResourceLoans, 12))
		v, ok, err := usage.Get(ctx, tenantID, "2025-01", billing.ResourceLoans)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, int64(12), v)

		require.NoError(t, usage.Invalidate(ctx, tenantID, "2025-01", billing.ResourceLoans))
		_, ok, err = usage.Get(ctx, tenantID, "2025-01", billing.ResourceLoans)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, usage.Set(ctx, tenantID, "2025-01", billing.ResourceSMS, 1))
		time.Sleep(1500 * time.Millisecond)
		_, ok, err = usage.Get(ctx, tenantID, "2025-01", billing.ResourceSMS)
		require.NoError(t, err)
		assert.False(t, ok, "entry expires with the ttl")
	})

	t.Run("idempotency store", func(t *testing.T) {
		store, err := f.CreateIdempotencyStore(ctx)
		require.NoError(t, err)
		key := billing.ExpiryNotificationKey(tenantID)

		isNew, err := store.MarkProcessed(ctx, key, time.Hour)
		require.NoError(t, err)
		assert.True(t, isNew)

		isNew, err = store.MarkProcessed(ctx, key, time.Hour)
		require.NoError(t, err)
		assert.False(t, isNew)

		require.NoError(t, store.Release(ctx, key))
		processed, err := store.IsProcessed(ctx, key)
		require.NoError(t, err)
		assert.False(t, processed)
	})
}
