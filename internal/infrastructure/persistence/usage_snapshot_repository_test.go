package persistence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lendsaas/backend/internal/domain/billing"
	"github.com/lendsaas/backend/internal/domain/shared"
	"github.com/lendsaas/backend/internal/infrastructure/persistence/tenant"
)

func newTestUsageRepo(t *testing.T) (*GormUsageSnapshotRepository, *tenant.Factory) {
	t.Helper()
	db, factory := setupTestDB(t)
	repo := NewGormUsageSnapshotRepository(db)
	repo.now = fixedClock(time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC))
	return repo, factory
}

func TestUsageSnapshotRepository_Increment(t *testing.T) {
	repo, _ := newTestUsageRepo(t)
	ctx := context.Background()
	tenantID := uuid.New()

	t.Run("first increment creates the period row", func(t *testing.T) {
		require.NoError(t, repo.Increment(ctx, tenantID, "2025-01", billing.ResourceAPICalls, 3))

		snap, err := repo.Find(ctx, tenantID, "2025-01")
		require.NoError(t, err)
		assert.Equal(t, int64(3), snap.Get(billing.ResourceAPICalls))
		assert.Equal(t, int64(0), snap.Get(billing.ResourceSMS))
	})

	t.Run("later increments accumulate", func(t *testing.T) {
		require.NoError(t, repo.Increment(ctx, tenantID, "2025-01", billing.ResourceAPICalls, 2))
		require.NoError(t, repo.Increment(ctx, tenantID, "2025-01", billing.ResourceSMS, 1))

		snap, err := repo.Find(ctx, tenantID, "2025-01")
		require.NoError(t, err)
		assert.Equal(t, int64(5), snap.Get(billing.ResourceAPICalls))
		assert.Equal(t, int64(1), snap.Get(billing.ResourceSMS))
	})

	t.Run("negative delta decrements", func(t *testing.T) {
		require.NoError(t, repo.Increment(ctx, tenantID, "2025-01", billing.ResourceAPICalls, -4))

		snap, err := repo.Find(ctx, tenantID, "2025-01")
		require.NoError(t, err)
		assert.Equal(t, int64(1), snap.Get(billing.ResourceAPICalls))
	})

	t.Run("unknown kind is rejected", func(t *testing.T) {
		err := repo.Increment(ctx, tenantID, "2025-01", billing.ResourceKind("faxes"), 1)
		var domainErr *shared.DomainError
		require.True(t, errors.As(err, &domainErr))
		assert.Equal(t, "INVALID_RESOURCE_KIND", domainErr.Code)
	})
}

func TestUsageSnapshotRepository_PeriodBoundary(t *testing.T) {
	repo, _ := newTestUsageRepo(t)
	ctx := context.Background()
	tenantID := uuid.New()

	jan := billing.PeriodKey(time.Date(2025, 1, 31, 23, 59, 59, 0, time.UTC))
	feb := billing.PeriodKey(time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))
	require.Equal(t, "2025-01", jan)
	require.Equal(t, "2025-02", feb)

	require.NoError(t, repo.Increment(ctx, tenantID, jan, billing.ResourceSMS, 1))
	require.NoError(t, repo.Increment(ctx, tenantID, feb, billing.ResourceSMS, 1))

	janSnap, err := repo.Find(ctx, tenantID, jan)
	require.NoError(t, err)
	febSnap, err := repo.Find(ctx, tenantID, feb)
	require.NoError(t, err)

	assert.Equal(t, int64(1), janSnap.Get(billing.ResourceSMS))
	assert.Equal(t, int64(1), febSnap.Get(billing.ResourceSMS))
}

func TestUsageSnapshotRepository_ConcurrentIncrements(t *testing.T) {
	repo, _ := newTestUsageRepo(t)
	ctx := context.Background()
	tenantID := uuid.New()

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- repo.Increment(ctx, tenantID, "2025-01", billing.ResourceAPICalls, 1)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	snap, err := repo.Find(ctx, tenantID, "2025-01")
	require.NoError(t, err)
	assert.Equal(t, int64(workers), snap.Get(billing.ResourceAPICalls))
}

func TestUsageSnapshotRepository_Find(t *testing.T) {
	repo, _ := newTestUsageRepo(t)

	_, err := repo.Find(context.Background(), uuid.New(), "2025-01")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestUsageSnapshotRepository_BackfillStock(t *testing.T) {
	repo, _ := newTestUsageRepo(t)
	ctx := context.Background()
	tenantID := uuid.New()

	t.Run("missing row takes the computed value", func(t *testing.T) {
		stored, err := repo.BackfillStock(ctx, tenantID, "2025-01", billing.ResourceLoans, 42)
		require.NoError(t, err)
		assert.Equal(t, int64(42), stored)
	})

	t.Run("non-zero counter is kept", func(t *testing.T) {
		stored, err := repo.BackfillStock(ctx, tenantID, "2025-01", billing.ResourceLoans, 7)
		require.NoError(t, err)
		assert.Equal(t, int64(42), stored)
	})

	t.Run("zero counter on an existing row is filled", func(t *testing.T) {
		require.NoError(t, repo.Increment(ctx, tenantID, "2025-02", billing.ResourceSMS, 1))

		stored, err := repo.BackfillStock(ctx, tenantID, "2025-02", billing.ResourceClients, 9)
		require.NoError(t, err)
		assert.Equal(t, int64(9), stored)

		snap, err := repo.Find(ctx, tenantID, "2025-02")
		require.NoError(t, err)
		assert.Equal(t, int64(1), snap.Get(billing.ResourceSMS))
	})

	t.Run("negative counter is replaced", func(t *testing.T) {
		require.NoError(t, repo.Increment(ctx, tenantID, "2025-03", billing.ResourceLoans, -1))

		stored, err := repo.BackfillStock(ctx, tenantID, "2025-03", billing.ResourceLoans, 49)
		require.NoError(t, err)
		assert.Equal(t, int64(49), stored)
	})

	t.Run("flow kinds are rejected", func(t *testing.T) {
		_, err := repo.BackfillStock(ctx, tenantID, "2025-01", billing.ResourceSMS, 1)
		require.Error(t, err)
	})
}

func TestUsageSnapshotRepository_OverwriteStock(t *testing.T) {
	repo, _ := newTestUsageRepo(t)
	ctx := context.Background()
	tenantID := uuid.New()

	require.NoError(t, repo.Increment(ctx, tenantID, "2025-01", billing.ResourceLoans, 5))
	require.NoError(t, repo.Increment(ctx, tenantID, "2025-01", billing.ResourceAPICalls, 11))

	require.NoError(t, repo.OverwriteStock(ctx, tenantID, "2025-01", map[billing.ResourceKind]int64{
		billing.ResourceLoans:   2,
		billing.ResourceStorage: 2048,
	}))

	snap, err := repo.Find(ctx, tenantID, "2025-01")
	require.NoError(t, err)
	assert.Equal(t, int64(2), snap.Get(billing.ResourceLoans))
	assert.Equal(t, int64(2048), snap.Get(billing.ResourceStorage))
	assert.Equal(t, int64(11), snap.Get(billing.ResourceAPICalls), "flow counters are untouched")

	err = repo.OverwriteStock(ctx, tenantID, "2025-01", map[billing.ResourceKind]int64{billing.ResourceReports: 1})
	require.Error(t, err)
}

func TestUsageSnapshotRepository_Reserve(t *testing.T) {
	repo, factory := newTestUsageRepo(t)
	ctx := context.Background()
	tenantID := uuid.New()
	acc := factory.Bind(ctx, tenantID)

	reserve := func(delta, limit int64) bool {
		var taken bool
		require.NoError(t, acc.Transaction(ctx, func(tx *tenant.Accessor) error {
			var err error
			taken, err = repo.Reserve(ctx, tx, "2025-01", billing.ResourceLoans, delta, limit)
			return err
		}))
		return taken
	}

	assert.True(t, reserve(1, 2))
	assert.True(t, reserve(1, 2))
	assert.False(t, reserve(1, 2), "third unit exceeds the limit")

	snap, err := repo.Find(ctx, tenantID, "2025-01")
	require.NoError(t, err)
	assert.Equal(t, int64(2), snap.Get(billing.ResourceLoans))

	t.Run("rollback releases the reservation", func(t *testing.T) {
		rollback := errors.New("create failed")
		err := acc.Transaction(ctx, func(tx *tenant.Accessor) error {
			taken, err := repo.Reserve(ctx, tx, "2025-01", billing.ResourceLoans, 1, 10)
			require.NoError(t, err)
			require.True(t, taken)
			return rollback
		})
		assert.ErrorIs(t, err, rollback)

		snap, err := repo.Find(ctx, tenantID, "2025-01")
		require.NoError(t, err)
		assert.Equal(t, int64(2), snap.Get(billing.ResourceLoans))
	})

	t.Run("unscoped accessor cannot reserve", func(t *testing.T) {
		_, err := repo.Reserve(ctx, factory.Unscoped(ctx, "test"), "2025-01", billing.ResourceLoans, 1, 10)
		assert.ErrorIs(t, err, tenant.ErrTenantRequired)
	})
}
