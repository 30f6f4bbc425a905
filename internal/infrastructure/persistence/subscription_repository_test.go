package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lendsaas/backend/internal/domain/billing"
	"github.com/lendsaas/backend/internal/domain/shared"
)

var subscriptionEpoch = time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

func newTestSubscription(t *testing.T, plan *billing.Plan, now time.Time) *billing.Subscription {
	t.Helper()
	sub, err := billing.NewTrialSubscription(uuid.New(), plan, now)
	require.NoError(t, err)
	return sub
}

func TestSubscriptionRepository_CreateAndFind(t *testing.T) {
	db, _ := setupTestDB(t)
	repo := NewGormSubscriptionRepository(db)
	ctx := context.Background()
	plan := newTestPlan(t, "starter", 49)

	sub := newTestSubscription(t, plan, subscriptionEpoch)
	require.NoError(t, repo.Create(ctx, sub))

	found, err := repo.FindByTenantID(ctx, sub.TenantID)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, found.ID)
	assert.Equal(t, billing.SubscriptionStatusTrialing, found.Status)
	require.NotNil(t, found.TrialEndsAt)
	assert.True(t, found.TrialEndsAt.Equal(subscriptionEpoch.AddDate(0, 0, 14)))
	assert.Equal(t, 1, found.Version)

	t.Run("one subscription per tenant", func(t *testing.T) {
		second, err := billing.NewTrialSubscription(sub.TenantID, plan, subscriptionEpoch)
		require.NoError(t, err)
		assert.ErrorIs(t, repo.Create(ctx, second), shared.ErrAlreadyExists)
	})

	t.Run("external ref lookup", func(t *testing.T) {
		_, err := repo.FindByExternalRef(ctx, "")
		assert.ErrorIs(t, err, shared.ErrNotFound)

		found.LinkExternal("sub_123", subscriptionEpoch)
		require.NoError(t, repo.Update(ctx, found))

		byRef, err := repo.FindByExternalRef(ctx, "sub_123")
		require.NoError(t, err)
		assert.Equal(t, sub.ID, byRef.ID)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := repo.FindByID(ctx, uuid.New())
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestSubscriptionRepository_OptimisticUpdate(t *testing.T) {
	db, _ := setupTestDB(t)
	repo := NewGormSubscriptionRepository(db)
	ctx := context.Background()
	plan := newTestPlan(t, "starter", 49)

	sub := newTestSubscription(t, plan, subscriptionEpoch)
	require.NoError(t, repo.Create(ctx, sub))

	first, err := repo.FindByID(ctx, sub.ID)
	require.NoError(t, err)
	stale, err := repo.FindByID(ctx, sub.ID)
	require.NoError(t, err)

	require.NoError(t, first.ConfirmPeriod(subscriptionEpoch.Add(time.Hour)))
	require.NoError(t, repo.Update(ctx, first))
	assert.Equal(t, 2, first.Version)

	require.NoError(t, stale.Cancel(subscriptionEpoch.Add(2*time.Hour)))
	err = repo.Update(ctx, stale)
	assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)

	stored, err := repo.FindByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.SubscriptionStatusActive, stored.Status)
	assert.Equal(t, 2, stored.Version)
}

func TestSubscriptionRepository_Listings(t *testing.T) {
	db, _ := setupTestDB(t)
	repo := NewGormSubscriptionRepository(db)
	ctx := context.Background()
	plan := newTestPlan(t, "starter", 49)

	// periods end on Feb 1, Feb 4 and Feb 11
	var active []*billing.Subscription
	for _, days := range []int{0, 3, 10} {
		sub := newTestSubscription(t, plan, subscriptionEpoch)
		require.NoError(t, sub.ConfirmPeriod(subscriptionEpoch.AddDate(0, 0, days)))
		require.NoError(t, repo.Create(ctx, sub))
		active = append(active, sub)
	}
	trial := newTestSubscription(t, plan, subscriptionEpoch)
	require.NoError(t, repo.Create(ctx, trial))

	t.Run("active ending in window", func(t *testing.T) {
		from := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)
		to := from.AddDate(0, 0, 7)

		subs, err := repo.FindActiveEndingBetween(ctx, from, to)
		require.NoError(t, err)
		require.Len(t, subs, 1, "the window is open at from and closed at to")
		assert.Equal(t, active[1].ID, subs[0].ID)

		subs, err = repo.FindActiveEndingBetween(ctx, from.Add(-time.Second), to.AddDate(0, 0, 3))
		require.NoError(t, err)
		assert.Len(t, subs, 3)
	})

	t.Run("by statuses", func(t *testing.T) {
		subs, err := repo.FindByStatuses(ctx, billing.SubscriptionStatusTrialing)
		require.NoError(t, err)
		require.Len(t, subs, 1)
		assert.Equal(t, trial.ID, subs[0].ID)

		subs, err = repo.FindByStatuses(ctx, billing.EntitledSubscriptionStatuses()...)
		require.NoError(t, err)
		assert.Len(t, subs, 4)

		subs, err = repo.FindByStatuses(ctx)
		require.NoError(t, err)
		assert.Empty(t, subs)
	})
}

func TestSubscriptionRepository_ReplaceCanceled(t *testing.T) {
	db, _ := setupTestDB(t)
	repo := NewGormSubscriptionRepository(db)
	ctx := context.Background()
	plan := newTestPlan(t, "starter", 49)

	old := newTestSubscription(t, plan, subscriptionEpoch)
	require.NoError(t, repo.Create(ctx, old))

	next, err := billing.NewTrialSubscription(old.TenantID, plan, subscriptionEpoch.AddDate(0, 1, 0))
	require.NoError(t, err)

	t.Run("live subscription cannot be replaced", func(t *testing.T) {
		err := repo.ReplaceCanceled(ctx, old, next)
		assert.ErrorIs(t, err, shared.ErrInvalidState)
	})

	require.NoError(t, old.Cancel(subscriptionEpoch.AddDate(0, 0, 20)))
	require.NoError(t, repo.Update(ctx, old))

	t.Run("stale canceled copy conflicts", func(t *testing.T) {
		stale := *old
		stale.Version = 1
		err := repo.ReplaceCanceled(ctx, &stale, next)
		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
	})

	require.NoError(t, repo.ReplaceCanceled(ctx, old, next))

	current, err := repo.FindByTenantID(ctx, old.TenantID)
	require.NoError(t, err)
	assert.Equal(t, next.ID, current.ID)
	assert.Equal(t, billing.SubscriptionStatusTrialing, current.Status)

	_, err = repo.FindByID(ctx, old.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
