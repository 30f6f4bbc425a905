package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	billingapp "github.com/lendsaas/backend/internal/application/billing"
	"github.com/lendsaas/backend/internal/domain/billing"
	"github.com/lendsaas/backend/internal/domain/identity"
	"github.com/lendsaas/backend/internal/domain/shared"
	"github.com/lendsaas/backend/internal/infrastructure/persistence"
)

type tenantFixture struct {
	service    *TenantService
	tenantRepo *persistence.GormTenantRepository
	subRepo    *persistence.GormSubscriptionRepository
}

func setupTenantService(t *testing.T, defaultPlan string) *tenantFixture {
	t.Helper()
	ctx := context.Background()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(persistence.AllModels()...))

	tenantRepo := persistence.NewGormTenantRepository(db)
	planRepo := persistence.NewGormPlanRepository(db)
	subRepo := persistence.NewGormSubscriptionRepository(db)

	for _, code := range []string{"starter", "growth"} {
		plan, err := billing.NewPlan(code, code, 14, decimal.NewFromInt(29), "USD")
		require.NoError(t, err)
		require.NoError(t, planRepo.Save(ctx, plan))
	}

	subs := billingapp.NewSubscriptionService(subRepo, planRepo, tenantRepo, zap.NewNop(), billingapp.DefaultSubscriptionServiceConfig())
	return &tenantFixture{
		service:    NewTenantService(tenantRepo, planRepo, subs, defaultPlan, zap.NewNop()),
		tenantRepo: tenantRepo,
		subRepo:    subRepo,
	}
}

func TestTenantService_ProvisionStartsTrial(t *testing.T) {
	f := setupTenantService(t, "starter")
	ctx := context.Background()

	result, err := f.service.Provision(ctx, ProvisionTenantInput{Slug: "North-Credit", Name: "North Credit"})
	require.NoError(t, err)

	assert.Equal(t, "north-credit", result.Tenant.Slug)
	assert.Equal(t, string(identity.TenantStatusTrial), result.Tenant.Status)
	assert.Equal(t, "starter", result.PlanCode)
	require.NotNil(t, result.TrialEndsAt)

	stored, err := f.tenantRepo.FindByID(ctx, result.Tenant.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsTrial())

	sub, err := f.subRepo.FindByTenantID(ctx, result.Tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.SubscriptionStatusTrialing, sub.Status)
	assert.Equal(t, result.SubscriptionID, sub.ID)

	got, err := f.service.GetByID(ctx, result.Tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, "North Credit", got.Name)
}

func TestTenantService_ProvisionRequestedPlan(t *testing.T) {
	f := setupTenantService(t, "starter")

	result, err := f.service.Provision(context.Background(), ProvisionTenantInput{Slug: "south-loans", Name: "South Loans", PlanCode: "growth"})
	require.NoError(t, err)
	assert.Equal(t, "growth", result.PlanCode)
}

func TestTenantService_ProvisionRejects(t *testing.T) {
	t.Run("unknown plan writes nothing", func(t *testing.T) {
		f := setupTenantService(t, "starter")
		ctx := context.Background()

		_, err := f.service.Provision(ctx, ProvisionTenantInput{Slug: "north-credit", Name: "North", PlanCode: "platinum"})
		var de *shared.DomainError
		require.True(t, errors.As(err, &de))
		assert.Equal(t, "INVALID_PLAN", de.Code)

		exists, err := f.tenantRepo.ExistsBySlug(ctx, "north-credit")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("no default plan", func(t *testing.T) {
		f := setupTenantService(t, "")
		_, err := f.service.Provision(context.Background(), ProvisionTenantInput{Slug: "north-credit", Name: "North"})
		var de *shared.DomainError
		require.True(t, errors.As(err, &de))
		assert.Equal(t, "INVALID_PLAN", de.Code)
	})

	t.Run("duplicate slug", func(t *testing.T) {
		f := setupTenantService(t, "starter")
		ctx := context.Background()
		_, err := f.service.Provision(ctx, ProvisionTenantInput{Slug: "north-credit", Name: "North"})
		require.NoError(t, err)

		_, err = f.service.Provision(ctx, ProvisionTenantInput{Slug: "NORTH-CREDIT", Name: "Copy"})
		assert.ErrorIs(t, err, shared.ErrAlreadyExists)
	})
}

type failingTrials struct {
	mock.Mock
}

func (m *failingTrials) StartTrial(ctx context.Context, tenantID, planID uuid.UUID) (*billing.Subscription, error) {
	args := m.Called(ctx, tenantID, planID)
	return nil, args.Error(1)
}

func TestTenantService_ProvisionTrialFailure(t *testing.T) {
	f := setupTenantService(t, "starter")
	trials := new(failingTrials)
	trials.On("StartTrial", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("database is locked"))
	f.service.trials = trials

	_, err := f.service.Provision(context.Background(), ProvisionTenantInput{Slug: "north-credit", Name: "North"})
	assert.EqualError(t, err, "database is locked")
	trials.AssertExpectations(t)
}
