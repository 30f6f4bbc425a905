package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/lendsaas/backend/internal/domain/billing"
	"github.com/lendsaas/backend/internal/domain/identity"
)

// MockSubscriptionRepository is a mock implementation of billing.SubscriptionRepository
type MockSubscriptionRepository struct {
	mock.Mock
}

func (m *MockSubscriptionRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Subscription, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Subscription), args.Error(1)
}

func (m *MockSubscriptionRepository) FindByTenantID(ctx context.Context, tenantID uuid.UUID) (*billing.Subscription, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Subscription), args.Error(1)
}

func (m *MockSubscriptionRepository) FindByExternalRef(ctx context.Context, ref string) (*billing.Subscription, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Subscription), args.Error(1)
}

func (m *MockSubscriptionRepository) FindByStatuses(ctx context.Context, statuses ...billing.SubscriptionStatus) ([]*billing.Subscription, error) {
	args := m.Called(ctx, statuses)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*billing.Subscription), args.Error(1)
}

func (m *MockSubscriptionRepository) FindActiveEndingBetween(ctx context.Context, from, to time.Time) ([]*billing.Subscription, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*billing.Subscription), args.Error(1)
}

func (m *MockSubscriptionRepository) Create(ctx context.Context, sub *billing.Subscription) error {
	return m.Called(ctx, sub).Error(0)
}

func (m *MockSubscriptionRepository) Update(ctx context.Context, sub *billing.Subscription) error {
	return m.Called(ctx, sub).Error(0)
}

func (m *MockSubscriptionRepository) ReplaceCanceled(ctx context.Context, previous, next *billing.Subscription) error {
	return m.Called(ctx, previous, next).Error(0)
}

// MockPlanRepository is a mock implementation of billing.PlanRepository
type MockPlanRepository struct {
	mock.Mock
}

func (m *MockPlanRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Plan, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Plan), args.Error(1)
}

func (m *MockPlanRepository) FindByCode(ctx context.Context, code string) (*billing.Plan, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Plan), args.Error(1)
}

func (m *MockPlanRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*billing.Plan, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[uuid.UUID]*billing.Plan), args.Error(1)
}

func (m *MockPlanRepository) Save(ctx context.Context, plan *billing.Plan) error {
	return m.Called(ctx, plan).Error(0)
}

// MockTenantRepository is a mock implementation of identity.TenantRepository
type MockTenantRepository struct {
	mock.Mock
}

func (m *MockTenantRepository) FindByID(ctx context.Context, id uuid.UUID) (*identity.Tenant, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.Tenant), args.Error(1)
}

func (m *MockTenantRepository) FindBySlug(ctx context.Context, slug string) (*identity.Tenant, error) {
	args := m.Called(ctx, slug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.Tenant), args.Error(1)
}

func (m *MockTenantRepository) ExistsBySlug(ctx context.Context, slug string) (bool, error) {
	args := m.Called(ctx, slug)
	return args.Bool(0), args.Error(1)
}

func (m *MockTenantRepository) Save(ctx context.Context, tenant *identity.Tenant) error {
	return m.Called(ctx, tenant).Error(0)
}

// MockUsageSnapshotRepository is a mock implementation of billing.UsageSnapshotRepository
type MockUsageSnapshotRepository struct {
	mock.Mock
}

func (m *MockUsageSnapshotRepository) Increment(ctx context.Context, tenantID uuid.UUID, period string, kind billing.ResourceKind, delta int64) error {
	return m.Called(ctx, tenantID, period, kind, delta).Error(0)
}

func (m *MockUsageSnapshotRepository) Find(ctx context.Context, tenantID uuid.UUID, period string) (*billing.UsageSnapshot, error) {
	args := m.Called(ctx, tenantID, period)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.UsageSnapshot), args.Error(1)
}

func (m *MockUsageSnapshotRepository) BackfillStock(ctx context.Context, tenantID uuid.UUID, period string, kind billing.ResourceKind, value int64) (int64, error) {
	args := m.Called(ctx, tenantID, period, kind, value)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockUsageSnapshotRepository) OverwriteStock(ctx context.Context, tenantID uuid.UUID, period string, values map[billing.ResourceKind]int64) error {
	return m.Called(ctx, tenantID, period, values).Error(0)
}

// MockStockCounter is a mock implementation of billing.StockCounter
type MockStockCounter struct {
	mock.Mock
}

func (m *MockStockCounter) CountStock(ctx context.Context, tenantID uuid.UUID, kind billing.ResourceKind) (int64, error) {
	args := m.Called(ctx, tenantID, kind)
	return args.Get(0).(int64), args.Error(1)
}

// MockGlobalUsageReader is a mock implementation of billing.GlobalUsageReader
type MockGlobalUsageReader struct {
	mock.Mock
}

func (m *MockGlobalUsageReader) ReadGlobalUsage(ctx context.Context, period string) (*billing.GlobalUsage, error) {
	args := m.Called(ctx, period)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.GlobalUsage), args.Error(1)
}

// MockUsageCache is a mock implementation of billing.UsageCache
type MockUsageCache struct {
	mock.Mock
}

func (m *MockUsageCache) Get(ctx context.Context, tenantID uuid.UUID, period string, kind billing.ResourceKind) (int64, bool, error) {
	args := m.Called(ctx, tenantID, period, kind)
	return args.Get(0).(int64), args.Bool(1), args.Error(2)
}

func (m *MockUsageCache) Set(ctx context.Context, tenantID uuid.UUID, period string, kind billing.ResourceKind, value int64) error {
	return m.Called(ctx, tenantID, period, kind, value).Error(0)
}

func (m *MockUsageCache) Invalidate(ctx context.Context, tenantID uuid.UUID, period string, kind billing.ResourceKind) error {
	return m.Called(ctx, tenantID, period, kind).Error(0)
}

// MockUsageReader is a mock implementation of UsageReader
type MockUsageReader struct {
	mock.Mock
}

func (m *MockUsageReader) Snapshot(ctx context.Context, tenantID uuid.UUID, kind billing.ResourceKind) (int64, error) {
	args := m.Called(ctx, tenantID, kind)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockUsageReader) SnapshotAll(ctx context.Context, tenantID uuid.UUID) (map[billing.ResourceKind]int64, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[billing.ResourceKind]int64), args.Error(1)
}

// MockLimitStatusReader is a mock implementation of LimitStatusReader
type MockLimitStatusReader struct {
	mock.Mock
}

func (m *MockLimitStatusReader) AllLimitsStatus(ctx context.Context, tenantID uuid.UUID) (map[billing.ResourceKind]*billing.LimitStatus, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[billing.ResourceKind]*billing.LimitStatus), args.Error(1)
}

// MockIdempotencyStore is a mock implementation of shared.IdempotencyStore
type MockIdempotencyStore struct {
	mock.Mock
}

func (m *MockIdempotencyStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockIdempotencyStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockIdempotencyStore) Release(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *MockIdempotencyStore) Close() error {
	return m.Called().Error(0)
}

// MockDispatcher is a mock implementation of billing.NotificationDispatcher
type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Dispatch(ctx context.Context, req billing.NotificationRequest) error {
	return m.Called(ctx, req).Error(0)
}

// MockLifecycle is a mock implementation of SubscriptionLifecycle
type MockLifecycle struct {
	mock.Mock
}

func (m *MockLifecycle) result(args mock.Arguments) (*billing.Subscription, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Subscription), args.Error(1)
}

func (m *MockLifecycle) ConfirmPeriod(ctx context.Context, subscriptionID uuid.UUID) (*billing.Subscription, error) {
	return m.result(m.Called(ctx, subscriptionID))
}

func (m *MockLifecycle) ChangePlan(ctx context.Context, subscriptionID, newPlanID uuid.UUID) (*billing.Subscription, error) {
	return m.result(m.Called(ctx, subscriptionID, newPlanID))
}

func (m *MockLifecycle) MarkPastDue(ctx context.Context, subscriptionID uuid.UUID) (*billing.Subscription, error) {
	return m.result(m.Called(ctx, subscriptionID))
}

func (m *MockLifecycle) Cancel(ctx context.Context, subscriptionID uuid.UUID) (*billing.Subscription, error) {
	return m.result(m.Called(ctx, subscriptionID))
}

func (m *MockLifecycle) ScheduleCancel(ctx context.Context, subscriptionID uuid.UUID) (*billing.Subscription, error) {
	return m.result(m.Called(ctx, subscriptionID))
}

func (m *MockLifecycle) LinkExternal(ctx context.Context, subscriptionID uuid.UUID, ref string) (*billing.Subscription, error) {
	return m.result(m.Called(ctx, subscriptionID, ref))
}
