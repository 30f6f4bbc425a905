package handler

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	billingapp "github.com/lendsaas/backend/internal/application/billing"
	identityapp "github.com/lendsaas/backend/internal/application/identity"
	"github.com/lendsaas/backend/internal/application/lending"
	"github.com/lendsaas/backend/internal/domain/billing"
	"github.com/lendsaas/backend/internal/infrastructure/scheduler"
	"github.com/lendsaas/backend/internal/interfaces/http/dto"
	"github.com/lendsaas/backend/internal/interfaces/http/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type MockLimitReader struct {
	mock.Mock
}

func (m *MockLimitReader) CheckLimit(ctx context.Context, tenantID uuid.UUID, kind billing.ResourceKind) (*billing.LimitStatus, error) {
	args := m.Called(ctx, tenantID, kind)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.LimitStatus), args.Error(1)
}

func (m *MockLimitReader) AllLimitsStatus(ctx context.Context, tenantID uuid.UUID) (map[billing.ResourceKind]*billing.LimitStatus, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[billing.ResourceKind]*billing.LimitStatus), args.Error(1)
}

func (m *MockLimitReader) PlanFor(ctx context.Context, tenantID uuid.UUID) (*billing.Plan, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Plan), args.Error(1)
}

type MockUsageAggregator struct {
	mock.Mock
}

func (m *MockUsageAggregator) CurrentPeriod() string {
	return m.Called().String(0)
}

func (m *MockUsageAggregator) GlobalAggregate(ctx context.Context) (*billing.GlobalUsage, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.GlobalUsage), args.Error(1)
}

type MockWebhookProcessor struct {
	mock.Mock
}

func (m *MockWebhookProcessor) ProcessWebhook(ctx context.Context, payload []byte, signature string) (*billingapp.WebhookResult, error) {
	args := m.Called(ctx, payload, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billingapp.WebhookResult), args.Error(1)
}

type MockJobReporter struct {
	mock.Mock
}

func (m *MockJobReporter) IsRunning() bool {
	return m.Called().Bool(0)
}

func (m *MockJobReporter) LastRuns() map[string]scheduler.JobRun {
	return m.Called().Get(0).(map[string]scheduler.JobRun)
}

// withTenant stands in for the tenant middleware
func withTenant(tenantID uuid.UUID) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.TenantIDKey, tenantID.String())
		c.Next()
	}
}

// decodeResponse unmarshals the standard envelope
func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

type MockClientRegistrar struct {
	mock.Mock
}

func (m *MockClientRegistrar) Register(ctx context.Context, tenantID uuid.UUID, req lending.RegisterClientRequest) (*lending.ClientResponse, error) {
	args := m.Called(ctx, tenantID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*lending.ClientResponse), args.Error(1)
}

func (m *MockClientRegistrar) List(ctx context.Context, tenantID uuid.UUID, filter lending.ClientListFilter) ([]lending.ClientResponse, int64, error) {
	args := m.Called(ctx, tenantID, filter)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]lending.ClientResponse), args.Get(1).(int64), args.Error(2)
}

type MockMessageQueuer struct {
	mock.Mock
}

func (m *MockMessageQueuer) Queue(ctx context.Context, tenantID uuid.UUID, req lending.QueueMessageRequest) (*lending.MessageResponse, error) {
	args := m.Called(ctx, tenantID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*lending.MessageResponse), args.Error(1)
}

type MockTenantProvisioner struct {
	mock.Mock
}

func (m *MockTenantProvisioner) Provision(ctx context.Context, input identityapp.ProvisionTenantInput) (*identityapp.ProvisionResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identityapp.ProvisionResult), args.Error(1)
}

func (m *MockTenantProvisioner) GetByID(ctx context.Context, id uuid.UUID) (*identityapp.TenantDTO, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identityapp.TenantDTO), args.Error(1)
}
