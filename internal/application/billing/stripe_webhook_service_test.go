package billing

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
	"go.uber.org/zap"

	"github.com/lendsaas/backend/internal/domain/billing"
	"github.com/lendsaas/backend/internal/domain/shared"
	infrabilling "github.com/lendsaas/backend/internal/infrastructure/billing"
	"github.com/lendsaas/backend/internal/infrastructure/cache"
)

const testWebhookSecret = "whsec_test_secret"

type webhookFixture struct {
	svc       *StripeWebhookService
	subRepo   *MockSubscriptionRepository
	planRepo  *MockPlanRepository
	lifecycle *MockLifecycle
	events    *cache.InMemoryIdempotencyStore
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()
	cfg := infrabilling.DefaultStripeConfig()
	cfg.WebhookSecret = testWebhookSecret

	f := &webhookFixture{
		subRepo:   new(MockSubscriptionRepository),
		planRepo:  new(MockPlanRepository),
		lifecycle: new(MockLifecycle),
		events:    cache.NewInMemoryIdempotencyStore(),
	}
	t.Cleanup(func() { _ = f.events.Close() })

	f.svc = NewStripeWebhookService(StripeWebhookServiceConfig{
		Config:    cfg,
		SubRepo:   f.subRepo,
		PlanRepo:  f.planRepo,
		Lifecycle: f.lifecycle,
		Events:    f.events,
		Logger:    zap.NewNop(),
	})
	return f
}

func stripeEvent(t *testing.T, id, eventType string, object map[string]any) stripe.Event {
	t.Helper()
	raw, err := json.Marshal(object)
	require.NoError(t, err)
	return stripe.Event{
		ID:   id,
		Type: stripe.EventType(eventType),
		Data: &stripe.EventData{Raw: raw},
	}
}

func TestStripeWebhookService_ProcessWebhook(t *testing.T) {
	t.Run("rejects a bad signature", func(t *testing.T) {
		f := newWebhookFixture(t)
		payload := []byte(`{"id":"evt_1","object":"event","type":"invoice.paid","data":{"object":{}}}`)

		_, err := f.svc.ProcessWebhook(context.Background(), payload, "t=1,v1=deadbeef")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "signature verification failed")
		f.subRepo.AssertNotCalled(t, "FindByExternalRef", mock.Anything, mock.Anything)
	})

	t.Run("verifies and applies a signed payment", func(t *testing.T) {
		f := newWebhookFixture(t)
		plan := newTestPlan(t, nil)
		sub := newTestSubscription(t, uuid.New(), plan, billing.SubscriptionStatusActive)
		sub.ExternalRef = "sub_abc"

		payload := []byte(`{"id":"evt_signed","object":"event","type":"invoice.paid",` +
			`"data":{"object":{"id":"in_1","object":"invoice","subscription":"sub_abc"}}}`)
		signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
			Payload:   payload,
			Secret:    testWebhookSecret,
			Timestamp: time.Now(),
		})

		f.subRepo.On("FindByExternalRef", mock.Anything, "sub_abc").Return(sub, nil)
		f.lifecycle.On("ConfirmPeriod", mock.Anything, sub.ID).Return(sub, nil)

		result, err := f.svc.ProcessWebhook(context.Background(), signed.Payload, signed.Header)
		require.NoError(t, err)
		assert.True(t, result.Processed)
		assert.Equal(t, "evt_signed", result.EventID)
		f.lifecycle.AssertExpectations(t)
	})
}

func TestStripeWebhookService_InvoiceEvents(t *testing.T) {
	plan := newTestPlan(t, nil)

	t.Run("payment failure marks past due", func(t *testing.T) {
		f := newWebhookFixture(t)
		sub := newTestSubscription(t, uuid.New(), plan, billing.SubscriptionStatusActive)
		f.subRepo.On("FindByExternalRef", mock.Anything, "sub_abc").Return(sub, nil)
		f.lifecycle.On("MarkPastDue", mock.Anything, sub.ID).Return(sub, nil)

		event := stripeEvent(t, "evt_2", "invoice.payment_failed", map[string]any{
			"id": "in_2", "object": "invoice", "subscription": "sub_abc",
		})
		result, err := f.svc.HandleEvent(context.Background(), event)
		require.NoError(t, err)
		assert.True(t, result.Processed)
		f.lifecycle.AssertExpectations(t)
	})

	t.Run("one-off invoice is skipped", func(t *testing.T) {
		f := newWebhookFixture(t)
		event := stripeEvent(t, "evt_3", "invoice.paid", map[string]any{"id": "in_3", "object": "invoice"})

		result, err := f.svc.HandleEvent(context.Background(), event)
		require.NoError(t, err)
		assert.True(t, result.Processed)
		f.lifecycle.AssertNotCalled(t, "ConfirmPeriod", mock.Anything, mock.Anything)
	})

	t.Run("falls back to tenant metadata and links the reference", func(t *testing.T) {
		f := newWebhookFixture(t)
		tenantID := uuid.New()
		sub := newTestSubscription(t, tenantID, plan, billing.SubscriptionStatusTrialing)
		linked := *sub
		linked.ExternalRef = "sub_new"

		f.subRepo.On("FindByExternalRef", mock.Anything, "sub_new").Return(nil, shared.ErrNotFound)
		f.subRepo.On("FindByTenantID", mock.Anything, tenantID).Return(sub, nil)
		f.lifecycle.On("LinkExternal", mock.Anything, sub.ID, "sub_new").Return(&linked, nil)
		f.lifecycle.On("ConfirmPeriod", mock.Anything, sub.ID).Return(&linked, nil)

		event := stripeEvent(t, "evt_4", "invoice.paid", map[string]any{
			"id": "in_4", "object": "invoice", "subscription": "sub_new",
			"metadata": map[string]string{StripeMetadataTenantID: tenantID.String()},
		})
		_, err := f.svc.HandleEvent(context.Background(), event)
		require.NoError(t, err)
		f.lifecycle.AssertExpectations(t)
	})

	t.Run("unknown tenant is acknowledged", func(t *testing.T) {
		f := newWebhookFixture(t)
		f.subRepo.On("FindByExternalRef", mock.Anything, "sub_ghost").Return(nil, shared.ErrNotFound)

		event := stripeEvent(t, "evt_5", "invoice.paid", map[string]any{
			"id": "in_5", "object": "invoice", "subscription": "sub_ghost",
		})
		result, err := f.svc.HandleEvent(context.Background(), event)
		require.NoError(t, err)
		assert.True(t, result.Processed)
		f.lifecycle.AssertNotCalled(t, "ConfirmPeriod", mock.Anything, mock.Anything)
	})
}

func TestStripeWebhookService_SubscriptionEvents(t *testing.T) {
	starter := newTestPlan(t, nil)
	pro, err := billing.NewPlan("pro", "Pro", 0, decimal.NewFromInt(99), "USD")
	require.NoError(t, err)

	t.Run("plan code in metadata changes the plan", func(t *testing.T) {
		f := newWebhookFixture(t)
		sub := newTestSubscription(t, uuid.New(), starter, billing.SubscriptionStatusActive)
		f.subRepo.On("FindByExternalRef", mock.Anything, "sub_abc").Return(sub, nil)
		f.planRepo.On("FindByCode", mock.Anything, "pro").Return(pro, nil)
		f.lifecycle.On("ChangePlan", mock.Anything, sub.ID, pro.ID).Return(sub, nil)

		event := stripeEvent(t, "evt_6", "customer.subscription.updated", map[string]any{
			"id": "sub_abc", "object": "subscription",
			"metadata": map[string]string{StripeMetadataPlanID: "pro"},
		})
		_, err := f.svc.HandleEvent(context.Background(), event)
		require.NoError(t, err)
		f.lifecycle.AssertExpectations(t)
		f.lifecycle.AssertNotCalled(t, "ScheduleCancel", mock.Anything, mock.Anything)
	})

	t.Run("same plan and scheduled cancellation", func(t *testing.T) {
		f := newWebhookFixture(t)
		sub := newTestSubscription(t, uuid.New(), starter, billing.SubscriptionStatusActive)
		f.subRepo.On("FindByExternalRef", mock.Anything, "sub_abc").Return(sub, nil)
		f.planRepo.On("FindByID", mock.Anything, starter.ID).Return(starter, nil)
		f.lifecycle.On("ScheduleCancel", mock.Anything, sub.ID).Return(sub, nil)

		event := stripeEvent(t, "evt_7", "customer.subscription.updated", map[string]any{
			"id": "sub_abc", "object": "subscription", "cancel_at_period_end": true,
			"metadata": map[string]string{StripeMetadataPlanID: starter.ID.String()},
		})
		_, err := f.svc.HandleEvent(context.Background(), event)
		require.NoError(t, err)
		f.lifecycle.AssertNotCalled(t, "ChangePlan", mock.Anything, mock.Anything, mock.Anything)
		f.lifecycle.AssertExpectations(t)
	})

	t.Run("unknown plan is ignored", func(t *testing.T) {
		f := newWebhookFixture(t)
		sub := newTestSubscription(t, uuid.New(), starter, billing.SubscriptionStatusActive)
		f.subRepo.On("FindByExternalRef", mock.Anything, "sub_abc").Return(sub, nil)
		f.planRepo.On("FindByCode", mock.Anything, "enterprise").Return(nil, shared.ErrNotFound)

		event := stripeEvent(t, "evt_8", "customer.subscription.updated", map[string]any{
			"id": "sub_abc", "object": "subscription",
			"metadata": map[string]string{StripeMetadataPlanID: "enterprise"},
		})
		_, err := f.svc.HandleEvent(context.Background(), event)
		require.NoError(t, err)
		f.lifecycle.AssertNotCalled(t, "ChangePlan", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("deletion cancels", func(t *testing.T) {
		f := newWebhookFixture(t)
		sub := newTestSubscription(t, uuid.New(), starter, billing.SubscriptionStatusPastDue)
		f.subRepo.On("FindByExternalRef", mock.Anything, "sub_abc").Return(sub, nil)
		f.lifecycle.On("Cancel", mock.Anything, sub.ID).Return(sub, nil)

		event := stripeEvent(t, "evt_9", "customer.subscription.deleted", map[string]any{
			"id": "sub_abc", "object": "subscription",
		})
		_, err := f.svc.HandleEvent(context.Background(), event)
		require.NoError(t, err)
		f.lifecycle.AssertExpectations(t)
	})

	t.Run("unhandled type is acknowledged", func(t *testing.T) {
		f := newWebhookFixture(t)
		event := stripeEvent(t, "evt_10", "charge.refunded", map[string]any{"id": "ch_1"})

		result, err := f.svc.HandleEvent(context.Background(), event)
		require.NoError(t, err)
		assert.Equal(t, "Event type not handled", result.Message)
	})
}

func TestStripeWebhookService_Deduplication(t *testing.T) {
	plan := newTestPlan(t, nil)

	t.Run("redelivered event is applied once", func(t *testing.T) {
		f := newWebhookFixture(t)
		sub := newTestSubscription(t, uuid.New(), plan, billing.SubscriptionStatusActive)
		f.subRepo.On("FindByExternalRef", mock.Anything, "sub_abc").Return(sub, nil)
		f.lifecycle.On("Cancel", mock.Anything, sub.ID).Return(sub, nil).Once()

		event := stripeEvent(t, "evt_dup", "customer.subscription.deleted", map[string]any{
			"id": "sub_abc", "object": "subscription",
		})
		_, err := f.svc.HandleEvent(context.Background(), event)
		require.NoError(t, err)

		result, err := f.svc.HandleEvent(context.Background(), event)
		require.NoError(t, err)
		assert.Equal(t, "Event already processed", result.Message)
		f.lifecycle.AssertNumberOfCalls(t, "Cancel", 1)
	})

	t.Run("failed event can be retried", func(t *testing.T) {
		f := newWebhookFixture(t)
		sub := newTestSubscription(t, uuid.New(), plan, billing.SubscriptionStatusActive)
		f.subRepo.On("FindByExternalRef", mock.Anything, "sub_abc").Return(sub, nil)
		f.lifecycle.On("Cancel", mock.Anything, sub.ID).Return(nil, shared.ErrConcurrencyConflict).Once()
		f.lifecycle.On("Cancel", mock.Anything, sub.ID).Return(sub, nil).Once()

		event := stripeEvent(t, "evt_retry", "customer.subscription.deleted", map[string]any{
			"id": "sub_abc", "object": "subscription",
		})
		result, err := f.svc.HandleEvent(context.Background(), event)
		require.Error(t, err)
		assert.True(t, errors.Is(err, shared.ErrConcurrencyConflict))
		assert.False(t, result.Processed)

		result, err = f.svc.HandleEvent(context.Background(), event)
		require.NoError(t, err)
		assert.True(t, result.Processed)
		f.lifecycle.AssertNumberOfCalls(t, "Cancel", 2)
	})
}
