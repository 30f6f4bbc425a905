package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v81"
	"go.uber.org/zap"

	"github.com/lendsaas/backend/internal/domain/billing"
	"github.com/lendsaas/backend/internal/domain/shared"
	infrabilling "github.com/lendsaas/backend/internal/infrastructure/billing"
)

// Stripe metadata keys set on subscriptions and invoices at checkout
const (
	StripeMetadataTenantID = "tenant_id"
	StripeMetadataPlanID   = "plan_id"
)

// stripeEventTTL is how long a processed Stripe event id is remembered.
// Stripe retries failed deliveries for up to three days.
const stripeEventTTL = 72 * time.Hour

// SubscriptionLifecycle is the set of lifecycle operations billing events drive
type SubscriptionLifecycle interface {
	ConfirmPeriod(ctx context.Context, subscriptionID uuid.UUID) (*billing.Subscription, error)
	ChangePlan(ctx context.Context, subscriptionID, newPlanID uuid.UUID) (*billing.Subscription, error)
	MarkPastDue(ctx context.Context, subscriptionID uuid.UUID) (*billing.Subscription, error)
	Cancel(ctx context.Context, subscriptionID uuid.UUID) (*billing.Subscription, error)
	ScheduleCancel(ctx context.Context, subscriptionID uuid.UUID) (*billing.Subscription, error)
	LinkExternal(ctx context.Context, subscriptionID uuid.UUID, ref string) (*billing.Subscription, error)
}

// StripeWebhookService verifies Stripe webhooks and maps them onto
// subscription lifecycle operations.
type StripeWebhookService struct {
	config    *infrabilling.StripeConfig
	subRepo   billing.SubscriptionRepository
	planRepo  billing.PlanRepository
	lifecycle SubscriptionLifecycle
	events    shared.IdempotencyStore
	logger    *zap.Logger
}

// StripeWebhookServiceConfig contains configuration for StripeWebhookService
type StripeWebhookServiceConfig struct {
	Config    *infrabilling.StripeConfig
	SubRepo   billing.SubscriptionRepository
	PlanRepo  billing.PlanRepository
	Lifecycle SubscriptionLifecycle
	// Events deduplicates redelivered events; optional
	Events shared.IdempotencyStore
	Logger *zap.Logger
}

// NewStripeWebhookService creates a new StripeWebhookService
func NewStripeWebhookService(cfg StripeWebhookServiceConfig) *StripeWebhookService {
	return &StripeWebhookService{
		config:    cfg.Config,
		subRepo:   cfg.SubRepo,
		planRepo:  cfg.PlanRepo,
		lifecycle: cfg.Lifecycle,
		events:    cfg.Events,
		logger:    cfg.Logger,
	}
}

// WebhookResult contains the result of processing a webhook
type WebhookResult struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Processed bool   `json:"processed"`
	Message   string `json:"message,omitempty"`
}

// ProcessWebhook verifies and handles a Stripe webhook delivery
func (s *StripeWebhookService) ProcessWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	event, err := s.config.ConstructEvent(payload, signature)
	if err != nil {
		s.logger.Warn("Failed to verify webhook signature", zap.Error(err))
		return nil, fmt.Errorf("webhook signature verification failed: %w", err)
	}
	return s.HandleEvent(ctx, event)
}

// HandleEvent handles an already verified Stripe event. Events seen before
// are acknowledged without being applied again.
func (s *StripeWebhookService) HandleEvent(ctx context.Context, event stripe.Event) (*WebhookResult, error) {
	s.logger.Info("Processing Stripe webhook event",
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)))

	result := &WebhookResult{
		EventID:   event.ID,
		EventType: string(event.Type),
		Processed: true,
	}

	marked, duplicate := s.markEvent(ctx, event.ID)
	if duplicate {
		result.Message = "Event already processed"
		return result, nil
	}

	var err error
	switch event.Type {
	case "invoice.paid":
		err = s.handleInvoicePaid(ctx, event)
	case "invoice.payment_failed":
		err = s.handleInvoicePaymentFailed(ctx, event)
	case "customer.subscription.created":
		err = s.handleSubscriptionCreated(ctx, event)
	case "customer.subscription.updated":
		err = s.handleSubscriptionUpdated(ctx, event)
	case "customer.subscription.deleted":
		err = s.handleSubscriptionDeleted(ctx, event)
	default:
		s.logger.Debug("Unhandled webhook event type",
			zap.String("event_type", string(event.Type)))
		result.Message = "Event type not handled"
	}

	if err != nil {
		s.logger.Error("Failed to process webhook event",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
		if marked {
			if relErr := s.events.Release(ctx, stripeEventKey(event.ID)); relErr != nil {
				s.logger.Warn("Failed to release webhook event marker", zap.Error(relErr))
			}
		}
		result.Processed = false
		result.Message = err.Error()
		return result, err
	}

	return result, nil
}

func (s *StripeWebhookService) handleInvoicePaid(ctx context.Context, event stripe.Event) error {
	sub, invoiceID, err := s.invoiceSubscription(ctx, event)
	if err != nil || sub == nil {
		return err
	}

	if _, err := s.lifecycle.ConfirmPeriod(ctx, sub.ID); err != nil {
		return fmt.Errorf("confirm period: %w", err)
	}
	s.logger.Info("Invoice paid processed successfully",
		zap.String("tenant_id", sub.TenantID.String()),
		zap.String("invoice_id", invoiceID))
	return nil
}

func (s *StripeWebhookService) handleInvoicePaymentFailed(ctx context.Context, event stripe.Event) error {
	sub, invoiceID, err := s.invoiceSubscription(ctx, event)
	if err != nil || sub == nil {
		return err
	}

	if _, err := s.lifecycle.MarkPastDue(ctx, sub.ID); err != nil {
		return fmt.Errorf("mark past due: %w", err)
	}
	s.logger.Warn("Invoice payment failed, subscription past due",
		zap.String("tenant_id", sub.TenantID.String()),
		zap.String("invoice_id", invoiceID))
	return nil
}

func (s *StripeWebhookService) handleSubscriptionCreated(ctx context.Context, event stripe.Event) error {
	var stripeSub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &stripeSub); err != nil {
		return fmt.Errorf("failed to unmarshal subscription: %w", err)
	}

	// locate links the provider id when it finds the subscription by tenant
	_, err := s.locate(ctx, stripeSub.ID, stripeSub.Metadata)
	return err
}

func (s *StripeWebhookService) handleSubscriptionUpdated(ctx context.Context, event stripe.Event) error {
	var stripeSub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &stripeSub); err != nil {
		return fmt.Errorf("failed to unmarshal subscription: %w", err)
	}

	sub, err := s.locate(ctx, stripeSub.ID, stripeSub.Metadata)
	if err != nil || sub == nil {
		return err
	}

	if ref := stripeSub.Metadata[StripeMetadataPlanID]; ref != "" {
		plan, err := s.resolvePlan(ctx, ref)
		if err != nil {
			return err
		}
		if plan != nil && plan.ID != sub.PlanID {
			if sub, err = s.lifecycle.ChangePlan(ctx, sub.ID, plan.ID); err != nil {
				return fmt.Errorf("change plan: %w", err)
			}
			s.logger.Info("Subscription plan changed",
				zap.String("tenant_id", sub.TenantID.String()),
				zap.String("plan", plan.Code))
		}
	}

	if stripeSub.CancelAtPeriodEnd && !sub.CancelAtPeriodEnd {
		if _, err := s.lifecycle.ScheduleCancel(ctx, sub.ID); err != nil {
			return fmt.Errorf("schedule cancel: %w", err)
		}
	}
	return nil
}

func (s *StripeWebhookService) handleSubscriptionDeleted(ctx context.Context, event stripe.Event) error {
	var stripeSub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &stripeSub); err != nil {
		return fmt.Errorf("failed to unmarshal subscription: %w", err)
	}

	sub, err := s.locate(ctx, stripeSub.ID, stripeSub.Metadata)
	if err != nil || sub == nil {
		return err
	}

	if _, err := s.lifecycle.Cancel(ctx, sub.ID); err != nil {
		return fmt.Errorf("cancel: %w", err)
	}
	s.logger.Info("Subscription deleted processed successfully",
		zap.String("tenant_id", sub.TenantID.String()),
		zap.String("subscription_id", stripeSub.ID))
	return nil
}

// invoiceSubscription decodes an invoice event and finds the local
// subscription it bills. Invoices outside a subscription yield nil.
func (s *StripeWebhookService) invoiceSubscription(ctx context.Context, event stripe.Event) (*billing.Subscription, string, error) {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return nil, "", fmt.Errorf("failed to unmarshal invoice: %w", err)
	}
	if invoice.Subscription == nil || invoice.Subscription.ID == "" {
		s.logger.Debug("Invoice is not for a subscription, skipping",
			zap.String("invoice_id", invoice.ID))
		return nil, invoice.ID, nil
	}

	metadata := invoice.Metadata
	if len(metadata) == 0 {
		metadata = invoice.Subscription.Metadata
	}
	sub, err := s.locate(ctx, invoice.Subscription.ID, metadata)
	return sub, invoice.ID, err
}

// locate finds the local subscription for a Stripe subscription, first by
// provider id and then by the tenant_id metadata. A subscription found by
// tenant is linked to the provider id. When neither matches, the event is
// acknowledged: it may belong to a tenant that is not set up yet.
func (s *StripeWebhookService) locate(ctx context.Context, ref string, metadata map[string]string) (*billing.Subscription, error) {
	if ref != "" {
		sub, err := s.subRepo.FindByExternalRef(ctx, ref)
		if err == nil {
			return sub, nil
		}
		if !errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("find subscription by reference: %w", err)
		}
	}

	tenantID, err := uuid.Parse(metadata[StripeMetadataTenantID])
	if err != nil {
		s.logger.Warn("Subscription not found for Stripe reference",
			zap.String("stripe_subscription_id", ref))
		return nil, nil
	}

	sub, err := s.subRepo.FindByTenantID(ctx, tenantID)
	if errors.Is(err, shared.ErrNotFound) {
		s.logger.Warn("Subscription not found for tenant",
			zap.String("tenant_id", tenantID.String()),
			zap.String("stripe_subscription_id", ref))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find subscription by tenant: %w", err)
	}

	if ref != "" && sub.ExternalRef != ref {
		if sub, err = s.lifecycle.LinkExternal(ctx, sub.ID, ref); err != nil {
			return nil, fmt.Errorf("link subscription: %w", err)
		}
	}
	return sub, nil
}

// resolvePlan accepts a plan id or a plan code. Unknown plans are logged and skipped.
func (s *StripeWebhookService) resolvePlan(ctx context.Context, ref string) (*billing.Plan, error) {
	var (
		plan *billing.Plan
		err  error
	)
	if id, parseErr := uuid.Parse(ref); parseErr == nil {
		plan, err = s.planRepo.FindByID(ctx, id)
	} else {
		plan, err = s.planRepo.FindByCode(ctx, ref)
	}
	if errors.Is(err, shared.ErrNotFound) {
		s.logger.Warn("Plan in Stripe metadata not found", zap.String("plan", ref))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find plan: %w", err)
	}
	return plan, nil
}

// markEvent records the event id. It reports whether this call set the
// marker and whether the event was seen before. Store failures let the
// event through.
func (s *StripeWebhookService) markEvent(ctx context.Context, eventID string) (marked, duplicate bool) {
	if s.events == nil || eventID == "" {
		return false, false
	}
	isNew, err := s.events.MarkProcessed(ctx, stripeEventKey(eventID), stripeEventTTL)
	if err != nil {
		s.logger.Warn("Webhook dedup unavailable, processing anyway",
			zap.String("event_id", eventID),
			zap.Error(err))
		return false, false
	}
	if !isNew {
		s.logger.Debug("Duplicate webhook event, skipping", zap.String("event_id", eventID))
		return false, true
	}
	return true, false
}

func stripeEventKey(eventID string) string {
	return "stripe:event:" + eventID
}

// Ensure SubscriptionService implements SubscriptionLifecycle
var _ SubscriptionLifecycle = (*SubscriptionService)(nil)
