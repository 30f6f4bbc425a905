package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lendsaas/backend/internal/domain/billing"
	"github.com/lendsaas/backend/internal/domain/identity"
	"github.com/lendsaas/backend/internal/domain/shared"
	"github.com/lendsaas/backend/internal/infrastructure/metrics"
	"github.com/lendsaas/backend/internal/infrastructure/telemetry"
)

// DefaultGracePeriod is how long a PAST_DUE subscription keeps its plan
const DefaultGracePeriod = 7 * 24 * time.Hour

// SubscriptionServiceConfig contains configuration for SubscriptionService
type SubscriptionServiceConfig struct {
	GracePeriod time.Duration
}

// DefaultSubscriptionServiceConfig returns default configuration
func DefaultSubscriptionServiceConfig() SubscriptionServiceConfig {
	return SubscriptionServiceConfig{GracePeriod: DefaultGracePeriod}
}

// SubscriptionService drives the subscription state machine and keeps the
// tenant's status in step with it.
type SubscriptionService struct {
	subRepo     billing.SubscriptionRepository
	planRepo    billing.PlanRepository
	tenantRepo  identity.TenantRepository
	logger      *zap.Logger
	gracePeriod time.Duration
	now         func() time.Time
}

// NewSubscriptionService creates a new SubscriptionService
func NewSubscriptionService(
	subRepo billing.SubscriptionRepository,
	planRepo billing.PlanRepository,
	tenantRepo identity.TenantRepository,
	logger *zap.Logger,
	config SubscriptionServiceConfig,
) *SubscriptionService {
	if config.GracePeriod <= 0 {
		config.GracePeriod = DefaultGracePeriod
	}
	return &SubscriptionService{
		subRepo:     subRepo,
		planRepo:    planRepo,
		tenantRepo:  tenantRepo,
		logger:      logger,
		gracePeriod: config.GracePeriod,
		now:         time.Now,
	}
}

// StartTrial puts the tenant on a trial of plan. A CANCELED subscription is
// replaced; any other existing subscription is an ALREADY_EXISTS error.
func (s *SubscriptionService) StartTrial(ctx context.Context, tenantID, planID uuid.UUID) (*billing.Subscription, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "subscription", "start_trial",
		telemetry.SpanAttrTenantID, tenantID)
	defer span.End()

	tenant, err := s.tenantRepo.FindByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	plan, err := s.planRepo.FindByID(ctx, planID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	sub, err := billing.NewTrialSubscription(tenantID, plan, now)
	if err != nil {
		return nil, err
	}

	existing, err := s.subRepo.FindByTenantID(ctx, tenantID)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		err = s.subRepo.Create(ctx, sub)
	case err != nil:
		return nil, err
	case existing.Status != billing.SubscriptionStatusCanceled:
		return nil, shared.NewDomainError("ALREADY_EXISTS",
			fmt.Sprintf("Tenant already has a %s subscription", existing.Status))
	default:
		err = s.subRepo.ReplaceCanceled(ctx, existing, sub)
	}
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	metrics.SubscriptionTransitionsTotal.WithLabelValues(string(sub.Status)).Inc()

	tenant.MarkTrial(now)
	if err := s.tenantRepo.Save(ctx, tenant); err != nil {
		return nil, fmt.Errorf("save tenant: %w", err)
	}

	s.logger.Info("Trial started",
		zap.String("tenant_id", tenantID.String()),
		zap.String("plan", plan.Code),
		zap.Time("trial_ends_at", *sub.TrialEndsAt))
	return sub, nil
}

// ConfirmPeriod records a confirmed payment: the subscription becomes ACTIVE
// for one more monthly cycle and the tenant is activated.
func (s *SubscriptionService) ConfirmPeriod(ctx context.Context, subscriptionID uuid.UUID) (*billing.Subscription, error) {
	return s.apply(ctx, subscriptionID, "confirm_period", func(sub *billing.Subscription, now time.Time) error {
		return sub.ConfirmPeriod(now)
	})
}

// ChangePlan swaps the subscription's plan immediately, without proration
func (s *SubscriptionService) ChangePlan(ctx context.Context, subscriptionID, newPlanID uuid.UUID) (*billing.Subscription, error) {
	plan, err := s.planRepo.FindByID(ctx, newPlanID)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, subscriptionID, "change_plan", func(sub *billing.Subscription, now time.Time) error {
		return sub.ChangePlan(plan, now)
	})
}

// MarkPastDue records a failed payment. The tenant keeps its plan until the
// grace period runs out.
func (s *SubscriptionService) MarkPastDue(ctx context.Context, subscriptionID uuid.UUID) (*billing.Subscription, error) {
	return s.apply(ctx, subscriptionID, "mark_past_due", func(sub *billing.Subscription, now time.Time) error {
		return sub.MarkPastDue(now)
	})
}

// Cancel ends the subscription now and suspends the tenant
func (s *SubscriptionService) Cancel(ctx context.Context, subscriptionID uuid.UUID) (*billing.Subscription, error) {
	return s.apply(ctx, subscriptionID, "cancel", func(sub *billing.Subscription, now time.Time) error {
		return sub.Cancel(now)
	})
}

// ScheduleCancel ends the subscription at its current period end
func (s *SubscriptionService) ScheduleCancel(ctx context.Context, subscriptionID uuid.UUID) (*billing.Subscription, error) {
	return s.apply(ctx, subscriptionID, "schedule_cancel", func(sub *billing.Subscription, now time.Time) error {
		return sub.ScheduleCancel(now)
	})
}

// LinkExternal stores the billing provider's subscription id
func (s *SubscriptionService) LinkExternal(ctx context.Context, subscriptionID uuid.UUID, ref string) (*billing.Subscription, error) {
	return s.apply(ctx, subscriptionID, "link_external", func(sub *billing.Subscription, now time.Time) error {
		sub.LinkExternal(ref, now)
		return nil
	})
}

// GetByTenant returns the tenant's subscription
func (s *SubscriptionService) GetByTenant(ctx context.Context, tenantID uuid.UUID) (*billing.Subscription, error) {
	return s.subRepo.FindByTenantID(ctx, tenantID)
}

// EntitledTenantIDs lists the tenants whose subscription currently grants a plan
func (s *SubscriptionService) EntitledTenantIDs(ctx context.Context) ([]uuid.UUID, error) {
	subs, err := s.subRepo.FindByStatuses(ctx, billing.EntitledSubscriptionStatuses()...)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(subs))
	for _, sub := range subs {
		ids = append(ids, sub.TenantID)
	}
	return ids, nil
}

// SweepResult summarizes one lifecycle sweep
type SweepResult struct {
	Examined int
	PastDue  int
	Canceled int
	Failed   int
	Errors   []TenantError
}

// SweepLifecycle applies the time-based transitions that are due: ACTIVE
// subscriptions past their period end become PAST_DUE (or CANCELED when
// cancellation was scheduled), PAST_DUE subscriptions past the grace period
// and expired trials are CANCELED and their tenants suspended.
func (s *SubscriptionService) SweepLifecycle(ctx context.Context) (*SweepResult, error) {
	subs, err := s.subRepo.FindByStatuses(ctx, billing.EntitledSubscriptionStatuses()...)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}

	now := s.now()
	result := &SweepResult{Examined: len(subs)}
	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		outcome, err := sub.Sweep(now, s.gracePeriod)
		if err == nil && outcome != billing.SweepNone {
			err = s.persist(ctx, sub, now)
		}
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, TenantError{TenantID: sub.TenantID, Error: err.Error()})
			s.logger.Warn("Lifecycle sweep failed for subscription",
				zap.String("subscription_id", sub.ID.String()),
				zap.String("tenant_id", sub.TenantID.String()),
				zap.Error(err))
			continue
		}

		switch outcome {
		case billing.SweepPastDue:
			result.PastDue++
		case billing.SweepCanceled:
			result.Canceled++
		}
	}

	s.logger.Info("Lifecycle sweep completed",
		zap.Int("examined", result.Examined),
		zap.Int("past_due", result.PastDue),
		zap.Int("canceled", result.Canceled),
		zap.Int("failed", result.Failed))
	return result, nil
}

// apply loads the subscription, runs mutate and persists the result.
// A stale version surfaces as an ErrConcurrencyConflict-coded error.
func (s *SubscriptionService) apply(ctx context.Context, subscriptionID uuid.UUID, op string, mutate func(*billing.Subscription, time.Time) error) (*billing.Subscription, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "subscription", op,
		telemetry.SpanAttrSubscriptionID, subscriptionID)
	defer span.End()

	sub, err := s.subRepo.FindByID(ctx, subscriptionID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	now := s.now()
	before := sub.Status
	if err := mutate(sub, now); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := s.persist(ctx, sub, now); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.logger.Info("Subscription updated",
		zap.String("operation", op),
		zap.String("subscription_id", sub.ID.String()),
		zap.String("tenant_id", sub.TenantID.String()),
		zap.String("from", string(before)),
		zap.String("to", string(sub.Status)))
	return sub, nil
}

// persist saves the subscription and brings the tenant's status in line
func (s *SubscriptionService) persist(ctx context.Context, sub *billing.Subscription, now time.Time) error {
	if err := s.subRepo.Update(ctx, sub); err != nil {
		return err
	}
	metrics.SubscriptionTransitionsTotal.WithLabelValues(string(sub.Status)).Inc()
	return s.syncTenant(ctx, sub, now)
}

func (s *SubscriptionService) syncTenant(ctx context.Context, sub *billing.Subscription, now time.Time) error {
	tenant, err := s.tenantRepo.FindByID(ctx, sub.TenantID)
	if err != nil {
		return fmt.Errorf("find tenant: %w", err)
	}

	before := tenant.Status
	switch sub.Status {
	case billing.SubscriptionStatusTrialing:
		tenant.MarkTrial(now)
	case billing.SubscriptionStatusActive:
		tenant.Activate(now)
	case billing.SubscriptionStatusCanceled:
		tenant.Suspend(now)
	}
	if tenant.Status == before {
		return nil
	}
	if err := s.tenantRepo.Save(ctx, tenant); err != nil {
		return fmt.Errorf("save tenant: %w", err)
	}
	return nil
}
