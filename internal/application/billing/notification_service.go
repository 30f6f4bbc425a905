package billing

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lendsaas/backend/internal/domain/billing"
	"github.com/lendsaas/backend/internal/domain/shared"
	"github.com/lendsaas/backend/internal/infrastructure/metrics"
)

// Notification run outcomes
const (
	notifySent       = "sent"
	notifySuppressed = "suppressed"
	notifyFailed     = "failed"
)

// LimitStatusReader reports every limit status of a tenant
type LimitStatusReader interface {
	AllLimitsStatus(ctx context.Context, tenantID uuid.UUID) (map[billing.ResourceKind]*billing.LimitStatus, error)
}

// NotificationServiceConfig contains configuration for NotificationService
type NotificationServiceConfig struct {
	// ExpiryWindow is how far ahead of period end an expiring-soon notice goes out
	ExpiryWindow time.Duration
	// Suppression is how long a sent notification blocks a repeat
	Suppression time.Duration
}

// DefaultNotificationServiceConfig returns default configuration
func DefaultNotificationServiceConfig() NotificationServiceConfig {
	return NotificationServiceConfig{
		ExpiryWindow: 3 * 24 * time.Hour,
		Suppression:  24 * time.Hour,
	}
}

// NotificationRunResult summarizes one notification check
type NotificationRunResult struct {
	Considered int
	Sent       int
	Suppressed int
	Failed     int
}

// NotificationService issues expiring-soon and limit-warning notification
// requests. Each request is deduplicated through an idempotency store so a
// periodic check sends it once per suppression window.
type NotificationService struct {
	subRepo    billing.SubscriptionRepository
	limits     LimitStatusReader
	dispatcher billing.NotificationDispatcher
	store      shared.IdempotencyStore
	logger     *zap.Logger
	config     NotificationServiceConfig
	now        func() time.Time
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(
	subRepo billing.SubscriptionRepository,
	limits LimitStatusReader,
	dispatcher billing.NotificationDispatcher,
	store shared.IdempotencyStore,
	logger *zap.Logger,
	config NotificationServiceConfig,
) *NotificationService {
	defaults := DefaultNotificationServiceConfig()
	if config.ExpiryWindow <= 0 {
		config.ExpiryWindow = defaults.ExpiryWindow
	}
	if config.Suppression <= 0 {
		config.Suppression = defaults.Suppression
	}
	return &NotificationService{
		subRepo:    subRepo,
		limits:     limits,
		dispatcher: dispatcher,
		store:      store,
		logger:     logger,
		config:     config,
		now:        time.Now,
	}
}

// RunExpiryCheck sends one expiring_soon request for every ACTIVE
// subscription whose period ends within the expiry window.
func (s *NotificationService) RunExpiryCheck(ctx context.Context) (*NotificationRunResult, error) {
	now := s.now()
	subs, err := s.subRepo.FindActiveEndingBetween(ctx, now, now.Add(s.config.ExpiryWindow))
	if err != nil {
		return nil, fmt.Errorf("list expiring subscriptions: %w", err)
	}

	result := &NotificationRunResult{}
	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Considered++

		remaining := sub.CurrentPeriodEnd.Sub(now)
		req := billing.NotificationRequest{
			TenantID: sub.TenantID,
			Kind:     billing.NotificationExpiringSoon,
			TemplateData: map[string]any{
				"subscription_id": sub.ID.String(),
				"plan_id":         sub.PlanID.String(),
				"period_end":      sub.CurrentPeriodEnd.UTC().Format(time.RFC3339),
				"days_left":       int(math.Ceil(remaining.Hours() / 24)),
			},
		}
		s.tally(result, s.notify(ctx, billing.ExpiryNotificationKey(sub.TenantID), req))
	}

	s.logResult("Expiry check completed", result)
	return result, nil
}

// RunLimitCheck sends one limit_warning request per tenant, kind and
// threshold when an entitled tenant's usage reaches 80% or 100% of a limit.
// Each run requests only the highest threshold reached, so usage that goes
// from below 80% to 100% between runs yields the 100% warning and never the
// 80% one.
func (s *NotificationService) RunLimitCheck(ctx context.Context) (*NotificationRunResult, error) {
	subs, err := s.subRepo.FindByStatuses(ctx, billing.EntitledSubscriptionStatuses()...)
	if err != nil {
		return nil, fmt.Errorf("list entitled subscriptions: %w", err)
	}

	result := &NotificationRunResult{}
	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		statuses, err := s.limits.AllLimitsStatus(ctx, sub.TenantID)
		if err != nil {
			s.logger.Warn("Skipping limit check for tenant",
				zap.String("tenant_id", sub.TenantID.String()),
				zap.Error(err))
			continue
		}

		for _, kind := range billing.AllResourceKinds() {
			status, ok := statuses[kind]
			if !ok {
				continue
			}
			threshold := status.CrossedThreshold()
			if threshold == 0 {
				continue
			}
			result.Considered++

			req := billing.NotificationRequest{
				TenantID: sub.TenantID,
				Kind:     billing.NotificationLimitWarning,
				TemplateData: map[string]any{
					"kind":         string(kind),
					"display_name": kind.DisplayName(),
					"threshold":    threshold,
					"current":      status.Current,
					"limit":        status.Limit,
					"percent_used": status.PercentUsed,
				},
			}
			key := billing.LimitNotificationKey(sub.TenantID, kind, threshold)
			s.tally(result, s.notify(ctx, key, req))
		}
	}

	s.logResult("Limit check completed", result)
	return result, nil
}

// notify marks key and dispatches req. An unreachable marker store does not
// block delivery; a failed delivery releases the marker so the next run
// retries.
func (s *NotificationService) notify(ctx context.Context, key string, req billing.NotificationRequest) string {
	marked := false
	isNew, err := s.store.MarkProcessed(ctx, key, s.config.Suppression)
	switch {
	case err != nil:
		s.logger.Warn("Notification dedup unavailable, sending anyway",
			zap.String("key", key),
			zap.Error(err))
	case !isNew:
		s.logger.Debug("Notification suppressed", zap.String("key", key))
		metrics.NotificationsTotal.WithLabelValues(string(req.Kind), notifySuppressed).Inc()
		return notifySuppressed
	default:
		marked = true
	}

	if err := s.dispatcher.Dispatch(ctx, req); err != nil {
		metrics.NotificationsTotal.WithLabelValues(string(req.Kind), notifyFailed).Inc()
		s.logger.Error("Notification delivery failed",
			zap.String("key", key),
			zap.String("tenant_id", req.TenantID.String()),
			zap.Error(err))
		if marked {
			if relErr := s.store.Release(ctx, key); relErr != nil {
				s.logger.Warn("Failed to release notification marker",
					zap.String("key", key),
					zap.Error(relErr))
			}
		}
		return notifyFailed
	}

	metrics.NotificationsTotal.WithLabelValues(string(req.Kind), notifySent).Inc()
	return notifySent
}

func (s *NotificationService) tally(result *NotificationRunResult, outcome string) {
	switch outcome {
	case notifySent:
		result.Sent++
	case notifySuppressed:
		result.Suppressed++
	case notifyFailed:
		result.Failed++
	}
}

func (s *NotificationService) logResult(msg string, result *NotificationRunResult) {
	s.logger.Info(msg,
		zap.Int("considered", result.Considered),
		zap.Int("sent", result.Sent),
		zap.Int("suppressed", result.Suppressed),
		zap.Int("failed", result.Failed))
}
