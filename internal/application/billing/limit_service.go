package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lendsaas/backend/internal/domain/billing"
	"github.com/lendsaas/backend/internal/domain/shared"
	"github.com/lendsaas/backend/internal/infrastructure/logger"
	"github.com/lendsaas/backend/internal/infrastructure/metrics"
	"github.com/lendsaas/backend/internal/infrastructure/telemetry"
)

// FailurePolicy decides what a limit check does when usage cannot be read
type FailurePolicy string

const (
	// FailOpen reports an Unknown status and allows the action
	FailOpen FailurePolicy = "fail_open"
	// FailClosed returns the store error to the caller
	FailClosed FailurePolicy = "fail_closed"
)

// LimitServiceConfig contains configuration for LimitService
type LimitServiceConfig struct {
	FailurePolicy FailurePolicy
}

// DefaultLimitServiceConfig returns default configuration
func DefaultLimitServiceConfig() LimitServiceConfig {
	return LimitServiceConfig{FailurePolicy: FailOpen}
}

// LimitService measures tenant usage against the plan of the tenant's
// entitled subscription.
type LimitService struct {
	subRepo  billing.SubscriptionRepository
	planRepo billing.PlanRepository
	usage    UsageReader
	logger   *zap.Logger
	policy   FailurePolicy
}

// NewLimitService creates a new LimitService
func NewLimitService(
	subRepo billing.SubscriptionRepository,
	planRepo billing.PlanRepository,
	usage UsageReader,
	logger *zap.Logger,
	config LimitServiceConfig,
) *LimitService {
	if config.FailurePolicy != FailClosed {
		config.FailurePolicy = FailOpen
	}
	return &LimitService{
		subRepo:  subRepo,
		planRepo: planRepo,
		usage:    usage,
		logger:   logger,
		policy:   config.FailurePolicy,
	}
}

// CheckLimit returns the tenant's status for one resource kind
func (s *LimitService) CheckLimit(ctx context.Context, tenantID uuid.UUID, kind billing.ResourceKind) (*billing.LimitStatus, error) {
	if err := validateUsageTarget(tenantID, kind); err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "limits", "check",
		telemetry.SpanAttrTenantID, tenantID,
		telemetry.SpanAttrResourceKind, kind,
	)
	defer span.End()

	plan, err := s.PlanFor(ctx, tenantID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	limit, unlimited := plan.LimitFor(kind)

	current, err := s.usage.Snapshot(ctx, tenantID, kind)
	if err != nil {
		if s.policy == FailClosed && !unlimited {
			telemetry.RecordError(span, err)
			return nil, err
		}
		logger.WithLogger(ctx, s.logger).Warn("Usage unavailable, allowing under fail-open policy",
			zap.String("tenant_id", tenantID.String()),
			zap.String("kind", string(kind)),
			zap.Error(err))
		status := billing.UnknownStatus(kind, limit)
		recordDecision(status)
		return status, nil
	}

	var status *billing.LimitStatus
	if unlimited {
		status = billing.UnlimitedStatus(kind, current)
	} else {
		status = billing.NewLimitStatus(kind, current, limit)
	}
	recordDecision(status)
	return status, nil
}

// AllLimitsStatus returns the tenant's status for every resource kind with
// one plan lookup and one usage read.
func (s *LimitService) AllLimitsStatus(ctx context.Context, tenantID uuid.UUID) (map[billing.ResourceKind]*billing.LimitStatus, error) {
	if tenantID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_TENANT", "Tenant ID is required")
	}

	plan, err := s.PlanFor(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	kinds := billing.AllResourceKinds()
	out := make(map[billing.ResourceKind]*billing.LimitStatus, len(kinds))

	usage, err := s.usage.SnapshotAll(ctx, tenantID)
	if err != nil {
		if s.policy == FailClosed {
			return nil, err
		}
		s.logger.Warn("Usage unavailable, reporting unknown statuses",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err))
		for _, kind := range kinds {
			limit, _ := plan.LimitFor(kind)
			out[kind] = billing.UnknownStatus(kind, limit)
		}
		return out, nil
	}

	for _, kind := range kinds {
		limit, unlimited := plan.LimitFor(kind)
		if unlimited {
			out[kind] = billing.UnlimitedStatus(kind, usage[kind])
			continue
		}
		out[kind] = billing.NewLimitStatus(kind, usage[kind], limit)
	}
	return out, nil
}

// EnsureWithinLimit returns a *billing.LimitExceededError when the tenant has
// no headroom left for kind. Callers check before creating and increment
// after the create commits.
func (s *LimitService) EnsureWithinLimit(ctx context.Context, tenantID uuid.UUID, kind billing.ResourceKind) error {
	status, err := s.CheckLimit(ctx, tenantID, kind)
	if err != nil {
		return err
	}
	if status.Blocks() {
		s.logger.Info("Resource limit reached",
			zap.String("tenant_id", tenantID.String()),
			zap.String("kind", string(kind)),
			zap.Int64("current", status.Current),
			zap.Int64("limit", status.Limit))
		return billing.NewLimitExceededError(kind, status.Current, status.Limit)
	}
	return nil
}

// PlanFor returns the plan of the tenant's entitled subscription, or
// billing.ErrNoActiveSubscription.
func (s *LimitService) PlanFor(ctx context.Context, tenantID uuid.UUID) (*billing.Plan, error) {
	sub, err := s.subRepo.FindByTenantID(ctx, tenantID)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, billing.ErrNoActiveSubscription
	}
	if err != nil {
		return nil, fmt.Errorf("find subscription: %w", err)
	}
	if !sub.IsEntitled() {
		return nil, billing.ErrNoActiveSubscription
	}

	plan, err := s.planRepo.FindByID(ctx, sub.PlanID)
	if err != nil {
		return nil, fmt.Errorf("find plan %s: %w", sub.PlanID, err)
	}
	return plan, nil
}

// Policy returns the configured failure policy
func (s *LimitService) Policy() FailurePolicy {
	return s.policy
}

func recordDecision(status *billing.LimitStatus) {
	var outcome string
	switch {
	case status.Unknown:
		outcome = metrics.OutcomeUnknown
	case status.IsUnlimited:
		outcome = metrics.OutcomeUnlimited
	case status.IsOverLimit:
		outcome = metrics.OutcomeBlocked
	case status.IsNearLimit:
		outcome = metrics.OutcomeNear
	default:
		outcome = metrics.OutcomeAllowed
	}
	metrics.LimitChecksTotal.WithLabelValues(string(status.Kind), outcome).Inc()
}
