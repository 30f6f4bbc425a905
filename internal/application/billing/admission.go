package billing

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lendsaas/backend/internal/domain/billing"
	"github.com/lendsaas/backend/internal/infrastructure/persistence/tenant"
)

// EnforcementMode selects how Admission gates resource creation
type EnforcementMode string

const (
	// EnforcementSoft checks the limit, creates, then increments after commit.
	// Concurrent creators may overshoot the limit slightly.
	EnforcementSoft EnforcementMode = "soft"
	// EnforcementStrict reserves the usage unit in the same transaction as
	// the create, so the limit is never exceeded.
	EnforcementStrict EnforcementMode = "strict"
)

// UsageReserver conditionally takes delta units of a bound tenant's counter
// inside the accessor's transaction.
type UsageReserver interface {
	Reserve(ctx context.Context, acc *tenant.Accessor, period string, kind billing.ResourceKind, delta, limit int64) (bool, error)
}

// CreateFunc creates the gated record through the tenant-bound accessor
type CreateFunc func(ctx context.Context, acc *tenant.Accessor) error

// Admission gates the creation of metered records
type Admission struct {
	limits   *LimitService
	metering *MeteringService
	factory  *tenant.Factory
	reserver UsageReserver
	mode     EnforcementMode
	logger   *zap.Logger
}

// NewAdmission creates a new Admission. reserver is required only in strict mode.
func NewAdmission(
	limits *LimitService,
	metering *MeteringService,
	factory *tenant.Factory,
	reserver UsageReserver,
	mode EnforcementMode,
	logger *zap.Logger,
) *Admission {
	if mode != EnforcementStrict || reserver == nil {
		mode = EnforcementSoft
	}
	return &Admission{
		limits:   limits,
		metering: metering,
		factory:  factory,
		reserver: reserver,
		mode:     mode,
		logger:   logger,
	}
}

// Mode returns the effective enforcement mode
func (a *Admission) Mode() EnforcementMode {
	return a.mode
}

// Admit runs create for the tenant if consuming delta units of kind keeps
// the tenant within its plan, and records the consumption. It returns a
// *billing.LimitExceededError when the tenant has no headroom.
func (a *Admission) Admit(ctx context.Context, tenantID uuid.UUID, kind billing.ResourceKind, delta int64, create CreateFunc) error {
	if err := validateUsageTarget(tenantID, kind); err != nil {
		return err
	}
	if a.mode == EnforcementStrict && delta > 0 {
		return a.admitStrict(ctx, tenantID, kind, delta, create)
	}
	return a.admitSoft(ctx, tenantID, kind, delta, create)
}

func (a *Admission) admitSoft(ctx context.Context, tenantID uuid.UUID, kind billing.ResourceKind, delta int64, create CreateFunc) error {
	if delta > 0 {
		if err := a.limits.EnsureWithinLimit(ctx, tenantID, kind); err != nil {
			return err
		}
	}

	acc := a.factory.Bind(ctx, tenantID)
	if err := acc.Transaction(ctx, func(tx *tenant.Accessor) error {
		return create(ctx, tx)
	}); err != nil {
		return err
	}

	a.recordAfterCommit(ctx, tenantID, kind, delta)
	return nil
}

func (a *Admission) admitStrict(ctx context.Context, tenantID uuid.UUID, kind billing.ResourceKind, delta int64, create CreateFunc) error {
	plan, err := a.limits.PlanFor(ctx, tenantID)
	if err != nil {
		return err
	}
	limit, unlimited := plan.LimitFor(kind)
	if unlimited {
		return a.admitSoft(ctx, tenantID, kind, delta, create)
	}

	// Reading first backfills a missing stock counter, so the reservation
	// below starts from the real count rather than zero.
	current, err := a.metering.Snapshot(ctx, tenantID, kind)
	if err != nil && a.limits.Policy() == FailClosed {
		return err
	}

	period := a.metering.CurrentPeriod()
	acc := a.factory.Bind(ctx, tenantID)
	err = acc.Transaction(ctx, func(tx *tenant.Accessor) error {
		taken, err := a.reserver.Reserve(ctx, tx, period, kind, delta, limit)
		if err != nil {
			return storeUnavailable(err)
		}
		if !taken {
			if current < limit {
				current = limit
			}
			return billing.NewLimitExceededError(kind, current, limit)
		}
		return create(ctx, tx)
	})
	if err != nil {
		if billing.IsLimitExceeded(err) {
			a.logger.Info("Resource limit reached",
				zap.String("tenant_id", tenantID.String()),
				zap.String("kind", string(kind)),
				zap.Int64("limit", limit),
				zap.String("mode", string(a.mode)))
		}
		return err
	}

	a.metering.invalidate(ctx, tenantID, period, kind)
	return nil
}

// recordAfterCommit increments usage once the record exists. A failure here
// leaves the record in place; stock counters are repaired by reconciliation.
func (a *Admission) recordAfterCommit(ctx context.Context, tenantID uuid.UUID, kind billing.ResourceKind, delta int64) {
	if delta == 0 {
		return
	}
	if err := a.metering.Increment(ctx, tenantID, kind, delta); err != nil {
		a.logger.Error("Record created but usage increment failed",
			zap.String("tenant_id", tenantID.String()),
			zap.String("kind", string(kind)),
			zap.Int64("delta", delta),
			zap.Error(err))
	}
}
