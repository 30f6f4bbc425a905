package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lendsaas/backend/internal/domain/billing"
	"github.com/lendsaas/backend/internal/domain/shared"
	"github.com/lendsaas/backend/internal/infrastructure/logger"
	"github.com/lendsaas/backend/internal/infrastructure/metrics"
	"github.com/lendsaas/backend/internal/infrastructure/telemetry"
)

// UsageReader reads a tenant's current-period counters
type UsageReader interface {
	Snapshot(ctx context.Context, tenantID uuid.UUID, kind billing.ResourceKind) (int64, error)
	SnapshotAll(ctx context.Context, tenantID uuid.UUID) (map[billing.ResourceKind]int64, error)
}

// MeteringService records and reads per-tenant usage counters for the
// current calendar-month period.
type MeteringService struct {
	usageRepo billing.UsageSnapshotRepository
	stock     billing.StockCounter
	global    billing.GlobalUsageReader
	cache     billing.UsageCache
	logger    *zap.Logger
	now       func() time.Time
}

// NewMeteringService creates a new MeteringService. cache may be nil.
func NewMeteringService(
	usageRepo billing.UsageSnapshotRepository,
	stock billing.StockCounter,
	global billing.GlobalUsageReader,
	cache billing.UsageCache,
	logger *zap.Logger,
) *MeteringService {
	return &MeteringService{
		usageRepo: usageRepo,
		stock:     stock,
		global:    global,
		cache:     cache,
		logger:    logger,
		now:       time.Now,
	}
}

// CurrentPeriod returns the period key usage is recorded under right now
func (s *MeteringService) CurrentPeriod() string {
	return billing.PeriodKey(s.now())
}

// Increment adds delta to the tenant's counter for kind in the current
// period. The store applies it as a single atomic upsert; the cached value
// is dropped afterwards.
//
// For stock kinds the change behind delta must already be committed. When
// the period has no positive counter yet, it is seeded from a recount of the
// owning records, which already includes the change, and delta is applied
// only if another writer seeded the row first.
func (s *MeteringService) Increment(ctx context.Context, tenantID uuid.UUID, kind billing.ResourceKind, delta int64) error {
	if err := validateUsageTarget(tenantID, kind); err != nil {
		return err
	}
	period := s.CurrentPeriod()

	ctx, span := telemetry.StartServiceSpan(ctx, "metering", "increment",
		telemetry.SpanAttrTenantID, tenantID,
		telemetry.SpanAttrResourceKind, kind,
		telemetry.SpanAttrPeriod, period,
	)
	defer span.End()

	if kind.IsStock() {
		seeded, err := s.seedStock(ctx, tenantID, period, kind)
		if err != nil {
			metrics.UsageIncrementsTotal.WithLabelValues(string(kind), "error").Inc()
			telemetry.RecordError(span, err)
			return err
		}
		if seeded {
			metrics.UsageIncrementsTotal.WithLabelValues(string(kind), "ok").Inc()
			s.invalidate(ctx, tenantID, period, kind)
			return nil
		}
	}

	if err := s.usageRepo.Increment(ctx, tenantID, period, kind, delta); err != nil {
		metrics.UsageIncrementsTotal.WithLabelValues(string(kind), "error").Inc()
		telemetry.RecordError(span, err)
		logger.WithLogger(ctx, s.logger).Error("Failed to increment usage",
			zap.String("tenant_id", tenantID.String()),
			zap.String("kind", string(kind)),
			zap.Int64("delta", delta),
			zap.Error(err))
		return storeUnavailable(err)
	}
	metrics.UsageIncrementsTotal.WithLabelValues(string(kind), "ok").Inc()

	s.invalidate(ctx, tenantID, period, kind)
	return nil
}

// Snapshot returns the tenant's current-period value for kind. A flow kind
// with no row reads as zero. A stock kind whose counter is missing, zero or
// negative is recomputed from the owning records and persisted.
func (s *MeteringService) Snapshot(ctx context.Context, tenantID uuid.UUID, kind billing.ResourceKind) (int64, error) {
	if err := validateUsageTarget(tenantID, kind); err != nil {
		return 0, err
	}
	period := s.CurrentPeriod()

	if v, ok := s.cached(ctx, tenantID, period, kind); ok {
		return v, nil
	}

	snap, err := s.findSnapshot(ctx, tenantID, period)
	if err != nil {
		return 0, err
	}

	value := snap.Get(kind)
	if kind.IsStock() && value <= 0 {
		if _, value, err = s.backfill(ctx, tenantID, period, kind); err != nil {
			return 0, err
		}
	}

	s.store(ctx, tenantID, period, kind, value)
	return value, nil
}

// SnapshotAll returns every counter of the tenant's current period with one
// row read. Stock counters that are missing, zero or negative are backfilled.
func (s *MeteringService) SnapshotAll(ctx context.Context, tenantID uuid.UUID) (map[billing.ResourceKind]int64, error) {
	if tenantID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_TENANT", "Tenant ID is required")
	}
	period := s.CurrentPeriod()

	snap, err := s.findSnapshot(ctx, tenantID, period)
	if err != nil {
		return nil, err
	}

	out := make(map[billing.ResourceKind]int64, len(billing.AllResourceKinds()))
	for _, kind := range billing.AllResourceKinds() {
		value := snap.Get(kind)
		if kind.IsStock() && value <= 0 {
			if _, value, err = s.backfill(ctx, tenantID, period, kind); err != nil {
				return nil, err
			}
		}
		out[kind] = value
		s.store(ctx, tenantID, period, kind, value)
	}
	return out, nil
}

// ReconcileStock overwrites the tenant's stock counters with fresh counts of
// the owning records, correcting drift left by failed or missed increments.
func (s *MeteringService) ReconcileStock(ctx context.Context, tenantID uuid.UUID) (map[billing.ResourceKind]int64, error) {
	if tenantID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_TENANT", "Tenant ID is required")
	}
	period := s.CurrentPeriod()

	values := make(map[billing.ResourceKind]int64)
	for _, kind := range billing.StockResourceKinds() {
		n, err := s.stock.CountStock(ctx, tenantID, kind)
		if err != nil {
			return nil, storeUnavailable(fmt.Errorf("count %s: %w", kind, err))
		}
		values[kind] = n
	}

	if err := s.usageRepo.OverwriteStock(ctx, tenantID, period, values); err != nil {
		return nil, storeUnavailable(err)
	}
	for kind := range values {
		s.invalidate(ctx, tenantID, period, kind)
	}

	s.logger.Debug("Stock counters reconciled",
		zap.String("tenant_id", tenantID.String()),
		zap.String("period", period),
		zap.Any("values", values))
	return values, nil
}

// ReconcileResult summarizes a reconciliation run over many tenants
type ReconcileResult struct {
	TotalTenants int
	Successful   int
	Failed       int
	Errors       []TenantError
}

// TenantError records the failure of a per-tenant step in a batch job
type TenantError struct {
	TenantID uuid.UUID `json:"tenant_id"`
	Error    string    `json:"error"`
}

// ReconcileTenants runs ReconcileStock for each tenant, continuing past
// individual failures.
func (s *MeteringService) ReconcileTenants(ctx context.Context, tenantIDs []uuid.UUID) *ReconcileResult {
	result := &ReconcileResult{TotalTenants: len(tenantIDs)}
	for _, id := range tenantIDs {
		if ctx.Err() != nil {
			result.Failed++
			result.Errors = append(result.Errors, TenantError{TenantID: id, Error: ctx.Err().Error()})
			continue
		}
		if _, err := s.ReconcileStock(ctx, id); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, TenantError{TenantID: id, Error: err.Error()})
			s.logger.Warn("Failed to reconcile stock counters",
				zap.String("tenant_id", id.String()),
				zap.Error(err))
			continue
		}
		result.Successful++
	}
	return result
}

// GlobalAggregate returns the platform-wide rollup for the current period.
// It reads every tenant through the privileged data path.
func (s *MeteringService) GlobalAggregate(ctx context.Context) (*billing.GlobalUsage, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "metering", "global_aggregate")
	defer span.End()

	usage, err := s.global.ReadGlobalUsage(ctx, s.CurrentPeriod())
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, storeUnavailable(err)
	}
	return usage, nil
}

func (s *MeteringService) findSnapshot(ctx context.Context, tenantID uuid.UUID, period string) (*billing.UsageSnapshot, error) {
	snap, err := s.usageRepo.Find(ctx, tenantID, period)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeUnavailable(err)
	}
	return snap, nil
}

// backfill recounts a stock kind and stores the count where the counter is
// not positive. It returns the recount and the value left in the store.
func (s *MeteringService) backfill(ctx context.Context, tenantID uuid.UUID, period string, kind billing.ResourceKind) (counted, stored int64, err error) {
	counted, err = s.stock.CountStock(ctx, tenantID, kind)
	if err != nil {
		return 0, 0, storeUnavailable(fmt.Errorf("count %s: %w", kind, err))
	}
	stored, err = s.usageRepo.BackfillStock(ctx, tenantID, period, kind, counted)
	if err != nil {
		return 0, 0, storeUnavailable(err)
	}
	metrics.StockBackfillsTotal.WithLabelValues(string(kind)).Inc()
	return counted, stored, nil
}

// seedStock backfills the period's stock counter when it has no positive
// value. It reports whether the stored value is this call's recount.
func (s *MeteringService) seedStock(ctx context.Context, tenantID uuid.UUID, period string, kind billing.ResourceKind) (bool, error) {
	snap, err := s.findSnapshot(ctx, tenantID, period)
	if err != nil {
		return false, err
	}
	if snap.Get(kind) > 0 {
		return false, nil
	}
	counted, stored, err := s.backfill(ctx, tenantID, period, kind)
	if err != nil {
		return false, err
	}
	return counted == stored, nil
}

func (s *MeteringService) cached(ctx context.Context, tenantID uuid.UUID, period string, kind billing.ResourceKind) (int64, bool) {
	if s.cache == nil {
		return 0, false
	}
	v, ok, err := s.cache.Get(ctx, tenantID, period, kind)
	switch {
	case err != nil:
		metrics.UsageCacheRequestsTotal.WithLabelValues(metrics.CacheError).Inc()
		s.logger.Warn("Usage cache read failed, reading store",
			zap.String("tenant_id", tenantID.String()),
			zap.String("kind", string(kind)),
			zap.Error(err))
		return 0, false
	case ok:
		metrics.UsageCacheRequestsTotal.WithLabelValues(metrics.CacheHit).Inc()
		return v, true
	default:
		metrics.UsageCacheRequestsTotal.WithLabelValues(metrics.CacheMiss).Inc()
		return 0, false
	}
}

func (s *MeteringService) store(ctx context.Context, tenantID uuid.UUID, period string, kind billing.ResourceKind, value int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, tenantID, period, kind, value); err != nil {
		s.logger.Warn("Usage cache write failed",
			zap.String("tenant_id", tenantID.String()),
			zap.String("kind", string(kind)),
			zap.Error(err))
	}
}

func (s *MeteringService) invalidate(ctx context.Context, tenantID uuid.UUID, period string, kind billing.ResourceKind) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, tenantID, period, kind); err != nil {
		s.logger.Warn("Usage cache invalidation failed, entry expires with its TTL",
			zap.String("tenant_id", tenantID.String()),
			zap.String("kind", string(kind)),
			zap.Error(err))
	}
}

func validateUsageTarget(tenantID uuid.UUID, kind billing.ResourceKind) error {
	if tenantID == uuid.Nil {
		return shared.NewDomainError("INVALID_TENANT", "Tenant ID is required")
	}
	if !kind.IsValid() {
		return shared.NewDomainError("INVALID_RESOURCE_KIND", fmt.Sprintf("unknown resource kind %q", kind))
	}
	return nil
}

// storeUnavailable marks err as a usage store failure while keeping the
// underlying cause inspectable.
func storeUnavailable(err error) error {
	return fmt.Errorf("%w: %w", billing.ErrUsageStoreUnavailable, err)
}

// Ensure MeteringService implements UsageReader
var _ UsageReader = (*MeteringService)(nil)
