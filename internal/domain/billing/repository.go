package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PlanRepository defines the interface for plan persistence
type PlanRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Plan, error)
	FindByCode(ctx context.Context, code string) (*Plan, error)
	// FindByIDs returns the plans keyed by id; missing ids are omitted
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Plan, error)
	Save(ctx context.Context, plan *Plan) error
}

// SubscriptionRepository defines the interface for subscription persistence.
// Update uses optimistic locking on Version and returns an
// ErrConcurrencyConflict-coded error when the row changed underneath.
type SubscriptionRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Subscription, error)
	FindByTenantID(ctx context.Context, tenantID uuid.UUID) (*Subscription, error)
	FindByExternalRef(ctx context.Context, ref string) (*Subscription, error)

	// FindByStatuses lists subscriptions across all tenants in the given states
	FindByStatuses(ctx context.Context, statuses ...SubscriptionStatus) ([]*Subscription, error)

	// FindActiveEndingBetween lists ACTIVE subscriptions whose period ends in (from, to]
	FindActiveEndingBetween(ctx context.Context, from, to time.Time) ([]*Subscription, error)

	Create(ctx context.Context, sub *Subscription) error
	Update(ctx context.Context, sub *Subscription) error

	// ReplaceCanceled swaps a CANCELED subscription for a new one atomically
	ReplaceCanceled(ctx context.Context, previous, next *Subscription) error
}

// UsageSnapshotRepository persists per-period usage counters
type UsageSnapshotRepository interface {
	// Increment atomically adds delta to the counter, creating the row if absent
	Increment(ctx context.Context, tenantID uuid.UUID, period string, kind ResourceKind, delta int64) error

	// Find returns the snapshot for the period, or a NOT_FOUND domain error
	Find(ctx context.Context, tenantID uuid.UUID, period string) (*UsageSnapshot, error)

	// BackfillStock stores value only if the stored counter is missing or zero,
	// and returns the counter as stored afterwards
	BackfillStock(ctx context.Context, tenantID uuid.UUID, period string, kind ResourceKind, value int64) (int64, error)

	// OverwriteStock replaces stock counters with recomputed values
	OverwriteStock(ctx context.Context, tenantID uuid.UUID, period string, values map[ResourceKind]int64) error
}

// StockCounter recomputes a stock kind from the tenant-scoped tables that own it
type StockCounter interface {
	CountStock(ctx context.Context, tenantID uuid.UUID, kind ResourceKind) (int64, error)
}

// GlobalUsageReader produces cross-tenant rollups. Implementations must use
// the privileged, unscoped data path.
type GlobalUsageReader interface {
	ReadGlobalUsage(ctx context.Context, period string) (*GlobalUsage, error)
}

// UsageCache holds recently read counters for a short TTL. A miss or a cache
// error falls through to the UsageSnapshotRepository.
type UsageCache interface {
	Get(ctx context.Context, tenantID uuid.UUID, period string, kind ResourceKind) (value int64, ok bool, err error)
	Set(ctx context.Context, tenantID uuid.UUID, period string, kind ResourceKind, value int64) error
	Invalidate(ctx context.Context, tenantID uuid.UUID, period string, kind ResourceKind) error
}
