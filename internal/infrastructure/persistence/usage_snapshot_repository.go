package persistence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lendsaas/backend/internal/domain/billing"
	"github.com/lendsaas/backend/internal/domain/shared"
	"github.com/lendsaas/backend/internal/infrastructure/persistence/models"
	"github.com/lendsaas/backend/internal/infrastructure/persistence/tenant"
)

const usageSnapshotTable = "usage_snapshots"

var usageSnapshotKey = []clause.Column{{Name: "tenant_id"}, {Name: "period"}}

// GormUsageSnapshotRepository implements billing.UsageSnapshotRepository.
// Every counter change is a single upsert statement so concurrent callers
// never lose updates.
type GormUsageSnapshotRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormUsageSnapshotRepository creates a new GormUsageSnapshotRepository
func NewGormUsageSnapshotRepository(db *gorm.DB) *GormUsageSnapshotRepository {
	return &GormUsageSnapshotRepository{db: db, now: time.Now}
}

// Increment adds delta to the kind's counter, creating the period row with
// delta as the initial value when absent.
func (r *GormUsageSnapshotRepository) Increment(ctx context.Context, tenantID uuid.UUID, period string, kind billing.ResourceKind, delta int64) error {
	if !kind.IsValid() {
		return shared.NewDomainError("INVALID_RESOURCE_KIND", fmt.Sprintf("unknown resource kind %q", kind))
	}
	col := kind.Column()
	now := r.now().UTC()

	return r.db.WithContext(ctx).
		Model(&models.UsageSnapshotModel{}).
		Clauses(clause.OnConflict{
			Columns: usageSnapshotKey,
			DoUpdates: clause.Assignments(map[string]any{
				col:          gorm.Expr(usageSnapshotTable+"."+col+" + ?", delta),
				"updated_at": now,
			}),
		}).
		Create(map[string]any{
			"tenant_id":  tenantID,
			"period":     period,
			col:          delta,
			"updated_at": now,
		}).Error
}

// Find returns the snapshot for the period, or a NOT_FOUND domain error
func (r *GormUsageSnapshotRepository) Find(ctx context.Context, tenantID uuid.UUID, period string) (*billing.UsageSnapshot, error) {
	var model models.UsageSnapshotModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND period = ?", tenantID, period).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewDomainError("NOT_FOUND", "No usage recorded for period "+period)
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// BackfillStock stores value for a stock kind only where the stored counter
// is missing, zero or negative, then returns the counter as stored. A
// concurrent positive value that landed first is kept.
func (r *GormUsageSnapshotRepository) BackfillStock(ctx context.Context, tenantID uuid.UUID, period string, kind billing.ResourceKind, value int64) (int64, error) {
	if !kind.IsStock() {
		return 0, shared.NewDomainError("INVALID_RESOURCE_KIND", fmt.Sprintf("%s is not a stock resource", kind))
	}
	col := kind.Column()
	db := r.db.WithContext(ctx)

	err := db.Model(&models.UsageSnapshotModel{}).
		Clauses(clause.OnConflict{
			Columns:   usageSnapshotKey,
			DoUpdates: clause.AssignmentColumns([]string{col, "updated_at"}),
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Expr{SQL: usageSnapshotTable + "." + col + " <= 0"},
			}},
		}).
		Create(map[string]any{
			"tenant_id":  tenantID,
			"period":     period,
			col:          value,
			"updated_at": r.now().UTC(),
		}).Error
	if err != nil {
		return 0, err
	}

	var stored int64
	if err := db.Model(&models.UsageSnapshotModel{}).
		Select(col).
		Where("tenant_id = ? AND period = ?", tenantID, period).
		Scan(&stored).Error; err != nil {
		return 0, err
	}
	return stored, nil
}

// OverwriteStock replaces stock counters with recomputed values
func (r *GormUsageSnapshotRepository) OverwriteStock(ctx context.Context, tenantID uuid.UUID, period string, values map[billing.ResourceKind]int64) error {
	if len(values) == 0 {
		return nil
	}
	row := map[string]any{
		"tenant_id":  tenantID,
		"period":     period,
		"updated_at": r.now().UTC(),
	}
	cols := make([]string, 0, len(values)+1)
	for kind, v := range values {
		if !kind.IsStock() {
			return shared.NewDomainError("INVALID_RESOURCE_KIND", fmt.Sprintf("%s is not a stock resource", kind))
		}
		row[kind.Column()] = v
		cols = append(cols, kind.Column())
	}
	sort.Strings(cols)
	cols = append(cols, "updated_at")

	return r.db.WithContext(ctx).
		Model(&models.UsageSnapshotModel{}).
		Clauses(clause.OnConflict{
			Columns:   usageSnapshotKey,
			DoUpdates: clause.AssignmentColumns(cols),
		}).
		Create(row).Error
}

// Reserve adds delta to the bound tenant's counter inside the accessor's
// transaction only if the result stays within limit. It reports whether the
// reservation was taken; rolling back the transaction releases it.
func (r *GormUsageSnapshotRepository) Reserve(ctx context.Context, acc *tenant.Accessor, period string, kind billing.ResourceKind, delta, limit int64) (bool, error) {
	if acc.IsUnscoped() {
		return false, tenant.ErrTenantRequired
	}
	if !kind.IsValid() {
		return false, shared.NewDomainError("INVALID_RESOURCE_KIND", fmt.Sprintf("unknown resource kind %q", kind))
	}
	col := kind.Column()
	now := r.now().UTC()
	db := acc.Conn(ctx)

	if err := db.Model(&models.UsageSnapshotModel{}).
		Clauses(clause.OnConflict{Columns: usageSnapshotKey, DoNothing: true}).
		Create(map[string]any{
			"tenant_id":  acc.TenantID(),
			"period":     period,
			"updated_at": now,
		}).Error; err != nil {
		return false, err
	}

	result := db.Model(&models.UsageSnapshotModel{}).
		Where("tenant_id = ? AND period = ?", acc.TenantID(), period).
		Where(col+" + ? <= ?", delta, limit).
		Updates(map[string]any{
			col:          gorm.Expr(col+" + ?", delta),
			"updated_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// Ensure GormUsageSnapshotRepository implements UsageSnapshotRepository
var _ billing.UsageSnapshotRepository = (*GormUsageSnapshotRepository)(nil)
