package persistence

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/lendsaas/backend/internal/domain/billing"
	"github.com/lendsaas/backend/internal/infrastructure/persistence/models"
	"github.com/lendsaas/backend/internal/infrastructure/persistence/tenant"
)

// UnscopedReasonGlobalUsage labels the privileged access used for rollups.
const UnscopedReasonGlobalUsage = "global_usage"

// GormGlobalUsageReader builds cross-tenant rollups through the unscoped
// accessor so every run is audited.
type GormGlobalUsageReader struct {
	factory *tenant.Factory
	now     func() time.Time
}

// NewGormGlobalUsageReader creates a new GormGlobalUsageReader
func NewGormGlobalUsageReader(factory *tenant.Factory) *GormGlobalUsageReader {
	return &GormGlobalUsageReader{factory: factory, now: time.Now}
}

type statusCount struct {
	Status string
	Total  int64
}

// ReadGlobalUsage aggregates tenant and subscription states, recurring
// revenue, period usage totals and record counts across all tenants.
func (r *GormGlobalUsageReader) ReadGlobalUsage(ctx context.Context, period string) (*billing.GlobalUsage, error) {
	acc := r.factory.Unscoped(ctx, UnscopedReasonGlobalUsage)
	db := acc.Conn(ctx)

	usage := &billing.GlobalUsage{
		Period:                period,
		TenantsByStatus:       make(map[string]int64),
		SubscriptionsByStatus: make(map[billing.SubscriptionStatus]int64),
		PeriodTotals:          make(map[billing.ResourceKind]int64),
		RecordCounts:          make(map[string]int64),
		GeneratedAt:           r.now().UTC(),
	}

	var tenantCounts []statusCount
	if err := groupByStatus(db.Model(&models.TenantModel{}), &tenantCounts); err != nil {
		return nil, err
	}
	for _, c := range tenantCounts {
		usage.TenantsByStatus[c.Status] = c.Total
	}

	var subCounts []statusCount
	if err := groupByStatus(db.Model(&models.SubscriptionModel{}), &subCounts); err != nil {
		return nil, err
	}
	for _, c := range subCounts {
		usage.SubscriptionsByStatus[billing.SubscriptionStatus(c.Status)] = c.Total
	}

	if err := db.Model(&models.SubscriptionModel{}).
		Where("status IN ?", billing.EntitledSubscriptionStatuses()).
		Distinct("tenant_id").
		Count(&usage.EntitledTenants).Error; err != nil {
		return nil, err
	}

	var revenue struct{ Total decimal.Decimal }
	if err := db.Table("subscriptions").
		Select("COALESCE(SUM(plans.monthly_price), 0) AS total").
		Joins("JOIN plans ON plans.id = subscriptions.plan_id").
		Where("subscriptions.status = ?", billing.SubscriptionStatusActive).
		Scan(&revenue).Error; err != nil {
		return nil, err
	}
	usage.MonthlyRecurring = revenue.Total

	kinds := billing.AllResourceKinds()
	sums := make([]string, len(kinds))
	for i, k := range kinds {
		sums[i] = "COALESCE(SUM(" + k.Column() + "), 0)"
	}
	totals := make([]int64, len(kinds))
	dest := make([]any, len(kinds))
	for i := range totals {
		dest[i] = &totals[i]
	}
	rows, err := db.Model(&models.UsageSnapshotModel{}).
		Select(strings.Join(sums, ", ")).
		Where("period = ?", period).
		Rows()
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	if rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, k := range kinds {
		usage.PeriodTotals[k] = totals[i]
	}

	for _, kind := range r.factory.Registry().Kinds() {
		n, err := acc.Count(ctx, kind, nil)
		if err != nil {
			return nil, err
		}
		usage.RecordCounts[string(kind)] = n
	}

	return usage, nil
}

func groupByStatus(q *gorm.DB, dest *[]statusCount) error {
	return q.Select("status, COUNT(*) AS total").Group("status").Scan(dest).Error
}

// Ensure GormGlobalUsageReader implements GlobalUsageReader
var _ billing.GlobalUsageReader = (*GormGlobalUsageReader)(nil)
