package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lendsaas/backend/internal/domain/billing"
	"github.com/lendsaas/backend/internal/domain/shared"
	"github.com/lendsaas/backend/internal/infrastructure/persistence/models"
)

// GormSubscriptionRepository implements billing.SubscriptionRepository using GORM
type GormSubscriptionRepository struct {
	db *gorm.DB
}

// NewGormSubscriptionRepository creates a new GormSubscriptionRepository
func NewGormSubscriptionRepository(db *gorm.DB) *GormSubscriptionRepository {
	return &GormSubscriptionRepository{db: db}
}

func (r *GormSubscriptionRepository) findOne(ctx context.Context, query string, args ...any) (*billing.Subscription, error) {
	var model models.SubscriptionModel
	if err := r.db.WithContext(ctx).Where(query, args...).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByID finds a subscription by its ID
func (r *GormSubscriptionRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Subscription, error) {
	return r.findOne(ctx, "id = ?", id)
}

// FindByTenantID finds the subscription of a tenant
func (r *GormSubscriptionRepository) FindByTenantID(ctx context.Context, tenantID uuid.UUID) (*billing.Subscription, error) {
	return r.findOne(ctx, "tenant_id = ?", tenantID)
}

// FindByExternalRef finds a subscription by its billing provider id
func (r *GormSubscriptionRepository) FindByExternalRef(ctx context.Context, ref string) (*billing.Subscription, error) {
	if ref == "" {
		return nil, shared.ErrNotFound
	}
	return r.findOne(ctx, "external_ref = ?", ref)
}

// FindByStatuses lists subscriptions across all tenants in the given states
func (r *GormSubscriptionRepository) FindByStatuses(ctx context.Context, statuses ...billing.SubscriptionStatus) ([]*billing.Subscription, error) {
	if len(statuses) == 0 {
		return []*billing.Subscription{}, nil
	}
	var subModels []models.SubscriptionModel
	if err := r.db.WithContext(ctx).
		Where("status IN ?", statuses).
		Order("current_period_end ASC").
		Find(&subModels).Error; err != nil {
		return nil, err
	}
	return toDomainSubscriptions(subModels), nil
}

// FindActiveEndingBetween lists ACTIVE subscriptions whose period ends in (from, to]
func (r *GormSubscriptionRepository) FindActiveEndingBetween(ctx context.Context, from, to time.Time) ([]*billing.Subscription, error) {
	var subModels []models.SubscriptionModel
	if err := r.db.WithContext(ctx).
		Where("status = ? AND current_period_end > ? AND current_period_end <= ?", billing.SubscriptionStatusActive, from, to).
		Order("current_period_end ASC").
		Find(&subModels).Error; err != nil {
		return nil, err
	}
	return toDomainSubscriptions(subModels), nil
}

// Create inserts a new subscription. A second subscription for the same
// tenant is rejected by the unique tenant_id index.
func (r *GormSubscriptionRepository) Create(ctx context.Context, sub *billing.Subscription) error {
	return createSubscription(r.db.WithContext(ctx), sub)
}

func createSubscription(db *gorm.DB, sub *billing.Subscription) error {
	if err := db.Create(models.SubscriptionModelFromDomain(sub)).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.NewDomainError("ALREADY_EXISTS", "Tenant already has a subscription")
		}
		return err
	}
	return nil
}

// Update saves sub if its stored version still equals sub.Version, then
// advances sub.Version.
func (r *GormSubscriptionRepository) Update(ctx context.Context, sub *billing.Subscription) error {
	result := r.db.WithContext(ctx).
		Model(&models.SubscriptionModel{}).
		Where("id = ? AND version = ?", sub.ID, sub.Version).
		Updates(map[string]any{
			"plan_id":              sub.PlanID,
			"status":               sub.Status,
			"current_period_start": sub.CurrentPeriodStart,
			"current_period_end":   sub.CurrentPeriodEnd,
			"trial_ends_at":        sub.TrialEndsAt,
			"cancel_at_period_end": sub.CancelAtPeriodEnd,
			"past_due_since":       sub.PastDueSince,
			"canceled_at":          sub.CanceledAt,
			"external_ref":         sub.ExternalRef,
			"version":              sub.Version + 1,
			"updated_at":           sub.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.NewDomainError("CONCURRENCY_CONFLICT", "Subscription was modified by another process")
	}
	sub.Version++
	return nil
}

// ReplaceCanceled removes a CANCELED subscription and inserts its successor
// in one transaction.
func (r *GormSubscriptionRepository) ReplaceCanceled(ctx context.Context, previous, next *billing.Subscription) error {
	if previous.Status != billing.SubscriptionStatusCanceled {
		return shared.NewDomainError("INVALID_STATE", "Only a canceled subscription can be replaced")
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ? AND version = ? AND status = ?", previous.ID, previous.Version, billing.SubscriptionStatusCanceled).
			Delete(&models.SubscriptionModel{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return shared.NewDomainError("CONCURRENCY_CONFLICT", "Subscription was modified by another process")
		}
		return createSubscription(tx, next)
	})
}

func toDomainSubscriptions(subModels []models.SubscriptionModel) []*billing.Subscription {
	subs := make([]*billing.Subscription, len(subModels))
	for i := range subModels {
		subs[i] = subModels[i].ToDomain()
	}
	return subs
}

// Ensure GormSubscriptionRepository implements SubscriptionRepository
var _ billing.SubscriptionRepository = (*GormSubscriptionRepository)(nil)
