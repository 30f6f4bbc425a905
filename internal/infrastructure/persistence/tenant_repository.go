package persistence

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lendsaas/backend/internal/domain/identity"
	"github.com/lendsaas/backend/internal/domain/shared"
	"github.com/lendsaas/backend/internal/infrastructure/persistence/models"
)

var errSlugTaken = shared.NewDomainError("ALREADY_EXISTS", "Tenant slug is already taken")

// GormTenantRepository stores lenders in the tenants table
type GormTenantRepository struct {
	db *gorm.DB
}

var _ identity.TenantRepository = (*GormTenantRepository)(nil)

func NewGormTenantRepository(db *gorm.DB) *GormTenantRepository {
	return &GormTenantRepository{db: db}
}

func (r *GormTenantRepository) FindByID(ctx context.Context, id uuid.UUID) (*identity.Tenant, error) {
	return r.findOne(ctx, "id = ?", id)
}

func (r *GormTenantRepository) FindBySlug(ctx context.Context, slug string) (*identity.Tenant, error) {
	return r.findOne(ctx, "slug = ?", normalizeSlug(slug))
}

func (r *GormTenantRepository) ExistsBySlug(ctx context.Context, slug string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.TenantModel{}).
		Where("slug = ?", normalizeSlug(slug)).
		Limit(1).
		Count(&n).Error
	return n > 0, err
}

// Save upserts t; the unique slug index turns a race on the same slug into
// ALREADY_EXISTS.
func (r *GormTenantRepository) Save(ctx context.Context, t *identity.Tenant) error {
	err := r.db.WithContext(ctx).Save(models.TenantModelFromDomain(t)).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return errSlugTaken
	}
	return err
}

func (r *GormTenantRepository) findOne(ctx context.Context, query string, arg any) (*identity.Tenant, error) {
	var m models.TenantModel
	err := r.db.WithContext(ctx).Where(query, arg).Take(&m).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, shared.ErrNotFound
	case err != nil:
		return nil, err
	}
	return m.ToDomain(), nil
}

func normalizeSlug(slug string) string {
	return strings.ToLower(strings.TrimSpace(slug))
}
