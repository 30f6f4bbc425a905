package persistence

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lendsaas/backend/internal/domain/billing"
	"github.com/lendsaas/backend/internal/domain/shared"
	"github.com/lendsaas/backend/internal/infrastructure/persistence/models"
)

// GormPlanRepository implements billing.PlanRepository using GORM
type GormPlanRepository struct {
	db *gorm.DB
}

// NewGormPlanRepository creates a new GormPlanRepository
func NewGormPlanRepository(db *gorm.DB) *GormPlanRepository {
	return &GormPlanRepository{db: db}
}

// FindByID finds a plan by its ID
func (r *GormPlanRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Plan, error) {
	var model models.PlanModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain()
}

// FindByCode finds a plan by its unique code
func (r *GormPlanRepository) FindByCode(ctx context.Context, code string) (*billing.Plan, error) {
	var model models.PlanModel
	if err := r.db.WithContext(ctx).
		Where("code = ?", strings.ToLower(strings.TrimSpace(code))).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain()
}

// FindByIDs returns the plans keyed by id; missing ids are omitted
func (r *GormPlanRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*billing.Plan, error) {
	plans := make(map[uuid.UUID]*billing.Plan, len(ids))
	if len(ids) == 0 {
		return plans, nil
	}

	var planModels []models.PlanModel
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&planModels).Error; err != nil {
		return nil, err
	}
	for i := range planModels {
		plan, err := planModels[i].ToDomain()
		if err != nil {
			return nil, err
		}
		plans[plan.ID] = plan
	}
	return plans, nil
}

// Save creates or updates a plan
func (r *GormPlanRepository) Save(ctx context.Context, plan *billing.Plan) error {
	model := &models.PlanModel{}
	if err := model.FromDomain(plan); err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Save(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.NewDomainError("ALREADY_EXISTS", "Plan code is already taken")
		}
		return err
	}
	return nil
}

// Ensure GormPlanRepository implements PlanRepository
var _ billing.PlanRepository = (*GormPlanRepository)(nil)
