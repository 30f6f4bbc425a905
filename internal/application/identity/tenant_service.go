// Package identity holds tenant onboarding.
package identity

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lendsaas/backend/internal/domain/billing"
	"github.com/lendsaas/backend/internal/domain/identity"
	"github.com/lendsaas/backend/internal/domain/shared"
)

// TrialStarter starts a tenant's first subscription
type TrialStarter interface {
	StartTrial(ctx context.Context, tenantID, planID uuid.UUID) (*billing.Subscription, error)
}

// TenantService handles tenant onboarding
type TenantService struct {
	tenantRepo      identity.TenantRepository
	planRepo        billing.PlanRepository
	trials          TrialStarter
	defaultPlanCode string
	logger          *zap.Logger
}

// NewTenantService creates a new tenant service
func NewTenantService(
	tenantRepo identity.TenantRepository,
	planRepo billing.PlanRepository,
	trials TrialStarter,
	defaultPlanCode string,
	logger *zap.Logger,
) *TenantService {
	return &TenantService{
		tenantRepo:      tenantRepo,
		planRepo:        planRepo,
		trials:          trials,
		defaultPlanCode: defaultPlanCode,
		logger:          logger,
	}
}

// Provision creates a tenant and puts it on a trial of the requested plan,
// or of the default plan when none is given. The plan is resolved before
// anything is written.
func (s *TenantService) Provision(ctx context.Context, input ProvisionTenantInput) (*ProvisionResult, error) {
	code := strings.TrimSpace(input.PlanCode)
	if code == "" {
		code = s.defaultPlanCode
	}
	if code == "" {
		return nil, shared.NewDomainError("INVALID_PLAN", "No plan requested and no default plan configured")
	}
	plan, err := s.planRepo.FindByCode(ctx, code)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, shared.NewDomainError("INVALID_PLAN", "Unknown plan: "+code)
	}
	if err != nil {
		return nil, err
	}

	tenant, err := identity.NewTenant(input.Slug, input.Name)
	if err != nil {
		return nil, err
	}
	exists, err := s.tenantRepo.ExistsBySlug(ctx, tenant.Slug)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, shared.NewDomainError("ALREADY_EXISTS", "Tenant with this slug already exists")
	}
	if err := s.tenantRepo.Save(ctx, tenant); err != nil {
		return nil, err
	}

	sub, err := s.trials.StartTrial(ctx, tenant.ID, plan.ID)
	if err != nil {
		s.logger.Error("Tenant created without a subscription",
			zap.String("tenant_id", tenant.ID.String()),
			zap.String("plan", plan.Code),
			zap.Error(err))
		return nil, err
	}
	tenant.Status = identity.TenantStatusTrial

	s.logger.Info("Tenant provisioned",
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("slug", tenant.Slug),
		zap.String("plan", plan.Code))
	return toProvisionResult(tenant, plan, sub), nil
}

// GetByID returns a tenant
func (s *TenantService) GetByID(ctx context.Context, id uuid.UUID) (*TenantDTO, error) {
	tenant, err := s.tenantRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := toTenantDTO(tenant)
	return &dto, nil
}
