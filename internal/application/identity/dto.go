package identity

import (
	"time"

	"github.com/google/uuid"

	"github.com/lendsaas/backend/internal/domain/billing"
	"github.com/lendsaas/backend/internal/domain/identity"
)

// ProvisionTenantInput contains the input for onboarding a lender
type ProvisionTenantInput struct {
	Slug string `json:"slug" binding:"required,min=3,max=63"`
	Name string `json:"name" binding:"required,min=1,max=200"`
	// PlanCode selects the trial plan; empty uses the configured default
	PlanCode string `json:"plan_code" binding:"max=50"`
}

// TenantDTO represents tenant data transfer object
type TenantDTO struct {
	ID        uuid.UUID `json:"id"`
	Slug      string    `json:"slug"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// ProvisionResult is a newly onboarded tenant and its trial
type ProvisionResult struct {
	Tenant         TenantDTO  `json:"tenant"`
	PlanCode       string     `json:"plan_code"`
	SubscriptionID uuid.UUID  `json:"subscription_id"`
	TrialEndsAt    *time.Time `json:"trial_ends_at,omitempty"`
}

func toTenantDTO(t *identity.Tenant) TenantDTO {
	return TenantDTO{
		ID:        t.ID,
		Slug:      t.Slug,
		Name:      t.Name,
		Status:    string(t.Status),
		CreatedAt: t.CreatedAt,
	}
}

func toProvisionResult(t *identity.Tenant, plan *billing.Plan, sub *billing.Subscription) *ProvisionResult {
	return &ProvisionResult{
		Tenant:         toTenantDTO(t),
		PlanCode:       plan.Code,
		SubscriptionID: sub.ID,
		TrialEndsAt:    sub.TrialEndsAt,
	}
}
