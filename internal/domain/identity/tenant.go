package identity

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lendsaas/backend/internal/domain/shared"
)

// TenantStatus represents the status of a tenant
type TenantStatus string

const (
	TenantStatusActive    TenantStatus = "ACTIVE"
	TenantStatusSuspended TenantStatus = "SUSPENDED" // Suspended after trial expiry or unpaid subscription
	TenantStatusTrial     TenantStatus = "TRIAL"
)

// IsValid returns true if the status is a known tenant status
func (s TenantStatus) IsValid() bool {
	switch s {
	case TenantStatusActive, TenantStatusSuspended, TenantStatusTrial:
		return true
	}
	return false
}

// Tenant is an isolated customer organization sharing the deployment.
// Tenants are never hard-deleted; lifecycle is expressed through Status.
type Tenant struct {
	shared.BaseAggregateRoot
	Slug   string
	Name   string
	Status TenantStatus
}

// NewTenant creates a new active tenant. The slug is normalized to lower case.
func NewTenant(slug, name string) (*Tenant, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if err := validateTenantSlug(slug); err != nil {
		return nil, err
	}
	if err := validateTenantName(name); err != nil {
		return nil, err
	}

	return &Tenant{
		BaseAggregateRoot: shared.NewBaseAggregateRootAt(time.Now()),
		Slug:              slug,
		Name:              name,
		Status:            TenantStatusActive,
	}, nil
}

// Rename updates the tenant display name
func (t *Tenant) Rename(name string) error {
	if err := validateTenantName(name); err != nil {
		return err
	}
	t.Name = name
	t.Touch(time.Now())
	t.IncrementVersion()
	return nil
}

// Activate marks the tenant active. Idempotent.
func (t *Tenant) Activate(now time.Time) {
	t.setStatus(TenantStatusActive, now)
}

// Suspend marks the tenant suspended. Idempotent.
func (t *Tenant) Suspend(now time.Time) {
	t.setStatus(TenantStatusSuspended, now)
}

// MarkTrial marks the tenant as being in a trial period.
func (t *Tenant) MarkTrial(now time.Time) {
	t.setStatus(TenantStatusTrial, now)
}

func (t *Tenant) setStatus(status TenantStatus, now time.Time) {
	if t.Status == status {
		return
	}
	t.Status = status
	t.Touch(now)
	t.IncrementVersion()
}

func (t *Tenant) IsActive() bool    { return t.Status == TenantStatusActive }
func (t *Tenant) IsSuspended() bool { return t.Status == TenantStatusSuspended }
func (t *Tenant) IsTrial() bool     { return t.Status == TenantStatusTrial }

// TenantRef is a minimal view of a tenant used by cross-tenant jobs.
type TenantRef struct {
	ID     uuid.UUID
	Slug   string
	Status TenantStatus
}

func validateTenantSlug(slug string) error {
	if slug == "" {
		return shared.NewDomainError("INVALID_SLUG", "Tenant slug cannot be empty")
	}
	if len(slug) > 63 {
		return shared.NewDomainError("INVALID_SLUG", "Tenant slug cannot exceed 63 characters")
	}
	for _, r := range slug {
		if !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-') {
			return shared.NewDomainError("INVALID_SLUG", "Tenant slug can only contain lowercase letters, numbers, and hyphens")
		}
	}
	if strings.HasPrefix(slug, "-") || strings.HasSuffix(slug, "-") {
		return shared.NewDomainError("INVALID_SLUG", "Tenant slug cannot start or end with a hyphen")
	}
	return nil
}

func validateTenantName(name string) error {
	if strings.TrimSpace(name) == "" {
		return shared.NewDomainError("INVALID_NAME", "Tenant name cannot be empty")
	}
	if len(name) > 200 {
		return shared.NewDomainError("INVALID_NAME", "Tenant name cannot exceed 200 characters")
	}
	return nil
}
