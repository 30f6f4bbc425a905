package models

import (
	"github.com/lendsaas/backend/internal/domain/identity"
)

// TenantModel is the persistence model for the Tenant aggregate. Tenants are
// global rows and are not themselves tenant-scoped.
type TenantModel struct {
	AggregateModel
	Slug   string                `gorm:"type:varchar(63);not null;uniqueIndex"`
	Name   string                `gorm:"type:varchar(200);not null"`
	Status identity.TenantStatus `gorm:"type:varchar(20);not null;default:'ACTIVE';index"`
}

// TableName returns the table name for GORM
func (TenantModel) TableName() string {
	return "tenants"
}

// ToDomain converts the persistence model to a domain Tenant.
func (m *TenantModel) ToDomain() *identity.Tenant {
	return &identity.Tenant{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		Slug:              m.Slug,
		Name:              m.Name,
		Status:            m.Status,
	}
}

// FromDomain populates the persistence model from a domain Tenant.
func (m *TenantModel) FromDomain(t *identity.Tenant) {
	m.FromDomainAggregateRoot(t.BaseAggregateRoot)
	m.Slug = t.Slug
	m.Name = t.Name
	m.Status = t.Status
}

// TenantModelFromDomain creates a new persistence model from a domain Tenant.
func TenantModelFromDomain(t *identity.Tenant) *TenantModel {
	m := &TenantModel{}
	m.FromDomain(t)
	return m
}
