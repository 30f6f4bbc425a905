// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer pure and free
// from ORM concerns.
//
// Structure:
// - base.go: BaseModel, AggregateModel and TenantScopedModel
// - tenancy.go: Tenant (global, not tenant-scoped)
// - billing.go: Plan, Subscription and UsageSnapshot
// - lending.go: tenant-scoped lending records (users, clients, loans, payments,
//   documents, messages, reports)
package models
