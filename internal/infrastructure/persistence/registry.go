package persistence

import (
	"gorm.io/gorm"

	"github.com/lendsaas/backend/internal/domain/billing"
	"github.com/lendsaas/backend/internal/infrastructure/persistence/models"
	"github.com/lendsaas/backend/internal/infrastructure/persistence/tenant"
)

// Tenant-scoped entity kinds of the lending domain.
const (
	KindUsers     tenant.EntityKind = "users"
	KindClients   tenant.EntityKind = "clients"
	KindLoans     tenant.EntityKind = "loans"
	KindPayments  tenant.EntityKind = "payments"
	KindDocuments tenant.EntityKind = "documents"
	KindMessages  tenant.EntityKind = "messages"
	KindReports   tenant.EntityKind = "reports"
)

// StockSource says how a stock resource is recomputed from the records that
// own it: a count of the kind's active rows, or the sum of SumColumn.
type StockSource struct {
	Kind      tenant.EntityKind
	SumColumn string
}

// StockSources maps each stock resource kind to the records that own it.
var StockSources = map[billing.ResourceKind]StockSource{
	billing.ResourceUsers:   {Kind: KindUsers},
	billing.ResourceLoans:   {Kind: KindLoans},
	billing.ResourceClients: {Kind: KindClients},
	billing.ResourceStorage: {Kind: KindDocuments, SumColumn: "size_bytes"},
}

// LendingRegistrations returns the registrations for every tenant-scoped
// lending table.
func LendingRegistrations() []tenant.Registration {
	return []tenant.Registration{
		{
			Kind:  KindUsers,
			Model: &models.UserModel{},
			Active: func(db *gorm.DB) *gorm.DB {
				return db.Where("is_active = ?", true)
			},
		},
		{
			Kind:  KindClients,
			Model: &models.ClientModel{},
			Active: func(db *gorm.DB) *gorm.DB {
				return db.Where("status <> ?", models.ClientStatusArchived)
			},
		},
		{
			Kind:  KindLoans,
			Model: &models.LoanModel{},
			Active: func(db *gorm.DB) *gorm.DB {
				return db.Where("status = ?", models.LoanStatusActive)
			},
		},
		{Kind: KindPayments, Model: &models.PaymentModel{}},
		{Kind: KindDocuments, Model: &models.DocumentModel{}},
		{Kind: KindMessages, Model: &models.MessageModel{}},
		{Kind: KindReports, Model: &models.ReportModel{}},
	}
}

// NewLendingRegistry builds the registry of tenant-scoped lending kinds.
func NewLendingRegistry() (*tenant.Registry, error) {
	return tenant.NewRegistry(LendingRegistrations()...)
}

// AllModels lists every model for AutoMigrate in tests and tooling.
func AllModels() []any {
	return []any{
		&models.TenantModel{},
		&models.PlanModel{},
		&models.SubscriptionModel{},
		&models.UsageSnapshotModel{},
		&models.UserModel{},
		&models.ClientModel{},
		&models.LoanModel{},
		&models.PaymentModel{},
		&models.DocumentModel{},
		&models.MessageModel{},
		&models.ReportModel{},
	}
}
