package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/lendsaas/backend/internal/infrastructure/persistence/models"
	"github.com/lendsaas/backend/internal/infrastructure/persistence/tenant"
)

// setupTestDB opens an in-memory SQLite database with every table migrated
// and the tenant guard installed. One connection keeps the schema visible to
// every statement.
func setupTestDB(t *testing.T) (*gorm.DB, *tenant.Factory) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(AllModels()...))

	registry, err := NewLendingRegistry()
	require.NoError(t, err)
	require.NoError(t, tenant.EnableTenantGuard(db, registry))

	return db, tenant.NewFactory(db, registry, zap.NewNop())
}

// fixedClock returns a clock stuck at t
func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// seedLendingData creates users, clients, loans and documents for a tenant
func seedLendingData(t *testing.T, factory *tenant.Factory, tenantID uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	acc := factory.Bind(ctx, tenantID)

	for i, active := range []bool{true, true, false} {
		require.NoError(t, acc.Create(ctx, KindUsers, &models.UserModel{
			Email:    uuid.NewString() + "@example.com",
			Role:     "agent",
			IsActive: active,
		}), "user %d", i)
	}

	client := &models.ClientModel{FullName: "Ana Souza", Status: models.ClientStatusActive}
	require.NoError(t, acc.Create(ctx, KindClients, client))
	require.NoError(t, acc.Create(ctx, KindClients, &models.ClientModel{FullName: "Old Client", Status: models.ClientStatusArchived}))

	for _, status := range []string{models.LoanStatusActive, models.LoanStatusActive, models.LoanStatusPaidOff, models.LoanStatusPending} {
		require.NoError(t, acc.Create(ctx, KindLoans, &models.LoanModel{
			ClientID:  client.ID,
			Principal: decimal.NewFromInt(1000),
			Status:    status,
		}))
	}

	for _, size := range []int64{1024, 4096} {
		require.NoError(t, acc.Create(ctx, KindDocuments, &models.DocumentModel{
			OwnerType: "loan",
			OwnerID:   client.ID,
			FileName:  "contract.pdf",
			SizeBytes: size,
		}))
	}
}
