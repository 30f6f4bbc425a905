package tenant

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type ScopedBase struct {
	TenantID uuid.UUID `gorm:"type:uuid;not null;index"`
}

func (b *ScopedBase) GetTenantID() uuid.UUID   { return b.TenantID }
func (b *ScopedBase) SetTenantID(id uuid.UUID) { b.TenantID = id }

type testLoan struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`
	ScopedBase
	ClientID  uuid.UUID `gorm:"type:uuid"`
	Status    string
	Principal int64
}

func (testLoan) TableName() string { return "loans" }

type testClient struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`
	ScopedBase
	Name string
}

func (testClient) TableName() string { return "clients" }

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := NewRegistry(
		Registration{
			Kind:  "loans",
			Model: &testLoan{},
			Active: func(db *gorm.DB) *gorm.DB {
				return db.Where("status = ?", "ACTIVE")
			},
		},
		Registration{Kind: "clients", Model: &testClient{}},
	)
	require.NoError(t, err)
	return reg
}

// setupSQLite opens an in-memory database limited to one connection so every
// statement sees the same schema.
func setupSQLite(t *testing.T) (*gorm.DB, *Registry) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&testLoan{}, &testClient{}))

	reg := newTestRegistry(t)
	require.NoError(t, EnableTenantGuard(db, reg))
	return db, reg
}

func newObservedFactory(t *testing.T, db *gorm.DB, reg *Registry, opts ...FactoryOption) (*Factory, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	return NewFactory(db, reg, zap.New(core), opts...), logs
}

func newLoan(status string, principal int64) *testLoan {
	return &testLoan{ID: uuid.New(), Status: status, Principal: principal}
}
