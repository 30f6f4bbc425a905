package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/lendsaas/backend/internal/infrastructure/config"
	"github.com/lendsaas/backend/internal/infrastructure/logger"
	"github.com/lendsaas/backend/internal/infrastructure/persistence/tenant"
	"github.com/lendsaas/backend/internal/infrastructure/telemetry"
)

// Database is the shared Postgres handle. Tenant data is reached through a
// tenant.Factory built on DB, never through DB directly.
type Database struct {
	DB *gorm.DB
}

// DatabaseOption configures NewDatabase.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	plugins []gorm.Plugin
}

// WithDBTracing installs the statement span plugin; a disabled config is a no-op.
func WithDBTracing(cfg telemetry.DBTracingConfig, log *zap.Logger) DatabaseOption {
	return func(o *databaseOptions) {
		if cfg.Enabled {
			o.plugins = append(o.plugins, telemetry.NewDBTracingPlugin(cfg, log))
		}
	}
}

// NewDatabase opens and pings the Postgres pool described by cfg.
func NewDatabase(cfg *config.DatabaseConfig, log *zap.Logger, opts ...DatabaseOption) (*Database, error) {
	var o databaseOptions
	for _, opt := range opts {
		opt(&o)
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:                 logger.NewSQLLogger(log, cfg.LogLevel, cfg.SlowQuery),
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
		TranslateError:         true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	for _, plugin := range o.plugins {
		if err := db.Use(plugin); err != nil {
			return nil, fmt.Errorf("register %s: %w", plugin.Name(), err)
		}
	}

	d := &Database{DB: db}
	pool, err := d.pool()
	if err != nil {
		return nil, err
	}
	pool.SetMaxOpenConns(cfg.MaxOpenConns)
	pool.SetMaxIdleConns(cfg.MaxIdleConns)
	pool.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
	pool.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return d, nil
}

func (d *Database) pool() (*sql.DB, error) {
	pool, err := d.DB.DB()
	if err != nil {
		return nil, fmt.Errorf("database pool: %w", err)
	}
	return pool, nil
}

// EnableTenantGuard rejects statements on tenant tables that carry no
// tenant condition.
func (d *Database) EnableTenantGuard(registry *tenant.Registry) error {
	if err := tenant.EnableTenantGuard(d.DB, registry); err != nil {
		return fmt.Errorf("register tenant guard: %w", err)
	}
	return nil
}

// PingContext lets the health endpoint check the pool.
func (d *Database) PingContext(ctx context.Context) error {
	pool, err := d.pool()
	if err != nil {
		return err
	}
	return pool.PingContext(ctx)
}

// RegisterPoolMetrics exports connection pool statistics under db_name=name.
func (d *Database) RegisterPoolMetrics(reg prometheus.Registerer, name string) error {
	pool, err := d.pool()
	if err != nil {
		return err
	}
	return reg.Register(collectors.NewDBStatsCollector(pool, name))
}

// Close closes the pool.
func (d *Database) Close() error {
	pool, err := d.pool()
	if err != nil {
		return err
	}
	return pool.Close()
}
