package telemetry

import (
	"context"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBTracingConfig holds configuration for SQL statement spans.
type DBTracingConfig struct {
	Enabled bool
	// LogFullSQL keeps bound values in db.statement; development only
	LogFullSQL         bool
	SlowQueryThreshold time.Duration
	DBSystem           string
	// TracerProvider overrides the global provider; nil uses the global one
	TracerProvider trace.TracerProvider
}

// DefaultDBTracingConfig returns the disabled, variable-free configuration.
func DefaultDBTracingConfig() DBTracingConfig {
	return DBTracingConfig{
		SlowQueryThreshold: 200 * time.Millisecond,
		DBSystem:           "postgresql",
	}
}

// DBTracingPlugin is a gorm.Plugin that installs otelgorm and marks
// statements slower than the configured threshold on their span.
type DBTracingPlugin struct {
	config DBTracingConfig
	logger *zap.Logger
}

// NewDBTracingPlugin creates the plugin. Register it with db.Use.
func NewDBTracingPlugin(cfg DBTracingConfig, log *zap.Logger) *DBTracingPlugin {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.SlowQueryThreshold <= 0 {
		cfg.SlowQueryThreshold = DefaultDBTracingConfig().SlowQueryThreshold
	}
	return &DBTracingPlugin{config: cfg, logger: log}
}

// Name implements gorm.Plugin.
func (p *DBTracingPlugin) Name() string { return "lending:db_tracing" }

// Initialize implements gorm.Plugin. A disabled plugin registers nothing.
func (p *DBTracingPlugin) Initialize(db *gorm.DB) error {
	if !p.config.Enabled {
		p.logger.Debug("Database tracing disabled, skipping otelgorm registration")
		return nil
	}

	// pool statistics are already exported through prometheus
	opts := []otelgorm.Option{otelgorm.WithoutMetrics()}
	if p.config.DBSystem != "" {
		opts = append(opts, otelgorm.WithDBName(p.config.DBSystem))
	}
	if !p.config.LogFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if p.config.TracerProvider != nil {
		opts = append(opts, otelgorm.WithTracerProvider(p.config.TracerProvider))
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}
	if err := p.registerTimingCallbacks(db); err != nil {
		return err
	}

	p.logger.Info("Database tracing enabled",
		zap.Bool("log_full_sql", p.config.LogFullSQL),
		zap.Duration("slow_query_threshold", p.config.SlowQueryThreshold),
		zap.String("db_system", p.config.DBSystem),
	)
	return nil
}

type callbackRegistrar interface {
	Register(name string, fn func(*gorm.DB)) error
}

type queryStartKey struct{}

// registerTimingCallbacks brackets each operation inside the otelgorm hooks:
// the start time is taken once the span is open and the slow query check
// runs before the span ends.
func (p *DBTracingPlugin) registerTimingCallbacks(db *gorm.DB) error {
	cb := db.Callback()
	hooks := []struct {
		name     string
		callback callbackRegistrar
		fn       func(*gorm.DB)
	}{
		{"before_create", cb.Create().After("otel:before:create").Before("gorm:create"), markQueryStart},
		{"after_create", cb.Create().After("gorm:create").Before("otel:after:create"), p.checkSlowQuery},
		{"before_query", cb.Query().After("otel:before:select").Before("gorm:query"), markQueryStart},
		{"after_query", cb.Query().After("gorm:query").Before("otel:after:select"), p.checkSlowQuery},
		{"before_update", cb.Update().After("otel:before:update").Before("gorm:update"), markQueryStart},
		{"after_update", cb.Update().After("gorm:update").Before("otel:after:update"), p.checkSlowQuery},
		{"before_delete", cb.Delete().After("otel:before:delete").Before("gorm:delete"), markQueryStart},
		{"after_delete", cb.Delete().After("gorm:delete").Before("otel:after:delete"), p.checkSlowQuery},
		{"before_row", cb.Row().After("otel:before:row").Before("gorm:row"), markQueryStart},
		{"after_row", cb.Row().After("gorm:row").Before("otel:after:row"), p.checkSlowQuery},
		{"before_raw", cb.Raw().After("otel:before:raw").Before("gorm:raw"), markQueryStart},
		{"after_raw", cb.Raw().After("gorm:raw").Before("otel:after:raw"), p.checkSlowQuery},
	}
	for _, h := range hooks {
		if err := h.callback.Register("lending_timing:"+h.name, h.fn); err != nil {
			return err
		}
	}
	return nil
}

func markQueryStart(db *gorm.DB) {
	if db.Statement.Context != nil {
		db.Statement.Context = context.WithValue(db.Statement.Context, queryStartKey{}, time.Now())
	}
}

// checkSlowQuery flags the statement span when the statement ran longer than
// the threshold.
func (p *DBTracingPlugin) checkSlowQuery(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	start, ok := ctx.Value(queryStartKey{}).(time.Time)
	if !ok {
		return
	}
	elapsed := time.Since(start)
	if elapsed <= p.config.SlowQueryThreshold {
		return
	}
	span.SetAttributes(
		attribute.Bool("db.slow_query", true),
		attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
	)
	span.AddEvent("slow_query_warning", trace.WithAttributes(
		attribute.Int64("duration_ms", elapsed.Milliseconds()),
		attribute.Int64("threshold_ms", p.config.SlowQueryThreshold.Milliseconds()),
	))
}

var _ gorm.Plugin = (*DBTracingPlugin)(nil)
