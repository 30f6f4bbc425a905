package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App          AppConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Log          LogConfig
	HTTP         HTTPConfig
	Telemetry    TelemetryConfig
	Tenancy      TenancyConfig
	Usage        UsageConfig
	Subscription SubscriptionConfig
	Scheduler    SchedulerConfig
	Stripe       StripeConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
	LogLevel        string
	// SlowQuery is the duration above which statements are logged at warn
	SlowQuery time.Duration
}

// RedisConfig holds Redis connection settings.
// When disabled, caches and dedup markers fall back to in-memory stores.
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string
	Format string
	Output string
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	TrustedProxies []string
	// TrustTenantHeader accepts X-Tenant-ID from a trusted upstream gateway
	TrustTenantHeader bool
	// AdminToken guards the platform admin routes; empty disables token access
	AdminToken   string
	MaxBodyBytes int64
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string
	SamplingRatio     float64
	ServiceName       string
	Insecure          bool
	// DBTraceEnabled adds a child span per SQL statement when Enabled is set
	DBTraceEnabled    bool
	DBLogFullSQL      bool
	DBSlowQueryThresh time.Duration
}

// TenancyConfig controls tenant isolation behavior
type TenancyConfig struct {
	// StrictStamping rejects creates whose payload names another tenant
	// instead of silently overwriting the tenant id
	StrictStamping bool
	// GuardEnabled registers the GORM callbacks that reject unscoped statements
	GuardEnabled bool
}

// Usage failure policies
const (
	FailOpen   = "fail_open"
	FailClosed = "fail_closed"
)

// Enforcement modes
const (
	EnforcementSoft   = "soft"
	EnforcementStrict = "strict"
)

// UsageConfig controls usage metering and limit enforcement
type UsageConfig struct {
	CacheTTL        time.Duration
	FailurePolicy   string // fail_open, fail_closed
	EnforcementMode string // soft, strict
}

// SubscriptionConfig controls the subscription lifecycle
type SubscriptionConfig struct {
	GracePeriod             time.Duration
	ExpiryNoticeWindow      time.Duration
	NotificationSuppression time.Duration
	DefaultPlanCode         string
}

// SchedulerConfig holds billing scheduler configuration
type SchedulerConfig struct {
	Enabled    bool
	Interval   time.Duration
	JobTimeout time.Duration
}

// StripeConfig holds Stripe credentials
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with LENDING_ prefix (e.g., LENDING_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("LENDING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// booleans whose zero value is not the default
	v.SetDefault("tenancy.guard_enabled", true)
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("telemetry.db_trace_enabled", true)

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
			LogLevel:        v.GetString("database.log_level"),
			SlowQuery:       v.GetDuration("database.slow_query"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:       v.GetDuration("http.read_timeout"),
			WriteTimeout:      v.GetDuration("http.write_timeout"),
			IdleTimeout:       v.GetDuration("http.idle_timeout"),
			TrustedProxies:    v.GetStringSlice("http.trusted_proxies"),
			TrustTenantHeader: v.GetBool("http.trust_tenant_header"),
			AdminToken:        v.GetString("http.admin_token"),
			MaxBodyBytes:      v.GetInt64("http.max_body_bytes"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:      v.GetBool("telemetry.db_log_full_sql"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
		},
		Tenancy: TenancyConfig{
			StrictStamping: v.GetBool("tenancy.strict_stamping"),
			GuardEnabled:   v.GetBool("tenancy.guard_enabled"),
		},
		Usage: UsageConfig{
			CacheTTL:        v.GetDuration("usage.cache_ttl"),
			FailurePolicy:   v.GetString("usage.failure_policy"),
			EnforcementMode: v.GetString("usage.enforcement_mode"),
		},
		Subscription: SubscriptionConfig{
			GracePeriod:             v.GetDuration("subscription.grace_period"),
			ExpiryNoticeWindow:      v.GetDuration("subscription.expiry_notice_window"),
			NotificationSuppression: v.GetDuration("subscription.notification_suppression"),
			DefaultPlanCode:         v.GetString("subscription.default_plan_code"),
		},
		Scheduler: SchedulerConfig{
			Enabled:    v.GetBool("scheduler.enabled"),
			Interval:   v.GetDuration("scheduler.interval"),
			JobTimeout: v.GetDuration("scheduler.job_timeout"),
		},
		Stripe: StripeConfig{
			SecretKey:     v.GetString("stripe.secret_key"),
			WebhookSecret: v.GetString("stripe.webhook_secret"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "lending-backend"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "lending"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Database.LogLevel == "" {
		cfg.Database.LogLevel = "warn"
	}
	if cfg.Database.SlowQuery == 0 {
		cfg.Database.SlowQuery = 200 * time.Millisecond
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxBodyBytes == 0 {
		cfg.HTTP.MaxBodyBytes = 1 << 20
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}
	if cfg.Usage.CacheTTL == 0 {
		cfg.Usage.CacheTTL = 30 * time.Second
	}
	if cfg.Usage.FailurePolicy == "" {
		cfg.Usage.FailurePolicy = FailOpen
	}
	if cfg.Usage.EnforcementMode == "" {
		cfg.Usage.EnforcementMode = EnforcementSoft
	}
	if cfg.Subscription.GracePeriod == 0 {
		cfg.Subscription.GracePeriod = 7 * 24 * time.Hour
	}
	if cfg.Subscription.ExpiryNoticeWindow == 0 {
		cfg.Subscription.ExpiryNoticeWindow = 3 * 24 * time.Hour
	}
	if cfg.Subscription.NotificationSuppression == 0 {
		cfg.Subscription.NotificationSuppression = 24 * time.Hour
	}
	if cfg.Scheduler.Interval == 0 {
		cfg.Scheduler.Interval = time.Hour
	}
	if cfg.Scheduler.JobTimeout == 0 {
		cfg.Scheduler.JobTimeout = 10 * time.Minute
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if c.Usage.CacheTTL < time.Second || c.Usage.CacheTTL > 5*time.Minute {
		return fmt.Errorf("usage.cache_ttl must be between 1s and 5m, got %s", c.Usage.CacheTTL)
	}
	switch c.Usage.FailurePolicy {
	case FailOpen, FailClosed:
	default:
		return fmt.Errorf("usage.failure_policy must be %q or %q, got %q", FailOpen, FailClosed, c.Usage.FailurePolicy)
	}
	switch c.Usage.EnforcementMode {
	case EnforcementSoft, EnforcementStrict:
	default:
		return fmt.Errorf("usage.enforcement_mode must be %q or %q, got %q", EnforcementSoft, EnforcementStrict, c.Usage.EnforcementMode)
	}

	if c.Subscription.GracePeriod < 0 {
		return fmt.Errorf("subscription.grace_period cannot be negative")
	}
	if c.Subscription.ExpiryNoticeWindow < 0 {
		return fmt.Errorf("subscription.expiry_notice_window cannot be negative")
	}
	if c.Scheduler.Enabled && c.Scheduler.Interval < time.Second {
		return fmt.Errorf("scheduler.interval must be at least 1s")
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	if c.App.Env == "production" {
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Stripe.SecretKey != "" && c.Stripe.WebhookSecret == "" {
			return fmt.Errorf("stripe.webhook_secret is required when stripe.secret_key is set in production")
		}
	}

	return nil
}

// IsProduction reports whether the app runs in production
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Addr returns the Redis address
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
