package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	billingapp "github.com/lendsaas/backend/internal/application/billing"
	identityapp "github.com/lendsaas/backend/internal/application/identity"
	"github.com/lendsaas/backend/internal/application/lending"
	infrabilling "github.com/lendsaas/backend/internal/infrastructure/billing"
	"github.com/lendsaas/backend/internal/infrastructure/cache"
	"github.com/lendsaas/backend/internal/infrastructure/config"
	"github.com/lendsaas/backend/internal/infrastructure/logger"
	"github.com/lendsaas/backend/internal/infrastructure/notification"
	"github.com/lendsaas/backend/internal/infrastructure/persistence"
	"github.com/lendsaas/backend/internal/infrastructure/persistence/tenant"
	"github.com/lendsaas/backend/internal/infrastructure/scheduler"
	"github.com/lendsaas/backend/internal/infrastructure/telemetry"
	"github.com/lendsaas/backend/internal/interfaces/http/handler"
	"github.com/lendsaas/backend/internal/interfaces/http/middleware"
	"github.com/lendsaas/backend/internal/interfaces/http/router"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		Service:    cfg.App.Name,
		Env:        cfg.App.Env,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting lending backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	ctx := context.Background()

	tracer, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
		Environment:       cfg.App.Env,
		Version:           version,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	db, err := persistence.NewDatabase(&cfg.Database, log, persistence.WithDBTracing(telemetry.DBTracingConfig{
		Enabled:            cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:         cfg.Telemetry.DBLogFullSQL,
		SlowQueryThreshold: cfg.Telemetry.DBSlowQueryThresh,
		DBSystem:           "postgresql",
	}, log))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if err := db.RegisterPoolMetrics(prometheus.DefaultRegisterer, "lending"); err != nil {
		log.Warn("Failed to register database pool metrics", zap.Error(err))
	}
	log.Info("Database connected successfully")

	// Tenant isolation
	registry, err := persistence.NewLendingRegistry()
	if err != nil {
		log.Fatal("Invalid resource registry", zap.Error(err))
	}
	if cfg.Tenancy.GuardEnabled {
		if err := db.EnableTenantGuard(registry); err != nil {
			log.Fatal("Failed to enable tenant guard", zap.Error(err))
		}
	}
	stamp := tenant.StampLenient
	if cfg.Tenancy.StrictStamping {
		stamp = tenant.StampStrict
	}
	factory := tenant.NewFactory(db.DB, registry, log, tenant.WithStampPolicy(stamp))

	// Repositories
	tenantRepo := persistence.NewGormTenantRepository(db.DB)
	planRepo := persistence.NewGormPlanRepository(db.DB)
	subRepo := persistence.NewGormSubscriptionRepository(db.DB)
	usageRepo := persistence.NewGormUsageSnapshotRepository(db.DB)

	// Redis-backed caches, in-memory outside production
	cacheFactory := cache.NewFactory(cfg.Redis,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(!cfg.IsProduction()),
	)
	defer func() {
		if err := cacheFactory.Close(); err != nil {
			log.Error("Error closing cache connections", zap.Error(err))
		}
	}()
	usageCache, err := cacheFactory.CreateUsageCache(ctx, cfg.Usage.CacheTTL)
	if err != nil {
		log.Fatal("Failed to create usage cache", zap.Error(err))
	}
	markers, err := cacheFactory.CreateIdempotencyStore(ctx)
	if err != nil {
		log.Fatal("Failed to create idempotency store", zap.Error(err))
	}

	// Application services
	metering := billingapp.NewMeteringService(
		usageRepo,
		persistence.NewAccessorStockCounter(factory),
		persistence.NewGormGlobalUsageReader(factory),
		usageCache,
		log,
	)
	limits := billingapp.NewLimitService(subRepo, planRepo, metering, log, billingapp.LimitServiceConfig{
		FailurePolicy: billingapp.FailurePolicy(cfg.Usage.FailurePolicy),
	})
	admission := billingapp.NewAdmission(limits, metering, factory, usageRepo,
		billingapp.EnforcementMode(cfg.Usage.EnforcementMode), log)
	log.Info("Usage enforcement configured",
		zap.String("mode", string(admission.Mode())),
		zap.String("failure_policy", string(limits.Policy())))

	subscriptions := billingapp.NewSubscriptionService(subRepo, planRepo, tenantRepo, log, billingapp.SubscriptionServiceConfig{
		GracePeriod: cfg.Subscription.GracePeriod,
	})
	notifications := billingapp.NewNotificationService(subRepo, limits,
		notification.NewLogDispatcher(log), markers, log,
		billingapp.NotificationServiceConfig{
			ExpiryWindow: cfg.Subscription.ExpiryNoticeWindow,
			Suppression:  cfg.Subscription.NotificationSuppression,
		})

	stripeConfig := infrabilling.DefaultStripeConfig()
	stripeConfig.SecretKey = cfg.Stripe.SecretKey
	stripeConfig.WebhookSecret = cfg.Stripe.WebhookSecret
	if stripeConfig.Enabled() {
		if err := stripeConfig.Validate(); err != nil {
			log.Fatal("Invalid Stripe configuration", zap.Error(err))
		}
	} else {
		log.Warn("Stripe webhook secret not configured; webhook deliveries will be rejected")
	}
	webhooks := billingapp.NewStripeWebhookService(billingapp.StripeWebhookServiceConfig{
		Config:    stripeConfig,
		SubRepo:   subRepo,
		PlanRepo:  planRepo,
		Lifecycle: subscriptions,
		Events:    markers,
		Logger:    log,
	})

	tenants := identityapp.NewTenantService(tenantRepo, planRepo, subscriptions, cfg.Subscription.DefaultPlanCode, log)
	clients := lending.NewClientService(admission, factory, log)
	messages := lending.NewMessageService(admission, log)

	// Billing scheduler
	billingScheduler := scheduler.NewBillingScheduler(subscriptions, notifications, metering, log, scheduler.BillingSchedulerConfig{
		Enabled:    cfg.Scheduler.Enabled,
		Interval:   cfg.Scheduler.Interval,
		JobTimeout: cfg.Scheduler.JobTimeout,
	})
	if err := billingScheduler.Start(ctx); err != nil {
		log.Fatal("Failed to start billing scheduler", zap.Error(err))
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Scheduler.JobTimeout)
		defer cancel()
		if err := billingScheduler.Stop(stopCtx); err != nil {
			log.Error("Billing scheduler did not stop cleanly", zap.Error(err))
		}
	}()

	// HTTP
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	tracingConfig := middleware.DefaultTracingConfig()
	tracingConfig.Enabled = cfg.Telemetry.Enabled
	if cfg.Telemetry.ServiceName != "" {
		tracingConfig.ServiceName = cfg.Telemetry.ServiceName
	}
	engine.Use(
		logger.Recovery(log),
		logger.GinMiddleware(log),
		middleware.Tracing(tracingConfig),
		middleware.SpanAttributes(),
		middleware.HTTPMetrics(),
		middleware.BodyLimit(cfg.HTTP.MaxBodyBytes),
	)

	tenantConfig := middleware.DefaultTenantContextConfig()
	tenantConfig.TrustHeader = cfg.HTTP.TrustTenantHeader
	tenantConfig.Logger = log
	if cfg.HTTP.AdminToken == "" {
		log.Warn("Admin token not configured; admin routes accept only upstream platform admins")
	}

	router.RegisterLendingRoutes(engine, router.NewAPI(engine), router.Handlers{
		Lending:       handler.NewLendingHandler(clients, messages),
		Usage:         handler.NewUsageHandler(limits, metering),
		AdminUsage:    handler.NewAdminUsageHandler(metering),
		AdminTenants:  handler.NewTenantAdminHandler(tenants),
		StripeWebhook: handler.NewStripeWebhookHandler(webhooks),
		System:        handler.NewSystemHandler(version, db, billingScheduler),
	}, router.Options{
		Tenant:     tenantConfig,
		AdminToken: cfg.HTTP.AdminToken,
	})

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		log.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}
