package router

import (
	"github.com/gin-gonic/gin"

	"github.com/lendsaas/backend/internal/infrastructure/metrics"
	"github.com/lendsaas/backend/internal/interfaces/http/handler"
	"github.com/lendsaas/backend/internal/interfaces/http/middleware"
)

// Handlers are the HTTP handlers of the lending API
type Handlers struct {
	Lending       *handler.LendingHandler
	Usage         *handler.UsageHandler
	AdminUsage    *handler.AdminUsageHandler
	AdminTenants  *handler.TenantAdminHandler
	StripeWebhook *handler.StripeWebhookHandler
	System        *handler.SystemHandler
}

// Options configure the route guards
type Options struct {
	Tenant     middleware.TenantContextConfig
	AdminToken string
}

// RegisterLendingRoutes registers the operational endpoints on the engine
// and the versioned API groups on api:
//
//	GET  /health
//	GET  /metrics
//	POST /api/v1/clients          tenant, metered
//	GET  /api/v1/clients          tenant
//	POST /api/v1/messages         tenant, metered
//	GET  /api/v1/usage            tenant
//	GET  /api/v1/usage/:kind      tenant
//	GET  /api/v1/admin/usage/global  platform admin
//	POST /api/v1/admin/tenants    platform admin
//	GET  /api/v1/admin/tenants/:id  platform admin
//	POST /api/v1/billing/stripe/webhook  signed payload
func RegisterLendingRoutes(engine *gin.Engine, api *API, h Handlers, opts Options) {
	engine.GET("/health", h.System.Health)
	engine.GET("/metrics", metrics.Handler())

	tenantContext := middleware.TenantContext(opts.Tenant)

	clients := NewGroup("/clients", tenantContext).
		POST("", h.Lending.RegisterClient).
		GET("", h.Lending.ListClients)

	messages := NewGroup("/messages", tenantContext).
		POST("", h.Lending.QueueMessage)

	usage := NewGroup("/usage", tenantContext).
		GET("", h.Usage.GetCurrentUsage).
		GET("/:kind", h.Usage.GetUsageByKind)

	admin := NewGroup("/admin", middleware.PlatformAdmin(opts.AdminToken))
	admin.Sub("/usage").GET("/global", h.AdminUsage.GetGlobalUsage)
	admin.Sub("/tenants").
		POST("", h.AdminTenants.Provision).
		GET("/:id", h.AdminTenants.GetTenant)

	billing := NewGroup("/billing")
	billing.Sub("/stripe").POST("/webhook", h.StripeWebhook.HandleStripeWebhook)

	api.Mount(clients, messages, usage, admin, billing)
}
