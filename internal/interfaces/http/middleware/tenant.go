package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lendsaas/backend/internal/infrastructure/logger"
	"github.com/lendsaas/backend/internal/interfaces/http/dto"
)

// Keys shared with the authentication layer and handlers
const (
	// AuthTenantIDKey is set by the upstream authentication middleware
	AuthTenantIDKey = "auth_tenant_id"
	// AuthPlatformAdminKey marks a request authenticated as a platform operator
	AuthPlatformAdminKey = "auth_platform_admin"

	TenantIDKey     = "tenant_id"
	TenantHeaderKey = "X-Tenant-ID"
	AdminTokenKey   = "X-Admin-Token"
)

// TenantContextConfig holds configuration for the tenant context middleware
type TenantContextConfig struct {
	// TrustHeader accepts X-Tenant-ID when no authenticated tenant is present.
	// Enable only behind a gateway that strips client-supplied headers.
	TrustHeader bool
	// SkipPaths are paths that don't carry a tenant (health, metrics, webhooks)
	SkipPaths []string
	Logger    *zap.Logger
}

// DefaultTenantContextConfig returns default tenant context configuration
func DefaultTenantContextConfig() TenantContextConfig {
	return TenantContextConfig{
		TrustHeader: false,
		SkipPaths:   []string{"/health", "/metrics", "/api/v1/billing/stripe/webhook"},
	}
}

// TenantContext resolves the tenant of the request and places it on both the
// gin context and the request context. Requests without a valid tenant are
// rejected with 401.
func TenantContext(cfg TenantContextConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, skip := range cfg.SkipPaths {
			if path == skip || strings.HasPrefix(path, skip+"/") {
				c.Next()
				return
			}
		}

		raw, method := resolveTenant(c, cfg.TrustHeader)
		if raw == "" {
			respondUnauthorized(c, "Tenant identification required")
			return
		}

		tenantID, err := uuid.Parse(raw)
		if err != nil || tenantID == uuid.Nil {
			respondUnauthorized(c, "Invalid tenant ID format")
			return
		}

		c.Set(TenantIDKey, tenantID.String())
		ctx, _ := logger.WithTenantID(c.Request.Context(), logger.FromContext(c.Request.Context()), tenantID.String())
		c.Request = c.Request.WithContext(ctx)

		if cfg.Logger != nil {
			cfg.Logger.Debug("Tenant identified",
				zap.String("tenant_id", tenantID.String()),
				zap.String("method", method),
			)
		}
		c.Next()
	}
}

func resolveTenant(c *gin.Context, trustHeader bool) (string, string) {
	if v, ok := c.Get(AuthTenantIDKey); ok {
		if id, ok := v.(string); ok && id != "" {
			return id, "auth"
		}
	}
	if trustHeader {
		if id := c.GetHeader(TenantHeaderKey); id != "" {
			return id, "header"
		}
	}
	return "", ""
}

// GetTenantID retrieves the tenant ID from gin.Context
func GetTenantID(c *gin.Context) string {
	return c.GetString(TenantIDKey)
}

// GetTenantUUID retrieves the tenant ID as a UUID. It returns uuid.Nil when
// the request carries no tenant.
func GetTenantUUID(c *gin.Context) uuid.UUID {
	id, err := uuid.Parse(GetTenantID(c))
	if err != nil {
		return uuid.Nil
	}
	return id
}

// PlatformAdmin guards operator routes. A request passes when the
// authentication layer marked it as a platform admin, or when it presents
// the configured admin token.
func PlatformAdmin(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetBool(AuthPlatformAdminKey) {
			c.Next()
			return
		}
		presented := c.GetHeader(AdminTokenKey)
		if token != "" && presented != "" &&
			subtle.ConstantTimeCompare([]byte(presented), []byte(token)) == 1 {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusForbidden,
			dto.NewErrorResponse(dto.ErrCodeForbidden, "Platform admin access required"))
	}
}

func respondUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewErrorResponse(dto.ErrCodeUnauthorized, message))
}
