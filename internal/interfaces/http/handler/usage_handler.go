package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lendsaas/backend/internal/domain/billing"
)

// LimitReader reads a tenant's plan and its consumption against it
type LimitReader interface {
	CheckLimit(ctx context.Context, tenantID uuid.UUID, kind billing.ResourceKind) (*billing.LimitStatus, error)
	AllLimitsStatus(ctx context.Context, tenantID uuid.UUID) (map[billing.ResourceKind]*billing.LimitStatus, error)
	PlanFor(ctx context.Context, tenantID uuid.UUID) (*billing.Plan, error)
}

// UsageAggregator exposes metering data that spans tenants
type UsageAggregator interface {
	CurrentPeriod() string
	GlobalAggregate(ctx context.Context) (*billing.GlobalUsage, error)
}

// UsageHandler serves the current tenant's usage against its plan
type UsageHandler struct {
	BaseHandler
	limits   LimitReader
	metering UsageAggregator
}

// NewUsageHandler creates a new usage handler
func NewUsageHandler(limits LimitReader, metering UsageAggregator) *UsageHandler {
	return &UsageHandler{limits: limits, metering: metering}
}

// UsageMetric is one resource kind measured against the plan
type UsageMetric struct {
	Kind        billing.ResourceKind `json:"kind"`
	DisplayName string               `json:"display_name"`
	Unit        billing.ResourceUnit `json:"unit"`
	Current     int64                `json:"current"`
	Limit       int64                `json:"limit"`
	Remaining   int64                `json:"remaining"`
	PercentUsed float64              `json:"percent_used"`
	IsUnlimited bool                 `json:"is_unlimited"`
	IsNearLimit bool                 `json:"is_near_limit"`
	IsOverLimit bool                 `json:"is_over_limit"`
	Unknown     bool                 `json:"unknown,omitempty"`
}

// UsageSummaryResponse is the current tenant's usage in the current period
type UsageSummaryResponse struct {
	TenantID    string        `json:"tenant_id"`
	Plan        string        `json:"plan"`
	Period      string        `json:"period"`
	Metrics     []UsageMetric `json:"metrics"`
	GeneratedAt string        `json:"generated_at"`
}

func toUsageMetric(s *billing.LimitStatus) UsageMetric {
	return UsageMetric{
		Kind:        s.Kind,
		DisplayName: s.Kind.DisplayName(),
		Unit:        s.Kind.Unit(),
		Current:     s.Current,
		Limit:       s.Limit,
		Remaining:   s.Remaining(),
		PercentUsed: s.PercentUsed,
		IsUnlimited: s.IsUnlimited,
		IsNearLimit: s.IsNearLimit,
		IsOverLimit: s.IsOverLimit,
		Unknown:     s.Unknown,
	}
}

// GetCurrentUsage returns every resource kind for the current tenant
//
//	GET /api/v1/usage
func (h *UsageHandler) GetCurrentUsage(c *gin.Context) {
	tenantID, ok := h.requireTenant(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	plan, err := h.limits.PlanFor(ctx, tenantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	statuses, err := h.limits.AllLimitsStatus(ctx, tenantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	metrics := make([]UsageMetric, 0, len(statuses))
	for _, kind := range billing.AllResourceKinds() {
		if s, ok := statuses[kind]; ok {
			metrics = append(metrics, toUsageMetric(s))
		}
	}

	h.Success(c, UsageSummaryResponse{
		TenantID:    tenantID.String(),
		Plan:        plan.Code,
		Period:      h.metering.CurrentPeriod(),
		Metrics:     metrics,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	})
}

// GetUsageByKind returns one resource kind for the current tenant
//
//	GET /api/v1/usage/:kind
func (h *UsageHandler) GetUsageByKind(c *gin.Context) {
	tenantID, ok := h.requireTenant(c)
	if !ok {
		return
	}

	kind, err := billing.ParseResourceKind(c.Param("kind"))
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	status, err := h.limits.CheckLimit(c.Request.Context(), tenantID, kind)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toUsageMetric(status))
}

// AdminUsageHandler serves the platform-wide rollup to operators
type AdminUsageHandler struct {
	BaseHandler
	metering UsageAggregator
}

// NewAdminUsageHandler creates a new admin usage handler
func NewAdminUsageHandler(metering UsageAggregator) *AdminUsageHandler {
	return &AdminUsageHandler{metering: metering}
}

// GetGlobalUsage returns the cross-tenant aggregate for the current period
//
//	GET /api/v1/admin/usage/global
func (h *AdminUsageHandler) GetGlobalUsage(c *gin.Context) {
	global, err := h.metering.GlobalAggregate(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, global)
}
