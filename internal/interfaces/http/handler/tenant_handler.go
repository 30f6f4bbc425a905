package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	identityapp "github.com/lendsaas/backend/internal/application/identity"
)

// TenantProvisioner onboards and looks up tenants
type TenantProvisioner interface {
	Provision(ctx context.Context, input identityapp.ProvisionTenantInput) (*identityapp.ProvisionResult, error)
	GetByID(ctx context.Context, id uuid.UUID) (*identityapp.TenantDTO, error)
}

// TenantAdminHandler lets platform operators onboard lenders
type TenantAdminHandler struct {
	BaseHandler
	tenants TenantProvisioner
}

// NewTenantAdminHandler creates a new tenant admin handler
func NewTenantAdminHandler(tenants TenantProvisioner) *TenantAdminHandler {
	return &TenantAdminHandler{tenants: tenants}
}

// Provision creates a tenant on a trial subscription
//
//	POST /api/v1/admin/tenants
func (h *TenantAdminHandler) Provision(c *gin.Context) {
	var input identityapp.ProvisionTenantInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.BindFailed(c, err)
		return
	}

	result, err := h.tenants.Provision(c.Request.Context(), input)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, result)
}

// GetTenant returns one tenant
//
//	GET /api/v1/admin/tenants/:id
func (h *TenantAdminHandler) GetTenant(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID format")
		return
	}

	tenant, err := h.tenants.GetByID(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, tenant)
}
