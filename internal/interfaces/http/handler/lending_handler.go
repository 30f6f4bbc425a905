package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lendsaas/backend/internal/application/lending"
)

// ClientRegistrar registers and lists a tenant's borrowers
type ClientRegistrar interface {
	Register(ctx context.Context, tenantID uuid.UUID, req lending.RegisterClientRequest) (*lending.ClientResponse, error)
	List(ctx context.Context, tenantID uuid.UUID, filter lending.ClientListFilter) ([]lending.ClientResponse, int64, error)
}

// MessageQueuer queues outbound messages
type MessageQueuer interface {
	Queue(ctx context.Context, tenantID uuid.UUID, req lending.QueueMessageRequest) (*lending.MessageResponse, error)
}

// LendingHandler serves the plan-limited lending records
type LendingHandler struct {
	BaseHandler
	clients  ClientRegistrar
	messages MessageQueuer
}

// NewLendingHandler creates a new lending handler
func NewLendingHandler(clients ClientRegistrar, messages MessageQueuer) *LendingHandler {
	return &LendingHandler{clients: clients, messages: messages}
}

// ClientListResponse is one page of clients
type ClientListResponse struct {
	Items    []lending.ClientResponse `json:"items"`
	Total    int64                    `json:"total"`
	Page     int                      `json:"page"`
	PageSize int                      `json:"page_size"`
}

// RegisterClient registers a borrower; 402 when the plan's client limit is reached
//
//	POST /api/v1/clients
func (h *LendingHandler) RegisterClient(c *gin.Context) {
	tenantID, ok := h.requireTenant(c)
	if !ok {
		return
	}

	var req lending.RegisterClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindFailed(c, err)
		return
	}

	client, err := h.clients.Register(c.Request.Context(), tenantID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, client)
}

// ListClients returns one page of the tenant's clients
//
//	GET /api/v1/clients?page=1&page_size=20&sort_by=full_name&sort_order=asc
func (h *LendingHandler) ListClients(c *gin.Context) {
	tenantID, ok := h.requireTenant(c)
	if !ok {
		return
	}

	var filter lending.ClientListFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		h.BindFailed(c, err)
		return
	}

	items, total, err := h.clients.List(c.Request.Context(), tenantID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	page, size := lending.NormalizePage(filter.Page, filter.PageSize)
	h.Success(c, ClientListResponse{
		Items:    items,
		Total:    total,
		Page:     page,
		PageSize: size,
	})
}

// QueueMessage queues an SMS or WhatsApp message against the channel quota
//
//	POST /api/v1/messages
func (h *LendingHandler) QueueMessage(c *gin.Context) {
	tenantID, ok := h.requireTenant(c)
	if !ok {
		return
	}

	var req lending.QueueMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindFailed(c, err)
		return
	}

	msg, err := h.messages.Queue(c.Request.Context(), tenantID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, msg)
}
