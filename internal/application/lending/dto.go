package lending

import (
	"time"

	"github.com/google/uuid"

	"github.com/lendsaas/backend/internal/infrastructure/persistence/models"
)

// RegisterClientRequest represents a request to register a borrower
type RegisterClientRequest struct {
	FullName       string `json:"full_name" binding:"required,min=1,max=200"`
	DocumentNumber string `json:"document_number" binding:"max=50"`
	Phone          string `json:"phone" binding:"max=50"`
}

// ClientResponse represents a borrower in API responses
type ClientResponse struct {
	ID             uuid.UUID `json:"id"`
	FullName       string    `json:"full_name"`
	DocumentNumber string    `json:"document_number,omitempty"`
	Phone          string    `json:"phone,omitempty"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}

// ToClientResponse converts a client model to its response form
func ToClientResponse(m *models.ClientModel) ClientResponse {
	return ClientResponse{
		ID:             m.ID,
		FullName:       m.FullName,
		DocumentNumber: m.DocumentNumber,
		Phone:          m.Phone,
		Status:         m.Status,
		CreatedAt:      m.CreatedAt,
	}
}

// ClientListFilter pages through a tenant's clients
type ClientListFilter struct {
	Page      int    `form:"page"`
	PageSize  int    `form:"page_size"`
	SortBy    string `form:"sort_by"`
	SortOrder string `form:"sort_order"`
}

// Message channels
const (
	ChannelSMS      = "sms"
	ChannelWhatsApp = "whatsapp"
)

// QueueMessageRequest represents a request to queue an outbound message
type QueueMessageRequest struct {
	Channel   string `json:"channel" binding:"required,oneof=sms whatsapp"`
	Recipient string `json:"recipient" binding:"required,min=1,max=50"`
	Body      string `json:"body" binding:"required,min=1,max=1600"`
}

// MessageResponse represents a queued message in API responses
type MessageResponse struct {
	ID        uuid.UUID `json:"id"`
	Channel   string    `json:"channel"`
	Recipient string    `json:"recipient"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}
