package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	billingapp "github.com/lendsaas/backend/internal/application/billing"
	"github.com/lendsaas/backend/internal/interfaces/http/dto"
)

// Stripe webhook payloads are small; anything larger is rejected
const maxWebhookPayloadSize = 65536

// WebhookProcessor verifies and applies a raw billing webhook delivery
type WebhookProcessor interface {
	ProcessWebhook(ctx context.Context, payload []byte, signature string) (*billingapp.WebhookResult, error)
}

// StripeWebhookHandler receives Stripe webhooks. The endpoint is
// authenticated by the payload signature, not by tenant context.
type StripeWebhookHandler struct {
	BaseHandler
	processor WebhookProcessor
}

// NewStripeWebhookHandler creates a new StripeWebhookHandler
func NewStripeWebhookHandler(processor WebhookProcessor) *StripeWebhookHandler {
	return &StripeWebhookHandler{processor: processor}
}

// StripeWebhookResponse is the acknowledgement returned to Stripe
type StripeWebhookResponse struct {
	Received  bool   `json:"received"`
	EventID   string `json:"event_id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Message   string `json:"message,omitempty"`
}

// HandleStripeWebhook verifies and applies one delivery.
// A failed event answers 500 so Stripe redelivers it.
//
//	POST /api/v1/billing/stripe/webhook
func (h *StripeWebhookHandler) HandleStripeWebhook(c *gin.Context) {
	// the raw body is needed for signature verification
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookPayloadSize+1))
	if err != nil {
		h.BadRequest(c, "Failed to read request body")
		return
	}
	if len(payload) > maxWebhookPayloadSize {
		h.Error(c, http.StatusRequestEntityTooLarge, dto.ErrCodePayloadTooLarge, "Payload too large")
		return
	}

	signature := c.GetHeader("Stripe-Signature")
	if signature == "" {
		h.Error(c, http.StatusUnauthorized, dto.ErrCodeInvalidSignature, "Missing Stripe-Signature header")
		return
	}

	result, err := h.processor.ProcessWebhook(c.Request.Context(), payload, signature)
	if err != nil {
		if result == nil {
			h.Error(c, http.StatusUnauthorized, dto.ErrCodeInvalidSignature, "Webhook signature verification failed")
			return
		}
		// internal error detail stays in the logs
		c.JSON(http.StatusInternalServerError, StripeWebhookResponse{
			Received:  false,
			EventID:   result.EventID,
			EventType: result.EventType,
			Message:   "Webhook processing failed",
		})
		return
	}

	c.JSON(http.StatusOK, StripeWebhookResponse{
		Received:  true,
		EventID:   result.EventID,
		EventType: result.EventType,
		Message:   result.Message,
	})
}
