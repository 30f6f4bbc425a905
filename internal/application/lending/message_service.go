package lending

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lendsaas/backend/internal/domain/billing"
	"github.com/lendsaas/backend/internal/domain/shared"
	"github.com/lendsaas/backend/internal/infrastructure/persistence"
	"github.com/lendsaas/backend/internal/infrastructure/persistence/models"
	"github.com/lendsaas/backend/internal/infrastructure/persistence/tenant"
)

// MessageStatusQueued marks a message waiting for the delivery provider
const MessageStatusQueued = "QUEUED"

// MessageService queues outbound SMS and WhatsApp messages. Delivery is
// done by the messaging provider; each queued message counts toward the
// channel's monthly quota.
type MessageService struct {
	admission Admitter
	logger    *zap.Logger
}

// NewMessageService creates a new MessageService
func NewMessageService(admission Admitter, logger *zap.Logger) *MessageService {
	return &MessageService{admission: admission, logger: logger}
}

// ChannelKind maps a message channel to the resource it consumes
func ChannelKind(channel string) (billing.ResourceKind, error) {
	switch channel {
	case ChannelSMS:
		return billing.ResourceSMS, nil
	case ChannelWhatsApp:
		return billing.ResourceWhatsApp, nil
	default:
		return "", shared.NewDomainError("INVALID_INPUT", "Unsupported message channel: "+channel)
	}
}

// Queue records the message if the tenant has quota left on its channel
func (s *MessageService) Queue(ctx context.Context, tenantID uuid.UUID, req QueueMessageRequest) (*MessageResponse, error) {
	kind, err := ChannelKind(req.Channel)
	if err != nil {
		return nil, err
	}
	if req.Recipient == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "Recipient is required")
	}

	msg := &models.MessageModel{
		Channel:   req.Channel,
		Recipient: req.Recipient,
		Body:      req.Body,
		Status:    MessageStatusQueued,
	}
	err = s.admission.Admit(ctx, tenantID, kind, 1, func(ctx context.Context, acc *tenant.Accessor) error {
		return acc.Create(ctx, persistence.KindMessages, msg)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Message queued",
		zap.String("tenant_id", tenantID.String()),
		zap.String("channel", req.Channel))

	return &MessageResponse{
		ID:        msg.ID,
		Channel:   msg.Channel,
		Recipient: msg.Recipient,
		Status:    msg.Status,
		CreatedAt: msg.CreatedAt,
	}, nil
}
