package billing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// NotificationKind identifies a notification template
type NotificationKind string

const (
	NotificationExpiringSoon NotificationKind = "expiring_soon"
	NotificationLimitWarning NotificationKind = "limit_warning"
)

// NotificationRequest is handed to the delivery collaborator, which owns
// channel selection and rendering.
type NotificationRequest struct {
	TenantID     uuid.UUID        `json:"tenant_id"`
	Kind         NotificationKind `json:"kind"`
	TemplateData map[string]any   `json:"template_data"`
}

// NotificationDispatcher delivers notification requests (email, SMS, ...)
type NotificationDispatcher interface {
	Dispatch(ctx context.Context, req NotificationRequest) error
}

// ExpiryNotificationKey is the dedup marker key for an expiring-soon notice
func ExpiryNotificationKey(tenantID uuid.UUID) string {
	return fmt.Sprintf("notify:%s:%s", NotificationExpiringSoon, tenantID)
}

// LimitNotificationKey is the dedup marker key for a limit warning at threshold
func LimitNotificationKey(tenantID uuid.UUID, kind ResourceKind, threshold int) string {
	return fmt.Sprintf("notify:%s:%s:%s:%d", NotificationLimitWarning, tenantID, kind, threshold)
}
