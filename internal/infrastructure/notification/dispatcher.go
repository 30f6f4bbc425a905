// Package notification provides delivery collaborators for billing
// notifications. Channel selection and rendering belong to the downstream
// messaging service; the dispatchers here only hand requests off.
package notification

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/lendsaas/backend/internal/domain/billing"
	"github.com/lendsaas/backend/internal/infrastructure/logger"
)

// LogDispatcher writes each request to the structured log. It is the default
// collaborator when no messaging service is configured.
type LogDispatcher struct {
	logger *zap.Logger
}

// NewLogDispatcher creates a new LogDispatcher
func NewLogDispatcher(log *zap.Logger) *LogDispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogDispatcher{logger: log}
}

// Dispatch logs the notification request
func (d *LogDispatcher) Dispatch(ctx context.Context, req billing.NotificationRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	logger.WithLogger(ctx, d.logger).Info("Notification requested",
		zap.String("tenant_id", req.TenantID.String()),
		zap.String("kind", string(req.Kind)),
		zap.Any("template_data", req.TemplateData),
	)
	return nil
}

// RecordingDispatcher keeps every request in memory. An optional error makes
// every delivery fail, which exercises marker release in callers.
type RecordingDispatcher struct {
	mu       sync.Mutex
	requests []billing.NotificationRequest
	err      error
}

// NewRecordingDispatcher creates a new RecordingDispatcher
func NewRecordingDispatcher() *RecordingDispatcher {
	return &RecordingDispatcher{}
}

// FailWith makes subsequent deliveries return err; nil restores success
func (d *RecordingDispatcher) FailWith(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

// Dispatch records the request, or returns the configured failure
func (d *RecordingDispatcher) Dispatch(_ context.Context, req billing.NotificationRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.requests = append(d.requests, req)
	return nil
}

// Requests returns a copy of the delivered requests in order
func (d *RecordingDispatcher) Requests() []billing.NotificationRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]billing.NotificationRequest, len(d.requests))
	copy(out, d.requests)
	return out
}

// Count returns the number of requests of kind delivered
func (d *RecordingDispatcher) Count(kind billing.NotificationKind) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, r := range d.requests {
		if r.Kind == kind {
			n++
		}
	}
	return n
}

// Reset forgets every recorded request
func (d *RecordingDispatcher) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requests = nil
}

var (
	_ billing.NotificationDispatcher = (*LogDispatcher)(nil)
	_ billing.NotificationDispatcher = (*RecordingDispatcher)(nil)
)
