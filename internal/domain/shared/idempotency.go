package shared

import (
	"context"
	"time"
)

// IdempotencyStore stores processed keys to suppress duplicate side effects,
// such as repeated notices from periodic checks or redelivered webhooks.
type IdempotencyStore interface {
	// MarkProcessed marks a key as processed with a TTL.
	// Returns true if the key was newly marked, false if it was already processed.
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// IsProcessed checks if a key has already been processed
	IsProcessed(ctx context.Context, key string) (bool, error)

	// Release removes a marker so the key can be processed again.
	Release(ctx context.Context, key string) error

	// Close closes the store and releases resources
	Close() error
}
