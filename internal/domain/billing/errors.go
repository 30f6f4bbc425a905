package billing

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/lendsaas/backend/internal/domain/shared"
)

var (
	// ErrUsageStoreUnavailable wraps failures of the usage counter store
	ErrUsageStoreUnavailable = errors.New("usage store unavailable")

	// ErrNoActiveSubscription is returned when a tenant has no entitled subscription
	ErrNoActiveSubscription = shared.NewDomainError("NO_ACTIVE_SUBSCRIPTION", "Tenant has no active subscription")
)

// LimitExceededError is returned when an action would exceed a plan limit.
// It is recoverable and carries enough detail for an upgrade prompt.
type LimitExceededError struct {
	Kind    ResourceKind
	Current int64
	Limit   int64
}

// NewLimitExceededError creates a new LimitExceededError
func NewLimitExceededError(kind ResourceKind, current, limit int64) *LimitExceededError {
	return &LimitExceededError{Kind: kind, Current: current, Limit: limit}
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("%s limit reached: %d of %d used", e.Kind, e.Current, e.Limit)
}

// Code returns the error code surfaced to API clients
func (e *LimitExceededError) Code() string {
	return "LIMIT_EXCEEDED"
}

// HTTPStatusCode returns the HTTP status code for this error
func (e *LimitExceededError) HTTPStatusCode() int {
	return http.StatusPaymentRequired
}

// IsLimitExceeded reports whether err is or wraps a LimitExceededError
func IsLimitExceeded(err error) bool {
	var le *LimitExceededError
	return errors.As(err, &le)
}
