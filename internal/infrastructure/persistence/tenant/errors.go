package tenant

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrMissingTenantCondition is added to a statement against a tenant-scoped
	// table that carries no tenant_id condition and was not issued by an
	// unscoped accessor.
	ErrMissingTenantCondition = errors.New("tenant: statement on tenant-scoped table has no tenant condition")

	// ErrTenantRequired is returned when a record would be written without an owner.
	ErrTenantRequired = errors.New("tenant: record has no tenant id")
)

// ConfigurationError reports a wiring mistake: an unknown entity kind, a model
// without a tenant column, a destination of the wrong type or a filter naming
// a field the model does not have. It is not a per-request condition.
type ConfigurationError struct {
	Kind   EntityKind
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Kind == "" {
		return "tenant configuration: " + e.Reason
	}
	return fmt.Sprintf("tenant configuration for kind %q: %s", e.Kind, e.Reason)
}

// TenantMismatchError is returned under StampStrict when a create payload
// names a tenant other than the one the accessor is bound to.
type TenantMismatchError struct {
	Kind    EntityKind
	Bound   uuid.UUID
	Payload uuid.UUID
}

func (e *TenantMismatchError) Error() string {
	return fmt.Sprintf("tenant mismatch on %s create: bound to %s, payload names %s", e.Kind, e.Bound, e.Payload)
}

// IsConfigurationError reports whether err is or wraps a *ConfigurationError.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}
