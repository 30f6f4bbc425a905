package identity

import (
	"context"

	"github.com/google/uuid"
)

// TenantRepository persists lenders. Tenant rows are platform records and are
// read without a tenant scope.
type TenantRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Tenant, error)
	// FindBySlug matches case-insensitively; slugs are stored lower-cased.
	FindBySlug(ctx context.Context, slug string) (*Tenant, error)
	ExistsBySlug(ctx context.Context, slug string) (bool, error)
	// Save inserts or updates t. A taken slug is ALREADY_EXISTS.
	Save(ctx context.Context, t *Tenant) error
}
