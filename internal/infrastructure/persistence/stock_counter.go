package persistence

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/lendsaas/backend/internal/domain/billing"
	"github.com/lendsaas/backend/internal/domain/shared"
	"github.com/lendsaas/backend/internal/infrastructure/persistence/tenant"
)

// AccessorStockCounter recomputes stock resources from the owning tenant
// tables through a bound accessor.
type AccessorStockCounter struct {
	factory *tenant.Factory
	sources map[billing.ResourceKind]StockSource
}

// NewAccessorStockCounter creates a stock counter over the lending tables
func NewAccessorStockCounter(factory *tenant.Factory) *AccessorStockCounter {
	return &AccessorStockCounter{factory: factory, sources: StockSources}
}

// CountStock returns the current value of a stock resource for the tenant
func (c *AccessorStockCounter) CountStock(ctx context.Context, tenantID uuid.UUID, kind billing.ResourceKind) (int64, error) {
	src, ok := c.sources[kind]
	if !ok {
		return 0, shared.NewDomainError("INVALID_RESOURCE_KIND", fmt.Sprintf("%s is not a stock resource", kind))
	}
	if tenantID == uuid.Nil {
		return 0, tenant.ErrTenantRequired
	}

	acc := c.factory.Bind(ctx, tenantID)
	if src.SumColumn != "" {
		return acc.Sum(ctx, src.Kind, src.SumColumn, nil, tenant.ActiveOnly())
	}
	return acc.Count(ctx, src.Kind, nil, tenant.ActiveOnly())
}

// Ensure AccessorStockCounter implements StockCounter
var _ billing.StockCounter = (*AccessorStockCounter)(nil)
