// Package lending holds the tenant-facing lending operations whose records
// count toward plan limits.
package lending

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	billingapp "github.com/lendsaas/backend/internal/application/billing"
	"github.com/lendsaas/backend/internal/domain/billing"
	"github.com/lendsaas/backend/internal/domain/shared"
	"github.com/lendsaas/backend/internal/infrastructure/persistence"
	"github.com/lendsaas/backend/internal/infrastructure/persistence/models"
	"github.com/lendsaas/backend/internal/infrastructure/persistence/tenant"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Admitter gates the creation of metered records
type Admitter interface {
	Admit(ctx context.Context, tenantID uuid.UUID, kind billing.ResourceKind, delta int64, create billingapp.CreateFunc) error
}

// ClientService registers and lists borrowers
type ClientService struct {
	admission Admitter
	factory   *tenant.Factory
	logger    *zap.Logger
}

// NewClientService creates a new ClientService
func NewClientService(admission Admitter, factory *tenant.Factory, logger *zap.Logger) *ClientService {
	return &ClientService{
		admission: admission,
		factory:   factory,
		logger:    logger,
	}
}

// Register creates a client if the tenant's plan has room for one more.
// Document numbers are unique per tenant.
func (s *ClientService) Register(ctx context.Context, tenantID uuid.UUID, req RegisterClientRequest) (*ClientResponse, error) {
	name := strings.TrimSpace(req.FullName)
	if name == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "Client name cannot be empty")
	}

	client := &models.ClientModel{
		FullName:       name,
		DocumentNumber: strings.TrimSpace(req.DocumentNumber),
		Phone:          strings.TrimSpace(req.Phone),
		Status:         models.ClientStatusActive,
	}

	err := s.admission.Admit(ctx, tenantID, billing.ResourceClients, 1, func(ctx context.Context, acc *tenant.Accessor) error {
		if client.DocumentNumber != "" {
			n, err := acc.Count(ctx, persistence.KindClients, tenant.Filter{"document_number": client.DocumentNumber})
			if err != nil {
				return err
			}
			if n > 0 {
				return shared.NewDomainError("ALREADY_EXISTS", "Client with this document number already exists")
			}
		}
		return acc.Create(ctx, persistence.KindClients, client)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Client registered",
		zap.String("tenant_id", tenantID.String()),
		zap.String("client_id", client.ID.String()))

	resp := ToClientResponse(client)
	return &resp, nil
}

// List returns one page of the tenant's clients and the total. Unknown sort
// fields fall back to newest first.
func (s *ClientService) List(ctx context.Context, tenantID uuid.UUID, filter ClientListFilter) ([]ClientResponse, int64, error) {
	if tenantID == uuid.Nil {
		return nil, 0, shared.NewDomainError("INVALID_TENANT", "Tenant ID is required")
	}
	page, size := NormalizePage(filter.Page, filter.PageSize)

	acc := s.factory.Bind(ctx, tenantID)
	total, err := acc.Count(ctx, persistence.KindClients, nil)
	if err != nil {
		return nil, 0, err
	}

	var rows []models.ClientModel
	err = acc.Read(ctx, persistence.KindClients, nil, &rows,
		tenant.OrderBy(
			persistence.ValidateSortField(filter.SortBy, persistence.ClientSortFields, "created_at"),
			persistence.SortDescending(filter.SortOrder),
		),
		tenant.Limit(size),
		tenant.Offset((page-1)*size),
	)
	if err != nil {
		return nil, 0, err
	}

	out := make([]ClientResponse, len(rows))
	for i := range rows {
		out[i] = ToClientResponse(&rows[i])
	}
	return out, total, nil
}

// NormalizePage applies the default and maximum page size
func NormalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return page, size
}
