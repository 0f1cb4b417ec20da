package clients

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/crewdesk/crewdesk/internal/authz"
	"github.com/crewdesk/crewdesk/internal/platform/httpx"
	"github.com/crewdesk/crewdesk/internal/shared"
)

// Service handles client business logic.
type Service struct {
	repo  Repository
	audit *shared.AuditLogger
}

// NewService builds a Service instance.
func NewService(repo Repository, audit *shared.AuditLogger) *Service {
	return &Service{repo: repo, audit: audit}
}

// List returns clients visible to the principal. super_admin sees all,
// tenant_admin its tenant, client roles only their own client row.
func (s *Service) List(ctx context.Context, principal *authz.Principal, req ListClientsRequest) ([]Client, int, error) {
	switch principal.Role {
	case authz.RoleSuperAdmin:
	case authz.RoleTenantAdmin:
		req.TenantID = principal.TenantID
	default:
		req.ClientID = principal.ClientID
		if req.ClientID == nil {
			return []Client{}, 0, nil
		}
	}
	return s.repo.List(ctx, req)
}

// Get fetches a client.
func (s *Service) Get(ctx context.Context, id int64) (*Client, error) {
	client, err := s.repo.Get(ctx, id)
	if err != nil {
		if err == ErrNotFound {
			return nil, httpx.ErrNotFound
		}
		return nil, err
	}
	return client, nil
}

// CreateClientInput carries validated creation fields.
type CreateClientInput struct {
	TenantID     *int64
	Name         string `validate:"required,min=2"`
	ContactEmail string `validate:"omitempty,email"`
	Phone        string
	Address      string
}

// Create registers a client. tenant_admin creates inside its own tenant;
// super_admin must name the target tenant.
func (s *Service) Create(ctx context.Context, principal *authz.Principal, input CreateClientInput) (*Client, error) {
	var tenantID int64
	switch principal.Role {
	case authz.RoleSuperAdmin:
		if input.TenantID == nil {
			return nil, fmt.Errorf("%w: tenant_id is required", httpx.ErrValidation)
		}
		tenantID = *input.TenantID
	case authz.RoleTenantAdmin:
		if principal.TenantID == nil {
			return nil, httpx.ErrForbidden
		}
		tenantID = *principal.TenantID
	default:
		return nil, httpx.ErrForbidden
	}

	id, err := s.repo.Create(ctx, Client{
		TenantID:     tenantID,
		Name:         strings.TrimSpace(input.Name),
		ContactEmail: strings.TrimSpace(input.ContactEmail),
		Phone:        strings.TrimSpace(input.Phone),
		Address:      strings.TrimSpace(input.Address),
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, principal, "client.create", id)
	return s.repo.Get(ctx, id)
}

// Update applies a sanitized write payload from the authz field filter.
func (s *Service) Update(ctx context.Context, principal *authz.Principal, id int64, sanitized map[string]any) (*Client, error) {
	if len(sanitized) == 0 {
		return nil, fmt.Errorf("%w: no valid fields to update", httpx.ErrValidation)
	}
	if err := s.repo.Update(ctx, id, sanitized); err != nil {
		if err == ErrNotFound {
			return nil, httpx.ErrNotFound
		}
		return nil, err
	}
	s.recordAudit(ctx, principal, "client.update", id)
	return s.repo.Get(ctx, id)
}

// Delete removes a client.
func (s *Service) Delete(ctx context.Context, principal *authz.Principal, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if err == ErrNotFound {
			return httpx.ErrNotFound
		}
		return err
	}
	s.recordAudit(ctx, principal, "client.delete", id)
	return nil
}

func (s *Service) recordAudit(ctx context.Context, principal *authz.Principal, action string, id int64) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  principal.ID,
		Action:   action,
		Entity:   "client",
		EntityID: strconv.FormatInt(id, 10),
	})
}
