package branches

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/crewdesk/crewdesk/internal/authz"
	"github.com/crewdesk/crewdesk/internal/platform/httpx"
	"github.com/crewdesk/crewdesk/internal/shared"
)

// Service handles branch business logic.
type Service struct {
	repo   Repository
	scopes authz.ScopeResolver
	audit  *shared.AuditLogger
}

// NewService builds a Service instance. The scope resolver is used to
// verify that the owning client falls inside the caller's affiliation
// when a branch is created.
func NewService(repo Repository, scopes authz.ScopeResolver, audit *shared.AuditLogger) *Service {
	return &Service{repo: repo, scopes: scopes, audit: audit}
}

// List returns branches visible to the principal. super_admin sees all,
// tenant_admin every branch under its tenant's clients, client roles only
// branches of their own client.
func (s *Service) List(ctx context.Context, principal *authz.Principal, req ListBranchesRequest) ([]Branch, int, error) {
	switch principal.Role {
	case authz.RoleSuperAdmin:
	case authz.RoleTenantAdmin:
		req.TenantID = principal.TenantID
	default:
		req.ClientID = principal.ClientID
		if req.ClientID == nil {
			return []Branch{}, 0, nil
		}
	}
	return s.repo.List(ctx, req)
}

// Get fetches a branch.
func (s *Service) Get(ctx context.Context, id int64) (*Branch, error) {
	branch, err := s.repo.Get(ctx, id)
	if err != nil {
		if err == ErrNotFound {
			return nil, httpx.ErrNotFound
		}
		return nil, err
	}
	return branch, nil
}

// CreateBranchInput carries validated creation fields.
type CreateBranchInput struct {
	ClientID int64  `validate:"required,gt=0"`
	Name     string `validate:"required,min=2"`
	Address  string
	Phone    string
}

// Create registers a branch after verifying the caller may act on the
// owning client: tenant_admin only for clients of its tenant, client_admin
// only for its own client.
func (s *Service) Create(ctx context.Context, principal *authz.Principal, input CreateBranchInput) (*Branch, error) {
	scope, err := s.scopes.ResolveScope(ctx, authz.KindClient, input.ClientID)
	if err != nil {
		if errors.Is(err, authz.ErrScopeNotFound) {
			return nil, fmt.Errorf("%w: client %d does not exist", httpx.ErrValidation, input.ClientID)
		}
		return nil, err
	}

	switch principal.Role {
	case authz.RoleSuperAdmin:
	case authz.RoleTenantAdmin:
		if scope.OwnerTenantID == nil || !principal.InTenant(*scope.OwnerTenantID) {
			return nil, httpx.ErrForbidden
		}
	case authz.RoleClientAdmin:
		if !principal.InClient(input.ClientID) {
			return nil, httpx.ErrForbidden
		}
	default:
		return nil, httpx.ErrForbidden
	}

	id, err := s.repo.Create(ctx, Branch{
		ClientID: input.ClientID,
		Name:     strings.TrimSpace(input.Name),
		Address:  strings.TrimSpace(input.Address),
		Phone:    strings.TrimSpace(input.Phone),
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, principal, "branch.create", id)
	return s.repo.Get(ctx, id)
}

// Update applies a sanitized write payload from the authz field filter.
func (s *Service) Update(ctx context.Context, principal *authz.Principal, id int64, sanitized map[string]any) (*Branch, error) {
	if len(sanitized) == 0 {
		return nil, fmt.Errorf("%w: no valid fields to update", httpx.ErrValidation)
	}
	if err := s.repo.Update(ctx, id, sanitized); err != nil {
		if err == ErrNotFound {
			return nil, httpx.ErrNotFound
		}
		return nil, err
	}
	s.recordAudit(ctx, principal, "branch.update", id)
	return s.repo.Get(ctx, id)
}

// Delete removes a branch.
func (s *Service) Delete(ctx context.Context, principal *authz.Principal, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if err == ErrNotFound {
			return httpx.ErrNotFound
		}
		return err
	}
	s.recordAudit(ctx, principal, "branch.delete", id)
	return nil
}

func (s *Service) recordAudit(ctx context.Context, principal *authz.Principal, action string, id int64) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  principal.ID,
		Action:   action,
		Entity:   "branch",
		EntityID: strconv.FormatInt(id, 10),
	})
}
