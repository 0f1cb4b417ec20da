package tenants

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/crewdesk/crewdesk/internal/authz"
	"github.com/crewdesk/crewdesk/internal/platform/httpx"
	"github.com/crewdesk/crewdesk/internal/shared"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Service handles tenant business logic.
type Service struct {
	repo  Repository
	audit *shared.AuditLogger
}

// NewService builds a Service instance.
func NewService(repo Repository, audit *shared.AuditLogger) *Service {
	return &Service{repo: repo, audit: audit}
}

// List returns tenants visible to the principal: all for super_admin, only
// its own tenant otherwise.
func (s *Service) List(ctx context.Context, principal *authz.Principal, req ListTenantsRequest) ([]Tenant, int, error) {
	if principal.Role != authz.RoleSuperAdmin {
		req.TenantID = principal.TenantID
	}
	return s.repo.List(ctx, req)
}

// Get fetches a tenant.
func (s *Service) Get(ctx context.Context, id int64) (*Tenant, error) {
	tenant, err := s.repo.Get(ctx, id)
	if err != nil {
		if err == ErrNotFound {
			return nil, httpx.ErrNotFound
		}
		return nil, err
	}
	return tenant, nil
}

// CreateTenantInput carries validated creation fields.
type CreateTenantInput struct {
	Name         string `validate:"required,min=2"`
	Slug         string `validate:"required,min=2"`
	ContactEmail string `validate:"omitempty,email"`
	Phone        string
}

// Create provisions a new tenant. Only super_admin provisions tenants;
// creation has no resource id for scope checks so the restriction lives
// here.
func (s *Service) Create(ctx context.Context, principal *authz.Principal, input CreateTenantInput) (*Tenant, error) {
	if principal.Role != authz.RoleSuperAdmin {
		return nil, httpx.ErrForbidden
	}

	slug := strings.ToLower(strings.TrimSpace(input.Slug))
	if !slugPattern.MatchString(slug) {
		return nil, fmt.Errorf("%w: slug must be lowercase letters, digits and dashes", httpx.ErrValidation)
	}

	id, err := s.repo.Create(ctx, Tenant{
		Name:         strings.TrimSpace(input.Name),
		Slug:         slug,
		ContactEmail: strings.TrimSpace(input.ContactEmail),
		Phone:        strings.TrimSpace(input.Phone),
	})
	if err != nil {
		if err == ErrAlreadyExists {
			return nil, fmt.Errorf("%w: slug already taken", httpx.ErrDuplicate)
		}
		return nil, err
	}

	s.recordAudit(ctx, principal, "tenant.create", id)
	return s.repo.Get(ctx, id)
}

// Update applies a sanitized write payload from the authz field filter.
func (s *Service) Update(ctx context.Context, principal *authz.Principal, id int64, sanitized map[string]any) (*Tenant, error) {
	if len(sanitized) == 0 {
		return nil, fmt.Errorf("%w: no valid fields to update", httpx.ErrValidation)
	}
	if raw, ok := sanitized["slug"]; ok {
		slug, _ := raw.(string)
		slug = strings.ToLower(strings.TrimSpace(slug))
		if !slugPattern.MatchString(slug) {
			return nil, fmt.Errorf("%w: slug must be lowercase letters, digits and dashes", httpx.ErrValidation)
		}
		sanitized["slug"] = slug
	}

	if err := s.repo.Update(ctx, id, sanitized); err != nil {
		switch err {
		case ErrNotFound:
			return nil, httpx.ErrNotFound
		case ErrAlreadyExists:
			return nil, fmt.Errorf("%w: slug already taken", httpx.ErrDuplicate)
		}
		return nil, err
	}

	s.recordAudit(ctx, principal, "tenant.update", id)
	return s.repo.Get(ctx, id)
}

// Delete removes a tenant entirely.
func (s *Service) Delete(ctx context.Context, principal *authz.Principal, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if err == ErrNotFound {
			return httpx.ErrNotFound
		}
		return err
	}
	s.recordAudit(ctx, principal, "tenant.delete", id)
	return nil
}

func (s *Service) recordAudit(ctx context.Context, principal *authz.Principal, action string, id int64) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  principal.ID,
		Action:   action,
		Entity:   "tenant",
		EntityID: strconv.FormatInt(id, 10),
	})
}
