package users

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/crewdesk/crewdesk/internal/authz"
	"github.com/crewdesk/crewdesk/internal/platform/httpx"
	"github.com/crewdesk/crewdesk/internal/shared"
)

// Service handles user management business logic. All operations receive the
// acting principal; row scoping for listings happens here, per-resource
// authorization happens in the authz middleware before the handler runs.
type Service struct {
	repo  Repository
	audit *shared.AuditLogger
}

// NewService builds a Service instance.
func NewService(repo Repository, audit *shared.AuditLogger) *Service {
	return &Service{repo: repo, audit: audit}
}

// List returns the users visible to the principal. super_admin sees all,
// tenant_admin its tenant; client_admin and employee only themselves, in
// line with the `self` scope their role carries for the user kind.
func (s *Service) List(ctx context.Context, principal *authz.Principal, req ListUsersRequest) ([]User, int, error) {
	switch principal.Role {
	case authz.RoleSuperAdmin:
	case authz.RoleTenantAdmin:
		req.TenantID = principal.TenantID
	default:
		id := principal.ID
		req.UserID = &id
	}
	return s.repo.List(ctx, req)
}

// Get fetches a single user.
func (s *Service) Get(ctx context.Context, id int64) (*User, error) {
	user, err := s.repo.Get(ctx, id)
	if err != nil {
		if err == ErrNotFound {
			return nil, httpx.ErrNotFound
		}
		return nil, err
	}
	return user, nil
}

// CreateUserInput carries validated creation fields.
type CreateUserInput struct {
	Email    string `validate:"required,email"`
	Name     string `validate:"required,min=2"`
	Phone    string
	Password string `validate:"required,min=8"`
	Role     string `validate:"required"`
	TenantID *int64
	ClientID *int64
}

// Create inserts a new user. Creation has no resource id to scope against,
// so affiliation rules are enforced here: tenant_admin may only create
// accounts inside its own tenant and may not mint platform roles.
func (s *Service) Create(ctx context.Context, principal *authz.Principal, input CreateUserInput) (*User, error) {
	role, ok := authz.RoleFromString(input.Role)
	if !ok {
		return nil, fmt.Errorf("%w: unknown role", httpx.ErrValidation)
	}

	switch principal.Role {
	case authz.RoleSuperAdmin:
	case authz.RoleTenantAdmin:
		if role == authz.RoleSuperAdmin {
			return nil, httpx.ErrForbidden
		}
		input.TenantID = principal.TenantID
	default:
		return nil, httpx.ErrForbidden
	}

	if role == authz.RoleTenantAdmin && input.TenantID == nil {
		return nil, fmt.Errorf("%w: tenant_admin requires a tenant", httpx.ErrValidation)
	}
	if role == authz.RoleClientAdmin && input.ClientID == nil {
		return nil, fmt.Errorf("%w: client_admin requires a client", httpx.ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := User{
		Email:    strings.ToLower(strings.TrimSpace(input.Email)),
		Name:     strings.TrimSpace(input.Name),
		Phone:    strings.TrimSpace(input.Phone),
		Role:     string(role),
		TenantID: input.TenantID,
		ClientID: input.ClientID,
	}
	id, err := s.repo.Create(ctx, user, string(hash))
	if err != nil {
		if err == ErrAlreadyExists {
			return nil, fmt.Errorf("%w: email already registered", httpx.ErrDuplicate)
		}
		return nil, err
	}

	s.recordAudit(ctx, principal, "user.create", id, nil)
	return s.repo.Get(ctx, id)
}

// Update applies a sanitized write payload produced by the authz field
// filter. A plaintext password field is exchanged for a bcrypt hash before
// it reaches the repository.
func (s *Service) Update(ctx context.Context, principal *authz.Principal, id int64, sanitized map[string]any) (*User, error) {
	if len(sanitized) == 0 {
		return nil, fmt.Errorf("%w: no valid fields to update", httpx.ErrValidation)
	}

	updates := make(map[string]any, len(sanitized))
	for field, value := range sanitized {
		if field == "password" {
			raw, ok := value.(string)
			if !ok || len(raw) < 8 {
				return nil, fmt.Errorf("%w: password too short", httpx.ErrValidation)
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
			if err != nil {
				return nil, err
			}
			updates["password_hash"] = string(hash)
			continue
		}
		updates[field] = value
	}

	if err := s.repo.Update(ctx, id, updates); err != nil {
		switch err {
		case ErrNotFound:
			return nil, httpx.ErrNotFound
		case ErrAlreadyExists:
			return nil, fmt.Errorf("%w: email already registered", httpx.ErrDuplicate)
		}
		return nil, err
	}

	s.recordAudit(ctx, principal, "user.update", id, fieldNames(sanitized))
	return s.repo.Get(ctx, id)
}

// Deactivate disables an account without deleting its rows.
func (s *Service) Deactivate(ctx context.Context, principal *authz.Principal, id int64) error {
	if err := s.repo.SetActive(ctx, id, false); err != nil {
		if err == ErrNotFound {
			return httpx.ErrNotFound
		}
		return err
	}
	s.recordAudit(ctx, principal, "user.deactivate", id, nil)
	return nil
}

func (s *Service) recordAudit(ctx context.Context, principal *authz.Principal, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  principal.ID,
		Action:   action,
		Entity:   "user",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	})
}

func fieldNames(m map[string]any) map[string]any {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	return map[string]any{"fields": names}
}
