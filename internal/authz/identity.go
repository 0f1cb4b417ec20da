package authz

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crewdesk/crewdesk/internal/shared"
)

// IdentityRepository loads the minimal principal columns for a user id.
type IdentityRepository interface {
	FindPrincipal(ctx context.Context, userID int64) (*Principal, error)
}

// PGIdentityRepository implements IdentityRepository using PostgreSQL.
type PGIdentityRepository struct {
	pool *pgxpool.Pool
}

// NewPGIdentityRepository constructs a PostgreSQL identity repository.
func NewPGIdentityRepository(pool *pgxpool.Pool) *PGIdentityRepository {
	return &PGIdentityRepository{pool: pool}
}

// FindPrincipal fetches id, role, affiliation and active flag only.
func (r *PGIdentityRepository) FindPrincipal(ctx context.Context, userID int64) (*Principal, error) {
	var (
		role               string
		tenantID, clientID pgtype.Int8
		isActive           bool
	)
	err := r.pool.QueryRow(ctx,
		`SELECT role, tenant_id, client_id, is_active FROM users WHERE id = $1`,
		userID,
	).Scan(&role, &tenantID, &clientID, &isActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}

	parsed, ok := RoleFromString(role)
	if !ok {
		// A row with an unknown role cannot act; treat as unresolvable.
		return nil, shared.ErrNotFound
	}
	p := &Principal{ID: userID, Role: parsed, IsActive: isActive}
	if tenantID.Valid {
		p.TenantID = &tenantID.Int64
	}
	if clientID.Valid {
		p.ClientID = &clientID.Int64
	}
	return p, nil
}

var _ IdentityRepository = (*PGIdentityRepository)(nil)

// Resolver turns a session into a Principal. It is the only place a
// principal is derived; handlers receive it through context and never read
// the session themselves.
type Resolver struct {
	repo IdentityRepository
}

// NewResolver constructs a Resolver.
func NewResolver(repo IdentityRepository) *Resolver {
	return &Resolver{repo: repo}
}

// ResolvePrincipal returns the acting principal for the session, or nil
// when the session is absent, malformed, refers to a missing account, or
// the account is deactivated. A non-nil error is an infrastructure fault.
func (r *Resolver) ResolvePrincipal(ctx context.Context, sess *shared.Session) (*Principal, error) {
	if sess == nil {
		return nil, nil
	}
	raw := strings.TrimSpace(sess.User())
	if raw == "" {
		return nil, nil
	}
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, nil
	}

	principal, err := r.repo.FindPrincipal(ctx, userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !principal.IsActive {
		return nil, nil
	}
	return principal, nil
}
