package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrScopeNotFound indicates the resource id does not exist. Callers map it
// to a 404-equivalent response, distinct from an authorization denial.
var ErrScopeNotFound = errors.New("authz: resource not found")

// ResourceScope carries the minimal ownership columns of a resource.
// Resolved lazily per authorization check, never persisted.
type ResourceScope struct {
	Kind          ResourceKind
	ID            int64
	OwnerTenantID *int64
	OwnerClientID *int64
}

// ScopeResolver resolves the ownership scope of a resource. Implementations
// perform exactly one lookup fetching only ownership columns, never the
// full record.
type ScopeResolver interface {
	ResolveScope(ctx context.Context, kind ResourceKind, id int64) (ResourceScope, error)
}

// PGScopeResolver resolves scopes against PostgreSQL.
type PGScopeResolver struct {
	pool *pgxpool.Pool
}

// NewPGScopeResolver constructs a resolver backed by the pool.
func NewPGScopeResolver(pool *pgxpool.Pool) *PGScopeResolver {
	return &PGScopeResolver{pool: pool}
}

// ownership queries select (owner_tenant_id, owner_client_id) per kind.
var scopeQueries = map[ResourceKind]string{
	KindTenant:       `SELECT id, NULL::bigint FROM tenants WHERE id = $1`,
	KindClient:       `SELECT tenant_id, id FROM clients WHERE id = $1`,
	KindBranch:       `SELECT c.tenant_id, b.client_id FROM branches b JOIN clients c ON c.id = b.client_id WHERE b.id = $1`,
	KindUser:         `SELECT tenant_id, client_id FROM users WHERE id = $1`,
	KindPlan:         `SELECT NULL::bigint, NULL::bigint FROM plans WHERE id = $1`,
	KindSubscription: `SELECT tenant_id, NULL::bigint FROM subscriptions WHERE id = $1`,
	KindInvoice:      `SELECT tenant_id, NULL::bigint FROM invoices WHERE id = $1`,
}

// ResolveScope fetches the owning tenant/client ids for (kind, id).
func (r *PGScopeResolver) ResolveScope(ctx context.Context, kind ResourceKind, id int64) (ResourceScope, error) {
	query, ok := scopeQueries[kind]
	if !ok {
		return ResourceScope{}, fmt.Errorf("authz: no scope query for kind %q", kind)
	}

	var tenantID, clientID pgtype.Int8
	if err := r.pool.QueryRow(ctx, query, id).Scan(&tenantID, &clientID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ResourceScope{}, ErrScopeNotFound
		}
		return ResourceScope{}, fmt.Errorf("authz: resolve scope (%s, %d): %w", kind, id, err)
	}

	scope := ResourceScope{Kind: kind, ID: id}
	if tenantID.Valid {
		scope.OwnerTenantID = &tenantID.Int64
	}
	if clientID.Valid {
		scope.OwnerClientID = &clientID.Int64
	}
	return scope, nil
}

var _ ScopeResolver = (*PGScopeResolver)(nil)
