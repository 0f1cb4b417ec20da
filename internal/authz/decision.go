package authz

import (
	"context"
	"errors"
	"fmt"
)

// DenyReason classifies why a decision denied access. Reasons are internal;
// the HTTP layer maps them to generic status codes and never echoes scope
// comparisons to the client.
type DenyReason string

const (
	DenyUnauthenticated DenyReason = "unauthenticated"
	DenyNoPolicy        DenyReason = "no_policy"
	DenyAction          DenyReason = "action_not_permitted"
	DenyNotFound        DenyReason = "not_found"
	DenyOutOfScope      DenyReason = "out_of_scope"
)

// Decision is the outcome of an authorization check. Denials are ordinary
// values; only infrastructure faults travel as errors.
type Decision struct {
	Allowed bool
	Reason  DenyReason
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(reason DenyReason) Decision {
	return Decision{Reason: reason}
}

// Authorizer is the single decision point combining principal, policy and
// resource scope.
type Authorizer struct {
	policies *PolicyTable
	scopes   ScopeResolver
}

// NewAuthorizer constructs an Authorizer.
func NewAuthorizer(policies *PolicyTable, scopes ScopeResolver) (*Authorizer, error) {
	if policies == nil {
		return nil, errNilTable
	}
	if scopes == nil {
		return nil, errors.New("authz: nil scope resolver")
	}
	return &Authorizer{policies: policies, scopes: scopes}, nil
}

// AuthorizeAction evaluates only the role policy (no ownership lookup).
// Collection routes use it for list/create, where row scoping happens in
// the repository query against the principal's tenant or client.
func (a *Authorizer) AuthorizeAction(principal *Principal, kind ResourceKind, action Action) Decision {
	if principal == nil || !principal.IsActive {
		return deny(DenyUnauthenticated)
	}
	entry, ok := a.policies.Lookup(principal.Role, kind)
	if !ok {
		return deny(DenyNoPolicy)
	}
	if !entry.Allows(action) {
		return deny(DenyAction)
	}
	return allow()
}

// Authorize decides whether principal may perform action on the resource
// (kind, resourceID). Denials are returned as a Decision; a non-nil error
// means the ownership lookup failed and the caller must not conflate it
// with a denial.
func (a *Authorizer) Authorize(ctx context.Context, principal *Principal, kind ResourceKind, resourceID int64, action Action) (Decision, error) {
	if principal == nil || !principal.IsActive {
		return deny(DenyUnauthenticated), nil
	}

	entry, ok := a.policies.Lookup(principal.Role, kind)
	if !ok {
		return deny(DenyNoPolicy), nil
	}
	if !entry.Allows(action) {
		return deny(DenyAction), nil
	}
	if entry.Scope == ScopeAny {
		return allow(), nil
	}

	scope, err := a.scopes.ResolveScope(ctx, kind, resourceID)
	if err != nil {
		if errors.Is(err, ErrScopeNotFound) {
			return deny(DenyNotFound), nil
		}
		return Decision{}, fmt.Errorf("authz: scope lookup: %w", err)
	}

	switch entry.Scope {
	case ScopeOwnTenant:
		if scope.OwnerTenantID != nil && principal.InTenant(*scope.OwnerTenantID) {
			return allow(), nil
		}
	case ScopeOwnClient:
		if scope.OwnerClientID != nil && principal.InClient(*scope.OwnerClientID) {
			return allow(), nil
		}
	case ScopeSelf:
		if principal.ID == resourceID {
			return allow(), nil
		}
	default:
		return Decision{}, fmt.Errorf("authz: unknown scope rule %q", entry.Scope)
	}
	return deny(DenyOutOfScope), nil
}
