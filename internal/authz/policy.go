package authz

import (
	"errors"
	"fmt"
)

// ResourceKind enumerates the resource families guarded by the policy table.
type ResourceKind string

const (
	KindTenant       ResourceKind = "tenant"
	KindClient       ResourceKind = "client"
	KindBranch       ResourceKind = "branch"
	KindUser         ResourceKind = "user"
	KindPlan         ResourceKind = "plan"
	KindSubscription ResourceKind = "subscription"
	KindInvoice      ResourceKind = "invoice"
)

// Kinds lists every resource kind known to the policy table.
func Kinds() []ResourceKind {
	return []ResourceKind{KindTenant, KindClient, KindBranch, KindUser, KindPlan, KindSubscription, KindInvoice}
}

// Action is one of the operations a role may perform on a resource kind.
type Action string

const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionDelete Action = "delete"
)

// ScopeRule narrows a granted action to a slice of rows.
type ScopeRule string

const (
	// ScopeAny grants access regardless of ownership.
	ScopeAny ScopeRule = "any"
	// ScopeOwnTenant grants access to rows owned by the principal's tenant.
	ScopeOwnTenant ScopeRule = "own-tenant"
	// ScopeOwnClient grants access to rows owned by the principal's client.
	ScopeOwnClient ScopeRule = "own-client"
	// ScopeSelf grants access when the resource id is the principal's own id.
	ScopeSelf ScopeRule = "self"
)

// PolicyEntry grants a role a set of actions on a resource kind, narrowed by
// a scope rule. An entry with no actions is an explicit deny.
type PolicyEntry struct {
	Role    Role
	Kind    ResourceKind
	Actions []Action
	Scope   ScopeRule
}

// Allows reports whether the entry grants the action.
func (e PolicyEntry) Allows(action Action) bool {
	for _, a := range e.Actions {
		if a == action {
			return true
		}
	}
	return false
}

type policyKey struct {
	role Role
	kind ResourceKind
}

// PolicyTable is the static role × resource-kind policy matrix. Exactly one
// entry applies per pair; evaluation is never cumulative.
type PolicyTable struct {
	entries map[policyKey]PolicyEntry
}

// NewPolicyTable builds a table from entries. Duplicate (role, kind) pairs
// are a configuration error: ambiguity is resolved at authoring time, not by
// unioning rules at decision time.
func NewPolicyTable(entries []PolicyEntry) (*PolicyTable, error) {
	table := &PolicyTable{entries: make(map[policyKey]PolicyEntry, len(entries))}
	for _, e := range entries {
		key := policyKey{role: e.Role, kind: e.Kind}
		if _, dup := table.entries[key]; dup {
			return nil, fmt.Errorf("authz: duplicate policy entry for (%s, %s)", e.Role, e.Kind)
		}
		table.entries[key] = e
	}
	return table, nil
}

// Lookup returns the entry for (role, kind). Absence implies deny.
func (t *PolicyTable) Lookup(role Role, kind ResourceKind) (PolicyEntry, bool) {
	e, ok := t.entries[policyKey{role: role, kind: kind}]
	return e, ok
}

// RequireCoverage fails when any (role, kind) pair referenced by the routes
// lacks an explicit entry. Run at startup so a policy gap surfaces as a boot
// failure instead of a production 403.
func (t *PolicyTable) RequireCoverage(kinds ...ResourceKind) error {
	var missing []string
	for _, kind := range kinds {
		for _, role := range Roles() {
			if _, ok := t.Lookup(role, kind); !ok {
				missing = append(missing, fmt.Sprintf("(%s, %s)", role, kind))
			}
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("authz: policy table missing entries: %v", missing)
	}
	return nil
}

var errNilTable = errors.New("authz: nil policy table")

// DefaultPolicies returns the policy matrix for the dashboard. Every
// (role, kind) pair is enumerated; pairs a role must never touch carry an
// entry with no actions so coverage checks stay meaningful.
func DefaultPolicies() *PolicyTable {
	rw := []Action{ActionRead, ActionWrite}
	rwd := []Action{ActionRead, ActionWrite, ActionDelete}
	r := []Action{ActionRead}
	var none []Action

	table, err := NewPolicyTable([]PolicyEntry{
		// super_admin operates the platform.
		{Role: RoleSuperAdmin, Kind: KindTenant, Actions: rwd, Scope: ScopeAny},
		{Role: RoleSuperAdmin, Kind: KindClient, Actions: rwd, Scope: ScopeAny},
		{Role: RoleSuperAdmin, Kind: KindBranch, Actions: rwd, Scope: ScopeAny},
		{Role: RoleSuperAdmin, Kind: KindUser, Actions: rwd, Scope: ScopeAny},
		{Role: RoleSuperAdmin, Kind: KindPlan, Actions: rwd, Scope: ScopeAny},
		{Role: RoleSuperAdmin, Kind: KindSubscription, Actions: rwd, Scope: ScopeAny},
		{Role: RoleSuperAdmin, Kind: KindInvoice, Actions: rwd, Scope: ScopeAny},

		// tenant_admin manages everything inside its tenant.
		{Role: RoleTenantAdmin, Kind: KindTenant, Actions: rw, Scope: ScopeOwnTenant},
		{Role: RoleTenantAdmin, Kind: KindClient, Actions: rwd, Scope: ScopeOwnTenant},
		{Role: RoleTenantAdmin, Kind: KindBranch, Actions: rwd, Scope: ScopeOwnTenant},
		{Role: RoleTenantAdmin, Kind: KindUser, Actions: rwd, Scope: ScopeOwnTenant},
		{Role: RoleTenantAdmin, Kind: KindPlan, Actions: r, Scope: ScopeAny},
		{Role: RoleTenantAdmin, Kind: KindSubscription, Actions: r, Scope: ScopeOwnTenant},
		{Role: RoleTenantAdmin, Kind: KindInvoice, Actions: r, Scope: ScopeOwnTenant},

		// client_admin manages its own client's branches and reads its client.
		{Role: RoleClientAdmin, Kind: KindTenant, Actions: none, Scope: ScopeOwnTenant},
		{Role: RoleClientAdmin, Kind: KindClient, Actions: r, Scope: ScopeOwnClient},
		{Role: RoleClientAdmin, Kind: KindBranch, Actions: rw, Scope: ScopeOwnClient},
		{Role: RoleClientAdmin, Kind: KindUser, Actions: rw, Scope: ScopeSelf},
		{Role: RoleClientAdmin, Kind: KindPlan, Actions: r, Scope: ScopeAny},
		{Role: RoleClientAdmin, Kind: KindSubscription, Actions: none, Scope: ScopeOwnTenant},
		{Role: RoleClientAdmin, Kind: KindInvoice, Actions: none, Scope: ScopeOwnTenant},

		// employee reads its client and manages only its own account.
		{Role: RoleEmployee, Kind: KindTenant, Actions: none, Scope: ScopeOwnTenant},
		{Role: RoleEmployee, Kind: KindClient, Actions: r, Scope: ScopeOwnClient},
		{Role: RoleEmployee, Kind: KindBranch, Actions: r, Scope: ScopeOwnClient},
		{Role: RoleEmployee, Kind: KindUser, Actions: rw, Scope: ScopeSelf},
		{Role: RoleEmployee, Kind: KindPlan, Actions: r, Scope: ScopeAny},
		{Role: RoleEmployee, Kind: KindSubscription, Actions: none, Scope: ScopeOwnTenant},
		{Role: RoleEmployee, Kind: KindInvoice, Actions: none, Scope: ScopeOwnTenant},
	})
	if err != nil {
		panic(err)
	}
	return table
}
