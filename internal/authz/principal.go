// Package authz implements the role-scoped authorization layer: principal
// resolution, the static role policy table, per-resource ownership scope
// resolution, the authorization decision point and the writable-field
// filter. Route handlers never compare roles inline; every access decision
// flows through Authorizer.Authorize so that tenant and client isolation is
// enforced identically across all resource kinds.
package authz

// Role is one of the fixed set of roles known at build time.
type Role string

const (
	RoleSuperAdmin  Role = "super_admin"
	RoleTenantAdmin Role = "tenant_admin"
	RoleClientAdmin Role = "client_admin"
	RoleEmployee    Role = "employee"
)

// legacy role names from before the schema rename, still present in old rows.
var legacyRoles = map[string]Role{
	"org_admin": RoleTenantAdmin,
	"member":    RoleEmployee,
}

// RoleFromString parses a stored role value, normalizing legacy aliases.
func RoleFromString(s string) (Role, bool) {
	switch Role(s) {
	case RoleSuperAdmin, RoleTenantAdmin, RoleClientAdmin, RoleEmployee:
		return Role(s), true
	}
	if r, ok := legacyRoles[s]; ok {
		return r, true
	}
	return "", false
}

// Roles lists every valid role.
func Roles() []Role {
	return []Role{RoleSuperAdmin, RoleTenantAdmin, RoleClientAdmin, RoleEmployee}
}

// Principal describes the authenticated actor. It is constructed once per
// request by the Resolver, never mutated, and threaded explicitly through
// context into every downstream call.
type Principal struct {
	ID       int64
	Role     Role
	TenantID *int64
	ClientID *int64
	IsActive bool
}

// InTenant reports whether the principal belongs to the given tenant.
func (p *Principal) InTenant(tenantID int64) bool {
	return p != nil && p.TenantID != nil && *p.TenantID == tenantID
}

// InClient reports whether the principal belongs to the given client.
func (p *Principal) InClient(clientID int64) bool {
	return p != nil && p.ClientID != nil && *p.ClientID == clientID
}
