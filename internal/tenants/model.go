package tenants

import "time"

// Tenant is a paying organization on the platform. Every client, branch and
// non-platform user hangs off a tenant; it is the outermost isolation
// boundary.
type Tenant struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Slug         string    `json:"slug"`
	ContactEmail string    `json:"contact_email,omitempty"`
	Phone        string    `json:"phone,omitempty"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ListTenantsRequest filters and paginates tenant listings.
type ListTenantsRequest struct {
	TenantID *int64
	IsActive *bool
	Search   string
	Page     int
	PerPage  int
}
