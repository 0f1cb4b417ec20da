package clients

import "time"

// Client is a customer organization managed inside a tenant. Branches and
// employee accounts attach to a client.
type Client struct {
	ID           int64     `json:"id"`
	TenantID     int64     `json:"tenant_id"`
	Name         string    `json:"name"`
	ContactEmail string    `json:"contact_email,omitempty"`
	Phone        string    `json:"phone,omitempty"`
	Address      string    `json:"address,omitempty"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ListClientsRequest filters and paginates client listings.
type ListClientsRequest struct {
	TenantID *int64
	ClientID *int64
	IsActive *bool
	Search   string
	Page     int
	PerPage  int
}
