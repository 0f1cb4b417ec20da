package branches

import "time"

// Branch is a physical location belonging to a client.
type Branch struct {
	ID        int64     `json:"id"`
	ClientID  int64     `json:"client_id"`
	Name      string    `json:"name"`
	Address   string    `json:"address,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListBranchesRequest filters and paginates branch listings.
type ListBranchesRequest struct {
	TenantID *int64
	ClientID *int64
	IsActive *bool
	Search   string
	Page     int
	PerPage  int
}
