package users

import "time"

// User represents a managed user account.
type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Role      string    `json:"role"`
	TenantID  *int64    `json:"tenant_id,omitempty"`
	ClientID  *int64    `json:"client_id,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListUsersRequest filters and paginates user listings.
type ListUsersRequest struct {
	TenantID *int64
	ClientID *int64
	UserID   *int64
	IsActive *bool
	Search   string
	Page     int
	PerPage  int
}
