package auth

import "time"

// Account represents a user account for authentication purposes.
type Account struct {
	ID           int64
	Email        string
	PasswordHash string
	Role         string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
