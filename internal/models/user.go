package models

import (
	"time"
)

// User is the credential-store account. Usernames and emails are unique.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"is_active"`
	IsAdmin      bool      `json:"is_admin"`
	IsSuperadmin bool      `json:"is_superadmin"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Role returns the token role for the user.
func (u *User) Role() string {
	switch {
	case u.IsSuperadmin:
		return RoleSuperadmin
	case u.IsAdmin:
		return RoleAdmin
	default:
		return RoleUser
	}
}

const (
	RoleUser       = "user"
	RoleAdmin      = "admin"
	RoleSuperadmin = "superadmin"
)
