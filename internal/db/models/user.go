// Package models - user.go defines station staff accounts. Only the identity columns
// are joined into activity log reads; the password hash never leaves the repository layer.
package models

import "time"

// Role values stored in users.role.
const (
	RoleAdmin  = "admin"
	RoleEditor = "editor"
)

// User represents a staff account
type User struct {
	ID           int64     `json:"user_id" db:"user_id"`
	Name         string    `json:"name" db:"name"`
	LastName     *string   `json:"last_name" db:"last_name"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Role         string    `json:"role" db:"role"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// IsAdmin reports whether the user holds the admin role
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// FullName joins the first and last name, skipping a missing last name
func (u *User) FullName() string {
	if u.LastName == nil || *u.LastName == "" {
		return u.Name
	}
	return u.Name + " " + *u.LastName
}
