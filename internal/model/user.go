package model

import (
	"errors"
	"time"
)

// User represents an authenticated operator. HomeLocationID scopes drivers,
// clerks and site managers to one location.
type User struct {
	ID             int64      `db:"id" json:"id"`
	Username       string     `db:"username" json:"username"`
	PasswordHash   string     `db:"password_hash" json:"-"`
	Role           string     `db:"role" json:"role"`
	HomeLocationID *int64     `db:"home_location_id" json:"home_location_id,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	DeletedAt      *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}

// Roles.
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleClerk   = "clerk"
	RoleDriver  = "driver"
)

var roleLevels = map[string]int{
	RoleAdmin:   4,
	RoleManager: 3,
	RoleClerk:   2,
	RoleDriver:  1,
}

// ValidRole reports whether role is a known role.
func ValidRole(role string) bool {
	return roleLevels[role] > 0
}

// RoleAtLeast checks if role meets or exceeds the minimum required role.
// Unknown roles never pass.
func RoleAtLeast(role, minimum string) bool {
	have, want := roleLevels[role], roleLevels[minimum]
	if have == 0 || want == 0 {
		return false
	}
	return have >= want
}

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// ValidatePassword checks password strength requirements.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return errors.New("password must be at least 8 characters")
	}
	return nil
}

// Actor is the authenticated user behind a write. The ledger trusts it as given.
type Actor struct {
	UserID         int64
	Username       string
	Role           string
	HomeLocationID int64
}

// Scoped reports whether the actor is restricted to its home location.
func (a Actor) Scoped() bool {
	return a.HomeLocationID != 0 && !RoleAtLeast(a.Role, RoleAdmin)
}

// CanTouch reports whether a scoped actor may act on a transfer between from and to.
func (a Actor) CanTouch(from, to int64) bool {
	if !a.Scoped() {
		return true
	}
	return a.HomeLocationID == from || a.HomeLocationID == to
}
