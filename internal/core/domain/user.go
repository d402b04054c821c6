package domain

import (
	"strings"
	"time"
)

// Role is the closed set of roles a user can hold.
type Role string

const (
	RoleAdmin          Role = "ADMIN"
	RoleOrganizer      Role = "ORGANIZER"
	RoleOnsite         Role = "ONSITE"
	RoleExternalVendor Role = "EXTERNAL_VENDOR"
)

// Roles lists every known role in privilege order.
var Roles = []Role{RoleAdmin, RoleOrganizer, RoleOnsite, RoleExternalVendor}

// ParseRole normalizes a role name. Legacy aliases (manager, user) are accepted.
func ParseRole(s string) (Role, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ADMIN", "SUPER_ADMIN":
		return RoleAdmin, true
	case "ORGANIZER", "MANAGER":
		return RoleOrganizer, true
	case "ONSITE", "USER":
		return RoleOnsite, true
	case "EXTERNAL_VENDOR", "VENDOR":
		return RoleExternalVendor, true
	}
	return "", false
}

// Privileged reports whether a hijacked session for this role has a large
// blast radius. Privileged sessions are pinned to the issuing IP.
func (r Role) Privileged() bool {
	return r == RoleAdmin || r == RoleOrganizer
}

func (r Role) String() string { return string(r) }

// User models an authenticated actor in the system.
type User struct {
	ID                  string     `json:"id"`
	Email               string     `json:"email"`
	Username            string     `json:"username"`
	PasswordHash        string     `json:"-"`
	FirstName           string     `json:"firstName"`
	LastName            string     `json:"lastName"`
	RoleID              string     `json:"roleId"`
	Role                Role       `json:"role"`
	IsActive            bool       `json:"isActive"`
	DeletedAt           *time.Time `json:"-"`
	FailedLoginAttempts int        `json:"-"`
	LockedUntil         *time.Time `json:"-"`
	LastLoginAt         *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

// IsDeleted reports whether the user was soft-deleted.
func (u *User) IsDeleted() bool { return u.DeletedAt != nil }

// IsLocked reports whether the account is locked at the given instant.
func (u *User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}

// RoleRecord is the persisted form of a role with its permission bundle.
type RoleRecord struct {
	ID          string        `json:"id"`
	Name        Role          `json:"name"`
	Description string        `json:"description,omitempty"`
	Permissions PermissionSet `json:"permissions"`
}
