package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Wildcard matches any resource or any action.
const Wildcard = "*"

// Permission is a resource:action capability. Either side may be Wildcard.
type Permission struct {
	Resource string `json:"resource"`
	Action   string `json:"action"`
}

// ParsePermission parses "resource:action".
func ParsePermission(s string) (Permission, error) {
	resource, action, ok := strings.Cut(strings.TrimSpace(s), ":")
	resource = strings.ToLower(strings.TrimSpace(resource))
	action = strings.ToLower(strings.TrimSpace(action))
	if !ok || resource == "" || action == "" {
		return Permission{}, fmt.Errorf("%w: permission %q must be resource:action", ErrValidation, s)
	}
	return Permission{Resource: resource, Action: action}, nil
}

// MustPermission is ParsePermission for package-level tables.
func MustPermission(s string) Permission {
	p, err := ParsePermission(s)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Permission) String() string { return p.Resource + ":" + p.Action }

// Matches reports whether p grants resource:action.
func (p Permission) Matches(resource, action string) bool {
	return (p.Resource == Wildcard || p.Resource == resource) &&
		(p.Action == Wildcard || p.Action == action)
}

// PermissionSet is an unordered set of permissions.
type PermissionSet map[Permission]struct{}

// NewPermissionSet builds a set from the given permissions.
func NewPermissionSet(perms ...Permission) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// Add inserts p into the set.
func (s PermissionSet) Add(p Permission) { s[p] = struct{}{} }

// HasWildcard reports whether a wildcard grant in the set covers resource:action.
func (s PermissionSet) HasWildcard(resource, action string) bool {
	for _, p := range []Permission{
		{Resource: Wildcard, Action: Wildcard},
		{Resource: resource, Action: Wildcard},
		{Resource: Wildcard, Action: action},
	} {
		if _, ok := s[p]; ok {
			return true
		}
	}
	return false
}

// HasExact reports whether the set holds exactly resource:action.
func (s PermissionSet) HasExact(resource, action string) bool {
	_, ok := s[Permission{Resource: resource, Action: action}]
	return ok
}

// Allows reports whether any grant in the set covers resource:action.
func (s PermissionSet) Allows(resource, action string) bool {
	return s.HasWildcard(resource, action) || s.HasExact(resource, action)
}

// Strings returns the sorted "resource:action" form of the set.
func (s PermissionSet) Strings() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p.String())
	}
	sort.Strings(out)
	return out
}

func (s PermissionSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Strings())
}

// UserPermission is a permission granted directly to a user.
type UserPermission struct {
	UserID     string
	Permission Permission
	ExpiresAt  *time.Time
}

// Active reports whether the grant is still in force.
func (g UserPermission) Active(now time.Time) bool {
	return g.ExpiresAt == nil || g.ExpiresAt.After(now)
}

// BuiltinRolePermissions is the capability table each role is seeded with.
var BuiltinRolePermissions = map[Role][]Permission{
	RoleAdmin: {
		MustPermission("*:*"),
	},
	RoleOrganizer: {
		MustPermission("project:*"),
		MustPermission("bom:*"),
		MustPermission("supplier:*"),
		MustPermission("permit:*"),
		MustPermission("task:*"),
		MustPermission("logistics:*"),
		MustPermission("rfq:*"),
		MustPermission("file:*"),
		MustPermission("user:read"),
	},
	RoleOnsite: {
		MustPermission("project:read"),
		MustPermission("bom:read"),
		MustPermission("task:read"),
		MustPermission("task:update"),
		MustPermission("logistics:read"),
		MustPermission("permit:read"),
		MustPermission("file:read"),
		MustPermission("file:create"),
	},
	RoleExternalVendor: {
		MustPermission("rfq:read"),
		MustPermission("rfq:respond"),
		MustPermission("logistics:read"),
		MustPermission("file:create"),
	},
}
