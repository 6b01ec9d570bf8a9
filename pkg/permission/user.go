package permission

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidRole is returned when a role string is not recognised
var ErrInvalidRole = errors.New("invalid role")

// Role is a caller's access level
type Role string

const (
	// RoleDemo can only call read-only tools
	RoleDemo Role = "demo"
	// RoleUser is an authenticated, write-capable caller
	RoleUser Role = "user"
	// RoleAdmin can call every tool
	RoleAdmin Role = "admin"
)

// AllRoles returns every valid role
func AllRoles() []Role {
	return []Role{RoleDemo, RoleUser, RoleAdmin}
}

// ParseRole converts a string into a Role
func ParseRole(s string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(s)))
	for _, valid := range AllRoles() {
		if role == valid {
			return role, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
}

// CanWrite reports whether the role may call write tools
func (r Role) CanWrite() bool {
	return r == RoleUser || r == RoleAdmin
}

// IsAdmin reports whether the role is admin
func (r Role) IsAdmin() bool {
	return r == RoleAdmin
}

// AuthenticatedUser is a caller identity produced by the authentication layer
type AuthenticatedUser struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// Demo returns a read-only caller
func Demo(id string) AuthenticatedUser {
	return AuthenticatedUser{ID: id, Role: RoleDemo}
}

// User returns a write-capable caller
func User(id string) AuthenticatedUser {
	return AuthenticatedUser{ID: id, Role: RoleUser}
}

// Admin returns an admin caller
func Admin(id string) AuthenticatedUser {
	return AuthenticatedUser{ID: id, Role: RoleAdmin}
}
