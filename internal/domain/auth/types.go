package auth

// Package auth contains domain-level types for identities and sessions.
// It is pure and free of framework/adapter concerns.

import (
	"strings"
	"time"
)

// Role represents a directory member's authorization role.
// The canonical string form is upper case; parsing is case-insensitive.
type Role string

const (
	RoleManager    Role = "MANAGER"
	RoleSupervisor Role = "SUPERVISOR"
	RoleAdmin      Role = "ADMIN"
	RoleOperator   Role = "OPERATOR"
)

// ParseRole normalizes s and reports whether it names a known role.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	return r, r.Valid()
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleManager, RoleSupervisor, RoleAdmin, RoleOperator:
		return true
	default:
		return false
	}
}

// UnmarshalText accepts any casing so backend payloads like "admin" still map to RoleAdmin.
func (r *Role) UnmarshalText(text []byte) error {
	*r = Role(strings.ToUpper(strings.TrimSpace(string(text))))
	return nil
}

// AuthMethod records how a session was established.
type AuthMethod string

const (
	AuthMethodCredentials AuthMethod = "CREDENTIALS"
	AuthMethodBiometric   AuthMethod = "BIOMETRIC"
)

// Valid reports whether m is a known method.
func (m AuthMethod) Valid() bool {
	return m == AuthMethodCredentials || m == AuthMethodBiometric
}

// Identity is one member of the employee directory.
// Key is unique across the combined directory.
type Identity struct {
	Key          string `json:"key"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	Area         string `json:"area"`
	Role         Role   `json:"role"`
	Email        string `json:"email,omitempty"`
	IsFirstLogin bool   `json:"isFirstLogin,omitempty"`
	// Version is the backend record version, zero when the backend does not track one.
	Version int64 `json:"version,omitempty"`
}

// DisplayName returns "First Last", trimmed.
func (i Identity) DisplayName() string {
	return strings.TrimSpace(i.FirstName + " " + i.LastName)
}

// Session is the single authenticated context of the console.
type Session struct {
	ID            string
	Identity      Identity
	AuthMethod    AuthMethod
	EstablishedAt time.Time
}

// Role is shorthand for the session identity's role.
func (s Session) Role() Role { return s.Identity.Role }
