package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role represents a marketplace account role
type Role string

const (
	RoleNone       Role = ""
	RoleSales      Role = "sales"       // Buys leads
	RoleBuilder    Role = "builder"     // Posts projects as leads
	RoleAdmin      Role = "admin"       // Marketplace operator
	RoleDual       Role = "dual"        // Both sales and builder
	RoleSuperAdmin Role = "super_admin" // Operator with tenant management
)

var knownRoles = map[Role]struct{}{
	RoleSales:      {},
	RoleBuilder:    {},
	RoleAdmin:      {},
	RoleDual:       {},
	RoleSuperAdmin: {},
}

// ParseRole converts a stored or submitted role string into a Role.
// An empty string maps to RoleNone.
func ParseRole(s string) (Role, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return RoleNone, nil
	}
	role := Role(s)
	if _, ok := knownRoles[role]; !ok {
		return RoleNone, fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
	return role, nil
}

// Valid reports whether r is one of the closed set of roles
func (r Role) Valid() bool {
	_, ok := knownRoles[r]
	return ok
}

// SelfAssignable reports whether a user may pick this role at registration
func (r Role) SelfAssignable() bool {
	return r == RoleSales || r == RoleBuilder || r == RoleDual
}

// HasAdministrativeOverride reports whether the role bypasses entitlement checks.
func HasAdministrativeOverride(r Role) bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// Principal is the authenticated caller attached to a request
type Principal struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// UserProfile is the entitlement view of a user
type UserProfile struct {
	ID           string   `json:"id"`
	Role         Role     `json:"role"`
	Entitlements []string `json:"entitlements"`
}

// HasEntitlement checks if the profile carries the named capability
func (p *UserProfile) HasEntitlement(entitlement string) bool {
	for _, e := range p.Entitlements {
		if e == entitlement {
			return true
		}
	}
	return false
}

// User represents a marketplace account
type User struct {
	ID          uuid.UUID     `json:"id"`
	Email       string        `json:"email"`
	FullName    string        `json:"full_name,omitempty"`
	Role        Role          `json:"role"`
	Password    *PasswordHash `json:"-"` // Never expose hash
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	LastLoginAt *time.Time    `json:"last_login_at,omitempty"`
}

// Principal returns the request identity for the user
func (u *User) Principal() *Principal {
	return &Principal{ID: u.ID.String(), Role: u.Role}
}

// NormalizeEmail lowercases and trims an email address for lookup and keying
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Entitlement names granted through billing plans
const (
	EntitlementLeadsView     = "leads:view"
	EntitlementLeadsPurchase = "leads:purchase"
	EntitlementLeadsPost     = "leads:post"
	EntitlementAnalytics     = "analytics:view"
)
