// Package access defines the platform roles and the permission table that gates mutations.
package access

import (
	"fmt"
	"strings"

	"silink/internal/apperr"
)

// Role is the flat classification attached to every user.
type Role string

const (
	RoleStudent    Role = "student"
	RoleProvider   Role = "provider"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// Roles lists every role in display order.
var Roles = []Role{RoleStudent, RoleProvider, RoleAdmin, RoleSuperAdmin}

// Permission names a gated action.
type Permission int

const (
	ListUsers Permission = iota
	ManageUserStatus
	ViewAnalytics
	CreateShop
	ModerateListings
)

func (p Permission) String() string {
	switch p {
	case ListUsers:
		return "list_users"
	case ManageUserStatus:
		return "manage_user_status"
	case ViewAnalytics:
		return "view_analytics"
	case CreateShop:
		return "create_shop"
	case ModerateListings:
		return "moderate_listings"
	default:
		return fmt.Sprintf("permission(%d)", int(p))
	}
}

var grants = map[Permission][]Role{
	ListUsers:        {RoleAdmin, RoleSuperAdmin},
	ManageUserStatus: {RoleAdmin, RoleSuperAdmin},
	ViewAnalytics:    {RoleAdmin, RoleSuperAdmin},
	CreateShop:       {RoleProvider, RoleAdmin, RoleSuperAdmin},
	ModerateListings: {RoleAdmin, RoleSuperAdmin},
}

// ParseRole converts a stored or submitted string into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", apperr.Invalid("role", fmt.Sprintf("unknown role %q", s))
	}
	return r, nil
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleProvider, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// IsAdmin reports whether r is admin or super_admin.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// Can reports whether r holds permission p.
func (r Role) Can(p Permission) bool {
	for _, granted := range grants[p] {
		if granted == r {
			return true
		}
	}
	return false
}

// Require returns apperr.ErrForbidden unless r holds p.
func Require(r Role, p Permission) error {
	if r.Can(p) {
		return nil
	}
	return fmt.Errorf("%s requires %s: %w", r, p, apperr.ErrForbidden)
}

// RequireOwnerOrAdmin allows the owner of a record or any admin.
func RequireOwnerOrAdmin(r Role, callerID, ownerID string) error {
	if callerID != "" && callerID == ownerID {
		return nil
	}
	return Require(r, ModerateListings)
}

// Principal is the authenticated caller of an operation.
type Principal struct {
	UserID string
	Role   Role
	Active bool
}
