// Package model contains the domain types shared by every layer.
// Types here carry no persistence or transport dependencies.
package model

import (
	"errors"
	"fmt"
)

// ErrUnknownRole is returned when a role string is not one of the four known roles.
var ErrUnknownRole = errors.New("unknown role")

// Role is the submitter's access class.
type Role string

const (
	RoleFreeUser    Role = "FreeUser"
	RolePremiumUser Role = "PremiumUser"
	RoleReviewer    Role = "Reviewer"
	RoleAdmin       Role = "Admin"
)

// ParseRole converts a raw role string into a Role, rejecting unknown values.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleFreeUser, RolePremiumUser, RoleReviewer, RoleAdmin:
		return r, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
}

// Trusted reports whether submissions from this role bypass enforcement.
func (r Role) Trusted() bool {
	return r == RoleReviewer || r == RoleAdmin
}

func (r Role) String() string { return string(r) }
