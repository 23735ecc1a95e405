// Package domain contains the relay's identity types, just meta-data
package domain

import (
	"errors"
	"fmt"
)

var ErrInvalidRole = errors.New("invalid role")

// Role is one of the two participants of a session.
type Role string

const (
	RoleHost   Role = "host"
	RoleViewer Role = "viewer"
)

// Roles lists every valid role in slot order.
var Roles = [...]Role{RoleHost, RoleViewer}

func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleHost, RoleViewer:
		return r, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
}

func (r Role) Valid() bool {
	return r == RoleHost || r == RoleViewer
}

// Opposite returns the peer role messages from r are forwarded to.
func (r Role) Opposite() Role {
	if r == RoleHost {
		return RoleViewer
	}
	return RoleHost
}

func (r Role) String() string { return string(r) }
