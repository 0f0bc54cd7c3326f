// Package auth resolves who sent a message and decides whether they may run
// a command.
package auth

import (
	"fmt"
	"strings"
)

// Role is the privilege level of a principal. Higher values are more
// privileged, but checks never compare them numerically.
type Role int

const (
	RoleAnonymous Role = iota
	RoleCustomer
	RoleMerchant
	RoleAdmin
	RoleOwner
)

func (r Role) String() string {
	switch r {
	case RoleCustomer:
		return "customer"
	case RoleMerchant:
		return "merchant"
	case RoleAdmin:
		return "admin"
	case RoleOwner:
		return "owner"
	default:
		return "anonymous"
	}
}

// ParseRole maps a backend role string to a Role. Unknown values map to
// RoleCustomer for registered users.
func ParseRole(s string) Role {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "owner", "super_admin", "superadmin":
		return RoleOwner
	case "admin":
		return RoleAdmin
	case "merchant", "seller":
		return RoleMerchant
	case "":
		return RoleAnonymous
	default:
		return RoleCustomer
	}
}

// Scope restricts where a command may run.
type Scope int

const (
	ScopeAny Scope = iota
	ScopeGroupOnly
	ScopePrivateOnly
)

func (s Scope) String() string {
	switch s {
	case ScopeGroupOnly:
		return "group"
	case ScopePrivateOnly:
		return "private"
	default:
		return "any"
	}
}

// Principal is the sender of a message as seen by the role gate.
type Principal struct {
	UserID        string // Normalized phone number
	IsGroupMember bool
	Role          Role
	Name          string
	MerchantID    string // Set for merchants, from the backend profile
}

func (p Principal) String() string {
	return fmt.Sprintf("%s(%s)", p.UserID, p.Role)
}

// Requirement is what a command asks of the principal.
type Requirement struct {
	Role  Role
	Scope Scope
}

// MerchantPolicy controls which higher roles may run merchant commands.
type MerchantPolicy int

const (
	// MerchantOwnerEscalates lets the owner run merchant commands.
	MerchantOwnerEscalates MerchantPolicy = iota
	// MerchantStrict admits merchants only.
	MerchantStrict
	// MerchantStaffEscalates lets the owner and admins run merchant commands.
	MerchantStaffEscalates
)

// ParseMerchantPolicy maps the MERCHANT_ESCALATION setting to a policy.
func ParseMerchantPolicy(s string) (MerchantPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "owner":
		return MerchantOwnerEscalates, nil
	case "strict":
		return MerchantStrict, nil
	case "staff":
		return MerchantStaffEscalates, nil
	default:
		return MerchantOwnerEscalates, fmt.Errorf("unknown merchant escalation policy %q", s)
	}
}
