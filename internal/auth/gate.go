package auth

import (
	"fmt"

	domerrors "github.com/garyellow/whatsapp-commerce-bot/internal/errors"
)

// Reason explains a denial.
type Reason string

const (
	ReasonNotOwner     Reason = "not_owner"
	ReasonNotAdmin     Reason = "not_admin"
	ReasonNotMerchant  Reason = "not_merchant"
	ReasonWrongContext Reason = "wrong_context"
)

// DenialError is returned by Gate.Authorize. It wraps ErrNotAuthorized.
type DenialError struct {
	Reason Reason
	Scope  Scope
}

func (e *DenialError) Error() string {
	return fmt.Sprintf("not authorized: %s", e.Reason)
}

func (e *DenialError) Unwrap() error {
	return domerrors.ErrNotAuthorized
}

// UserMessage returns the text shown to the denied user.
func (e *DenialError) UserMessage() string {
	switch e.Reason {
	case ReasonNotOwner:
		return "👑 This command is only available to the bot owner."
	case ReasonNotAdmin:
		return "🔒 You are not authorized to use this command. Admin access required."
	case ReasonNotMerchant:
		return "💼 This command is for registered merchants only."
	case ReasonWrongContext:
		if e.Scope == ScopePrivateOnly {
			return "💬 This command only works in a private chat with the bot."
		}
		return "👥 This command only works in groups."
	default:
		return "🔒 You are not authorized to use this command."
	}
}

// Gate checks principals against command requirements. Owner and admin
// membership comes from configured phone sets, never from the backend.
type Gate struct {
	owners   map[string]struct{}
	admins   map[string]struct{}
	merchant MerchantPolicy
}

// NewGate creates a gate. Phone numbers must already be normalized.
func NewGate(owners, admins []string, policy MerchantPolicy) *Gate {
	return &Gate{
		owners:   toSet(owners),
		admins:   toSet(admins),
		merchant: policy,
	}
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}

// IsOwner reports whether userID is a configured owner.
func (g *Gate) IsOwner(userID string) bool {
	_, ok := g.owners[userID]
	return ok
}

// IsAdmin reports whether userID is a configured admin or owner.
func (g *Gate) IsAdmin(userID string) bool {
	if g.IsOwner(userID) {
		return true
	}
	_, ok := g.admins[userID]
	return ok
}

// Authorize returns nil when p may run a command with req in the given chat
// kind, or a *DenialError otherwise. The scope is checked before the role.
func (g *Gate) Authorize(p Principal, req Requirement, isGroup bool) error {
	switch {
	case req.Scope == ScopeGroupOnly && !isGroup,
		req.Scope == ScopePrivateOnly && isGroup:
		return &DenialError{Reason: ReasonWrongContext, Scope: req.Scope}
	}

	switch req.Role {
	case RoleOwner:
		if !g.IsOwner(p.UserID) {
			return &DenialError{Reason: ReasonNotOwner}
		}
	case RoleAdmin:
		if !g.IsAdmin(p.UserID) {
			return &DenialError{Reason: ReasonNotAdmin}
		}
	case RoleMerchant:
		if !g.merchantAllowed(p) {
			return &DenialError{Reason: ReasonNotMerchant}
		}
	}
	return nil
}

func (g *Gate) merchantAllowed(p Principal) bool {
	if p.Role == RoleMerchant {
		return true
	}
	switch g.merchant {
	case MerchantOwnerEscalates:
		return g.IsOwner(p.UserID)
	case MerchantStaffEscalates:
		return g.IsAdmin(p.UserID)
	default:
		return false
	}
}
