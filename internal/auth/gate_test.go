package auth

import (
	"errors"
	"testing"

	domerrors "github.com/garyellow/whatsapp-commerce-bot/internal/errors"
)

const (
	ownerPhone    = "263700000001"
	adminPhone    = "263700000002"
	merchantPhone = "263700000003"
	customerPhone = "263700000004"
)

func newTestGate(policy MerchantPolicy) *Gate {
	return NewGate([]string{ownerPhone}, []string{adminPhone}, policy)
}

func denialReason(t *testing.T, err error) Reason {
	t.Helper()
	var denial *DenialError
	if !errors.As(err, &denial) {
		t.Fatalf("expected *DenialError, got %v", err)
	}
	if !errors.Is(err, domerrors.ErrNotAuthorized) {
		t.Errorf("denial should wrap ErrNotAuthorized")
	}
	return denial.Reason
}

func TestGate_CustomerDeniedAdminCommand(t *testing.T) {
	t.Parallel()
	g := newTestGate(MerchantOwnerEscalates)
	customer := Principal{UserID: customerPhone, Role: RoleCustomer}

	for _, isGroup := range []bool{false, true} {
		err := g.Authorize(customer, Requirement{Role: RoleAdmin}, isGroup)
		if got := denialReason(t, err); got != ReasonNotAdmin {
			t.Errorf("reason = %s, want %s", got, ReasonNotAdmin)
		}
	}
}

func TestGate_Authorize(t *testing.T) {
	t.Parallel()

	owner := Principal{UserID: ownerPhone, Role: RoleOwner}
	admin := Principal{UserID: adminPhone, Role: RoleAdmin}
	merchant := Principal{UserID: merchantPhone, Role: RoleMerchant}
	customer := Principal{UserID: customerPhone, Role: RoleCustomer}
	// A backend role claim alone never grants owner or admin.
	impostor := Principal{UserID: customerPhone, Role: RoleOwner}

	tests := []struct {
		name      string
		policy    MerchantPolicy
		principal Principal
		req       Requirement
		isGroup   bool
		want      Reason // empty means allowed
	}{
		{"owner runs owner command", MerchantOwnerEscalates, owner, Requirement{Role: RoleOwner}, false, ""},
		{"admin denied owner command", MerchantOwnerEscalates, admin, Requirement{Role: RoleOwner}, false, ReasonNotOwner},
		{"owner runs admin command", MerchantOwnerEscalates, owner, Requirement{Role: RoleAdmin}, false, ""},
		{"admin runs admin command", MerchantOwnerEscalates, admin, Requirement{Role: RoleAdmin}, false, ""},
		{"backend role claim is not admin", MerchantOwnerEscalates, impostor, Requirement{Role: RoleAdmin}, false, ReasonNotAdmin},
		{"merchant runs merchant command", MerchantStrict, merchant, Requirement{Role: RoleMerchant}, false, ""},
		{"customer denied merchant command", MerchantOwnerEscalates, customer, Requirement{Role: RoleMerchant}, false, ReasonNotMerchant},
		{"strict denies owner", MerchantStrict, owner, Requirement{Role: RoleMerchant}, false, ReasonNotMerchant},
		{"owner escalates", MerchantOwnerEscalates, owner, Requirement{Role: RoleMerchant}, false, ""},
		{"owner policy denies admin", MerchantOwnerEscalates, admin, Requirement{Role: RoleMerchant}, false, ReasonNotMerchant},
		{"staff policy admits admin", MerchantStaffEscalates, admin, Requirement{Role: RoleMerchant}, false, ""},
		{"group-only in private", MerchantOwnerEscalates, owner, Requirement{Scope: ScopeGroupOnly}, false, ReasonWrongContext},
		{"group-only in group", MerchantOwnerEscalates, customer, Requirement{Scope: ScopeGroupOnly}, true, ""},
		{"private-only in group", MerchantOwnerEscalates, customer, Requirement{Scope: ScopePrivateOnly}, true, ReasonWrongContext},
		{"scope checked before role", MerchantOwnerEscalates, customer, Requirement{Role: RoleOwner, Scope: ScopePrivateOnly}, true, ReasonWrongContext},
		{"open command", MerchantOwnerEscalates, Principal{}, Requirement{}, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := newTestGate(tt.policy).Authorize(tt.principal, tt.req, tt.isGroup)
			if tt.want == "" {
				if err != nil {
					t.Fatalf("Authorize() = %v, want nil", err)
				}
				return
			}
			if got := denialReason(t, err); got != tt.want {
				t.Errorf("reason = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDenialError_UserMessageDistinct(t *testing.T) {
	t.Parallel()
	seen := map[string]Reason{}
	for _, d := range []*DenialError{
		{Reason: ReasonNotOwner},
		{Reason: ReasonNotAdmin},
		{Reason: ReasonNotMerchant},
		{Reason: ReasonWrongContext, Scope: ScopeGroupOnly},
	} {
		msg := d.UserMessage()
		if msg == "" {
			t.Errorf("%s has empty message", d.Reason)
		}
		if prev, dup := seen[msg]; dup {
			t.Errorf("%s and %s share message %q", prev, d.Reason, msg)
		}
		seen[msg] = d.Reason
	}
}

func TestParseMerchantPolicy(t *testing.T) {
	t.Parallel()
	tests := map[string]MerchantPolicy{
		"":       MerchantOwnerEscalates,
		"owner":  MerchantOwnerEscalates,
		"STRICT": MerchantStrict,
		"staff":  MerchantStaffEscalates,
	}
	for in, want := range tests {
		got, err := ParseMerchantPolicy(in)
		if err != nil || got != want {
			t.Errorf("ParseMerchantPolicy(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseMerchantPolicy("everyone"); err == nil {
		t.Error("expected error for unknown policy")
	}
}

func TestParseRole(t *testing.T) {
	t.Parallel()
	tests := map[string]Role{
		"merchant": RoleMerchant,
		"Admin":    RoleAdmin,
		"owner":    RoleOwner,
		"customer": RoleCustomer,
		"buyer":    RoleCustomer,
		"":         RoleAnonymous,
	}
	for in, want := range tests {
		if got := ParseRole(in); got != want {
			t.Errorf("ParseRole(%q) = %v, want %v", in, got, want)
		}
	}
}
