package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/garyellow/whatsapp-commerce-bot/internal/backend"
	domerrors "github.com/garyellow/whatsapp-commerce-bot/internal/errors"
	"github.com/garyellow/whatsapp-commerce-bot/internal/logger"
	"github.com/garyellow/whatsapp-commerce-bot/internal/storage"
)

// fakeUsers serves GetUser from a map of phone -> user.
type fakeUsers struct {
	users map[string]backend.User
	down  bool
	delay time.Duration
	calls atomic.Int32
}

func (f *fakeUsers) GetUser(_ context.Context, phone string) *backend.Response {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.down {
		return &backend.Response{
			Error: backend.UnavailableMessage,
			Err:   fmt.Errorf("%w: connection refused", domerrors.ErrBackendUnavailable),
		}
	}
	u, ok := f.users[phone]
	if !ok {
		return &backend.Response{StatusCode: http.StatusNotFound, Error: "User not found", Err: domerrors.ErrNotFound}
	}
	data, _ := json.Marshal(u)
	return &backend.Response{Success: true, Data: data, StatusCode: http.StatusOK}
}

func newTestResolver(t *testing.T, users UserLookup) (*Resolver, *storage.DB) {
	t.Helper()
	db, err := storage.NewTestDB()
	if err != nil {
		t.Fatalf("NewTestDB: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	log := logger.NewWithWriter("error", io.Discard)
	return NewResolver(newTestGate(MerchantOwnerEscalates), users, db, time.Hour, log, nil), db
}

func TestResolver_Roles(t *testing.T) {
	t.Parallel()
	users := &fakeUsers{users: map[string]backend.User{
		merchantPhone:  {ID: "u3", Name: "Tendai", Role: "merchant", MerchantID: "m-9"},
		customerPhone:  {ID: "u4", Name: "Rudo", Role: "customer"},
		"263700000099": {ID: "u99", Name: "Claims Admin", Role: "admin"},
	}}
	r, _ := newTestResolver(t, users)

	tests := []struct {
		phone    string
		wantRole Role
	}{
		{ownerPhone, RoleOwner},
		{adminPhone, RoleAdmin},
		{merchantPhone, RoleMerchant},
		{customerPhone, RoleCustomer},
		{"263700000099", RoleMerchant}, // backend admin claim is capped
		{"263711111111", RoleCustomer}, // unregistered
		{"", RoleAnonymous},
	}
	for _, tt := range tests {
		t.Run(tt.phone, func(t *testing.T) {
			p := r.Resolve(context.Background(), tt.phone, false)
			if p.Role != tt.wantRole {
				t.Errorf("Resolve(%q).Role = %v, want %v", tt.phone, p.Role, tt.wantRole)
			}
		})
	}

	p := r.Resolve(context.Background(), merchantPhone, true)
	if p.MerchantID != "m-9" || p.Name != "Tendai" || !p.IsGroupMember {
		t.Errorf("merchant principal = %+v", p)
	}
}

func TestResolver_CachesLookups(t *testing.T) {
	t.Parallel()
	users := &fakeUsers{users: map[string]backend.User{
		merchantPhone: {Name: "Tendai", Role: "merchant", MerchantID: "m-9"},
	}}
	r, db := newTestResolver(t, users)

	for range 3 {
		if p := r.Resolve(context.Background(), merchantPhone, false); p.Role != RoleMerchant {
			t.Fatalf("Role = %v", p.Role)
		}
	}
	if got := users.calls.Load(); got != 1 {
		t.Errorf("backend calls = %d, want 1", got)
	}
	cached, err := db.GetCachedRole(context.Background(), merchantPhone, time.Hour)
	if err != nil || cached.Role != "merchant" || cached.MerchantID != "m-9" {
		t.Errorf("cached = %+v, err = %v", cached, err)
	}
}

func TestResolver_BackendDownIsNotCached(t *testing.T) {
	t.Parallel()
	users := &fakeUsers{down: true}
	r, db := newTestResolver(t, users)

	if p := r.Resolve(context.Background(), merchantPhone, false); p.Role != RoleCustomer {
		t.Errorf("Role = %v, want customer fallback", p.Role)
	}
	if _, err := db.GetCachedRole(context.Background(), merchantPhone, time.Hour); !domerrors.IsNotFound(err) {
		t.Errorf("fallback role was cached: err = %v", err)
	}

	users.down = false
	users.users = map[string]backend.User{merchantPhone: {Role: "merchant"}}
	if p := r.Resolve(context.Background(), merchantPhone, false); p.Role != RoleMerchant {
		t.Errorf("Role after recovery = %v", p.Role)
	}
}

func TestResolver_ConcurrentLookupsShareOneCall(t *testing.T) {
	t.Parallel()
	users := &fakeUsers{
		users: map[string]backend.User{customerPhone: {Role: "customer"}},
		delay: 50 * time.Millisecond,
	}
	log := logger.NewWithWriter("error", io.Discard)
	r := NewResolver(newTestGate(MerchantStrict), users, nil, time.Hour, log, nil)

	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			if p := r.Resolve(context.Background(), customerPhone, false); p.Role != RoleCustomer {
				t.Errorf("Role = %v", p.Role)
			}
		})
	}
	wg.Wait()
	if got := users.calls.Load(); got >= 8 {
		t.Errorf("backend calls = %d, want deduplicated", got)
	}
}
