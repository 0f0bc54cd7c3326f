package admin

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyellow/whatsapp-commerce-bot/internal/auth"
	"github.com/garyellow/whatsapp-commerce-bot/internal/backend"
	"github.com/garyellow/whatsapp-commerce-bot/internal/config"
	"github.com/garyellow/whatsapp-commerce-bot/internal/logger"
	"github.com/garyellow/whatsapp-commerce-bot/internal/message"
)

const ownerPhone = "263771234567"

var (
	owner = auth.Principal{UserID: ownerPhone, Role: auth.RoleOwner}
	chat  = message.Conversation{ChatID: ownerPhone + "@s.whatsapp.net"}
)

type call struct {
	Path string
	Body map[string]string
}

type fakeBackend struct {
	mu    sync.Mutex
	calls []call
}

func (f *fakeBackend) record(r *http.Request) map[string]string {
	var body map[string]string
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	f.mu.Lock()
	f.calls = append(f.calls, call{Path: r.URL.Path, Body: body})
	f.mu.Unlock()
	return body
}

func (f *fakeBackend) snapshot() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeBackend) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/admin/merchants/pending", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": []backend.Merchant{
			{ID: "merch_42", BusinessName: "Acme", OwnerName: "Rudo", Category: "Groceries"},
		}})
	})
	mux.HandleFunc("POST /api/admin/merchants/{id}/approve", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		if r.PathValue("id") == "merch_204" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if r.PathValue("id") != "merch_42" {
			writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "error": "Merchant not found"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{"business_name": "Acme"}})
	})
	mux.HandleFunc("POST /api/admin/merchants/{id}/reject", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	})
	mux.HandleFunc("POST /api/admin/merchants/{id}/suspend", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": backend.Merchant{ID: r.PathValue("id"), BusinessName: "Acme"}})
	})
	mux.HandleFunc("GET /api/admin/analytics", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": backend.SystemAnalytics{
			TotalUsers: 120, CustomerCount: 100, MerchantCount: 20, TotalOrders: 55, TotalRevenue: 1234.5,
		}})
	})
	mux.HandleFunc("GET /api/admin/alerts", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": []backend.Alert{
			{ID: "a1", Title: "Payment gateway slow", Description: "p95 above 3s", Severity: "warning"},
		}})
	})
	mux.HandleFunc("POST /api/admin/broadcasts", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": backend.BroadcastResult{RecipientsCount: 87}})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type staticReporter []Component

func (s staticReporter) Components(context.Context) []Component { return s }

func newTestHandler(t *testing.T, f *fakeBackend, reporter StatusReporter) *Handler {
	t.Helper()
	log := logger.NewWithWriter("error", io.Discard)
	api := backend.New(config.BackendConfig{
		BaseURL:        f.server(t).URL,
		Timeout:        time.Second,
		MaxAttempts:    2,
		RetryBaseDelay: time.Millisecond,
		RetryMaxDelay:  2 * time.Millisecond,
	}, log, nil)
	return NewHandler(api, "!", reporter, log)
}

func TestOwnerApprovesMerchant(t *testing.T) {
	t.Parallel()
	f := &fakeBackend{}
	h := newTestHandler(t, f, nil)

	reply, err := h.handleAdmin(context.Background(), []string{"approve", "merch_42"}, owner, chat)
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "Acme")
	assert.Contains(t, reply.Text, "✅")

	calls := f.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, "/api/admin/merchants/merch_42/approve", calls[0].Path)
	assert.Equal(t, ownerPhone, calls[0].Body["approved_by"])
}

func TestApproveWithoutResponseBody(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t, &fakeBackend{}, nil)

	reply, err := h.handleAdmin(context.Background(), []string{"approve", "merch_204"}, owner, chat)
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "Merchant Approved")
	assert.Contains(t, reply.Text, "merch_204 is now active!")
	assert.NotContains(t, reply.Text, "Owner:")
}

func TestApproveUnknownMerchant(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t, &fakeBackend{}, nil)

	reply, err := h.handleAdmin(context.Background(), []string{"approve", "merch_0"}, owner, chat)
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "Approve Failed")
	assert.Contains(t, reply.Text, "Merchant not found")
}

func TestRejectAndSuspendDefaultReasons(t *testing.T) {
	t.Parallel()
	f := &fakeBackend{}
	h := newTestHandler(t, f, nil)

	reply, err := h.handleAdmin(context.Background(), []string{"reject", "merch_7"}, owner, chat)
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "Reason: "+DefaultRejectReason)

	reply, err = h.handleAdmin(context.Background(), []string{"suspend", "merch_7", "late", "deliveries"}, owner, chat)
	require.NoError(t, err)
	require.Equal(t, message.KindButtons, reply.Kind)
	assert.Contains(t, reply.Buttons.Body, "Reason: late deliveries")
	assert.NoError(t, reply.Validate())

	calls := f.snapshot()
	require.Len(t, calls, 2)
	assert.Equal(t, DefaultRejectReason, calls[0].Body["reason"])
	assert.Equal(t, ownerPhone, calls[0].Body["rejected_by"])
	assert.Equal(t, "late deliveries", calls[1].Body["reason"])
}

func TestAdminRouting(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t, &fakeBackend{}, nil)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing id", []string{"approve"}, "Usage: !admin approve <merchant_id>"},
		{"unknown", []string{"promote"}, "Unknown Subcommand"},
		{"case insensitive", []string{"MERCHANTS"}, "PENDING MERCHANTS (1)"},
		{"merchants", []string{"merchants"}, "🔑 ID: merch_42"},
		{"broadcast", []string{"broadcast", "merchants", "Hello", "all"}, "Message sent to 87 users."},
		{"broadcast empty", []string{"broadcast", "customers"}, "Message Required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			reply, err := h.handleAdmin(context.Background(), tt.args, owner, chat)
			require.NoError(t, err)
			assert.Contains(t, reply.Text, tt.want)
		})
	}

	reply, err := h.handleAdmin(context.Background(), nil, owner, chat)
	require.NoError(t, err)
	require.Equal(t, message.KindList, reply.Kind)
	assert.Len(t, reply.List.Sections[0].Rows, len(h.subcommands))
	assert.NoError(t, reply.Validate())
}

func TestBroadcastRecipientType(t *testing.T) {
	t.Parallel()
	f := &fakeBackend{}
	h := newTestHandler(t, f, nil)

	_, err := h.handleAdmin(context.Background(), []string{"broadcast", "Customers", "Sale", "today!"}, owner, chat)
	require.NoError(t, err)
	calls := f.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, "customers", calls[0].Body["recipient_type"])
	assert.Equal(t, "Sale today!", calls[0].Body["message"])
	assert.Equal(t, ownerPhone, calls[0].Body["admin_id"])
}

func TestStats(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t, &fakeBackend{}, nil)

	reply, err := h.handleAdmin(context.Background(), []string{"stats"}, owner, chat)
	require.NoError(t, err)
	require.Equal(t, message.KindButtons, reply.Kind)
	assert.Contains(t, reply.Buttons.Body, "👥 Total Users: 120")
	assert.Contains(t, reply.Buttons.Body, "💰 Total Revenue: ZWL 1234.50")
	assert.Contains(t, reply.Buttons.Body, "🚨 Active Alerts: 1")
	assert.Contains(t, reply.Buttons.Body, "Avg Response: N/A")
}

func TestSalesAndAlerts(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t, &fakeBackend{}, nil)

	reply, err := h.handleAdmin(context.Background(), []string{"sales"}, owner, chat)
	require.NoError(t, err)
	require.Equal(t, message.KindList, reply.Kind)
	assert.Equal(t, "!admin sales today", reply.List.Sections[0].Rows[0].ID)

	reply, err = h.handleAdmin(context.Background(), []string{"sales", "week"}, owner, chat)
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "Sales · WEEK")

	reply, err = h.handleAdmin(context.Background(), []string{"alerts"}, owner, chat)
	require.NoError(t, err)
	require.Equal(t, message.KindList, reply.Kind)
	assert.Equal(t, "1 active alert", reply.List.Body)
	assert.Contains(t, reply.List.Sections[0].Rows[0].Title, "🟡")
	assert.NoError(t, reply.Validate())
}

func TestHealth(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t, &fakeBackend{}, staticReporter{
		{Name: "WhatsApp", Healthy: true, Detail: "connected"},
		{Name: "Retry queue", Healthy: false, Detail: "950/1000"},
	})

	reply, err := h.handleHealth(context.Background(), nil, owner, chat)
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "HEALTH: DEGRADED")
	assert.Contains(t, reply.Text, "✅ WhatsApp: connected")
	assert.Contains(t, reply.Text, "❌ Retry queue: 950/1000")
	assert.Contains(t, reply.Text, "Goroutines:")
}
