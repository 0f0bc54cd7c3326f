package admin

import (
	"context"
	"fmt"
	"strings"

	"github.com/garyellow/whatsapp-commerce-bot/internal/auth"
	"github.com/garyellow/whatsapp-commerce-bot/internal/backend"
	"github.com/garyellow/whatsapp-commerce-bot/internal/message"
)

const maxMerchantsShown = 10

func (h *Handler) merchants(ctx context.Context, _ []string, _ auth.Principal) (message.Request, error) {
	resp := h.api.PendingMerchants(ctx)
	if resp.Unavailable() {
		return message.Request{}, resp.Err
	}
	if !resp.Success {
		return message.NewText(message.Failure("Merchants", "Failed to fetch merchant list", "")), nil
	}
	var merchants []backend.Merchant
	if err := resp.Decode(&merchants); err != nil {
		return message.Request{}, err
	}
	if len(merchants) == 0 {
		return message.NewText(message.Info("No Merchants", "No pending merchants found.", "")), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "👥 *PENDING MERCHANTS (%d)*\n\n", len(merchants))
	for i, m := range merchants[:min(len(merchants), maxMerchantsShown)] {
		fmt.Fprintf(&b, "%d. *%s*\n", i+1, m.BusinessName)
		fmt.Fprintf(&b, "   👤 Owner: %s\n", m.OwnerName)
		fmt.Fprintf(&b, "   📍 Category: %s\n", orNA(m.Category))
		fmt.Fprintf(&b, "   📧 Email: %s\n", orNA(m.Email))
		fmt.Fprintf(&b, "   🔑 ID: %s\n\n", m.ID)
	}
	fmt.Fprintf(&b, "✅ Approve: %sadmin approve <id>\n", h.prefix)
	fmt.Fprintf(&b, "❌ Reject: %sadmin reject <id> [reason]", h.prefix)
	return message.NewText(b.String()), nil
}

func (h *Handler) approve(ctx context.Context, args []string, p auth.Principal) (message.Request, error) {
	resp := h.api.ApproveMerchant(ctx, args[0], p.UserID)
	if resp.Unavailable() {
		return message.Request{}, resp.Err
	}
	if !resp.Success {
		return message.NewText(message.Failure("Approve Failed", orDefault(resp.Error, "Could not approve merchant"), "")), nil
	}
	var m backend.Merchant
	if err := resp.DecodeOptional(&m); err != nil {
		return message.Request{}, err
	}
	body := fmt.Sprintf("%s is now active!", orDefault(m.BusinessName, args[0]))
	if m.OwnerName != "" {
		body += "\nOwner: " + m.OwnerName
	}
	return message.NewText(message.Success("Merchant Approved", body)), nil
}

func (h *Handler) reject(ctx context.Context, args []string, p auth.Principal) (message.Request, error) {
	reason := reasonFrom(args[1:], DefaultRejectReason)
	resp := h.api.RejectMerchant(ctx, args[0], reason, p.UserID)
	if resp.Unavailable() {
		return message.Request{}, resp.Err
	}
	if !resp.Success {
		return message.NewText(message.Failure("Reject Failed", orDefault(resp.Error, "Could not reject merchant"), "")), nil
	}
	return message.NewText(message.Success("Merchant Rejected",
		"Merchant application has been declined.\n\nReason: "+reason)), nil
}

func (h *Handler) suspend(ctx context.Context, args []string, p auth.Principal) (message.Request, error) {
	reason := reasonFrom(args[1:], DefaultSuspendReason)
	resp := h.api.SuspendMerchant(ctx, args[0], reason, p.UserID)
	if resp.Unavailable() {
		return message.Request{}, resp.Err
	}
	if !resp.Success {
		return message.NewText(message.Failure("Suspend Failed", orDefault(resp.Error, "Could not suspend merchant"), "")), nil
	}
	var m backend.Merchant
	if err := resp.DecodeOptional(&m); err != nil {
		return message.Request{}, err
	}
	return message.NewButtons(message.Buttons{
		Header: "⛔ Merchant Suspended",
		Body:   fmt.Sprintf("%s account suspended.\n\nReason: %s", orDefault(m.BusinessName, args[0]), reason),
		Buttons: []message.Button{
			{ID: h.prefix + "admin merchants", Label: "👥 View Merchants"},
			{ID: h.prefix + "admin stats", Label: "📊 Stats"},
		},
	}), nil
}

func reasonFrom(words []string, fallback string) string {
	if r := strings.TrimSpace(strings.Join(words, " ")); r != "" {
		return r
	}
	return fallback
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func orNA(s string) string { return orDefault(s, "N/A") }
