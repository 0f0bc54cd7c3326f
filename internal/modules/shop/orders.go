package shop

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/garyellow/whatsapp-commerce-bot/internal/auth"
	"github.com/garyellow/whatsapp-commerce-bot/internal/backend"
	"github.com/garyellow/whatsapp-commerce-bot/internal/message"
)

// orderProgress is the customer-visible order lifecycle.
var orderProgress = []string{"pending", "confirmed", "preparing", "ready", "out_for_delivery", "delivered"}

func (h *Handler) handleOrders(ctx context.Context, _ []string, p auth.Principal, _ message.Conversation) (message.Request, error) {
	resp := h.api.CustomerOrders(ctx, p.UserID)
	if resp.Unavailable() {
		return message.Request{}, resp.Err
	}
	var orders []backend.Order
	if resp.Success {
		if err := resp.Decode(&orders); err != nil {
			return message.Request{}, err
		}
	}
	if len(orders) == 0 {
		return message.NewText(fmt.Sprintf("📦 You have no orders yet. Type %ssearch <item> to start shopping.", h.prefix)), nil
	}

	shown := orders[:min(len(orders), maxOrdersShown)]
	rows := make([]message.Row, len(shown))
	for i, o := range shown {
		desc := message.StatusEmoji(o.Status) + " " + message.StatusLabel(o.Status) + " · " + message.Money(o.Total)
		if o.MerchantName != "" {
			desc += " · " + o.MerchantName
		}
		rows[i] = message.Row{
			ID:          h.prefix + "track " + o.ID,
			Title:       message.Truncate("#"+o.ID, message.MaxRowTitleLength),
			Description: message.Truncate(desc, message.MaxRowDescLength),
		}
	}
	return message.NewList(message.List{
		Header:     "My Orders",
		Body:       fmt.Sprintf("📦 *Your Orders (%d)*\n\nSelect an order to track it.", len(orders)),
		ButtonText: "View Orders",
		Sections:   []message.Section{{Title: "Recent", Rows: rows}},
	}), nil
}

func (h *Handler) handleTrack(ctx context.Context, args []string, _ auth.Principal, _ message.Conversation) (message.Request, error) {
	orderID := strings.TrimPrefix(args[0], "#")
	resp := h.api.GetOrder(ctx, orderID)
	switch {
	case resp.Unavailable():
		return message.Request{}, resp.Err
	case resp.NotFound():
		return message.NewText(message.Failure("Order Not Found",
			fmt.Sprintf("No order with ID *%s*.", orderID),
			fmt.Sprintf("Type %sorders to see your orders.", h.prefix))), nil
	case !resp.Success:
		return message.NewText(message.Failure("Track Order", resp.Error, "")), nil
	}

	var order backend.Order
	if err := resp.Decode(&order); err != nil {
		return message.Request{}, err
	}
	if order.ID == "" {
		order.ID = orderID
	}
	return message.NewText(FormatOrder(&order)), nil
}

func (h *Handler) handleProfile(ctx context.Context, _ []string, p auth.Principal, _ message.Conversation) (message.Request, error) {
	resp := h.api.GetUser(ctx, p.UserID)
	switch {
	case resp.Unavailable():
		return message.Request{}, resp.Err
	case resp.NotFound():
		return message.NewText(message.Info("Your Profile",
			fmt.Sprintf("📱 Phone: +%s\n👤 Role: %s\n\nYou are not registered yet; you can still browse and order.", p.UserID, p.Role),
			"")), nil
	case !resp.Success:
		return message.NewText(message.Failure("Profile", resp.Error, "")), nil
	}

	var u backend.User
	if err := resp.Decode(&u); err != nil {
		return message.Request{}, err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "👤 Name: %s\n", orDash(u.Name))
	fmt.Fprintf(&b, "📱 Phone: +%s\n", p.UserID)
	if u.Email != "" {
		fmt.Fprintf(&b, "📧 Email: %s\n", u.Email)
	}
	fmt.Fprintf(&b, "🎭 Role: %s", p.Role)
	if u.MerchantID != "" {
		fmt.Fprintf(&b, "\n🏪 Merchant ID: %s", u.MerchantID)
	}
	return message.NewText(message.Info("Your Profile", b.String(), "")), nil
}

// FormatOrder renders an order with its items and a progress bar.
func FormatOrder(o *backend.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📦 *ORDER #%s*\n\n", o.ID)
	if o.MerchantName != "" {
		fmt.Fprintf(&b, "🏪 Merchant: %s\n", o.MerchantName)
	}
	if !o.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "📅 Date: %s\n", o.CreatedAt.Format("2006-01-02"))
	}
	if len(o.Items) > 0 {
		b.WriteString("\n*Items:*\n")
		for i, it := range o.Items {
			name := it.Name
			if name == "" {
				name = it.ProductID
			}
			fmt.Fprintf(&b, "%d. %s ×%d → %s\n", i+1, name, it.Quantity, message.Money(it.Price*float64(it.Quantity)))
		}
	}
	fmt.Fprintf(&b, "\n💰 *TOTAL:* %s\n\n", message.Money(o.Total))
	fmt.Fprintf(&b, "%s Status: %s", message.StatusEmoji(o.Status), message.StatusLabel(o.Status))
	if bar := progressBar(o.Status); bar != "" {
		b.WriteString("\n" + bar)
	}
	return b.String()
}

func progressBar(status string) string {
	const width = 10
	i := slices.Index(orderProgress, strings.ToLower(status))
	if i < 0 {
		return ""
	}
	filled := (i + 1) * width / len(orderProgress)
	return "Progress: " + strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
