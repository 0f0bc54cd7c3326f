package webhook

import (
	"fmt"
	"slices"
	"strings"

	"github.com/garyellow/whatsapp-commerce-bot/internal/backend"
	"github.com/garyellow/whatsapp-commerce-bot/internal/message"
)

// Topics, also used as metric labels.
const (
	TopicOrderUpdate      = "order_update"
	TopicMerchantApproved = "merchant_approved"
	TopicProductUpdated   = "product_updated"
)

// OrderUpdate is posted when an order changes status.
type OrderUpdate struct {
	OrderID       string `json:"orderId"`
	Status        string `json:"status"`
	CustomerPhone string `json:"customerPhone"`
	MerchantName  string `json:"merchantName,omitempty"`
	Note          string `json:"note,omitempty"`
}

// MerchantApproved is posted when an admin activates a store.
type MerchantApproved struct {
	MerchantPhone string `json:"merchantPhone"`
	BusinessName  string `json:"businessName"`
}

// ProductUpdated is posted when a merchant's product changes.
type ProductUpdated struct {
	MerchantPhone string `json:"merchantPhone"`
	ProductName   string `json:"productName"`
	Action        string `json:"action"` // created, updated, deleted, out_of_stock...
}

// notification is a validated payload ready to send.
type notification interface {
	recipient() string
	validate() error
	render(prefix string) message.Request
}

func required(fields map[string]string) error {
	var missing []string
	for name, v := range fields {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	// Map order is random; keep the message stable.
	slices.Sort(missing)
	return fmt.Errorf("missing fields: %s", strings.Join(missing, ", "))
}

func (n OrderUpdate) recipient() string { return backend.NormalizePhone(n.CustomerPhone) }

func (n OrderUpdate) validate() error {
	if err := required(map[string]string{"orderId": n.OrderID, "status": n.Status, "customerPhone": n.CustomerPhone}); err != nil {
		return err
	}
	if n.recipient() == "" {
		return fmt.Errorf("customerPhone has no digits")
	}
	return nil
}

func (n OrderUpdate) render(prefix string) message.Request {
	id := strings.TrimPrefix(n.OrderID, "#")
	var b strings.Builder
	fmt.Fprintf(&b, "Order #%s is now %s %s", id, message.StatusEmoji(n.Status), message.StatusLabel(n.Status))
	if n.MerchantName != "" {
		fmt.Fprintf(&b, "\n🏪 %s", n.MerchantName)
	}
	if n.Note != "" {
		fmt.Fprintf(&b, "\n\n📝 %s", n.Note)
	}
	return message.NewButtons(message.Buttons{
		Header: "📦 Order Update",
		Body:   b.String(),
		Buttons: []message.Button{
			{ID: prefix + "track " + id, Label: "Track Order"},
			{ID: prefix + "orders", Label: "My Orders"},
		},
	})
}

func (n MerchantApproved) recipient() string { return backend.NormalizePhone(n.MerchantPhone) }

func (n MerchantApproved) validate() error {
	if err := required(map[string]string{"merchantPhone": n.MerchantPhone, "businessName": n.BusinessName}); err != nil {
		return err
	}
	if n.recipient() == "" {
		return fmt.Errorf("merchantPhone has no digits")
	}
	return nil
}

func (n MerchantApproved) render(prefix string) message.Request {
	return message.NewButtons(message.Buttons{
		Header: "🎉 Store Approved",
		Body:   fmt.Sprintf("Your %q account is approved and live!\n\nCustomers can now find your products.", n.BusinessName),
		Buttons: []message.Button{
			{ID: prefix + "dashboard", Label: "Dashboard"},
			{ID: prefix + "help merchant", Label: "Merchant Help"},
		},
	})
}

func (n ProductUpdated) recipient() string { return backend.NormalizePhone(n.MerchantPhone) }

func (n ProductUpdated) validate() error {
	if err := required(map[string]string{"merchantPhone": n.MerchantPhone, "productName": n.ProductName, "action": n.Action}); err != nil {
		return err
	}
	if n.recipient() == "" {
		return fmt.Errorf("merchantPhone has no digits")
	}
	return nil
}

func (n ProductUpdated) render(prefix string) message.Request {
	action := strings.ReplaceAll(strings.ToLower(n.Action), "_", " ")
	return message.NewText(fmt.Sprintf("📦 %q has been %s\n\nReview your stock with %sinventory", n.ProductName, action, prefix))
}
