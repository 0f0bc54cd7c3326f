package shop

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/garyellow/whatsapp-commerce-bot/internal/auth"
	"github.com/garyellow/whatsapp-commerce-bot/internal/backend"
	"github.com/garyellow/whatsapp-commerce-bot/internal/message"
)

func (h *Handler) handleSearch(ctx context.Context, args []string, _ auth.Principal, _ message.Conversation) (message.Request, error) {
	query := strings.Join(args, " ")
	if utf8.RuneCountInString(query) < minQueryLength {
		return message.NewText(message.Failure("Search",
			"Search query too short.",
			fmt.Sprintf("Try: %ssearch noodles", h.prefix))), nil
	}

	resp := h.api.SearchProducts(ctx, query, nil)
	if resp.Unavailable() {
		return message.Request{}, resp.Err
	}
	var products []backend.Product
	if resp.Success {
		if err := resp.Decode(&products); err != nil {
			return message.Request{}, err
		}
	}
	products = visibleOnly(products)
	if len(products) == 0 {
		return message.NewText(fmt.Sprintf("❌ No products found for \"*%s*\"\n\n💡 Try different keywords or type %shelp shopping.", query, h.prefix)), nil
	}

	shown := products[:min(len(products), maxSearchResults)]
	rows := make([]message.Row, len(shown))
	for i, p := range shown {
		desc := message.Money(p.Price)
		if p.MerchantName != "" {
			desc += " · " + p.MerchantName
		}
		rows[i] = message.Row{
			ID:          h.prefix + "product " + p.ID,
			Title:       message.Truncate(p.Name, message.MaxRowTitleLength),
			Description: message.Truncate(desc, message.MaxRowDescLength),
		}
	}

	body := fmt.Sprintf("🔎 *SEARCH RESULTS*\nQuery: *%s*\nFound: %d", query, len(products))
	if len(products) > len(shown) {
		body += fmt.Sprintf(" (showing %d)", len(shown))
	}
	return message.NewList(message.List{
		Header:     "Search",
		Body:       body,
		ButtonText: "View Products",
		Sections:   []message.Section{{Title: "Products", Rows: rows}},
	}), nil
}

func (h *Handler) handleProduct(ctx context.Context, args []string, _ auth.Principal, _ message.Conversation) (message.Request, error) {
	p, reply, err := h.fetchProduct(ctx, args[0])
	if p == nil {
		return reply, err
	}
	return message.NewButtons(message.Buttons{
		Body: formatProduct(p),
		Buttons: []message.Button{
			{ID: h.prefix + "add " + p.ID + " 1", Label: "🛒 Add to Cart"},
			{ID: h.prefix + "cart", Label: "👀 View Cart"},
		},
	}), nil
}

// fetchProduct loads a visible product. When it returns nil the reply and
// error are what the handler should return.
func (h *Handler) fetchProduct(ctx context.Context, productID string) (*backend.Product, message.Request, error) {
	resp := h.api.GetProduct(ctx, productID)
	switch {
	case resp.Unavailable():
		return nil, message.Request{}, resp.Err
	case resp.NotFound():
		return nil, productNotFound(productID, h.prefix), nil
	case !resp.Success:
		return nil, message.NewText(message.Failure("Product", resp.Error, "")), nil
	}

	var p backend.Product
	if err := resp.Decode(&p); err != nil {
		return nil, message.Request{}, err
	}
	if !p.Visible() {
		return nil, productNotFound(productID, h.prefix), nil
	}
	if p.ID == "" {
		p.ID = productID
	}
	return &p, message.Request{}, nil
}

func productNotFound(productID, prefix string) message.Request {
	return message.NewText(message.Failure("Product Not Found",
		fmt.Sprintf("No product with ID *%s*.", productID),
		fmt.Sprintf("Find products with %ssearch <query>", prefix)))
}

func formatProduct(p *backend.Product) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🛍️ *%s*\n\n", p.Name)
	fmt.Fprintf(&b, "💰 Price: %s\n", message.Money(p.Price))
	if p.MerchantName != "" {
		fmt.Fprintf(&b, "🏪 Store: %s\n", p.MerchantName)
	}
	if p.Category != "" {
		fmt.Fprintf(&b, "🏷️ Category: %s\n", p.Category)
	}
	if p.Rating > 0 {
		fmt.Fprintf(&b, "⭐ Rating: %.1f\n", p.Rating)
	}
	fmt.Fprintf(&b, "📦 In stock: %d\n", p.Stock)
	if p.Description != "" {
		fmt.Fprintf(&b, "\n📝 %s\n", p.Description)
	}
	fmt.Fprintf(&b, "\n🆔 ID: %s", p.ID)
	return b.String()
}

func visibleOnly(products []backend.Product) []backend.Product {
	out := products[:0]
	for _, p := range products {
		if p.Visible() {
			out = append(out, p)
		}
	}
	return out
}
