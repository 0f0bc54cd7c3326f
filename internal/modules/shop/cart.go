package shop

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/garyellow/whatsapp-commerce-bot/internal/auth"
	"github.com/garyellow/whatsapp-commerce-bot/internal/backend"
	domerrors "github.com/garyellow/whatsapp-commerce-bot/internal/errors"
	"github.com/garyellow/whatsapp-commerce-bot/internal/message"
	"github.com/garyellow/whatsapp-commerce-bot/internal/storage"
)

const cartScope domerrors.Scope = "shop.cart"

func (h *Handler) handleAdd(ctx context.Context, args []string, p auth.Principal, _ message.Conversation) (message.Request, error) {
	qty := 1
	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 1 || n > maxQuantity {
			return message.NewText(message.Failure("Invalid Quantity",
				fmt.Sprintf("Quantity must be a number from 1 to %d.", maxQuantity),
				fmt.Sprintf("Example: %sadd %s 2", h.prefix, args[0]))), nil
		}
		qty = n
	}

	product, reply, err := h.fetchProduct(ctx, args[0])
	if product == nil {
		return reply, err
	}

	err = h.carts.AddCartItem(ctx, &storage.CartItem{
		UserID:     p.UserID,
		ProductID:  product.ID,
		Name:       product.Name,
		MerchantID: product.MerchantID,
		Price:      product.Price,
		Quantity:   qty,
	})
	if err != nil {
		return message.Request{}, cartScope.Reply(err, "❌ Could not update your cart. Please try again.")
	}

	items, err := h.carts.GetCart(ctx, p.UserID)
	if err != nil {
		return message.Request{}, cartScope.Reply(err, "❌ Could not load your cart. Please try again.")
	}

	return message.NewButtons(message.Buttons{
		Body: message.Success("Added to Cart",
			fmt.Sprintf("Added %dx %s to cart!\n\n💰 Cart Total: %s", qty, product.Name, message.Money(cartTotal(items)))),
		Buttons: []message.Button{
			{ID: h.prefix + "cart", Label: "🛒 View Cart"},
			{ID: h.prefix + "checkout", Label: "✅ Checkout"},
		},
	}), nil
}

func (h *Handler) handleCart(ctx context.Context, _ []string, p auth.Principal, _ message.Conversation) (message.Request, error) {
	items, err := h.carts.GetCart(ctx, p.UserID)
	if err != nil {
		return message.Request{}, cartScope.Reply(err, "❌ Could not load your cart. Please try again.")
	}
	if len(items) == 0 {
		return message.NewText(h.emptyCart()), nil
	}

	return message.NewButtons(message.Buttons{
		Body: formatCart(items),
		Buttons: []message.Button{
			{ID: h.prefix + "checkout", Label: "✅ Checkout"},
			{ID: h.prefix + "clear", Label: "🗑️ Clear Cart"},
		},
	}), nil
}

func (h *Handler) handleRemove(ctx context.Context, args []string, p auth.Principal, _ message.Conversation) (message.Request, error) {
	productID := args[0]
	err := h.carts.RemoveCartItem(ctx, p.UserID, productID)
	switch {
	case domerrors.IsNotFound(err):
		return message.NewText(message.Failure("Not in Cart",
			fmt.Sprintf("Product *%s* is not in your cart.", productID),
			fmt.Sprintf("Type %scart to see product IDs.", h.prefix))), nil
	case err != nil:
		return message.Request{}, cartScope.Reply(err, "❌ Could not update your cart. Please try again.")
	}

	items, err := h.carts.GetCart(ctx, p.UserID)
	if err != nil {
		return message.Request{}, cartScope.Reply(err, "❌ Could not load your cart. Please try again.")
	}
	return message.NewText(message.Success("Removed",
		fmt.Sprintf("Removed %s from cart\n\nNew Total: %s", productID, message.Money(cartTotal(items))))), nil
}

func (h *Handler) handleClear(ctx context.Context, _ []string, p auth.Principal, _ message.Conversation) (message.Request, error) {
	if _, err := h.carts.ClearCart(ctx, p.UserID); err != nil {
		return message.Request{}, cartScope.Reply(err, "❌ Could not clear your cart. Please try again.")
	}
	return message.NewText("✨ Cart cleared!"), nil
}

func (h *Handler) handleCheckout(ctx context.Context, args []string, p auth.Principal, _ message.Conversation) (message.Request, error) {
	items, err := h.carts.GetCart(ctx, p.UserID)
	if err != nil {
		return message.Request{}, cartScope.Reply(err, "❌ Could not load your cart. Please try again.")
	}
	if len(items) == 0 {
		return message.NewText(h.emptyCart()), nil
	}

	req := backend.CreateOrderRequest{
		CustomerPhone:   p.UserID,
		MerchantID:      singleMerchant(items),
		Total:           cartTotal(items),
		DeliveryAddress: strings.Join(args, " "),
	}
	for _, it := range items {
		req.Items = append(req.Items, backend.OrderItem{
			ProductID: it.ProductID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			Price:     it.Price,
		})
	}

	resp := h.api.CreateOrder(ctx, req)
	if resp.Unavailable() {
		return message.Request{}, resp.Err
	}
	if !resp.Success {
		return message.NewText(message.Failure("Order Failed", resp.Error, "Your cart was kept. Please try again later.")), nil
	}
	var order backend.Order
	if err := resp.DecodeOptional(&order); err != nil {
		return message.Request{}, err
	}
	if order.Total == 0 {
		order.Total = req.Total
	}

	// The order exists; a failed clear only leaves a stale cart behind
	if _, err := h.carts.ClearCart(ctx, p.UserID); err != nil {
		h.logger.WithError(err).WithField("order_id", order.ID).Warnf("Failed to clear cart after checkout")
	}

	var b strings.Builder
	b.WriteString("🎉 Thank you for your order!\n\n")
	if order.ID != "" {
		fmt.Fprintf(&b, "📦 Order ID: %s\n", order.ID)
	}
	fmt.Fprintf(&b, "💰 Total: %s\n", message.Money(order.Total))
	delivery := req.DeliveryAddress
	if delivery == "" {
		delivery = "Will be requested"
	}
	fmt.Fprintf(&b, "📍 Delivery: %s\n\n", delivery)
	b.WriteString("✅ Your order has been sent to the merchant.\n🔔 You'll get updates as it progresses.")
	if order.ID == "" {
		return message.NewText(message.Success("Order Placed", b.String())), nil
	}

	buttons := []message.Button{{ID: h.prefix + "track " + order.ID, Label: "📍 Track Order"}}
	if order.PaymentURL != "" {
		buttons = append(buttons, message.Button{Label: "💳 Pay Now", URL: order.PaymentURL})
	}
	return message.NewButtons(message.Buttons{
		Body:    message.Success("Order Placed", b.String()),
		Buttons: buttons,
	}), nil
}

func (h *Handler) emptyCart() string {
	return message.Info("Your Cart", "✨ Cart is empty! ✨",
		fmt.Sprintf("• %ssearch <item> to find products\n• %sadd <product_id> [qty] to fill your cart", h.prefix, h.prefix))
}

func formatCart(items []storage.CartItem) string {
	var b strings.Builder
	b.WriteString("🛒 *SHOPPING CART*\n\n")
	for i, it := range items {
		fmt.Fprintf(&b, "%d. %s\n   ×%d @ %s = %s\n   🆔 %s\n", i+1, it.Name, it.Quantity,
			message.Money(it.Price), message.Money(it.Subtotal()), it.ProductID)
	}
	fmt.Fprintf(&b, "\n💰 *TOTAL: %s*", message.Money(cartTotal(items)))
	return b.String()
}

func cartTotal(items []storage.CartItem) float64 {
	var total float64
	for _, it := range items {
		total += it.Subtotal()
	}
	return total
}

// singleMerchant returns the merchant of every item, or "" for mixed carts.
func singleMerchant(items []storage.CartItem) string {
	if len(items) == 0 {
		return ""
	}
	id := items[0].MerchantID
	for _, it := range items[1:] {
		if it.MerchantID != id {
			return ""
		}
	}
	return id
}
