// Package merchant implements the store owner commands: dashboard,
// inventory, incoming orders and order status updates.
package merchant

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/garyellow/whatsapp-commerce-bot/internal/auth"
	"github.com/garyellow/whatsapp-commerce-bot/internal/backend"
	"github.com/garyellow/whatsapp-commerce-bot/internal/logger"
	"github.com/garyellow/whatsapp-commerce-bot/internal/message"
	"github.com/garyellow/whatsapp-commerce-bot/internal/registry"
)

// ModuleName is the category key of this module's commands.
const ModuleName = "merchant"

const (
	maxInventoryRows = 10
	maxIncomingRows  = 10
)

var timeframes = []string{"today", "week", "month"}

// Handler serves the merchant commands.
type Handler struct {
	api    *backend.Client
	prefix string
	logger *logger.Logger
}

// NewHandler creates the merchant handler.
func NewHandler(api *backend.Client, prefix string, log *logger.Logger) *Handler {
	return &Handler{api: api, prefix: prefix, logger: log.WithModule(ModuleName)}
}

// Commands returns the module's command descriptors.
func (h *Handler) Commands() []registry.Descriptor {
	return []registry.Descriptor{
		{
			Name: "dashboard", Aliases: []string{"dash"}, Category: ModuleName,
			Usage: "dashboard [today|week|month]", Description: "Sales overview and pending orders",
			RequiredRole: auth.RoleMerchant, Cooldown: 5 * time.Second,
			Handler: registry.HandlerFunc(h.handleDashboard),
		},
		{
			Name: "inventory", Aliases: []string{"stock", "myproducts"}, Category: ModuleName,
			Description:  "List your products and stock",
			RequiredRole: auth.RoleMerchant, Cooldown: 5 * time.Second,
			Handler: registry.HandlerFunc(h.handleInventory),
		},
		{
			Name: "incoming", Aliases: []string{"neworders"}, Category: ModuleName,
			Description:  "Orders waiting for you",
			RequiredRole: auth.RoleMerchant, Cooldown: 3 * time.Second,
			Handler: registry.HandlerFunc(h.handleIncoming),
		},
		{
			Name: "orderupdate", Aliases: []string{"ou", "setstatus"}, Category: ModuleName,
			Usage:        "orderupdate <order_id> <" + strings.Join(backend.MerchantOrderStatuses, "|") + ">",
			Description:  "Update an order's status",
			RequiredRole: auth.RoleMerchant, MinArgs: 1,
			Handler: registry.HandlerFunc(h.handleOrderUpdate),
		},
	}
}

func (h *Handler) noMerchant() message.Request {
	return message.NewText(message.Failure("No Store Linked",
		"Your number is not linked to a merchant account.",
		"Ask an admin to link your store, then try again."))
}

func (h *Handler) handleDashboard(ctx context.Context, args []string, p auth.Principal, _ message.Conversation) (message.Request, error) {
	if p.MerchantID == "" {
		return h.noMerchant(), nil
	}
	timeframe := "today"
	if len(args) > 0 {
		timeframe = strings.ToLower(args[0])
		if !slices.Contains(timeframes, timeframe) {
			return message.NewText(message.Failure("Invalid Timeframe",
				fmt.Sprintf("Unknown timeframe *%s*.", args[0]),
				"Use one of: "+strings.Join(timeframes, ", "))), nil
		}
	}

	var (
		analytics backend.MerchantAnalytics
		pending   []backend.Order
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		resp := h.api.MerchantAnalytics(gctx, p.MerchantID, timeframe)
		if resp.Unavailable() {
			return resp.Err
		}
		if resp.Success {
			if err := resp.Decode(&analytics); err != nil {
				h.logger.WithError(err).Warnf("Malformed analytics payload")
			}
		}
		return nil
	})
	g.Go(func() error {
		resp := h.api.MerchantOrders(gctx, p.MerchantID, "pending")
		if resp.Unavailable() {
			return resp.Err
		}
		if resp.Success {
			if err := resp.Decode(&pending); err != nil {
				h.logger.WithError(err).Warnf("Malformed orders payload")
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return message.Request{}, err
	}

	pendingCount := countStatus(pending, "pending")
	if pendingCount == 0 {
		pendingCount = analytics.PendingOrders
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*%s OVERVIEW*\n", strings.ToUpper(timeframe))
	fmt.Fprintf(&b, "📦 Pending Orders: %d\n", pendingCount)
	if timeframe == "today" {
		fmt.Fprintf(&b, "💰 Revenue: %s\n", message.Money(analytics.RevenueToday))
		fmt.Fprintf(&b, "📊 Orders: %d\n", analytics.OrdersToday)
	} else {
		fmt.Fprintf(&b, "💰 Revenue: %s\n", message.Money(analytics.TotalRevenue))
		fmt.Fprintf(&b, "📊 Orders: %d\n", analytics.TotalOrders)
	}
	if analytics.AverageRating > 0 {
		fmt.Fprintf(&b, "⭐ Rating: %.1f\n", analytics.AverageRating)
	}
	if analytics.TopProduct != "" {
		fmt.Fprintf(&b, "🏆 Top Product: %s\n", analytics.TopProduct)
	}

	return message.NewButtons(message.Buttons{
		Header: "🏪 MERCHANT DASHBOARD",
		Body:   strings.TrimSuffix(b.String(), "\n"),
		Buttons: []message.Button{
			{ID: h.prefix + "incoming", Label: "📦 Pending Orders"},
			{ID: h.prefix + "inventory", Label: "🏷️ Inventory"},
		},
	}), nil
}

func (h *Handler) handleInventory(ctx context.Context, _ []string, p auth.Principal, _ message.Conversation) (message.Request, error) {
	if p.MerchantID == "" {
		return h.noMerchant(), nil
	}
	resp := h.api.MerchantProducts(ctx, p.MerchantID)
	if resp.Unavailable() {
		return message.Request{}, resp.Err
	}
	if !resp.Success {
		return message.NewText(message.Failure("Inventory", resp.Error, "")), nil
	}
	var products []backend.Product
	if err := resp.Decode(&products); err != nil {
		return message.Request{}, err
	}
	if len(products) == 0 {
		return message.NewText(message.Info("Inventory", "You have no products listed yet.", "")), nil
	}

	lowStock := 0
	items := make([]string, 0, min(len(products), maxInventoryRows))
	for i, pr := range products {
		if pr.Stock <= 5 {
			lowStock++
		}
		if i >= maxInventoryRows {
			continue
		}
		status := "🟢"
		switch {
		case !pr.Visible():
			status = "🙈"
		case pr.Stock == 0:
			status = "🔴"
		case pr.Stock <= 5:
			status = "🟡"
		}
		items = append(items, fmt.Sprintf("%s %s · %s · stock %d (%s)", status, pr.Name, message.Money(pr.Price), pr.Stock, pr.ID))
	}

	text := message.Numbered(fmt.Sprintf("INVENTORY (%d products)", len(products)), items)
	if len(products) > maxInventoryRows {
		text += fmt.Sprintf("\n… and %d more", len(products)-maxInventoryRows)
	}
	if lowStock > 0 {
		text += fmt.Sprintf("\n\n⚠️ %d product(s) low on stock", lowStock)
	}
	return message.NewText(text), nil
}

func (h *Handler) handleIncoming(ctx context.Context, _ []string, p auth.Principal, _ message.Conversation) (message.Request, error) {
	if p.MerchantID == "" {
		return h.noMerchant(), nil
	}
	resp := h.api.MerchantOrders(ctx, p.MerchantID, "pending")
	if resp.Unavailable() {
		return message.Request{}, resp.Err
	}
	if !resp.Success {
		return message.NewText(message.Failure("Orders", resp.Error, "")), nil
	}
	var orders []backend.Order
	if err := resp.Decode(&orders); err != nil {
		return message.Request{}, err
	}
	if len(orders) == 0 {
		return message.NewText(message.Info("No Orders", "No pending orders right now. 🎉", "")), nil
	}

	shown := orders[:min(len(orders), maxIncomingRows)]
	rows := make([]message.Row, len(shown))
	for i, o := range shown {
		customer := o.CustomerName
		if customer == "" {
			customer = "Customer"
		}
		rows[i] = message.Row{
			ID:          h.prefix + "orderupdate " + o.ID + " confirmed",
			Title:       message.Truncate("#"+o.ID, message.MaxRowTitleLength),
			Description: message.Truncate(fmt.Sprintf("%s · %s · %d item(s)", customer, message.Money(o.Total), len(o.Items)), message.MaxRowDescLength),
		}
	}
	return message.NewList(message.List{
		Header:     "Pending Orders",
		Body:       fmt.Sprintf("📦 *PENDING ORDERS (%d)*\n\nSelect an order to confirm it.", len(orders)),
		ButtonText: "Confirm Order",
		Sections:   []message.Section{{Title: "Pending", Rows: rows}},
	}), nil
}

func (h *Handler) handleOrderUpdate(ctx context.Context, args []string, p auth.Principal, _ message.Conversation) (message.Request, error) {
	if p.MerchantID == "" {
		return h.noMerchant(), nil
	}
	orderID := strings.TrimPrefix(args[0], "#")
	if len(args) < 2 {
		return h.statusPicker(orderID), nil
	}

	status := strings.ToLower(args[1])
	if !slices.Contains(backend.MerchantOrderStatuses, status) {
		return message.NewText(message.Failure("Invalid Status",
			fmt.Sprintf("*%s* is not a valid status.", args[1]),
			"Valid: "+strings.Join(backend.MerchantOrderStatuses, ", "))), nil
	}

	resp := h.api.UpdateOrderStatus(ctx, orderID, status, p.MerchantID)
	switch {
	case resp.Unavailable():
		return message.Request{}, resp.Err
	case resp.NotFound():
		return message.NewText(message.Failure("Order Not Found", fmt.Sprintf("No order with ID *%s*.", orderID), "")), nil
	case !resp.Success:
		return message.NewText(message.Failure("Update Failed", resp.Error, "")), nil
	}
	return message.NewText(message.Success("Order Updated",
		fmt.Sprintf("Order #%s is now %s %s\n\nThe customer has been notified.", orderID, message.StatusEmoji(status), message.StatusLabel(status)))), nil
}

// statusPicker lists the statuses an order can be moved to.
func (h *Handler) statusPicker(orderID string) message.Request {
	rows := make([]message.Row, len(backend.MerchantOrderStatuses))
	for i, s := range backend.MerchantOrderStatuses {
		rows[i] = message.Row{
			ID:    h.prefix + "orderupdate " + orderID + " " + s,
			Title: message.StatusEmoji(s) + " " + message.StatusLabel(s),
		}
	}
	return message.NewList(message.List{
		Header:     "Update Order",
		Body:       fmt.Sprintf("Choose the new status for order *#%s*:", orderID),
		ButtonText: "Choose Status",
		Sections:   []message.Section{{Title: "Status", Rows: rows}},
	})
}

func countStatus(orders []backend.Order, status string) int {
	n := 0
	for _, o := range orders {
		if strings.EqualFold(o.Status, status) {
			n++
		}
	}
	return n
}
