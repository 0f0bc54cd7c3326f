// Package shop implements the customer commands: catalog search, the local
// cart, checkout, order history and tracking.
package shop

import (
	"time"

	"github.com/garyellow/whatsapp-commerce-bot/internal/auth"
	"github.com/garyellow/whatsapp-commerce-bot/internal/backend"
	"github.com/garyellow/whatsapp-commerce-bot/internal/logger"
	"github.com/garyellow/whatsapp-commerce-bot/internal/registry"
	"github.com/garyellow/whatsapp-commerce-bot/internal/storage"
)

// Category keys of the commands in this module.
const (
	CategoryShopping = "shopping"
	CategoryCart     = "cart"
	CategoryOrders   = "orders"
	CategoryAccount  = "account"
)

const (
	maxSearchResults = 10
	maxOrdersShown   = 10
	maxQuantity      = 99
	minQueryLength   = 2
)

// Handler serves the customer commands.
type Handler struct {
	api    *backend.Client
	carts  storage.CartRepository
	prefix string
	logger *logger.Logger
}

// NewHandler creates the customer handler.
func NewHandler(api *backend.Client, carts storage.CartRepository, prefix string, log *logger.Logger) *Handler {
	return &Handler{
		api:    api,
		carts:  carts,
		prefix: prefix,
		logger: log.WithModule("shop"),
	}
}

// Commands returns the module's command descriptors.
func (h *Handler) Commands() []registry.Descriptor {
	return []registry.Descriptor{
		{
			Name: "search", Aliases: []string{"find", "s"}, Category: CategoryShopping,
			Usage: "search <query>", Description: "Search the product catalog",
			Cooldown: 3 * time.Second, MinArgs: 1,
			Handler: registry.HandlerFunc(h.handleSearch),
		},
		{
			Name: "product", Aliases: []string{"item", "p"}, Category: CategoryShopping,
			Usage: "product <product_id>", Description: "Show product details",
			MinArgs: 1,
			Handler: registry.HandlerFunc(h.handleProduct),
		},
		{
			Name: "add", Aliases: []string{"buy"}, Category: CategoryCart,
			Usage: "add <product_id> [qty]", Description: "Add a product to your cart",
			MinArgs: 1, Cooldown: time.Second,
			Handler: registry.HandlerFunc(h.handleAdd),
		},
		{
			Name: "cart", Aliases: []string{"c", "basket"}, Category: CategoryCart,
			Description: "View your cart",
			Handler:     registry.HandlerFunc(h.handleCart),
		},
		{
			Name: "remove", Aliases: []string{"rm"}, Category: CategoryCart,
			Usage: "remove <product_id>", Description: "Remove a product from your cart",
			MinArgs: 1,
			Handler: registry.HandlerFunc(h.handleRemove),
		},
		{
			Name: "clear", Aliases: []string{"emptycart"}, Category: CategoryCart,
			Description: "Empty your cart",
			Handler:     registry.HandlerFunc(h.handleClear),
		},
		{
			Name: "checkout", Aliases: []string{"pay"}, Category: CategoryCart,
			Usage: "checkout [delivery address]", Description: "Place an order for your cart",
			RequiredRole: auth.RoleCustomer, Scope: auth.ScopePrivateOnly, Cooldown: 10 * time.Second,
			Handler: registry.HandlerFunc(h.handleCheckout),
		},
		{
			Name: "orders", Aliases: []string{"myorders", "history"}, Category: CategoryOrders,
			Description: "List your recent orders", Cooldown: 3 * time.Second,
			Handler: registry.HandlerFunc(h.handleOrders),
		},
		{
			Name: "track", Aliases: []string{"status"}, Category: CategoryOrders,
			Usage: "track <order_id>", Description: "Track an order",
			MinArgs: 1, Cooldown: 3 * time.Second,
			Handler: registry.HandlerFunc(h.handleTrack),
		},
		{
			Name: "profile", Aliases: []string{"me", "account"}, Category: CategoryAccount,
			Description: "Show your account",
			Handler:     registry.HandlerFunc(h.handleProfile),
		},
	}
}
