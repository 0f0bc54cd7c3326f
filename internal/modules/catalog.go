// Package modules assembles the command catalog from the feature modules.
package modules

import (
	"github.com/garyellow/whatsapp-commerce-bot/internal/modules/info"
	"github.com/garyellow/whatsapp-commerce-bot/internal/registry"
)

// Provider is implemented by every feature module handler.
type Provider interface {
	Commands() []registry.Descriptor
}

// Categories is the help menu order.
func Categories() []registry.Category {
	return []registry.Category{
		{Key: "shopping", Name: "Shopping", Emoji: "🛍️"},
		{Key: "cart", Name: "Cart", Emoji: "🛒"},
		{Key: "orders", Name: "Orders", Emoji: "📦"},
		{Key: "account", Name: "Account", Emoji: "👤"},
		{Key: "merchant", Name: "Merchant", Emoji: "💼"},
		{Key: "group", Name: "Group", Emoji: "👥"},
		{Key: "admin", Name: "Admin", Emoji: "⚙️"},
		{Key: "info", Name: "Info", Emoji: "ℹ️"},
		{Key: "owner", Name: "Owner", Emoji: "👑"},
	}
}

// NewRegistry registers the info commands and every provider, then attaches
// the result to the info handler so help can render it.
func NewRegistry(infoHandler *info.Handler, providers ...Provider) (*registry.Registry, error) {
	descs := infoHandler.Commands()
	for _, p := range providers {
		descs = append(descs, p.Commands()...)
	}
	reg, err := registry.New(Categories(), descs...)
	if err != nil {
		return nil, err
	}
	infoHandler.Attach(reg)
	return reg, nil
}
