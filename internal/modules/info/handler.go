// Package info implements the help system and the bot information commands.
package info

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/garyellow/whatsapp-commerce-bot/internal/auth"
	"github.com/garyellow/whatsapp-commerce-bot/internal/buildinfo"
	"github.com/garyellow/whatsapp-commerce-bot/internal/message"
	"github.com/garyellow/whatsapp-commerce-bot/internal/registry"
)

// ModuleName is the category key of this module's commands.
const ModuleName = "info"

// BotName is shown in welcome and about texts.
const BotName = "Smart WhatsApp Bot"

// Handler serves help, menu, ping, about and uptime. The registry is
// attached after construction because help renders the full catalog.
type Handler struct {
	gate      *auth.Gate
	prefix    string
	startedAt time.Time
	now       func() time.Time
	reg       *registry.Registry
}

// NewHandler creates the info handler. prefix is the primary command
// prefix used in help output.
func NewHandler(gate *auth.Gate, prefix string) *Handler {
	return &Handler{
		gate:      gate,
		prefix:    prefix,
		startedAt: time.Now(),
		now:       time.Now,
	}
}

// Attach sets the registry rendered by help and menu.
func (h *Handler) Attach(reg *registry.Registry) {
	h.reg = reg
}

// Commands returns the module's command descriptors.
func (h *Handler) Commands() []registry.Descriptor {
	return []registry.Descriptor{
		{
			Name: "help", Aliases: []string{"h", "commands"}, Category: ModuleName,
			Usage: "help [category|command]", Description: "Show commands by category",
			Handler: registry.HandlerFunc(h.handleHelp),
		},
		{
			Name: "menu", Aliases: []string{"start"}, Category: ModuleName,
			Description: "Open the main menu",
			Handler:     registry.HandlerFunc(h.handleMenu),
		},
		{
			Name: "ping", Category: ModuleName, Cooldown: 3 * time.Second,
			Description: "Check that the bot is alive",
			Handler:     registry.HandlerFunc(h.handlePing),
		},
		{
			Name: "about", Aliases: []string{"info", "version"}, Category: ModuleName,
			Description: "About this bot",
			Handler:     registry.HandlerFunc(h.handleAbout),
		},
		{
			Name: "uptime", Category: ModuleName,
			Description: "How long the bot has been running",
			Handler:     registry.HandlerFunc(h.handleUptime),
		},
	}
}

// Welcome is the reply to a greeting.
func (h *Handler) Welcome(name string) message.Request {
	greeting := "👋 Welcome to " + BotName + "!"
	if name != "" {
		greeting = fmt.Sprintf("👋 Hi %s, welcome to %s!", name, BotName)
	}
	return message.NewButtons(message.Buttons{
		Body: greeting + "\n\nBrowse products, manage your cart and track orders right here in WhatsApp.",
		Buttons: []message.Button{
			{ID: h.prefix + "menu", Label: "📋 Menu"},
			{ID: h.prefix + "help shopping", Label: "🛍️ Shop"},
			{ID: h.prefix + "orders", Label: "📦 My Orders"},
		},
	})
}

// visibleTo hides commands whose role requirement p does not meet. Scope is
// ignored so group-only commands still show up in private help.
func (h *Handler) visibleTo(p auth.Principal) registry.Filter {
	return func(d *registry.Descriptor) bool {
		return h.gate.Authorize(p, auth.Requirement{Role: d.RequiredRole}, false) == nil
	}
}

func (h *Handler) handleMenu(_ context.Context, _ []string, p auth.Principal, _ message.Conversation) (message.Request, error) {
	return h.reg.MainMenu(h.prefix, h.visibleTo(p)), nil
}

func (h *Handler) handleHelp(_ context.Context, args []string, p auth.Principal, _ message.Conversation) (message.Request, error) {
	visible := h.visibleTo(p)
	if len(args) == 0 {
		return h.reg.MainMenu(h.prefix, visible), nil
	}

	topic := strings.ToLower(strings.TrimLeft(args[0], h.prefix))
	if menu, ok := h.reg.CategoryMenu(topic, h.prefix, visible); ok {
		return menu, nil
	}
	if d, ok := h.reg.Resolve(topic); ok && visible(d) {
		return message.NewText(registry.CommandHelp(d, h.prefix)), nil
	}
	return message.NewText(message.Failure(
		"Not Found",
		fmt.Sprintf("No command or category named *%s*.", args[0]),
		fmt.Sprintf("Type %shelp to see everything you can use.", h.prefix),
	)), nil
}

func (h *Handler) handlePing(context.Context, []string, auth.Principal, message.Conversation) (message.Request, error) {
	return message.NewText("🏓 Pong!"), nil
}

func (h *Handler) handleAbout(context.Context, []string, auth.Principal, message.Conversation) (message.Request, error) {
	body := fmt.Sprintf(
		"🤖 %s\n📦 Version: %s\n⏱️ Uptime: %s\n\nShop from local merchants, track your orders and manage your store without leaving WhatsApp.",
		BotName, buildinfo.String(), FormatUptime(h.now().Sub(h.startedAt)))
	return message.NewText(message.Info("About", body, fmt.Sprintf("Type %shelp to get started.", h.prefix))), nil
}

func (h *Handler) handleUptime(context.Context, []string, auth.Principal, message.Conversation) (message.Request, error) {
	return message.NewText("⏱️ Uptime: " + FormatUptime(h.now().Sub(h.startedAt))), nil
}

// FormatUptime renders d as "2d 3h 4m 5s", dropping leading zero units.
func FormatUptime(d time.Duration) string {
	d = d.Round(time.Second)
	days := int(d / (24 * time.Hour))
	d -= time.Duration(days) * 24 * time.Hour
	hours := int(d / time.Hour)
	d -= time.Duration(hours) * time.Hour
	minutes := int(d / time.Minute)
	seconds := int((d - time.Duration(minutes)*time.Minute) / time.Second)

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}
