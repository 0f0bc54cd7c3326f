// Package group implements the commands available inside group chats.
package group

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/garyellow/whatsapp-commerce-bot/internal/auth"
	"github.com/garyellow/whatsapp-commerce-bot/internal/message"
	"github.com/garyellow/whatsapp-commerce-bot/internal/registry"
)

// ModuleName is the category key of this module's commands.
const ModuleName = "group"

// Directory looks up group metadata from the messaging session.
type Directory interface {
	GroupInfo(ctx context.Context, chatID string) (message.GroupInfo, error)
}

// Handler serves the group commands.
type Handler struct {
	dir    Directory
	prefix string
}

// NewHandler creates the group handler. dir may be nil, which disables
// !groupinfo details.
func NewHandler(dir Directory, prefix string) *Handler {
	return &Handler{dir: dir, prefix: prefix}
}

// Commands returns the module's command descriptors.
func (h *Handler) Commands() []registry.Descriptor {
	return []registry.Descriptor{
		{
			Name: "groupmenu", Aliases: []string{"gm", "grouptools"}, Category: ModuleName,
			Description: "Shopping tools for this group",
			Scope:       auth.ScopeGroupOnly,
			Handler:     registry.HandlerFunc(h.handleGroupMenu),
		},
		{
			Name: "groupinfo", Aliases: []string{"gi"}, Category: ModuleName,
			Description: "Details about this group",
			Scope:       auth.ScopeGroupOnly, Cooldown: 10 * time.Second,
			Handler: registry.HandlerFunc(h.handleGroupInfo),
		},
	}
}

func (h *Handler) handleGroupMenu(_ context.Context, _ []string, _ auth.Principal, _ message.Conversation) (message.Request, error) {
	return message.NewList(message.List{
		Header:     "👥 GROUP SHOPPING",
		Body:       "Shop together! Everyone in the group can browse and share products here. Carts and checkout stay private.",
		ButtonText: "Group Tools",
		Sections: []message.Section{
			{Title: "Browse", Rows: []message.Row{
				{ID: h.prefix + "help shopping", Title: "🛍️ Shopping", Description: "Search products and view details"},
				{ID: h.prefix + "groupinfo", Title: "📊 Group Info", Description: "Members, creation date and settings"},
			}},
			{Title: "Bot", Rows: []message.Row{
				{ID: h.prefix + "help", Title: "📚 All Commands", Description: "Everything you can do"},
				{ID: h.prefix + "about", Title: "ℹ️ About", Description: "About this bot"},
			}},
		},
	}), nil
}

func (h *Handler) handleGroupInfo(ctx context.Context, _ []string, _ auth.Principal, conv message.Conversation) (message.Request, error) {
	if h.dir == nil {
		return message.NewText(message.Failure("Group Info Unavailable", "Could not retrieve group information.", "")), nil
	}
	gi, err := h.dir.GroupInfo(ctx, conv.ChatID)
	if err != nil {
		return message.Request{}, fmt.Errorf("group info %s: %w", conv.ChatID, err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "👥 Members: %d", gi.Members)
	if gi.Admins > 0 {
		fmt.Fprintf(&b, " (%d admin", gi.Admins)
		if gi.Admins > 1 {
			b.WriteByte('s')
		}
		b.WriteByte(')')
	}
	b.WriteByte('\n')
	if !gi.Created.IsZero() {
		fmt.Fprintf(&b, "📅 Created: %s\n", gi.Created.Format("2006-01-02"))
	}
	if gi.OwnerID != "" {
		fmt.Fprintf(&b, "👑 Owner: +%s\n", gi.OwnerID)
	}
	topic := gi.Topic
	if topic == "" {
		topic = "No description"
	}
	fmt.Fprintf(&b, "📝 %s\n", topic)
	locked := "No"
	if gi.Locked {
		locked = "Yes"
	}
	fmt.Fprintf(&b, "🔒 Restricted: %s", locked)

	name := gi.Name
	if name == "" {
		name = "Group Info"
	}
	return message.NewText("📊 *" + name + "*\n\n" + b.String()), nil
}
