// Package admin implements platform administration: merchant review,
// statistics, broadcasts, alerts and the host health report.
package admin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/garyellow/whatsapp-commerce-bot/internal/auth"
	"github.com/garyellow/whatsapp-commerce-bot/internal/backend"
	"github.com/garyellow/whatsapp-commerce-bot/internal/logger"
	"github.com/garyellow/whatsapp-commerce-bot/internal/message"
	"github.com/garyellow/whatsapp-commerce-bot/internal/registry"
)

// ModuleName is the category key of this module's commands.
const ModuleName = "admin"

// Default reasons sent to the backend when the admin gives none.
const (
	DefaultRejectReason  = "Does not meet requirements"
	DefaultSuspendReason = "Violation of platform policies"
)

type subcommand struct {
	name    string
	usage   string
	summary string
	minArgs int
	run     func(ctx context.Context, args []string, p auth.Principal) (message.Request, error)
}

// Handler serves !admin and !health.
type Handler struct {
	api      *backend.Client
	prefix   string
	reporter StatusReporter
	started  time.Time
	logger   *logger.Logger

	subcommands []subcommand
}

// NewHandler creates the admin handler. reporter may be nil.
func NewHandler(api *backend.Client, prefix string, reporter StatusReporter, log *logger.Logger) *Handler {
	h := &Handler{
		api:      api,
		prefix:   prefix,
		reporter: reporter,
		started:  time.Now(),
		logger:   log.WithModule(ModuleName),
	}
	h.subcommands = []subcommand{
		{name: "merchants", usage: "merchants", summary: "Pending merchant applications", run: h.merchants},
		{name: "approve", usage: "approve <merchant_id>", summary: "Approve a merchant", minArgs: 1, run: h.approve},
		{name: "reject", usage: "reject <merchant_id> [reason]", summary: "Decline an application", minArgs: 1, run: h.reject},
		{name: "suspend", usage: "suspend <merchant_id> [reason]", summary: "Suspend a merchant", minArgs: 1, run: h.suspend},
		{name: "stats", usage: "stats", summary: "Platform statistics", run: h.stats},
		{name: "sales", usage: "sales [today|week|month]", summary: "Sales summary", run: h.sales},
		{name: "broadcast", usage: "broadcast [all|customers|merchants] <message>", summary: "Message every user", minArgs: 1, run: h.broadcast},
		{name: "alerts", usage: "alerts", summary: "Active system alerts", run: h.alerts},
	}
	return h
}

// Commands returns the module's command descriptors.
func (h *Handler) Commands() []registry.Descriptor {
	names := make([]string, len(h.subcommands))
	for i, s := range h.subcommands {
		names[i] = s.name
	}
	return []registry.Descriptor{
		{
			Name: "admin", Aliases: []string{"adm"}, Category: ModuleName,
			Usage:        "admin <" + strings.Join(names, "|") + "> [args]",
			Description:  "Platform administration",
			RequiredRole: auth.RoleAdmin, Cooldown: time.Second,
			Handler: registry.HandlerFunc(h.handleAdmin),
		},
		{
			Name: "health", Aliases: []string{"sysinfo"}, Category: ModuleName,
			Description:  "Bot and host health report",
			RequiredRole: auth.RoleAdmin, Cooldown: 5 * time.Second,
			Handler: registry.HandlerFunc(h.handleHealth),
		},
	}
}

func (h *Handler) handleAdmin(ctx context.Context, args []string, p auth.Principal, _ message.Conversation) (message.Request, error) {
	if len(args) == 0 {
		return h.menu(), nil
	}
	name := strings.ToLower(args[0])
	for _, s := range h.subcommands {
		if s.name != name {
			continue
		}
		rest := args[1:]
		if len(rest) < s.minArgs {
			return message.NewText(message.Failure("Invalid Input",
				fmt.Sprintf("Usage: %sadmin %s", h.prefix, s.usage), "")), nil
		}
		h.logger.WithField("admin", p.UserID).WithField("subcommand", s.name).Infof("Admin command")
		return s.run(ctx, rest, p)
	}
	return message.NewText(message.Failure("Unknown Subcommand",
		fmt.Sprintf("*%s* is not an admin subcommand.", args[0]),
		fmt.Sprintf("Type %sadmin to see them all.", h.prefix))), nil
}

func (h *Handler) menu() message.Request {
	rows := make([]message.Row, len(h.subcommands))
	for i, s := range h.subcommands {
		rows[i] = message.Row{
			ID:          h.prefix + "admin " + s.name,
			Title:       message.Truncate(s.name, message.MaxRowTitleLength),
			Description: message.Truncate(h.prefix+"admin "+s.usage+" · "+s.summary, message.MaxRowDescLength),
		}
	}
	return message.NewList(message.List{
		Header:     "⚙️ ADMIN PANEL",
		Body:       "Choose an admin action:",
		ButtonText: "Admin Actions",
		Sections:   []message.Section{{Title: "Actions", Rows: rows}},
	})
}
