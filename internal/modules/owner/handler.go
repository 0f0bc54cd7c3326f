// Package owner implements the bot owner's maintenance commands.
package owner

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/garyellow/whatsapp-commerce-bot/internal/auth"
	"github.com/garyellow/whatsapp-commerce-bot/internal/backup"
	"github.com/garyellow/whatsapp-commerce-bot/internal/dispatch"
	"github.com/garyellow/whatsapp-commerce-bot/internal/logger"
	"github.com/garyellow/whatsapp-commerce-bot/internal/message"
	"github.com/garyellow/whatsapp-commerce-bot/internal/registry"
	"github.com/garyellow/whatsapp-commerce-bot/internal/storage"
)

// ModuleName is the category key of this module's commands.
const ModuleName = "owner"

const (
	defaultLogLines = 10
	maxLogLines     = 50
)

// Backuper takes one database backup.
type Backuper interface {
	Run(ctx context.Context) (backup.Result, error)
}

// Handler serves the owner commands.
type Handler struct {
	backups Backuper
	history storage.HistoryRepository
	logger  *logger.Logger
}

// NewHandler creates the owner handler. backups is nil when object storage
// is not configured.
func NewHandler(backups Backuper, history storage.HistoryRepository, log *logger.Logger) *Handler {
	return &Handler{backups: backups, history: history, logger: log.WithModule(ModuleName)}
}

// Commands returns the module's command descriptors.
func (h *Handler) Commands() []registry.Descriptor {
	return []registry.Descriptor{
		{
			Name: "backup", Aliases: []string{"dbbackup"}, Category: ModuleName,
			Description:  "Upload a database backup",
			RequiredRole: auth.RoleOwner, Cooldown: time.Minute,
			Handler: registry.HandlerFunc(h.handleBackup),
		},
		{
			Name: "logs", Aliases: []string{"auditlog"}, Category: ModuleName,
			Usage:        "logs [count] [command]",
			Description:  "Recent command history",
			RequiredRole: auth.RoleOwner,
			Handler:      registry.HandlerFunc(h.handleLogs),
		},
	}
}

func (h *Handler) handleBackup(ctx context.Context, _ []string, p auth.Principal, _ message.Conversation) (message.Request, error) {
	if h.backups == nil {
		return message.NewText(message.Info("Backups Disabled",
			"Object storage is not configured.", "Set the R2_* variables and restart.")), nil
	}
	res, err := h.backups.Run(ctx)
	switch {
	case errors.Is(err, backup.ErrInProgress):
		return message.NewText(message.Info("Backup Running", "A backup is already in progress.", "")), nil
	case err != nil:
		h.logger.WithError(err).WithField("owner", p.UserID).Errorf("Backup failed")
		return message.NewText(message.Failure("Backup Failed", err.Error(), "")), nil
	}
	body := fmt.Sprintf("Key: %s\nSize: %s → %s\nTook: %s",
		res.Key, formatBytes(res.RawBytes), formatBytes(res.CompressedBytes), res.Duration.Round(time.Millisecond))
	if res.Pruned > 0 {
		body += fmt.Sprintf("\nPruned: %d old backup(s)", res.Pruned)
	}
	return message.NewText(message.Success("Backup Complete", body)), nil
}

func (h *Handler) handleLogs(ctx context.Context, args []string, _ auth.Principal, _ message.Conversation) (message.Request, error) {
	limit := defaultLogLines
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil {
			limit = min(max(n, 1), maxLogLines)
			args = args[1:]
		}
	}
	filter := ""
	if len(args) > 0 {
		filter = strings.ToLower(args[0])
	}

	records, err := h.history.RecentCommands(ctx, filter, limit)
	if err != nil {
		return message.Request{}, fmt.Errorf("load command history: %w", err)
	}
	if len(records) == 0 {
		return message.NewText(message.Info("Command History", "No commands recorded yet.", "")), nil
	}

	items := make([]string, len(records))
	for i, r := range records {
		items[i] = fmt.Sprintf("%s %s %s · %s · %dms",
			outcomeEmoji(r.Outcome), r.CreatedAt.Format("01-02 15:04"), r.Command, maskUser(r.UserID), r.DurationMs)
	}
	title := fmt.Sprintf("LAST %d COMMANDS", len(records))
	if filter != "" {
		title += " (" + filter + ")"
	}
	return message.NewText(message.Numbered(title, items)), nil
}

func outcomeEmoji(outcome string) string {
	switch outcome {
	case dispatch.OutcomeOK:
		return "✅"
	case dispatch.OutcomeCooldown, dispatch.OutcomeDenied, dispatch.OutcomeUsage:
		return "⛔"
	case dispatch.OutcomeUnknown:
		return "❓"
	default:
		return "❌"
	}
}

// maskUser keeps the last four digits of a phone number.
func maskUser(id string) string {
	if len(id) <= 4 {
		return id
	}
	return "…" + id[len(id)-4:]
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
