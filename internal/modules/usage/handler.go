// Package usage answers "how much can I still send" with the sender's
// message ceiling and smart-assistant allowance.
package usage

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/garyellow/whatsapp-commerce-bot/internal/auth"
	"github.com/garyellow/whatsapp-commerce-bot/internal/message"
	"github.com/garyellow/whatsapp-commerce-bot/internal/ratelimit"
	"github.com/garyellow/whatsapp-commerce-bot/internal/registry"
)

// ModuleName is the category key of this module's commands. Quota lives
// with the other account commands.
const ModuleName = "account"

// Ceiling exposes the inbound message limiter.
type Ceiling interface {
	Usage(key string) ratelimit.Usage
}

// Assistant exposes the LLM classifier allowance. ok is false when the
// assistant is disabled.
type Assistant interface {
	Quota(userID string) (ratelimit.Usage, bool)
}

// Handler serves the quota command.
type Handler struct {
	ceiling   Ceiling
	assistant Assistant
	prefix    string
}

// NewHandler creates a usage handler. assistant may be nil.
func NewHandler(ceiling Ceiling, assistant Assistant, prefix string) *Handler {
	return &Handler{ceiling: ceiling, assistant: assistant, prefix: prefix}
}

// Commands returns the module's command descriptors.
func (h *Handler) Commands() []registry.Descriptor {
	return []registry.Descriptor{
		{
			Name: "quota", Aliases: []string{"usage", "limits"}, Category: ModuleName,
			Description: "Show how many messages you can still send",
			Cooldown:    5 * time.Second,
			Handler:     registry.HandlerFunc(h.handleQuota),
		},
	}
}

func (h *Handler) handleQuota(_ context.Context, _ []string, p auth.Principal, _ message.Conversation) (message.Request, error) {
	var b strings.Builder

	if h.ceiling != nil {
		u := h.ceiling.Usage(p.UserID)
		if u.WindowLimit > 0 {
			fmt.Fprintf(&b, "⚡ *Messages*\n%s\n%d of %d left per %s\n",
				bar(float64(u.WindowRemaining), float64(u.WindowLimit)), u.WindowRemaining, u.WindowLimit, per(u.Window))
		}
	}

	if h.assistant != nil {
		if u, ok := h.assistant.Quota(p.UserID); ok && u.Burst > 0 {
			left := int(math.Floor(u.Tokens))
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "🤖 *Smart assistant*\n%s\n%d of %d free-text questions left", bar(u.Tokens, u.Burst), left, int(u.Burst))
			if u.RefillPerSecond > 0 && left < int(u.Burst) {
				next := time.Duration((1 - (u.Tokens - float64(left))) / u.RefillPerSecond * float64(time.Second))
				fmt.Fprintf(&b, "\nNext one in %s", next.Round(time.Minute).String())
			}
			b.WriteString("\n")
		}
	}

	if b.Len() == 0 {
		return message.NewText("♾️ No limits apply to you right now."), nil
	}
	return message.NewText(message.Info("Your Quota", strings.TrimRight(b.String(), "\n"),
		fmt.Sprintf("Commands like %shelp never use the smart assistant.", h.prefix))), nil
}

const barWidth = 10

// bar renders a ten-cell meter of left out of total.
func bar(left, total float64) string {
	if total <= 0 {
		return ""
	}
	filled := int(math.Round(math.Max(0, math.Min(left, total)) / total * barWidth))
	return strings.Repeat("🟩", filled) + strings.Repeat("⬜", barWidth-filled)
}

// per renders a window as "minute", "hour" or the duration itself.
func per(d time.Duration) string {
	switch d {
	case time.Minute:
		return "minute"
	case time.Hour:
		return "hour"
	default:
		return d.String()
	}
}
