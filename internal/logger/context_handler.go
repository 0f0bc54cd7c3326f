package logger

import (
	"context"
	"log/slog"
	"strings"

	"github.com/garyellow/whatsapp-commerce-bot/internal/ctxutil"
)

// tracingFields are copied from the context onto every record, in order.
var tracingFields = []struct {
	key string
	get func(context.Context) string
}{
	{"user_id", ctxutil.GetUserID},
	{"chat_id", ctxutil.GetChatID},
	{"request_id", func(ctx context.Context) string { id, _ := ctxutil.GetRequestID(ctx); return id }},
	{"command", ctxutil.GetCommand},
}

// ContextHandler stamps the message tracing values set through ctxutil
// (sender, chat, WhatsApp message or HTTP request ID, command) onto each
// record, plus chat_type so group traffic can be filtered without parsing
// JIDs.
type ContextHandler struct {
	next slog.Handler
}

// NewContextHandler wraps next.
func NewContextHandler(next slog.Handler) *ContextHandler {
	return &ContextHandler{next: next}
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, f := range tracingFields {
		if v := f.get(ctx); v != "" {
			r.AddAttrs(slog.String(f.key, v))
		}
	}
	if chatID := ctxutil.GetChatID(ctx); chatID != "" {
		r.AddAttrs(slog.String("chat_type", chatType(chatID)))
	}
	return h.next.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{next: h.next.WithAttrs(attrs)}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{next: h.next.WithGroup(name)}
}

func chatType(chatID string) string {
	if strings.HasSuffix(chatID, "@g.us") {
		return "group"
	}
	return "private"
}
