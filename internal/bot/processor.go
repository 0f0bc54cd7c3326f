// Package bot turns inbound WhatsApp messages into replies: message
// ceiling, numbered-reply resolution, command parsing, intent detection,
// dispatch and delivery.
package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/garyellow/whatsapp-commerce-bot/internal/auth"
	"github.com/garyellow/whatsapp-commerce-bot/internal/command"
	"github.com/garyellow/whatsapp-commerce-bot/internal/ctxutil"
	"github.com/garyellow/whatsapp-commerce-bot/internal/delivery"
	domerrors "github.com/garyellow/whatsapp-commerce-bot/internal/errors"
	"github.com/garyellow/whatsapp-commerce-bot/internal/logger"
	"github.com/garyellow/whatsapp-commerce-bot/internal/message"
	"github.com/garyellow/whatsapp-commerce-bot/internal/metrics"
	"github.com/garyellow/whatsapp-commerce-bot/internal/nlu"
)

// Outcomes recorded in wabot_messages_total.
const (
	outcomeCommand   = "command"
	outcomeIntent    = "intent"
	outcomeIgnored   = "ignored"
	outcomeThrottled = "throttled"
)

// maxInboundRunes bounds text accepted from a single message.
const maxInboundRunes = 4096

// Limiter gates inbound messages per sender.
type Limiter interface {
	Allow(key string) bool
}

// Resolver derives the principal behind a sender.
type Resolver interface {
	Resolve(ctx context.Context, userID string, isGroup bool) auth.Principal
}

// Dispatcher runs a parsed command.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd command.Parsed, p auth.Principal, conv message.Conversation) message.Request
}

// Sender delivers a reply.
type Sender interface {
	Send(ctx context.Context, req message.Request) delivery.Result
}

// IntentDetector classifies free text.
type IntentDetector interface {
	Detect(ctx context.Context, userID, text string) (nlu.Result, bool)
}

// ProcessorConfig holds the processor's collaborators. Intents, Selections,
// Welcome, Notices and Metrics are optional. Without Notices every throttled
// message is answered.
type ProcessorConfig struct {
	Parser     *command.Parser
	Limiter    Limiter
	Notices    Limiter // One throttle notice per sender per window
	Resolver   Resolver
	Dispatcher Dispatcher
	Sender     Sender
	Intents    IntentDetector
	Selections *Selections
	Welcome    func(name string) message.Request

	RateLimit  int           // For the throttle notice
	RateWindow time.Duration // For the throttle notice

	Logger  *logger.Logger
	Metrics *metrics.Metrics
}

// Processor handles one inbound message end to end. It is safe for
// concurrent use; ordering within a chat is the Sequencer's job.
type Processor struct {
	cfg    ProcessorConfig
	prefix string
	notice string
	logger *logger.Logger
}

// NewProcessor creates a processor.
func NewProcessor(cfg ProcessorConfig) *Processor {
	return &Processor{
		cfg:    cfg,
		prefix: cfg.Parser.Primary(),
		notice: throttleNotice(cfg.RateLimit, cfg.RateWindow),
		logger: cfg.Logger.WithModule("bot"),
	}
}

func throttleNotice(limit int, window time.Duration) string {
	per := "minute"
	switch {
	case window <= 0 || window == time.Minute:
	case window == time.Hour:
		per = "hour"
	default:
		per = window.String()
	}
	return fmt.Sprintf("🚫 Please slow down. Max %d messages per %s.", limit, per)
}

// Process handles in and sends any reply. It never panics past the
// dispatcher and delivery layers, which absorb their own failures.
func (p *Processor) Process(ctx context.Context, in message.Inbound) {
	if in.SenderID == "" || in.ChatID == "" {
		return
	}
	ctx = ctxutil.WithUserID(ctx, in.SenderID)
	ctx = ctxutil.WithChatID(ctx, in.ChatID)
	ctx = ctxutil.WithRequestID(ctx, uuid.NewString())
	chatType := "private"
	if in.IsGroup {
		chatType = "group"
	}

	text := normalize(in.Text)
	if text == "" {
		p.record(chatType, outcomeIgnored)
		return
	}
	if p.cfg.Selections != nil {
		if id, ok := p.cfg.Selections.Resolve(in.ChatID, text); ok {
			text = id
		}
	}
	cmd, isCommand := p.cfg.Parser.Parse(text)

	// Group chatter is not for the bot unless it is a command or mentions
	// it, and it never counts toward the sender's ceiling.
	if in.IsGroup && !isCommand && !in.Mentioned {
		p.record(chatType, outcomeIgnored)
		return
	}

	if !p.cfg.Limiter.Allow(in.SenderID) {
		p.throttle(ctx, chatType, in)
		return
	}

	conv := in.Conversation()
	if isCommand {
		principal := p.principal(ctx, in)
		p.record(chatType, outcomeCommand)
		p.reply(ctx, in.ChatID, p.cfg.Dispatcher.Dispatch(ctx, cmd, principal, conv))
		return
	}

	if p.cfg.Intents == nil {
		p.record(chatType, outcomeIgnored)
		return
	}
	res, ok := p.cfg.Intents.Detect(ctx, in.SenderID, text)
	if !ok {
		p.record(chatType, outcomeIgnored)
		return
	}
	p.record(chatType, outcomeIntent)
	p.logger.WithFields(map[string]any{
		"intent": string(res.Intent),
		"source": res.Source,
	}).Debugf("Intent detected")
	p.reply(ctx, in.ChatID, p.answerIntent(ctx, res, text, in, conv))
}

// throttle answers a sender over the ceiling. Only the first rejection per
// notice window is answered.
func (p *Processor) throttle(ctx context.Context, chatType string, in message.Inbound) {
	p.logger.WithError(domerrors.ErrRateLimitExceeded).WithField("user_id", in.SenderID).Debugf("Message ceiling reached")
	p.record(chatType, outcomeThrottled)
	if p.cfg.Metrics != nil {
		p.cfg.Metrics.RecordAdmissionDenial("rate_limit")
	}
	if p.cfg.Notices != nil && !p.cfg.Notices.Allow(in.SenderID) {
		return
	}
	p.reply(ctx, in.ChatID, message.NewText(p.notice))
}

// answerIntent routes an intent through the dispatcher when a command
// serves it, so cooldowns, roles and auditing still apply.
func (p *Processor) answerIntent(ctx context.Context, res nlu.Result, raw string, in message.Inbound, conv message.Conversation) message.Request {
	if res.Reply != "" {
		return message.NewText(res.Reply)
	}
	if name, args, ok := nlu.Route(res); ok {
		cmd := command.Parsed{
			Prefix:  []rune(p.prefix)[0],
			Command: name,
			Args:    args,
			Raw:     raw,
		}
		return p.cfg.Dispatcher.Dispatch(ctx, cmd, p.principal(ctx, in), conv)
	}

	switch res.Intent {
	case command.IntentGreet:
		if p.cfg.Welcome != nil {
			return p.cfg.Welcome(in.PushName)
		}
		return message.NewText(message.Success("Hello!", fmt.Sprintf("Type %shelp to see what I can do.", p.prefix)))
	case command.IntentOrder:
		return message.NewText(fmt.Sprintf("What would you like to order?\n\n%ssearch <item_name> to find products\nExample: %ssearch sadza", p.prefix, p.prefix))
	case command.IntentAddToCart:
		return message.NewText(fmt.Sprintf("To add items: %sadd <product_id> [quantity]\n\nFirst, find products with %ssearch <item_name>", p.prefix, p.prefix))
	case command.IntentTrack:
		return message.NewText(fmt.Sprintf("To track an order: %strack <order_id>\n\nView your orders with %sorders", p.prefix, p.prefix))
	}
	return message.NewText(fmt.Sprintf("I didn't understand that. Type %shelp for commands.", p.prefix))
}

func (p *Processor) principal(ctx context.Context, in message.Inbound) auth.Principal {
	principal := p.cfg.Resolver.Resolve(ctx, in.SenderID, in.IsGroup)
	if principal.Name == "" {
		principal.Name = in.PushName
	}
	return principal
}

func (p *Processor) reply(ctx context.Context, chatID string, req message.Request) {
	if req.IsZero() {
		return
	}
	result := p.cfg.Sender.Send(ctx, req.To(chatID))
	if result == delivery.Dropped {
		p.logger.WithField("chat_id", chatID).Warnf("Reply dropped")
	}
}

func (p *Processor) record(chatType, outcome string) {
	if p.cfg.Metrics != nil {
		p.cfg.Metrics.RecordMessage(chatType, outcome)
	}
}

// normalize folds full-width and compatibility forms (so "！help" is a
// command) and trims. Over-long text is cut at a rune boundary.
func normalize(text string) string {
	text = strings.TrimSpace(norm.NFKC.String(text))
	if r := []rune(text); len(r) > maxInboundRunes {
		text = string(r[:maxInboundRunes])
	}
	return text
}
