// Package dispatch routes parsed commands through the registry, admission
// control and the role gate to their handlers.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/garyellow/whatsapp-commerce-bot/internal/admission"
	"github.com/garyellow/whatsapp-commerce-bot/internal/audit"
	"github.com/garyellow/whatsapp-commerce-bot/internal/auth"
	"github.com/garyellow/whatsapp-commerce-bot/internal/command"
	"github.com/garyellow/whatsapp-commerce-bot/internal/ctxutil"
	domerrors "github.com/garyellow/whatsapp-commerce-bot/internal/errors"
	"github.com/garyellow/whatsapp-commerce-bot/internal/logger"
	"github.com/garyellow/whatsapp-commerce-bot/internal/message"
	"github.com/garyellow/whatsapp-commerce-bot/internal/metrics"
	"github.com/garyellow/whatsapp-commerce-bot/internal/registry"
	"github.com/garyellow/whatsapp-commerce-bot/internal/sentry"
)

// User-facing replies produced by the dispatcher itself.
const (
	HandlerErrorText       = "❌ Sorry, an error occurred. Please try again later."
	BackendUnavailableText = "⚠️ Service temporarily unavailable. Please try again in a moment."
)

// Outcomes recorded in metrics and the command history.
const (
	OutcomeOK       = "ok"
	OutcomeUnknown  = "unknown"
	OutcomeCooldown = "cooldown"
	OutcomeDenied   = "denied"
	OutcomeUsage    = "usage"
	OutcomeError    = "error"
	OutcomeTimeout  = "timeout"
	OutcomePanic    = "panic"
)

// Auditor receives one record per dispatch attempt. *audit.Emitter
// implements it.
type Auditor interface {
	Emit(rec audit.Record) bool
}

// Config holds dispatcher settings.
type Config struct {
	CommandTimeout time.Duration
}

// Dispatcher runs the resolve, admit, authorize, invoke pipeline.
type Dispatcher struct {
	registry  *registry.Registry
	admission *admission.Controller
	gate      *auth.Gate
	auditor   Auditor
	cfg       Config
	logger    *logger.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// New creates a dispatcher. auditor and m may be nil.
func New(reg *registry.Registry, adm *admission.Controller, gate *auth.Gate, auditor Auditor, cfg Config, log *logger.Logger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		registry:  reg,
		admission: adm,
		gate:      gate,
		auditor:   auditor,
		cfg:       cfg,
		logger:    log.WithModule("dispatch"),
		metrics:   m,
		now:       time.Now,
	}
}

// Dispatch handles one parsed command and returns the reply to send, not
// yet addressed. It never returns an error and never panics; every failure
// becomes a user-facing text. A zero Request means there is nothing to send.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd command.Parsed, p auth.Principal, conv message.Conversation) message.Request {
	start := d.now()
	prefix := cmd.PrefixString()

	desc, ok := d.registry.Resolve(cmd.Command)
	if !ok {
		d.logger.WithError(domerrors.ErrUnknownCommand).WithField("token", cmd.Command).Debugf("Command not resolved")
		d.finish(cmd.Command, "", cmd.Args, p, conv, OutcomeUnknown, start)
		return message.NewText(fmt.Sprintf("❓ Unknown command. Type %shelp for available commands.", prefix))
	}

	ctx = ctxutil.WithCommand(ctx, desc.Name)
	log := d.logger.WithFields(map[string]any{
		"command": desc.Name,
		"user_id": p.UserID,
		"chat_id": conv.ChatID,
	})

	if decision := d.admission.CheckAndReserve(p.UserID, desc); !decision.Allowed {
		log.WithError(domerrors.ErrCooldown).Debugf("Command denied, retry in %ds", decision.RetryAfter)
		if d.metrics != nil {
			d.metrics.RecordAdmissionDenial("cooldown")
		}
		d.finish(desc.Name, desc.Name, cmd.Args, p, conv, OutcomeCooldown, start)
		return message.NewText(fmt.Sprintf("⏱️ Please wait %ds before using %s%s again.", decision.RetryAfter, prefix, desc.Name))
	}

	if err := d.gate.Authorize(p, desc.Requirement(), conv.IsGroup); err != nil {
		var denial *auth.DenialError
		if !errors.As(err, &denial) {
			denial = &auth.DenialError{Reason: auth.ReasonNotAdmin}
		}
		log.WithFields(map[string]any{
			"role":   p.Role.String(),
			"reason": string(denial.Reason),
		}).Infof("Command denied")
		if d.metrics != nil {
			d.metrics.RecordAuthDenial(string(denial.Reason))
		}
		d.finish(desc.Name, desc.Name, cmd.Args, p, conv, OutcomeDenied, start)
		return message.NewText(denial.UserMessage())
	}

	if len(cmd.Args) < desc.MinArgs {
		d.admission.Release(p.UserID, desc)
		d.finish(desc.Name, desc.Name, cmd.Args, p, conv, OutcomeUsage, start)
		return message.NewText(registry.UsageText(desc, prefix))
	}

	reply, outcome := d.invoke(ctx, log, desc, cmd.Args, p, conv)
	d.finish(desc.Name, desc.Name, cmd.Args, p, conv, outcome, start)
	return reply
}

// invoke runs the handler under the command timeout. Panics and errors stop
// here.
func (d *Dispatcher) invoke(ctx context.Context, log *logger.Logger, desc *registry.Descriptor, args []string, p auth.Principal, conv message.Conversation) (reply message.Request, outcome string) {
	if d.cfg.CommandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.CommandTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			log.WithFields(map[string]any{
				"panic": fmt.Sprint(r),
				"stack": string(stack),
			}).Errorf("Panic in command handler")
			sentry.CapturePanic(ctx, r, stack, map[string]string{"command": desc.Name, "stage": "handler"})
			reply, outcome = message.NewText(HandlerErrorText), OutcomePanic
		}
	}()

	reply, err := desc.Handler.Handle(ctx, args, p, conv)
	if err == nil {
		return reply, OutcomeOK
	}
	return d.handlerFailure(ctx, log, desc, err)
}

func (d *Dispatcher) handlerFailure(ctx context.Context, log *logger.Logger, desc *registry.Descriptor, err error) (message.Request, string) {
	reply, hasReply := domerrors.UserReply(err)
	switch {
	case domerrors.IsBackendUnavailable(err):
		log.WithError(err).Warnf("Backend unavailable")
		return message.NewText(BackendUnavailableText), OutcomeError
	case hasReply:
		log.WithError(err).Warnf("Command failed")
		return message.NewText(reply), OutcomeError
	case errors.Is(err, context.DeadlineExceeded):
		log.WithError(err).Errorf("Command timed out")
		sentry.CaptureWithTags(ctx, err, map[string]string{"command": desc.Name, "stage": "timeout"})
		return message.NewText(HandlerErrorText), OutcomeTimeout
	default:
		log.WithError(err).WithField("stack", string(debug.Stack())).Errorf("Command failed")
		sentry.CaptureWithTags(ctx, err, map[string]string{"command": desc.Name, "stage": "handler"})
		return message.NewText(HandlerErrorText), OutcomeError
	}
}

// finish records metrics and the audit trail for one attempt. label is the
// resolved command name, or empty for unknown commands.
func (d *Dispatcher) finish(token, label string, args []string, p auth.Principal, conv message.Conversation, outcome string, start time.Time) {
	elapsed := d.now().Sub(start)
	if d.metrics != nil {
		metricLabel := label
		if metricLabel == "" {
			metricLabel = OutcomeUnknown
		}
		d.metrics.RecordCommand(metricLabel, outcome, elapsed.Seconds())
	}
	if d.auditor != nil {
		d.auditor.Emit(audit.Record{
			UserID:   p.UserID,
			ChatID:   conv.ChatID,
			Command:  strings.ToLower(token),
			Args:     args,
			Outcome:  outcome,
			Duration: elapsed,
			At:       start,
		})
	}
}
