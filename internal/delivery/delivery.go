// Package delivery sends outbound messages through the chat transport,
// degrading from interactive to text and from text to the retry queue.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	domerrors "github.com/garyellow/whatsapp-commerce-bot/internal/errors"
	"github.com/garyellow/whatsapp-commerce-bot/internal/logger"
	"github.com/garyellow/whatsapp-commerce-bot/internal/message"
	"github.com/garyellow/whatsapp-commerce-bot/internal/metrics"
	"github.com/garyellow/whatsapp-commerce-bot/internal/retryqueue"
	"github.com/garyellow/whatsapp-commerce-bot/internal/sentry"
)

// Result is the final outcome of Send.
type Result int

const (
	// Sent means the transport accepted the message, rich or as text.
	Sent Result = iota
	// Queued means both forms failed and the text waits in the retry queue.
	Queued
	// Dropped means the message could not be sent or queued.
	Dropped
)

func (r Result) String() string {
	switch r {
	case Sent:
		return "sent"
	case Queued:
		return "queued"
	default:
		return "dropped"
	}
}

// Transport is the chat connection.
type Transport interface {
	SendText(ctx context.Context, target, text string) error
	SendInteractive(ctx context.Context, req message.Request) error
}

// Enqueuer accepts messages for later resend.
type Enqueuer interface {
	Enqueue(item retryqueue.Item) error
}

// FallbackFunc receives the numbered options of a list or buttons message
// that went out as text.
type FallbackFunc func(target string, options []message.Option)

// Pacer throttles transport calls. *rate.Limiter satisfies it.
type Pacer interface {
	Wait(ctx context.Context) error
}

// Config tunes a Service.
type Config struct {
	Footer      string        // Footer for rendered text; message.DefaultFooter when empty
	SendTimeout time.Duration // Per transport call; no timeout when zero
	Pacer       Pacer         // Global outbound pacing; optional
	OnFallback  FallbackFunc  // Optional
}

// Service implements the delivery ladder.
type Service struct {
	transport Transport
	queue     Enqueuer
	cfg       Config
	logger    *logger.Logger
	metrics   *metrics.Metrics
}

// New creates a delivery service. queue may be nil, in which case messages
// that fail both forms are dropped. m may be nil.
func New(transport Transport, queue Enqueuer, cfg Config, log *logger.Logger, m *metrics.Metrics) *Service {
	if cfg.Footer == "" {
		cfg.Footer = message.DefaultFooter
	}
	return &Service{
		transport: transport,
		queue:     queue,
		cfg:       cfg,
		logger:    log.WithModule("delivery"),
		metrics:   m,
	}
}

// Send delivers req. Lists and buttons are tried as interactive messages
// first; any failure there, including a request the transport cannot
// represent, falls back to rendered text. A failed text send is queued for
// retry. Send never panics.
func (s *Service) Send(ctx context.Context, req message.Request) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			s.logger.WithFields(map[string]any{
				"panic":    fmt.Sprint(r),
				"stack":    string(stack),
				"critical": true,
			}).Errorf("Panic in delivery")
			sentry.CapturePanic(ctx, r, stack, map[string]string{"component": "delivery"})
			s.record("panic", Dropped.String())
			result = Dropped
		}
	}()

	if req.Target == "" {
		s.logger.WithField("kind", req.Kind.String()).Errorf("Outbound message without target")
		s.record("invalid", Dropped.String())
		return Dropped
	}

	log := s.logger.WithFields(map[string]any{"target": req.Target, "kind": req.Kind.String()})
	rich := req.Kind != message.KindText

	if rich {
		if err := req.Validate(); err != nil {
			log.WithError(err).Debugf("Interactive message not representable, sending text")
		} else if err := s.call(ctx, func(ctx context.Context) error {
			return s.transport.SendInteractive(ctx, req)
		}); err != nil {
			log.WithError(err).Warnf("Interactive send failed, falling back to text")
			s.record("interactive", "fallback")
		} else {
			s.record("interactive", Sent.String())
			return Sent
		}
	}

	text, options := message.RenderText(req, s.cfg.Footer)
	if rich && len(options) > 0 && s.cfg.OnFallback != nil {
		s.cfg.OnFallback(req.Target, options)
	}

	err := s.call(ctx, func(ctx context.Context) error {
		return s.transport.SendText(ctx, req.Target, text)
	})
	if err == nil {
		s.record("text", Sent.String())
		return Sent
	}
	log.WithError(err).Warnf("Text send failed, queueing for retry")

	if s.queue == nil {
		return s.drop(ctx, log, fmt.Errorf("%w: no retry queue", domerrors.ErrQueueUnavailable))
	}
	if qerr := s.queue.Enqueue(retryqueue.Item{Target: req.Target, Text: text}); qerr != nil {
		return s.drop(ctx, log, errors.Join(err, qerr))
	}
	s.record("text", Queued.String())
	return Queued
}

// SendText is Send for a plain text message.
func (s *Service) SendText(ctx context.Context, target, text string) Result {
	return s.Send(ctx, message.NewText(text).To(target))
}

func (s *Service) drop(ctx context.Context, log *logger.Logger, err error) Result {
	log.WithError(err).WithField("critical", true).Errorf("Message dropped: transport and retry queue unavailable")
	sentry.CaptureWithTags(ctx, err, map[string]string{"component": "delivery", "stage": "enqueue"})
	s.record("text", Dropped.String())
	return Dropped
}

// call runs one transport operation with pacing, a timeout and panic
// recovery. A transport panic is reported as ErrTransportRejected.
func (s *Service) call(ctx context.Context, fn func(context.Context) error) (err error) {
	if s.cfg.Pacer != nil {
		if err := s.cfg.Pacer.Wait(ctx); err != nil {
			return fmt.Errorf("%w: pacing: %w", domerrors.ErrTransportRejected, err)
		}
	}
	if s.cfg.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.SendTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithFields(map[string]any{
				"panic": fmt.Sprint(r),
				"stack": string(debug.Stack()),
			}).Errorf("Panic in transport")
			err = fmt.Errorf("%w: transport panic: %v", domerrors.ErrTransportRejected, r)
		}
	}()
	return fn(ctx)
}

func (s *Service) record(kind, result string) {
	if s.metrics != nil {
		s.metrics.RecordDelivery(kind, result)
	}
}
