// Package webhook receives backend push notifications (order status
// changes, merchant approvals, product updates) and forwards them to the
// affected user over WhatsApp through the delivery layer.
package webhook

import (
	"context"
	"crypto/subtle"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyellow/whatsapp-commerce-bot/internal/ctxutil"
	"github.com/garyellow/whatsapp-commerce-bot/internal/delivery"
	"github.com/garyellow/whatsapp-commerce-bot/internal/logger"
	"github.com/garyellow/whatsapp-commerce-bot/internal/message"
	"github.com/garyellow/whatsapp-commerce-bot/internal/metrics"
	"github.com/garyellow/whatsapp-commerce-bot/internal/whatsapp"
)

// SecretHeader carries the shared secret when WEBHOOK_SECRET is set.
const SecretHeader = "X-Webhook-Secret"

const (
	defaultMaxBody = 64 << 10
	sendTimeout    = 30 * time.Second
)

// Sender delivers notifications.
type Sender interface {
	Send(ctx context.Context, req message.Request) delivery.Result
}

// Handler serves the notification endpoints. Payloads are validated
// synchronously; delivery runs in the background so the backend is never
// held up by WhatsApp.
type Handler struct {
	sender  Sender
	secret  string
	prefix  string
	maxBody int64
	metrics *metrics.Metrics
	logger  *logger.Logger
	wg      sync.WaitGroup
}

// Option configures a Handler.
type Option func(*Handler)

// WithSecret requires SecretHeader to match secret. Empty disables the check.
func WithSecret(secret string) Option {
	return func(h *Handler) { h.secret = secret }
}

// WithMetrics records notifications.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithMaxBody caps request bodies.
func WithMaxBody(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxBody = n
		}
	}
}

// NewHandler creates a handler. prefix is used in button IDs.
func NewHandler(sender Sender, prefix string, log *logger.Logger, opts ...Option) *Handler {
	h := &Handler{
		sender:  sender,
		prefix:  prefix,
		maxBody: defaultMaxBody,
		logger:  log.WithModule("webhook"),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.secret == "" {
		h.logger.Warnf("WEBHOOK_SECRET is not set, webhook endpoints accept unauthenticated requests")
	}
	return h
}

// Register mounts the endpoints under /webhook.
func (h *Handler) Register(r gin.IRouter) {
	g := r.Group("/webhook", h.authenticate)
	g.POST("/order-update", handle[OrderUpdate](h, TopicOrderUpdate))
	g.POST("/merchant-approved", handle[MerchantApproved](h, TopicMerchantApproved))
	g.POST("/product-updated", handle[ProductUpdated](h, TopicProductUpdated))
}

func (h *Handler) authenticate(c *gin.Context) {
	if h.secret == "" {
		c.Next()
		return
	}
	got := c.GetHeader(SecretHeader)
	if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
		h.logger.WithField("remote", c.ClientIP()).Warnf("Webhook rejected: bad secret")
		h.record(c.FullPath(), "unauthorized")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "unauthorized"})
		return
	}
	c.Next()
}

// handle decodes and validates T, replies 202 and delivers in the background.
func handle[T notification](h *Handler, topic string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBody)

		var n T
		if err := c.ShouldBindJSON(&n); err != nil {
			h.record(topic, "invalid")
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid JSON body"})
			return
		}
		if err := n.validate(); err != nil {
			h.record(topic, "invalid")
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
			return
		}

		target, err := whatsapp.ParseTarget(n.recipient())
		if err != nil {
			h.record(topic, "invalid")
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
			return
		}

		req := n.render(h.prefix).To(target.String())
		requestID, _ := ctxutil.GetRequestID(c.Request.Context())
		h.wg.Go(func() { h.deliver(topic, requestID, req) })
		c.JSON(http.StatusAccepted, gin.H{"success": true})
	}
}

func (h *Handler) deliver(topic, requestID string, req message.Request) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			h.logger.WithField("topic", topic).Errorf("Panic delivering notification: %v", r)
		}
	}()
	if requestID != "" {
		ctx = ctxutil.WithRequestID(ctx, requestID)
	}

	result := h.sender.Send(ctx, req)
	h.record(topic, result.String())
	log := h.logger.WithFields(map[string]any{"topic": topic, "target": req.Target, "result": result.String()})
	if result == delivery.Dropped {
		log.Warnf("Notification dropped")
		return
	}
	log.Debugf("Notification delivered")
}

func (h *Handler) record(topic, status string) {
	if h.metrics != nil {
		h.metrics.RecordWebhookNotification(topic, status)
	}
}

// Shutdown waits for background deliveries until ctx ends.
func (h *Handler) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.wg.Wait()
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
