package app

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/garyellow/whatsapp-commerce-bot/internal/buildinfo"
	"github.com/garyellow/whatsapp-commerce-bot/internal/modules/info"
)

// readinessTimeout bounds the database ping of /readyz and /health.
const readinessTimeout = 3 * time.Second

func (a *Application) registerRoutes(r *gin.Engine) {
	r.GET("/livez", a.livenessCheck)
	r.HEAD("/livez", a.livenessCheck)
	r.GET("/readyz", a.readinessCheck)
	r.HEAD("/readyz", a.readinessCheck)
	r.GET("/health", a.healthReport)
	r.GET("/metrics",
		a.scrapeAuth(),
		gin.WrapH(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})))
	if a.webhook != nil {
		a.webhook.Register(r)
	}
}

// livenessCheck never looks at dependencies; it only proves the process
// serves HTTP.
func (a *Application) livenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

// readinessCheck is ready when the database answers and the WhatsApp
// session is logged in.
func (a *Application) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	if err := a.db.Ping(ctx); err != nil {
		a.logger.WithError(err).Warn("Readiness check failed: database unavailable")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "reason": "database unavailable"})
		return
	}
	if a.session != nil {
		if ok, detail := a.session.Status(); !ok {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "reason": "whatsapp " + detail})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "database": "connected", "whatsapp": "connected"})
}

// healthReport lists every component. It answers 503 when any of them is
// unhealthy.
func (a *Application) healthReport(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	status, code := "healthy", http.StatusOK
	components := make(gin.H)
	for _, comp := range a.Components(ctx) {
		components[comp.Name] = gin.H{"healthy": comp.Healthy, "detail": comp.Detail}
		if !comp.Healthy {
			status, code = "degraded", http.StatusServiceUnavailable
		}
	}

	c.JSON(code, gin.H{
		"status":     status,
		"version":    buildinfo.String(),
		"uptime":     info.FormatUptime(time.Since(a.startedAt)),
		"components": components,
		"stats":      a.stats(ctx),
	})
}

// stats are best effort; failed counts are left out.
func (a *Application) stats(ctx context.Context) map[string]int {
	stats := make(map[string]int)
	if n, err := a.db.CountCommandsSince(ctx, time.Now().Add(-24*time.Hour)); err == nil {
		stats["commands_24h"] = n
	} else {
		a.logger.WithError(err).Warn("Failed to count recent commands")
	}
	if a.sequencer != nil {
		stats["active_conversations"] = a.sequencer.Active()
	}
	if a.selections != nil {
		stats["pending_selections"] = a.selections.Len()
	}
	if a.ceiling != nil {
		stats["rate_limited_senders"] = a.ceiling.GetActiveCount()
	}
	return stats
}
