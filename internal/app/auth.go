package app

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

const scrapeRealm = `Basic realm="wabot metrics"`

// scrapeAuth guards /metrics with the METRICS_USERNAME and METRICS_PASSWORD
// pair. Without a password the endpoint is open and a warning is logged once.
func (a *Application) scrapeAuth() gin.HandlerFunc {
	username, password := a.cfg.MetricsUsername, a.cfg.MetricsPassword
	if password == "" {
		a.logger.Warn("METRICS_PASSWORD is not set, /metrics is served without authentication")
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		user, pass, ok := c.Request.BasicAuth()
		reason := ""
		switch {
		case !ok:
			reason = "missing"
		case !credentialEqual(user, username) || !credentialEqual(pass, password):
			reason = "mismatch"
		}
		if reason == "" {
			c.Next()
			return
		}

		a.metrics.RecordScrapeAuthFailure(reason)
		a.logger.WithFields(map[string]any{"remote": c.ClientIP(), "reason": reason}).
			Warn("Metrics scrape rejected")
		c.Header("WWW-Authenticate", scrapeRealm)
		c.AbortWithStatus(http.StatusUnauthorized)
	}
}

// credentialEqual compares digests so neither content nor length leaks
// through timing.
func credentialEqual(got, want string) bool {
	g, w := sha256.Sum256([]byte(got)), sha256.Sum256([]byte(want))
	return subtle.ConstantTimeCompare(g[:], w[:]) == 1
}
