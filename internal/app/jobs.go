package app

import (
	"context"
	"time"

	"github.com/garyellow/whatsapp-commerce-bot/internal/config"
)

// startBackgroundJobs starts all background goroutines tracked by wg.
func (a *Application) startBackgroundJobs(ctx context.Context) {
	a.wg.Go(func() { a.admission.Run(ctx, a.cfg.Bot.CooldownSweepInterval) })
	a.wg.Go(func() { a.queue.Run(ctx, a.wa, a.cfg.Bot.RetryQueueInterval) })
	a.wg.Go(func() { a.sweepSelections(ctx) })
	a.wg.Go(func() { a.storageCleanup(ctx) })
}

// sweepSelections drops expired numbered-reply menus.
func (a *Application) sweepSelections(ctx context.Context) {
	ticker := time.NewTicker(config.SelectionTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.selections.Sweep(); n > 0 {
				a.logger.WithField("removed", n).Debug("Expired selections swept")
			}
		}
	}
}

// storageCleanup runs once at startup and then hourly.
func (a *Application) storageCleanup(ctx context.Context) {
	a.logger.Debug("Storage cleanup job started")
	defer a.logger.Debug("Storage cleanup job stopped")

	a.runStorageCleanup(ctx)

	ticker := time.NewTicker(config.StorageCleanup)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.runStorageCleanup(ctx)
		}
	}
}

// runStorageCleanup purges command history past retention and role cache
// rows past their TTL.
func (a *Application) runStorageCleanup(ctx context.Context) {
	start := time.Now()

	history, err := a.db.DeleteCommandsBefore(ctx, start.Add(-a.cfg.HistoryRetention))
	if err != nil {
		a.logger.WithError(err).Error("Failed to purge command history")
	}
	roles, err := a.db.DeleteExpiredRoles(ctx, a.cfg.RoleCacheTTL)
	if err != nil {
		a.logger.WithError(err).Error("Failed to purge role cache")
	}

	a.logger.WithField("history_deleted", history).
		WithField("roles_deleted", roles).
		WithField("duration_ms", time.Since(start).Milliseconds()).
		Info("Storage cleanup completed")
}
