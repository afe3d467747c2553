package app

import (
	"context"
	"time"

	"github.com/garyellow/wxbot-go/internal/config"
)

// lastLocationCache labels the store in cache-size metrics.
const lastLocationCache = "last_location"

// startBackgroundJobs starts all background goroutines tracked by the WaitGroup.
func (a *Application) startBackgroundJobs(ctx context.Context) {
	a.wg.Go(func() {
		a.locationCleanup(ctx)
	})
	a.wg.Go(func() {
		a.updateCacheSizeMetrics(ctx)
	})

	if a.telegramBot == nil {
		return
	}
	if a.cfg.TelegramUsesWebhook() {
		a.wg.Go(func() {
			if err := a.telegramBot.RegisterWebhook(ctx, a.cfg.TelegramWebhookURL); err != nil {
				a.logger.WithError(err).Error("Telegram webhook registration failed")
			}
		})
		return
	}
	a.wg.Go(func() {
		a.telegramBot.Poll(ctx)
	})
}

// locationCleanup deletes expired last locations on an interval until ctx is canceled.
func (a *Application) locationCleanup(ctx context.Context) {
	a.logger.Debug("Location cleanup job started")
	defer a.logger.Debug("Location cleanup job stopped")

	ticker := time.NewTicker(config.LocationCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.runLocationCleanup(ctx)
		}
	}
}

func (a *Application) runLocationCleanup(ctx context.Context) {
	start := time.Now()
	deleted, err := a.store.DeleteExpired(ctx)
	if err != nil {
		a.logger.WithError(err).Error("Failed to delete expired locations")
		return
	}

	duration := time.Since(start)
	a.logger.WithField("deleted", deleted).
		WithField("duration_ms", duration.Milliseconds()).
		Info("Location cleanup completed")
	if a.metrics != nil {
		a.metrics.RecordJob("location_cleanup", duration.Seconds())
	}
}

// updateCacheSizeMetrics periodically records the store size.
func (a *Application) updateCacheSizeMetrics(ctx context.Context) {
	a.recordCacheSizeMetrics(ctx)

	ticker := time.NewTicker(config.MetricsUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.recordCacheSizeMetrics(ctx)
		}
	}
}

func (a *Application) recordCacheSizeMetrics(ctx context.Context) {
	if a.metrics == nil {
		return
	}
	n, err := a.store.Count(ctx)
	if err != nil {
		a.logger.WithError(err).Debug("Failed to count locations")
		return
	}
	a.metrics.SetCacheSize(lastLocationCache, n)
}
