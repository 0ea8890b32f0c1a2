package store

import (
	"context"
	"log/slog"
	"time"
)

const retentionInterval = 5 * time.Minute

// CleanupCallback is called after a sweep removed at least one thread.
type CleanupCallback func(removed int64)

// StartRetentionWorker runs a background goroutine that periodically removes
// threads idle for longer than ttl. A ttl of zero disables the worker.
func StartRetentionWorker(ctx context.Context, repo Repository, ttl time.Duration, onCleanup CleanupCallback) {
	startRetentionWorker(ctx, repo, ttl, retentionInterval, onCleanup)
}

func startRetentionWorker(ctx context.Context, repo Repository, ttl, interval time.Duration, onCleanup CleanupCallback) {
	if ttl <= 0 {
		slog.Info("Retention worker disabled")
		return
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Retention worker started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				sweepExpired(ctx, repo, ttl, onCleanup)
			case <-ctx.Done():
				slog.Info("Retention worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func sweepExpired(ctx context.Context, repo Repository, ttl time.Duration, onCleanup CleanupCallback) {
	removed, err := repo.CleanupExpired(ctx, ttl)
	if err != nil {
		if ctx.Err() != nil {
			slog.Debug("Retention sweep interrupted", "error", err)
			return
		}
		slog.Error("Retention worker failed to remove expired threads", "error", err)
		return
	}
	if removed == 0 {
		return
	}

	slog.Info("Retention worker removed expired threads", "count", removed)
	if onCleanup != nil {
		onCleanup(removed)
	}
}
