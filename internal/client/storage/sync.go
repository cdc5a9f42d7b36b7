package storage

import (
	"context"
	"errors"
	"time"

	"github.com/atinyakov/learnpath/internal/client/store"
	"go.uber.org/zap"
)

// Loader reloads the session cache.
type Loader interface {
	Load(ctx context.Context, ownerID string) error
}

// StartAutoRefresh reloads the cache for owner() every interval until ctx is
// done. Refresh failures are logged and the cache keeps its contents.
func StartAutoRefresh(ctx context.Context, loader Loader, owner func() string, interval time.Duration, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				err := loader.Load(ctx, owner())
				switch {
				case err == nil:
					log.Debug("refreshed plans")
				case errors.Is(err, store.ErrStaleLoad), errors.Is(err, context.Canceled):
				default:
					log.Warn("refresh failed", zap.Error(err))
				}
			}
		}
	}()
}
