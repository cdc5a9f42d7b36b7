package db

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"
)

// StartExpiredShareCleaner periodically revokes share links of user plans whose
// expiry passed more than retention ago. Expired links already resolve as not
// found; the cleaner only frees the token column.
func StartExpiredShareCleaner(
	ctx context.Context,
	db *sql.DB,
	dialect Dialect,
	interval time.Duration,
	retention time.Duration,
	log *zap.Logger,
) {
	query := dialect.Rebind(`
        UPDATE plans
           SET visibility = 'private', share_token = NULL, share_expiry = NULL
         WHERE is_template = FALSE
           AND share_expiry IS NOT NULL
           AND share_expiry < ?
    `)

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cutoff := time.Now().Add(-retention).Unix()
				res, err := db.ExecContext(ctx, query, cutoff)
				if err != nil {
					log.Error("failed to clean expired share links", zap.Error(err))
					continue
				}
				if rows, _ := res.RowsAffected(); rows > 0 {
					log.Info("revoked expired share links", zap.Int64("revoked", rows))
				}
			}
		}
	}()
}
