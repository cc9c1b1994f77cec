package bot

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-referral-bot/internal/repo"
)

// DefaultPurgeInterval is how often expired processed-update records are
// deleted.
const DefaultPurgeInterval = time.Hour

// PurgeExpired deletes processed-update records that expired at or before now.
func PurgeExpired(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	n, err := repo.PurgeProcessedUpdates(ctx, db, now)
	if err != nil {
		return 0, err
	}
	purgedUpdates.Add(float64(n))
	if n > 0 {
		log.Info().Int64("count", n).Msg("purged expired processed updates")
	}
	return n, nil
}

// RunPurger calls PurgeExpired every interval until ctx is done.
func RunPurger(ctx context.Context, db *gorm.DB, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultPurgeInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			if _, err := PurgeExpired(ctx, db, t); err != nil && ctx.Err() == nil {
				log.Warn().Err(err).Msg("purge processed updates failed")
			}
		}
	}
}
