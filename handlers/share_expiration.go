package handlers

import (
	"context"
	"database/sql"
	"time"
)

// ShareExpirationSweeper periodically removes share rows whose expiry has
// passed. Expired shares are already refused at resolve time; the sweep only
// keeps the table from accumulating dead rows.
type ShareExpirationSweeper struct {
	db *sql.DB
}

// NewShareExpirationSweeper creates a new ShareExpirationSweeper
func NewShareExpirationSweeper(db *sql.DB) *ShareExpirationSweeper {
	return &ShareExpirationSweeper{db: db}
}

// Start runs the sweep loop until ctx is cancelled. An initial sweep runs
// immediately on startup.
func (s *ShareExpirationSweeper) Start(ctx context.Context, interval time.Duration) {
	go func() {
		s.sweep()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweep()
			}
		}
	}()
	logger.Info().Dur("interval", interval).Msg("Share expiration sweeper started")
}

func (s *ShareExpirationSweeper) sweep() {
	result, err := s.db.Exec(`
		DELETE FROM shares
		WHERE expires_at IS NOT NULL AND expires_at < NOW()
	`)
	if err != nil {
		LogError("expired share sweep failed", err)
		return
	}

	if removed, _ := result.RowsAffected(); removed > 0 {
		logger.Info().Int64("removed", removed).Msg("Purged expired shares")
	}
}
