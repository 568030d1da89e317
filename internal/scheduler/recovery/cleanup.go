package recovery

import (
	"context"
	"time"

	"github.com/adsync-ai/adsync/internal/domain/repositories"
	"github.com/rs/zerolog/log"
)

// Cleanup prunes the run ledger: terminal runs past the retention window
// are deleted, and duplicate rows left behind by the pre-constraint era are
// collapsed onto the highest id.
type Cleanup struct {
	runs          *repositories.RunRepository
	retentionDays int
	interval      time.Duration
}

func NewCleanup(runs *repositories.RunRepository, retentionDays int) *Cleanup {
	return &Cleanup{
		runs:          runs,
		retentionDays: retentionDays,
		interval:      time.Hour,
	}
}

func (c *Cleanup) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.CleanupOnce(ctx)
		}
	}
}

func (c *Cleanup) CleanupOnce(ctx context.Context) {
	cutoff := time.Now().UTC().AddDate(0, 0, -c.retentionDays)

	deleted, err := c.runs.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		log.Error().Err(err).Msg("Failed to delete expired runs")
		return
	}
	if deleted > 0 {
		log.Info().
			Int64("deleted", deleted).
			Int("retention_days", c.retentionDays).
			Msg("Expired runs deleted")
	}

	deduped, err := c.runs.DedupeKeepHighest(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to dedupe runs")
		return
	}
	if deduped > 0 {
		log.Info().Int64("deleted", deduped).Msg("Duplicate runs collapsed")
	}
}
