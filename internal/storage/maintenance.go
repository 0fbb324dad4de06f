package storage

import (
	"context"
	"time"

	"github.com/nixlim/fieldwatch/internal/logging"
)

const (
	maintenanceInterval = 1 * time.Hour
	vacuumInterval      = 7 * 24 * time.Hour
)

func (s *SQLiteStore) startMaintenance(ctx context.Context) {
	go s.maintenanceLoop(ctx)
}

func (s *SQLiteStore) maintenanceLoop(ctx context.Context) {
	defer close(s.maintenanceDone)

	lastVacuum := time.Now()
	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.runMaintenanceCycle(ctx, time.Now()); err != nil {
				logging.Error().Err(err).Msg("maintenance cycle failed")
			}

			if time.Since(lastVacuum) >= vacuumInterval {
				if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
					logging.Error().Err(err).Msg("VACUUM failed")
				} else {
					lastVacuum = time.Now()
				}
			}
		}
	}
}

// runMaintenanceCycle prunes responses older than the retention window.
// Alerts are kept forever.
func (s *SQLiteStore) runMaintenanceCycle(ctx context.Context, now time.Time) error {
	if s.retentionDays <= 0 {
		return nil
	}
	cutoff := now.AddDate(0, 0, -s.retentionDays)
	removed, err := s.DeleteResponsesBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	if removed > 0 {
		logging.Info().Int("removed", removed).Time("cutoff", cutoff).Msg("pruned expired responses")
	}
	return nil
}
