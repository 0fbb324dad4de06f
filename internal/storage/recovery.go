package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/nixlim/fieldwatch/internal/alerts"
	"github.com/nixlim/fieldwatch/internal/logging"
	"github.com/nixlim/fieldwatch/internal/survey"
)

// recover loads every alert and the responses inside the retention window
// into the in-memory view. Rows that fail to decode are logged and skipped.
func (s *SQLiteStore) recover(ctx context.Context) error {
	list, err := s.recoverAlerts(ctx)
	if err != nil {
		return err
	}
	if err := s.MemoryStore.PutAlerts(ctx, list); err != nil {
		return err
	}

	responses, err := s.recoverResponses(ctx)
	if err != nil {
		return err
	}
	if _, err := s.MemoryStore.PutResponses(ctx, responses); err != nil {
		return err
	}

	logging.Info().Int("alerts", len(list)).Int("responses", len(responses)).Msg("recovered state from sqlite")
	return nil
}

func (s *SQLiteStore) recoverAlerts(ctx context.Context) ([]alerts.RiskAlert, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT data FROM alerts")
	if err != nil {
		return nil, fmt.Errorf("querying alerts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []alerts.RiskAlert
	var failCount int
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			failCount++
			logging.Error().Err(err).Msg("failed to scan alert row")
			continue
		}
		a, err := decodeAlert([]byte(data))
		if err != nil {
			failCount++
			logging.Error().Err(err).Msg("failed to decode alert row")
			continue
		}
		result = append(result, a)
	}

	if failCount > 0 {
		logging.Warn().Int("failed", failCount).Msg("some alerts failed to recover from database")
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating alerts: %w", err)
	}
	return result, nil
}

func (s *SQLiteStore) recoverResponses(ctx context.Context) ([]survey.Response, error) {
	cutoff := ""
	if s.retentionDays > 0 {
		cutoff = formatTime(time.Now().AddDate(0, 0, -s.retentionDays))
	}

	rows, err := s.db.QueryContext(ctx, "SELECT data FROM responses WHERE submitted_at >= ?", cutoff)
	if err != nil {
		return nil, fmt.Errorf("querying responses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []survey.Response
	var failCount int
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			failCount++
			logging.Error().Err(err).Msg("failed to scan response row")
			continue
		}
		r, err := decodeResponse([]byte(data))
		if err != nil {
			failCount++
			logging.Error().Err(err).Msg("failed to decode response row")
			continue
		}
		result = append(result, r)
	}

	if failCount > 0 {
		logging.Warn().Int("failed", failCount).Msg("some responses failed to recover from database")
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating responses: %w", err)
	}
	return result, nil
}
