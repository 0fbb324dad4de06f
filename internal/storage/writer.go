package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/nixlim/fieldwatch/internal/logging"
	"github.com/nixlim/fieldwatch/internal/survey"
)

const opResponse = "response"

type writeOp struct {
	opType   string
	response *survey.Response
}

func (s *SQLiteStore) writerLoop() {
	defer close(s.doneChan)

	batch := make([]writeOp, 0, batchSize)
	flushTimer := time.NewTimer(flushInterval)
	defer flushTimer.Stop()

	for {
		select {
		case op, ok := <-s.writeChan:
			if !ok {
				if len(batch) > 0 {
					s.flushBatch(batch)
				}
				return
			}

			batch = append(batch, op)

			if len(batch) >= batchSize {
				s.flushBatch(batch)
				batch = batch[:0]
				flushTimer.Reset(flushInterval)
			}

		case <-flushTimer.C:
			if len(batch) > 0 {
				s.flushBatch(batch)
				batch = batch[:0]
			}
			flushTimer.Reset(flushInterval)
		}
	}
}

func (s *SQLiteStore) flushBatch(batch []writeOp) {
	tx, err := s.db.Begin()
	if err != nil {
		logging.Error().Err(err).Msg("failed to begin transaction")
		return
	}
	defer func() { _ = tx.Rollback() }()

	for _, op := range batch {
		if err := executeOp(tx, op); err != nil {
			logging.Error().Err(err).Str("type", op.opType).Msg("failed to execute write op")
		}
	}

	if err := tx.Commit(); err != nil {
		logging.Error().Err(err).Int("ops", len(batch)).Msg("failed to commit write batch")
	}
}

func executeOp(tx *sql.Tx, op writeOp) error {
	switch op.opType {
	case opResponse:
		return writeResponse(tx, *op.response)
	default:
		return fmt.Errorf("unknown op type: %s", op.opType)
	}
}

func writeResponse(tx *sql.Tx, r survey.Response) error {
	data, err := encodeResponse(r)
	if err != nil {
		return err
	}
	_, err = tx.Exec(`
		INSERT INTO responses (id, survey_id, device_id, submitted_at, data) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			survey_id=excluded.survey_id,
			device_id=excluded.device_id,
			submitted_at=excluded.submitted_at,
			data=excluded.data
	`, r.ID, r.SurveyID, r.Device.DeviceID, formatTime(r.SubmittedAt), string(data))
	return err
}
