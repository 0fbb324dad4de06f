package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nixlim/fieldwatch/internal/alerts"
	"github.com/nixlim/fieldwatch/internal/logging"
	"github.com/nixlim/fieldwatch/internal/state"
	"github.com/nixlim/fieldwatch/internal/survey"
)

const (
	writeChannelSize = 1000
	batchSize        = 50
	flushInterval    = 100 * time.Millisecond
)

// SQLiteStore persists responses and alerts to SQLite. Reads are served from
// the embedded MemoryStore, which is loaded from the database on open.
// Alert writes are synchronous and transactional; response writes go through
// a batched background writer.
type SQLiteStore struct {
	*state.MemoryStore
	db              *sql.DB
	retentionDays   int
	writeChan       chan writeOp
	droppedWrites   atomic.Int64
	doneChan        chan struct{}
	closed          atomic.Bool
	cancelMaint     context.CancelFunc
	maintenanceDone chan struct{}
}

// NewSQLiteStore opens the database at dbPath and recovers its contents.
// Responses older than retentionDays are not loaded and are pruned by
// hourly maintenance; zero keeps them forever.
func NewSQLiteStore(dbPath string, retentionDays int) (*SQLiteStore, error) {
	return newSQLiteStoreWithChannelSize(dbPath, writeChannelSize, retentionDays)
}

func newSQLiteStoreWithChannelSize(dbPath string, chanSize int, retentionDays int) (*SQLiteStore, error) {
	db, err := OpenDB(dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	store := &SQLiteStore{
		MemoryStore:     state.NewMemoryStore(),
		db:              db,
		retentionDays:   retentionDays,
		writeChan:       make(chan writeOp, chanSize),
		doneChan:        make(chan struct{}),
		cancelMaint:     cancel,
		maintenanceDone: make(chan struct{}),
	}

	if err := store.recover(ctx); err != nil {
		cancel()
		_ = db.Close()
		return nil, fmt.Errorf("recovering state: %w", err)
	}

	go store.writerLoop()
	store.startMaintenance(ctx)

	return store, nil
}

// PutAlerts writes the batch in one transaction and only then updates the
// in-memory view, so a failed write leaves both untouched.
func (s *SQLiteStore) PutAlerts(ctx context.Context, batch []alerts.RiskAlert) error {
	if s.closed.Load() {
		return fmt.Errorf("sqlite store closed")
	}
	if len(batch) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, a := range batch {
		if err := writeAlert(ctx, tx, a); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing alerts: %w", err)
	}

	return s.MemoryStore.PutAlerts(context.WithoutCancel(ctx), batch)
}

func writeAlert(ctx context.Context, tx *sql.Tx, a alerts.RiskAlert) error {
	data, err := encodeAlert(a)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO alerts (id, dedup_key, type, severity, status, survey_id, detected_at, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			severity=excluded.severity,
			status=excluded.status,
			survey_id=excluded.survey_id,
			data=excluded.data
	`, a.ID, a.DedupKey, string(a.Type), string(a.Severity), string(a.Status), a.SurveyID,
		formatTime(a.DetectedAt), string(data))
	if err != nil {
		return fmt.Errorf("writing alert %s: %w", a.ID, err)
	}
	return nil
}

// PutResponses stores responses in memory and queues them for the writer.
func (s *SQLiteStore) PutResponses(ctx context.Context, responses []survey.Response) (int, error) {
	added, err := s.MemoryStore.PutResponses(ctx, responses)
	if err != nil {
		return added, err
	}
	for _, r := range responses {
		r := r.Clone()
		s.sendWrite(writeOp{opType: opResponse, response: &r})
	}
	return added, nil
}

// DeleteResponsesBefore prunes memory and the database.
func (s *SQLiteStore) DeleteResponsesBefore(ctx context.Context, cutoff time.Time) (int, error) {
	removed, err := s.MemoryStore.DeleteResponsesBefore(ctx, cutoff)
	if err != nil {
		return removed, err
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM responses WHERE submitted_at < ?", formatTime(cutoff)); err != nil {
		return removed, fmt.Errorf("pruning responses: %w", err)
	}
	return removed, nil
}

func (s *SQLiteStore) sendWrite(op writeOp) {
	if s.closed.Load() {
		return
	}
	defer func() { _ = recover() }()
	select {
	case s.writeChan <- op:
	default:
		s.droppedWrites.Add(1)
		logging.Warn().Str("type", op.opType).Msg("sqlite write channel full, dropped write")
	}
}

// DroppedWrites returns how many queued writes were lost to a full channel.
func (s *SQLiteStore) DroppedWrites() int64 {
	return s.droppedWrites.Load()
}

// Close stops maintenance, drains queued writes and closes the database.
func (s *SQLiteStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	s.cancelMaint()
	select {
	case <-s.maintenanceDone:
	case <-time.After(30 * time.Second):
		logging.Warn().Msg("maintenance goroutine did not stop within 30s")
	}

	close(s.writeChan)

	select {
	case <-s.doneChan:
	case <-time.After(10 * time.Second):
		logging.Error().Msg("failed to drain writes within 10s, data may be lost")
	}

	return s.db.Close()
}
