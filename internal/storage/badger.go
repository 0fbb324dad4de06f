package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/nixlim/fieldwatch/internal/alerts"
	"github.com/nixlim/fieldwatch/internal/logging"
	"github.com/nixlim/fieldwatch/internal/state"
	"github.com/nixlim/fieldwatch/internal/survey"
)

// Key prefixes for BadgerDB storage
const (
	alertKeyPrefix    = "alert:"
	responseKeyPrefix = "response:"
)

const badgerGCInterval = 10 * time.Minute

// BadgerStore persists responses and alerts in BadgerDB. Like SQLiteStore it
// serves reads from an embedded MemoryStore; every write is a synchronous
// Badger transaction.
type BadgerStore struct {
	*state.MemoryStore
	db            *badger.DB
	retentionDays int

	closeOnce sync.Once
	stopGC    chan struct{}
	gcDone    chan struct{}
}

// NewBadgerStore opens the Badger database in dir. An empty dir opens an
// in-memory database.
func NewBadgerStore(dir string, retentionDays int) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	} else if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating badger directory: %w", err)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger: %w", err)
	}

	s := &BadgerStore{
		MemoryStore:   state.NewMemoryStore(),
		db:            db,
		retentionDays: retentionDays,
		stopGC:        make(chan struct{}),
		gcDone:        make(chan struct{}),
	}
	if err := s.recover(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("recovering state: %w", err)
	}

	go s.gcLoop(dir != "")
	return s, nil
}

// PutAlerts writes the batch in a single Badger transaction.
func (s *BadgerStore) PutAlerts(ctx context.Context, batch []alerts.RiskAlert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(batch) == 0 {
		return nil
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, a := range batch {
			data, err := encodeAlert(a)
			if err != nil {
				return err
			}
			if err := txn.Set([]byte(alertKeyPrefix+a.ID), data); err != nil {
				return fmt.Errorf("set alert %s: %w", a.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("writing alerts: %w", err)
	}
	return s.MemoryStore.PutAlerts(context.WithoutCancel(ctx), batch)
}

// PutResponses writes the batch, splitting it across transactions when it
// exceeds Badger's transaction size.
func (s *BadgerStore) PutResponses(ctx context.Context, responses []survey.Response) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, r := range responses {
		data, err := encodeResponse(r)
		if err != nil {
			return 0, err
		}
		if err := wb.Set([]byte(responseKeyPrefix+r.ID), data); err != nil {
			return 0, fmt.Errorf("set response %s: %w", r.ID, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("writing responses: %w", err)
	}
	return s.MemoryStore.PutResponses(context.WithoutCancel(ctx), responses)
}

// DeleteResponsesBefore removes expired responses from Badger and memory.
func (s *BadgerStore) DeleteResponsesBefore(ctx context.Context, cutoff time.Time) (int, error) {
	expired, err := s.MemoryStore.ListResponses(ctx, state.ResponseQuery{})
	if err != nil {
		return 0, err
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, r := range expired {
		if !r.SubmittedAt.Before(cutoff) {
			break
		}
		if err := wb.Delete([]byte(responseKeyPrefix + r.ID)); err != nil {
			return 0, fmt.Errorf("delete response %s: %w", r.ID, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("pruning responses: %w", err)
	}
	return s.MemoryStore.DeleteResponsesBefore(ctx, cutoff)
}

func (s *BadgerStore) recover(ctx context.Context) error {
	var list []alerts.RiskAlert
	var responses []survey.Response
	var cutoff time.Time
	if s.retentionDays > 0 {
		cutoff = time.Now().AddDate(0, 0, -s.retentionDays)
	}

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(alertKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				a, err := decodeAlert(val)
				if err != nil {
					logging.Error().Err(err).Str("key", string(it.Item().Key())).Msg("failed to decode alert")
					return nil
				}
				list = append(list, a)
				return nil
			})
			if err != nil {
				return err
			}
		}

		prefix = []byte(responseKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				r, err := decodeResponse(val)
				if err != nil {
					logging.Error().Err(err).Str("key", string(it.Item().Key())).Msg("failed to decode response")
					return nil
				}
				if r.SubmittedAt.Before(cutoff) {
					return nil
				}
				responses = append(responses, r)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("reading badger: %w", err)
	}

	if err := s.MemoryStore.PutAlerts(ctx, list); err != nil {
		return err
	}
	if _, err := s.MemoryStore.PutResponses(ctx, responses); err != nil {
		return err
	}
	logging.Info().Int("alerts", len(list)).Int("responses", len(responses)).Msg("recovered state from badger")
	return nil
}

// gcLoop runs value log GC and retention pruning until Close.
func (s *BadgerStore) gcLoop(onDisk bool) {
	defer close(s.gcDone)
	ticker := time.NewTicker(badgerGCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopGC:
			return
		case <-ticker.C:
			if s.retentionDays > 0 {
				cutoff := time.Now().AddDate(0, 0, -s.retentionDays)
				if _, err := s.DeleteResponsesBefore(context.Background(), cutoff); err != nil {
					logging.Error().Err(err).Msg("badger retention pruning failed")
				}
			}
			if !onDisk {
				continue
			}
			for {
				if err := s.db.RunValueLogGC(0.5); err != nil {
					if !errors.Is(err, badger.ErrNoRewrite) {
						logging.Warn().Err(err).Msg("badger value log GC failed")
					}
					break
				}
			}
		}
	}
}

// Close stops background GC and closes the database.
func (s *BadgerStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stopGC)
		<-s.gcDone
		err = s.db.Close()
	})
	return err
}
