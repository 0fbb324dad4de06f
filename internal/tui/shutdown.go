package tui

import (
	"context"
	"errors"
	"time"
)

// ShutdownManager coordinates graceful shutdown of the fieldwatch
// components. Steps run in order and every step runs even if an earlier one
// fails.
type ShutdownManager struct {
	// DrainTimeout bounds how long servers may take to drain.
	DrainTimeout time.Duration

	// StopServers stops the ingestion receiver and the operator API.
	StopServers func(ctx context.Context) error

	// StopEngine stops periodic detection and waits for an in-flight run.
	StopEngine func()

	// Cleanup flushes and closes storage.
	Cleanup func() error
}

// NewShutdownManager creates a ShutdownManager with a 5-second drain timeout.
func NewShutdownManager() *ShutdownManager {
	return &ShutdownManager{
		DrainTimeout: 5 * time.Second,
	}
}

// Shutdown stops the servers first so no new work arrives, then the
// detection engine, then storage. It returns the joined step errors.
func (sm *ShutdownManager) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), sm.DrainTimeout)
	defer cancel()

	var errs []error
	if sm.StopServers != nil {
		errs = append(errs, sm.StopServers(ctx))
	}

	if sm.StopEngine != nil {
		sm.StopEngine()
	}

	if sm.Cleanup != nil {
		errs = append(errs, sm.Cleanup())
	}

	return errors.Join(errs...)
}
