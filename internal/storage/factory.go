package storage

import (
	"fmt"

	"github.com/nixlim/fieldwatch/internal/config"
	"github.com/nixlim/fieldwatch/internal/logging"
	"github.com/nixlim/fieldwatch/internal/state"
)

// NewStore builds the configured backend. When a persistent backend cannot be
// opened it falls back to an in-memory store and reports isPersistent=false;
// only an unknown backend name is an error.
func NewStore(cfg config.StorageConfig) (store state.Store, isPersistent bool, err error) {
	switch cfg.Backend {
	case "memory":
		return state.NewMemoryStore(), false, nil

	case "", "sqlite":
		if cfg.DBPath == "" {
			return state.NewMemoryStore(), false, nil
		}
		s, err := NewSQLiteStore(config.ExpandHome(cfg.DBPath), cfg.ResponseRetentionDays)
		if err != nil {
			logging.Warn().Err(err).Msg("SQLite storage unavailable, falling back to in-memory store")
			return state.NewMemoryStore(), false, nil
		}
		return s, true, nil

	case "badger":
		if cfg.BadgerDir == "" {
			return state.NewMemoryStore(), false, nil
		}
		s, err := NewBadgerStore(config.ExpandHome(cfg.BadgerDir), cfg.ResponseRetentionDays)
		if err != nil {
			logging.Warn().Err(err).Msg("Badger storage unavailable, falling back to in-memory store")
			return state.NewMemoryStore(), false, nil
		}
		return s, true, nil
	}

	return nil, false, fmt.Errorf("unknown storage backend %q", cfg.Backend)
}
