package storage

import (
	"path/filepath"
	"testing"

	"github.com/nixlim/fieldwatch/internal/config"
	"github.com/nixlim/fieldwatch/internal/state"
)

func TestFallback_SQLiteSuccess(t *testing.T) {
	cfg := config.StorageConfig{Backend: "sqlite", DBPath: filepath.Join(t.TempDir(), "test.db"), ResponseRetentionDays: 7}

	store, isPersistent, err := NewStore(cfg)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	defer func() { _ = store.Close() }()

	if !isPersistent {
		t.Error("expected isPersistent=true for valid DB path")
	}
	if _, ok := store.(*SQLiteStore); !ok {
		t.Errorf("expected *SQLiteStore, got %T", store)
	}
}

func TestFallback_BadgerSuccess(t *testing.T) {
	cfg := config.StorageConfig{Backend: "badger", BadgerDir: filepath.Join(t.TempDir(), "badger")}

	store, isPersistent, err := NewStore(cfg)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	defer func() { _ = store.Close() }()

	if !isPersistent {
		t.Error("expected isPersistent=true for badger dir")
	}
	if _, ok := store.(*BadgerStore); !ok {
		t.Errorf("expected *BadgerStore, got %T", store)
	}
}

func TestFallback_UnwritablePath(t *testing.T) {
	cfg := config.StorageConfig{Backend: "sqlite", DBPath: "/nonexistent/deeply/nested/unwritable/path/test.db"}

	store, isPersistent, err := NewStore(cfg)
	if err != nil {
		t.Fatalf("NewStore should not return error on fallback: %v", err)
	}
	defer func() { _ = store.Close() }()

	if isPersistent {
		t.Error("expected isPersistent=false for unwritable path")
	}
	if _, ok := store.(*state.MemoryStore); !ok {
		t.Errorf("expected *state.MemoryStore fallback, got %T", store)
	}
}

func TestFallback_ExplicitInMemory(t *testing.T) {
	for _, cfg := range []config.StorageConfig{
		{Backend: "memory", DBPath: "/tmp/ignored.db"},
		{Backend: "sqlite", DBPath: ""},
	} {
		store, isPersistent, err := NewStore(cfg)
		if err != nil {
			t.Fatalf("NewStore failed: %v", err)
		}
		if isPersistent {
			t.Errorf("expected isPersistent=false for %+v", cfg)
		}
		if _, ok := store.(*state.MemoryStore); !ok {
			t.Errorf("expected *state.MemoryStore, got %T", store)
		}
		_ = store.Close()
	}
}

func TestFallback_UnknownBackend(t *testing.T) {
	if _, _, err := NewStore(config.StorageConfig{Backend: "postgres"}); err == nil {
		t.Error("expected error for unknown backend")
	}
}
