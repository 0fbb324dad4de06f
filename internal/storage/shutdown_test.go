package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/nixlim/fieldwatch/internal/survey"
)

func TestSQLiteStore_Close_FlushesWrites(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store := openSQLite(t, dbPath)

	for i := range 120 {
		r := testResponse(fmt.Sprintf("r-%03d", i), base.Add(time.Duration(i)*time.Second))
		_, _ = store.PutResponses(context.Background(), []survey.Response{r})
	}

	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	db, err := OpenDB(dbPath)
	if err != nil {
		t.Fatalf("OpenDB failed: %v", err)
	}
	defer func() { _ = db.Close() }()

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM responses").Scan(&count); err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if count != 120 {
		t.Errorf("not all writes flushed: want 120, got %d", count)
	}
}

func TestSQLiteStore_Close_Idempotent(t *testing.T) {
	store := openSQLite(t, filepath.Join(t.TempDir(), "test.db"))
	if err := store.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}
}

func TestSQLiteStore_DroppedWrites(t *testing.T) {
	store, err := newSQLiteStoreWithChannelSize(filepath.Join(t.TempDir(), "test.db"), 1, 0)
	if err != nil {
		t.Fatalf("newSQLiteStoreWithChannelSize failed: %v", err)
	}
	defer func() { _ = store.Close() }()

	batch := make([]survey.Response, 200)
	for i := range batch {
		batch[i] = testResponse(fmt.Sprintf("r-%d", i), base)
	}
	_, _ = store.PutResponses(context.Background(), batch)

	if store.DroppedWrites() == 0 {
		t.Error("expected some writes to be dropped with a channel of size 1")
	}
	n, _ := store.Counts()
	if n != 200 {
		t.Errorf("memory view should hold all responses, got %d", n)
	}
}

func TestSQLiteStore_WritesAfterCloseIgnored(t *testing.T) {
	store := openSQLite(t, filepath.Join(t.TempDir(), "test.db"))
	_ = store.Close()

	store.sendWrite(writeOp{opType: opResponse})
	if err := store.PutAlerts(context.Background(), nil); err == nil {
		t.Error("PutAlerts after Close should fail")
	}
}
