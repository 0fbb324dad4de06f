package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nixlim/fieldwatch/internal/alerts"
	"github.com/nixlim/fieldwatch/internal/state"
	"github.com/nixlim/fieldwatch/internal/survey"
)

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func testResponse(id string, at time.Time) survey.Response {
	return survey.Response{
		ID:          id,
		SurveyID:    "s1",
		SubmittedAt: at,
		Answers:     []survey.Answer{{Question: "q1", Answer: "yes"}},
		Location:    &survey.Location{Latitude: 19.07, Longitude: 72.87, Address: "Mumbai"},
		Device:      survey.DeviceInfo{DeviceID: "d1", UserAgent: "ua", Timestamp: at.Add(-time.Minute)},
		SyncStatus:  survey.SyncSynced,
	}
}

func testAlert(scope string, ids ...string) alerts.RiskAlert {
	a := alerts.NewCandidate(alerts.TypeDuplicateResponses, alerts.SeverityHigh, scope, ids, "dup", map[string]any{"deviceId": scope})
	a.ID = alerts.IDForKey(a.DedupKey)
	a.DetectedAt = base
	return a
}

func openSQLite(t *testing.T, path string) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(path, 0)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	return store
}

func TestSQLiteStore_ImplementsStore(t *testing.T) {
	var _ state.Store = (*SQLiteStore)(nil)
	var _ state.Store = (*BadgerStore)(nil)
}

func TestSQLiteStore_RecoversAfterReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	store := openSQLite(t, dbPath)
	if _, err := store.PutResponses(ctx, []survey.Response{testResponse("r1", base), testResponse("r2", base.Add(time.Minute))}); err != nil {
		t.Fatalf("PutResponses: %v", err)
	}
	a := testAlert("d1", "r1", "r2")
	if err := store.PutAlerts(ctx, []alerts.RiskAlert{a}); err != nil {
		t.Fatalf("PutAlerts: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened := openSQLite(t, dbPath)
	defer func() { _ = reopened.Close() }()

	responses, err := reopened.ListResponses(ctx, state.ResponseQuery{})
	if err != nil {
		t.Fatalf("ListResponses: %v", err)
	}
	if len(responses) != 2 {
		t.Fatalf("expected 2 recovered responses, got %d", len(responses))
	}
	r := responses[0]
	if r.ID != "r1" || r.Location == nil || r.Location.Address != "Mumbai" || !r.SubmittedAt.Equal(base) {
		t.Errorf("response not recovered intact: %+v", r)
	}

	got, ok, err := reopened.GetAlert(ctx, a.ID)
	if err != nil || !ok {
		t.Fatalf("GetAlert: ok=%v err=%v", ok, err)
	}
	if got.DedupKey != a.DedupKey || got.Status != alerts.StatusActive || len(got.AffectedResponses) != 2 {
		t.Errorf("alert not recovered intact: %+v", got)
	}
	if got.Metadata["deviceId"] != "d1" {
		t.Errorf("metadata not recovered: %v", got.Metadata)
	}
}

func TestSQLiteStore_PutAlertsIsAtomic(t *testing.T) {
	store := openSQLite(t, filepath.Join(t.TempDir(), "test.db"))
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	first := testAlert("d1", "r1", "r2")
	if err := store.PutAlerts(ctx, []alerts.RiskAlert{first}); err != nil {
		t.Fatalf("PutAlerts: %v", err)
	}

	// A different id reusing an existing dedup key violates the unique index,
	// so the whole batch must be rejected.
	ok := testAlert("d2", "r3", "r4")
	clash := testAlert("d1", "r1", "r2")
	clash.ID = "other-id"
	err := store.PutAlerts(ctx, []alerts.RiskAlert{ok, clash})
	if err == nil {
		t.Fatal("expected PutAlerts to fail on dedup key clash")
	}

	if _, found, _ := store.GetAlert(ctx, ok.ID); found {
		t.Error("memory view must not contain alerts from a failed batch")
	}
	var count int
	if err := store.db.QueryRow("SELECT COUNT(*) FROM alerts").Scan(&count); err != nil {
		t.Fatalf("count query: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 alert row after rollback, got %d", count)
	}
}

func TestSQLiteStore_UpdateAlertStatus(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store := openSQLite(t, dbPath)
	ctx := context.Background()

	a := testAlert("d1", "r1", "r2")
	_ = store.PutAlerts(ctx, []alerts.RiskAlert{a})
	resolvedAt := base.Add(time.Hour)
	a.Status = alerts.StatusResolved
	a.ResolvedAt = &resolvedAt
	a.Resolution = alerts.ResolutionFalsePositive
	a.ResolutionNotes = "verified manually"
	if err := store.PutAlerts(ctx, []alerts.RiskAlert{a}); err != nil {
		t.Fatalf("PutAlerts update: %v", err)
	}
	_ = store.Close()

	reopened := openSQLite(t, dbPath)
	defer func() { _ = reopened.Close() }()

	var status string
	if err := reopened.db.QueryRow("SELECT status FROM alerts WHERE id = ?", a.ID).Scan(&status); err != nil {
		t.Fatalf("status query: %v", err)
	}
	if status != "resolved" {
		t.Errorf("expected status column resolved, got %q", status)
	}
	got, _, _ := reopened.GetAlert(ctx, a.ID)
	if got.ResolvedAt == nil || !got.ResolvedAt.Equal(resolvedAt) || got.Resolution != alerts.ResolutionFalsePositive {
		t.Errorf("resolution not persisted: %+v", got)
	}
}

func TestSQLiteStore_ManagerIntegration(t *testing.T) {
	store := openSQLite(t, filepath.Join(t.TempDir(), "test.db"))
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	m := alerts.NewManager(store)
	candidates := []alerts.RiskAlert{testAlert("d1", "r1", "r2"), testAlert("d2", "r3", "r4")}
	created, err := m.Apply(ctx, candidates)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("expected 2 created, got %d", len(created))
	}
	again, err := m.Apply(ctx, candidates)
	if err != nil || len(again) != 0 {
		t.Fatalf("second Apply should create nothing: %v, %d", err, len(again))
	}

	if _, err := m.Resolve(ctx, created[0].ID, alerts.ResolutionFalsePositive, "verified manually"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	_, err = m.Resolve(ctx, created[0].ID, alerts.ResolutionFalsePositive, "again")
	if !errors.Is(err, alerts.ErrAlreadyResolved) {
		t.Errorf("expected ErrAlreadyResolved, got %v", err)
	}
}

func TestSQLiteStore_DeleteResponsesBefore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store := openSQLite(t, dbPath)
	ctx := context.Background()

	_, _ = store.PutResponses(ctx, []survey.Response{
		testResponse("old", base.Add(-72*time.Hour)),
		testResponse("new", base),
	})
	// Let the writer flush before pruning the table.
	time.Sleep(3 * flushInterval)

	removed, err := store.DeleteResponsesBefore(ctx, base.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteResponsesBefore: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 removed, got %d", removed)
	}
	_ = store.Close()

	db, err := OpenDB(dbPath)
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	defer func() { _ = db.Close() }()
	var count int
	_ = db.QueryRow("SELECT COUNT(*) FROM responses").Scan(&count)
	if count != 1 {
		t.Errorf("expected 1 response row, got %d", count)
	}
}

func TestSQLiteStore_RetentionOnRecovery(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	now := time.Now().UTC()

	store := openSQLite(t, dbPath)
	_, _ = store.PutResponses(context.Background(), []survey.Response{
		testResponse("ancient", now.AddDate(0, 0, -30)),
		testResponse("recent", now.Add(-time.Hour)),
	})
	_ = store.Close()

	reopened, err := NewSQLiteStore(dbPath, 7)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	list, _ := reopened.ListResponses(context.Background(), state.ResponseQuery{})
	if len(list) != 1 || list[0].ID != "recent" {
		t.Errorf("expected only the recent response to load, got %+v", list)
	}
}

func TestSQLiteStore_ListenersFireOnPut(t *testing.T) {
	store := openSQLite(t, filepath.Join(t.TempDir(), "test.db"))
	defer func() { _ = store.Close() }()

	var seen int
	store.OnResponses(func(batch []survey.Response) { seen += len(batch) })
	_, _ = store.PutResponses(context.Background(), []survey.Response{testResponse("r1", base)})

	if seen != 1 {
		t.Errorf("expected listener to see 1 response, got %d", seen)
	}
}
