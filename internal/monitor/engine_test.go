package monitor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/nixlim/fieldwatch/internal/alerts"
	"github.com/nixlim/fieldwatch/internal/risk"
	"github.com/nixlim/fieldwatch/internal/state"
	"github.com/nixlim/fieldwatch/internal/survey"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func response(id, device string, at time.Time) survey.Response {
	return survey.Response{
		ID:          id,
		SurveyID:    "s1",
		SubmittedAt: at,
		Answers:     []survey.Answer{{Question: "q1", Answer: "yes"}},
		Device:      survey.DeviceInfo{DeviceID: device, UserAgent: "Mozilla/5.0 (Linux; Android 14)"},
		SyncStatus:  survey.SyncSynced,
	}
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *state.MemoryStore, *alerts.Manager) {
	t.Helper()
	store := state.NewMemoryStore()
	manager := alerts.NewManager(store, alerts.WithClock(func() time.Time { return base }))
	detector := risk.NewDetector(risk.DefaultConfig(), nil, risk.WithClock(func() time.Time { return base }))
	return New(store, manager, detector, opts...), store, manager
}

func TestRefresh_CreatesThenDeduplicates(t *testing.T) {
	e, store, manager := newTestEngine(t)
	ctx := context.Background()

	_, _ = store.PutResponses(ctx, []survey.Response{
		response("r1", "dev-1", base),
		response("r2", "dev-1", base.Add(2*time.Minute)),
	})

	sum, err := e.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if sum.Analyzed != 2 || sum.Candidates != 1 || len(sum.Created) != 1 || sum.Known != 0 {
		t.Fatalf("unexpected first summary: %+v", sum)
	}

	list, _ := manager.List(ctx, alerts.Filter{})
	if len(list) != 1 || list[0].Type != alerts.TypeDuplicateResponses || list[0].Severity != alerts.SeverityHigh {
		t.Fatalf("unexpected alerts: %+v", list)
	}

	sum, err = e.Refresh(ctx)
	if err != nil {
		t.Fatalf("second Refresh: %v", err)
	}
	if len(sum.Created) != 0 || sum.Known != 1 {
		t.Errorf("second refresh should only find known candidates: %+v", sum)
	}

	last, ok := e.LastSummary()
	if !ok || last.Known != 1 {
		t.Errorf("LastSummary not updated: %+v", last)
	}
}

func TestRefresh_StreamingBurstStaysOneAlert(t *testing.T) {
	e, store, manager := newTestEngine(t)
	ctx := context.Background()

	arrivals := []survey.Response{
		response("r1", "dev-1", base),
		response("r2", "dev-1", base.Add(2*time.Minute)),
		response("r3", "dev-1", base.Add(4*time.Minute)),
		response("r4", "dev-1", base.Add(9*time.Minute)),
	}
	var extended int
	for i, r := range arrivals {
		_, _ = store.PutResponses(ctx, []survey.Response{r})
		sum, err := e.Refresh(ctx)
		if err != nil {
			t.Fatalf("Refresh after %s: %v", r.ID, err)
		}
		if i > 1 && len(sum.Created) != 0 {
			t.Errorf("refresh after %s created %v, want the burst extended", r.ID, sum.Created)
		}
		extended += len(sum.Extended)
	}

	list, _ := manager.List(ctx, alerts.Filter{Type: alerts.TypeDuplicateResponses})
	if len(list) != 1 {
		t.Fatalf("want one duplicate alert for the burst, got %d", len(list))
	}
	if got := list[0].AffectedResponses; len(got) != 4 {
		t.Errorf("burst alert should cover every response, got %v", got)
	}
	if list[0].Severity != alerts.SeverityHigh {
		t.Errorf("severity: got %s", list[0].Severity)
	}
	if extended != 2 {
		t.Errorf("want 2 extensions, got %d", extended)
	}
}

func TestRefresh_StreamingSurveyPatternStaysOneAlert(t *testing.T) {
	e, store, manager := newTestEngine(t)
	ctx := context.Background()

	answers := []survey.Answer{
		{Question: "q1", Answer: "yes"}, {Question: "q2", Answer: "no"}, {Question: "q3", Answer: "2"},
		{Question: "q4", Answer: "yes"}, {Question: "q5", Answer: "none"},
	}
	for i := range 6 {
		at := base.Add(time.Duration(i) * 20 * time.Minute)
		r := response(fmt.Sprintf("r%d", i+1), fmt.Sprintf("dev-%d", i+1), at)
		r.StartedAt = at.Add(-45 * time.Second)
		r.Answers = answers
		_, _ = store.PutResponses(ctx, []survey.Response{r})
		if _, err := e.Refresh(ctx); err != nil {
			t.Fatalf("Refresh %d: %v", i+1, err)
		}
	}

	for _, typ := range []alerts.Type{alerts.TypeSuspiciousPattern, alerts.TypeDeviceAnomaly} {
		list, _ := manager.List(ctx, alerts.Filter{Type: typ})
		if len(list) != 1 {
			t.Errorf("%s: want one alert, got %d", typ, len(list))
			continue
		}
		if n := len(list[0].AffectedResponses); n != 6 {
			t.Errorf("%s: want 6 affected responses, got %d", typ, n)
		}
	}
}

func TestRefresh_NarrowedQueryCreatesNothing(t *testing.T) {
	store := state.NewMemoryStore()
	manager := alerts.NewManager(store, alerts.WithClock(func() time.Time { return base }))
	detector := risk.NewDetector(risk.DefaultConfig(), nil, risk.WithClock(func() time.Time { return base }))
	ctx := context.Background()

	_, _ = store.PutResponses(ctx, []survey.Response{
		response("r1", "dev-1", base),
		response("r2", "dev-1", base.Add(time.Minute)),
		response("r3", "dev-1", base.Add(2*time.Minute)),
	})
	if _, err := New(store, manager, detector).Refresh(ctx); err != nil {
		t.Fatal(err)
	}

	narrow := New(store, manager, detector, WithQuery(state.ResponseQuery{Since: base.Add(30 * time.Second)}))
	sum, err := narrow.Refresh(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(sum.Created) != 0 || sum.Known != 1 {
		t.Errorf("a narrower window should only find the known burst: %+v", sum)
	}
}

func TestRefresh_ResolvedAlertNotReopened(t *testing.T) {
	e, store, manager := newTestEngine(t)
	ctx := context.Background()

	_, _ = store.PutResponses(ctx, []survey.Response{
		response("r1", "dev-1", base),
		response("r2", "dev-1", base.Add(time.Minute)),
	})
	sum, _ := e.Refresh(ctx)
	if _, err := manager.Resolve(ctx, sum.Created[0], alerts.ResolutionFalsePositive, "same household, two members"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	sum, err := e.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(sum.Created) != 0 {
		t.Errorf("resolved alert must not be recreated: %+v", sum)
	}
	open, _ := manager.List(ctx, alerts.Filter{Status: alerts.StatusActive})
	if len(open) != 0 {
		t.Errorf("expected no active alerts, got %d", len(open))
	}
}

func TestRefresh_QueryRestrictsResponses(t *testing.T) {
	e, store, _ := newTestEngine(t, WithQuery(state.ResponseQuery{SurveyID: "other"}))
	ctx := context.Background()

	_, _ = store.PutResponses(ctx, []survey.Response{
		response("r1", "dev-1", base),
		response("r2", "dev-1", base.Add(time.Minute)),
	})
	sum, err := e.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if sum.Analyzed != 0 || len(sum.Created) != 0 {
		t.Errorf("expected nothing analysed for another survey, got %+v", sum)
	}
}

func TestRefresh_Cancelled(t *testing.T) {
	e, store, manager := newTestEngine(t)
	_, _ = store.PutResponses(context.Background(), []survey.Response{
		response("r1", "dev-1", base),
		response("r2", "dev-1", base.Add(time.Minute)),
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Refresh(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if list, _ := manager.List(context.Background(), alerts.Filter{}); len(list) != 0 {
		t.Errorf("cancelled refresh must not write alerts, got %d", len(list))
	}
	if _, ok := e.LastSummary(); ok {
		t.Error("cancelled refresh must not be recorded")
	}
}

func TestEngine_StartRunsInitialRefresh(t *testing.T) {
	e, store, manager := newTestEngine(t)
	_, _ = store.PutResponses(context.Background(), []survey.Response{
		response("r1", "dev-1", base),
		response("r2", "dev-1", base.Add(time.Minute)),
	})

	e.Start(context.Background())
	defer e.Stop()

	waitFor(t, func() bool {
		list, _ := manager.List(context.Background(), alerts.Filter{})
		return len(list) == 1
	})
}

func TestEngine_IngestTrigger(t *testing.T) {
	e, store, manager := newTestEngine(t, WithIngestTrigger())
	e.debounce = 10 * time.Millisecond

	e.Start(context.Background())
	defer e.Stop()

	// Wait for the initial, empty refresh so the trigger is what creates the alert.
	waitFor(t, func() bool { _, ok := e.LastSummary(); return ok })

	_, _ = store.PutResponses(context.Background(), []survey.Response{
		response("r1", "dev-1", base),
		response("r2", "dev-1", base.Add(time.Minute)),
	})

	waitFor(t, func() bool {
		list, _ := manager.List(context.Background(), alerts.Filter{})
		return len(list) == 1
	})
}

func TestEngine_StopIdempotent(t *testing.T) {
	e, _, _ := newTestEngine(t, WithInterval(time.Hour))
	e.Stop()
	e.Start(context.Background())
	e.Start(context.Background())
	e.Stop()
	e.Stop()
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within 2s")
}
