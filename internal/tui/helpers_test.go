package tui

import (
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nixlim/fieldwatch/internal/alerts"
	"github.com/nixlim/fieldwatch/internal/config"
	"github.com/nixlim/fieldwatch/internal/events"
	"github.com/nixlim/fieldwatch/internal/monitor"
	"github.com/nixlim/fieldwatch/internal/state"
	"github.com/nixlim/fieldwatch/internal/survey"
)

var testNow = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

type mockEventProvider struct {
	events []events.FormattedEvent
}

func (m *mockEventProvider) Recent(limit int) []events.FormattedEvent {
	if limit > 0 && len(m.events) > limit {
		return m.events[len(m.events)-limit:]
	}
	return m.events
}

type mockRefresher struct {
	summary monitor.Summary
	err     error
	calls   int
}

func (m *mockRefresher) Refresh(context.Context) (monitor.Summary, error) {
	m.calls++
	return m.summary, m.err
}

type mockWriteMonitor struct{ dropped int64 }

func (m mockWriteMonitor) DroppedWrites() int64 { return m.dropped }

// newTestManager returns a manager over a memory store holding a high
// duplicate alert (newest) and a low pattern alert one hour older.
func newTestManager(t *testing.T) (*alerts.Manager, alerts.RiskAlert, alerts.RiskAlert) {
	t.Helper()
	mgr := alerts.NewManager(state.NewMemoryStore(), alerts.WithClock(fixedClock))
	if err := mgr.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}

	dup := alerts.NewCandidate(alerts.TypeDuplicateResponses, alerts.SeverityHigh, "dev-1",
		[]string{"r1", "r2"}, "2 responses from one device within 3 minutes", nil)
	dup.SurveyID = "hh-2026"
	dup.DetectedAt = testNow
	dup.Location = &survey.Location{Latitude: 18.5204, Longitude: 73.8567, Address: "Pune"}

	pat := alerts.NewCandidate(alerts.TypeSuspiciousPattern, alerts.SeverityLow, "nutri-2026",
		[]string{"r7", "r8", "r9"}, "3 responses share identical answers", nil)
	pat.SurveyID = "nutri-2026"
	pat.DetectedAt = testNow.Add(-time.Hour)

	created, err := mgr.Apply(context.Background(), []alerts.RiskAlert{dup, pat})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("Apply created %d alerts, want 2", len(created))
	}
	return mgr, created[0], created[1]
}

func newTestModel(t *testing.T, mgr AlertManager, opts ...ModelOption) Model {
	t.Helper()
	opts = append([]ModelOption{WithAlertManager(mgr), WithClock(fixedClock)}, opts...)
	m := NewModel(config.DefaultConfig(), opts...)
	m.width = 120
	m.height = 40
	return m
}

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "backspace":
		return tea.KeyMsg{Type: tea.KeyBackspace}
	case "left":
		return tea.KeyMsg{Type: tea.KeyLeft}
	case "ctrl+w":
		return tea.KeyMsg{Type: tea.KeyCtrlW}
	case " ":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// press sends keys in order and returns the final model and last command.
func press(t *testing.T, m Model, keys ...string) (Model, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, k := range keys {
		var result tea.Model
		result, cmd = m.Update(keyMsg(k))
		m = result.(Model)
	}
	return m, cmd
}

// run executes cmd and feeds its message back into the model.
func run(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	if cmd == nil {
		t.Fatal("expected a command")
	}
	result, _ := m.Update(cmd())
	return result.(Model)
}
