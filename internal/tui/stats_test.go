package tui

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/nixlim/fieldwatch/internal/alerts"
	"github.com/nixlim/fieldwatch/internal/config"
	"github.com/nixlim/fieldwatch/internal/stats"
)

func TestRenderStats_Empty(t *testing.T) {
	m := NewModel(config.DefaultConfig(), WithStartView(ViewStats))
	m.width = 120
	m.height = 60

	view := m.renderStats()
	for _, want := range []string{"[Stats]", "Overview", "By Status", "No alerts", "No open high-severity alerts", "No located alerts"} {
		if !strings.Contains(view, want) {
			t.Errorf("empty stats missing %q", want)
		}
	}
	if !strings.Contains(view, "Mean time to resolve: n/a") {
		t.Error("MTTR should be n/a without resolved alerts")
	}
}

func TestRenderStats_WithData(t *testing.T) {
	mgr, high, low := newTestManager(t)
	if _, err := mgr.Resolve(context.Background(), low.ID, alerts.ResolutionFalsePositive, "training data"); err != nil {
		t.Fatal(err)
	}
	m := newTestModel(t, mgr, WithStartView(ViewStats))
	m.height = 80

	view := stripAnsi(m.View())
	for _, want := range []string{
		"Total alerts:        2",
		"Duplicate Responses",
		"false_positive",
		truncateID(high.ID, 8),
		"Pune",
		"(1 high)",
	} {
		if !strings.Contains(view, want) {
			t.Errorf("stats view missing %q", want)
		}
	}
}

func TestRenderStats_Scroll(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	m := newTestModel(t, mgr, WithStartView(ViewStats))
	m.height = 8

	m, _ = press(t, m, "down", "down", "down")
	if m.statsScrollPos != 3 {
		t.Fatalf("scroll = %d, want 3", m.statsScrollPos)
	}
	if strings.Contains(m.View(), "Overview") {
		t.Error("scrolled view should have moved past the overview title")
	}
	m, _ = press(t, m, "up")
	if m.statsScrollPos != 2 {
		t.Errorf("scroll = %d, want 2", m.statsScrollPos)
	}
}

func TestRenderOverviewSection_MTTR(t *testing.T) {
	out := renderOverviewSection(stats.DashboardStats{Total: 4, MeanTimeToResolve: 90 * time.Minute})
	if !strings.Contains(out, "1h30m") {
		t.Errorf("overview = %q, want MTTR 1h30m", out)
	}
}

func TestRenderProgressBar(t *testing.T) {
	tests := []struct {
		ratio  float64
		filled int
	}{
		{0, 0},
		{0.5, 10},
		{1, 20},
		{1.7, 20},
		{-0.2, 0},
	}
	for _, tt := range tests {
		bar := renderProgressBar(tt.ratio, 20)
		if got := strings.Count(bar, "█"); got != tt.filled {
			t.Errorf("ratio %.1f: filled = %d, want %d", tt.ratio, got, tt.filled)
		}
		if got := strings.Count(bar, "█") + strings.Count(bar, "░"); got != 20 {
			t.Errorf("ratio %.1f: width = %d, want 20", tt.ratio, got)
		}
	}
}
