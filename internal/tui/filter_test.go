package tui

import (
	"testing"

	"github.com/nixlim/fieldwatch/internal/alerts"
)

func TestAlertFilter_Defaults(t *testing.T) {
	f := NewAlertFilter()
	tests := []struct {
		name string
		a    alerts.RiskAlert
		want bool
	}{
		{"active", alerts.RiskAlert{Status: alerts.StatusActive, Severity: alerts.SeverityLow, Type: alerts.TypeDeviceAnomaly}, true},
		{"investigating", alerts.RiskAlert{Status: alerts.StatusInvestigating, Severity: alerts.SeverityHigh, Type: alerts.TypeLocationMismatch}, true},
		{"resolved", alerts.RiskAlert{Status: alerts.StatusResolved, Severity: alerts.SeverityHigh, Type: alerts.TypeLocationMismatch}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.Matches(tt.a); got != tt.want {
				t.Errorf("Matches = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAlertFilter_Survey(t *testing.T) {
	f := NewAlertFilter()
	f.SurveyID = "hh-2026"
	a := alerts.RiskAlert{Status: alerts.StatusActive, Severity: alerts.SeverityLow, Type: alerts.TypeDeviceAnomaly, SurveyID: "nutri-2026"}
	if f.Matches(a) {
		t.Error("alert from another survey should not match")
	}
	a.SurveyID = "hh-2026"
	if !f.Matches(a) {
		t.Error("alert from the scoped survey should match")
	}
}

func TestFilterMenu_MatchesDefaultFilter(t *testing.T) {
	menu := NewFilterMenu()
	if got, want := len(menu.Options), 6+len(alerts.Types); got != want {
		t.Fatalf("options = %d, want %d", got, want)
	}

	var f AlertFilter
	f.SurveyID = "hh-2026"
	menu.Apply(&f)

	def := NewAlertFilter()
	for _, s := range []alerts.Status{alerts.StatusActive, alerts.StatusInvestigating, alerts.StatusResolved} {
		if f.Statuses[s] != def.Statuses[s] {
			t.Errorf("status %s: menu %v, default %v", s, f.Statuses[s], def.Statuses[s])
		}
	}
	for _, typ := range alerts.Types {
		if !f.Types[typ] {
			t.Errorf("type %s should be enabled", typ)
		}
	}
	if f.SurveyID != "hh-2026" {
		t.Error("Apply should keep the survey scope")
	}
}

func TestFilterMenu_ShowResolvedOnly(t *testing.T) {
	menu := NewFilterMenu()
	for i := range menu.Options {
		switch menu.Options[i].Key {
		case "status:active", "status:investigating":
			menu.Options[i].Enabled = false
		case "status:resolved":
			menu.Options[i].Enabled = true
		}
	}
	var f AlertFilter
	menu.Apply(&f)

	resolved := alerts.RiskAlert{Status: alerts.StatusResolved, Severity: alerts.SeverityMedium, Type: alerts.TypeSuspiciousPattern}
	if !f.Matches(resolved) {
		t.Error("resolved alert should match")
	}
	resolved.Status = alerts.StatusActive
	if f.Matches(resolved) {
		t.Error("active alert should not match")
	}
}
