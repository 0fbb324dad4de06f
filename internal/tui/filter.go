package tui

import (
	"strings"

	"github.com/nixlim/fieldwatch/internal/alerts"
)

// AlertFilter holds the current filter state for the alert list panel.
type AlertFilter struct {
	// Statuses, Severities and Types are the values to display. An empty
	// map shows everything for that dimension.
	Statuses   map[alerts.Status]bool
	Severities map[alerts.Severity]bool
	Types      map[alerts.Type]bool

	// SurveyID limits the list to one survey. Empty means all surveys.
	SurveyID string
}

// NewAlertFilter returns a filter that shows every open alert.
func NewAlertFilter() AlertFilter {
	f := AlertFilter{
		Statuses:   map[alerts.Status]bool{alerts.StatusActive: true, alerts.StatusInvestigating: true},
		Severities: make(map[alerts.Severity]bool),
		Types:      make(map[alerts.Type]bool),
	}
	for _, s := range []alerts.Severity{alerts.SeverityLow, alerts.SeverityMedium, alerts.SeverityHigh} {
		f.Severities[s] = true
	}
	for _, t := range alerts.Types {
		f.Types[t] = true
	}
	return f
}

// Matches returns true if the alert passes this filter.
func (f *AlertFilter) Matches(a alerts.RiskAlert) bool {
	if f.SurveyID != "" && a.SurveyID != f.SurveyID {
		return false
	}
	if len(f.Statuses) > 0 && !f.Statuses[a.Status] {
		return false
	}
	if len(f.Severities) > 0 && !f.Severities[a.Severity] {
		return false
	}
	if len(f.Types) > 0 && !f.Types[a.Type] {
		return false
	}
	return true
}

// FilterMenuState tracks the interactive filter menu.
type FilterMenuState struct {
	Active  bool
	Cursor  int
	Options []FilterOption
}

// FilterOption represents one toggleable filter option in the filter menu.
// Key is "<dimension>:<value>", e.g. "severity:high".
type FilterOption struct {
	Label   string
	Key     string
	Enabled bool
}

// NewFilterMenu creates a filter menu matching NewAlertFilter.
func NewFilterMenu() FilterMenuState {
	opts := []FilterOption{
		{Label: "Active", Key: "status:active", Enabled: true},
		{Label: "Investigating", Key: "status:investigating", Enabled: true},
		{Label: "Resolved", Key: "status:resolved", Enabled: false},
		{Label: "High severity", Key: "severity:high", Enabled: true},
		{Label: "Medium severity", Key: "severity:medium", Enabled: true},
		{Label: "Low severity", Key: "severity:low", Enabled: true},
	}
	for _, t := range alerts.Types {
		opts = append(opts, FilterOption{Label: t.Label(), Key: "type:" + string(t), Enabled: true})
	}
	return FilterMenuState{Options: opts}
}

// Apply rebuilds f from the menu's options, keeping the survey scope.
func (fm FilterMenuState) Apply(f *AlertFilter) {
	f.Statuses = make(map[alerts.Status]bool)
	f.Severities = make(map[alerts.Severity]bool)
	f.Types = make(map[alerts.Type]bool)

	for _, opt := range fm.Options {
		dim, value, _ := strings.Cut(opt.Key, ":")
		switch dim {
		case "status":
			f.Statuses[alerts.Status(value)] = opt.Enabled
		case "severity":
			f.Severities[alerts.Severity(value)] = opt.Enabled
		case "type":
			f.Types[alerts.Type(value)] = opt.Enabled
		}
	}
}
