package events

import (
	"strings"
	"testing"
	"time"

	"github.com/nixlim/fieldwatch/internal/alerts"
)

var at = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func sampleAlert() alerts.RiskAlert {
	a := alerts.NewCandidate(alerts.TypeDuplicateResponses, alerts.SeverityHigh, "dev-1",
		[]string{"r1", "r2"}, "Multiple responses from the same device within 2 minutes", nil)
	a.ID = "0123456789abcdef"
	a.SurveyID = "s1"
	return a
}

func TestEventFormat_Created(t *testing.T) {
	fe := FormatEvent(alerts.Event{Kind: alerts.EventCreated, At: at, Alert: sampleAlert()})

	expected := "[01234567] HIGH Duplicate Responses: Multiple responses from the same device within 2 minutes (2 responses)"
	if fe.Formatted != expected {
		t.Errorf("expected %q, got %q", expected, fe.Formatted)
	}
	if fe.Kind != "created" || fe.AlertID != "0123456789abcdef" || fe.SurveyID != "s1" || fe.Severity != "high" {
		t.Errorf("unexpected metadata: %+v", fe)
	}
	if !fe.Timestamp.Equal(at) {
		t.Errorf("expected timestamp %v, got %v", at, fe.Timestamp)
	}
}

func TestEventFormat_Transitions(t *testing.T) {
	resolved := sampleAlert()
	resolved.Resolution = alerts.ResolutionDataCorrected

	noted := sampleAlert()
	noted.Notes = []alerts.Note{{Text: "checked with\nsupervisor", Author: "asha"}}

	anonymous := sampleAlert()
	anonymous.Notes = []alerts.Note{{Text: "looks fine"}}

	contacted := sampleAlert()
	contacted.Contacts = []alerts.Contact{{Message: "Please re-verify the household"}}

	tests := []struct {
		name string
		ev   alerts.Event
		want string
	}{
		{"extended", alerts.Event{Kind: alerts.EventExtended, Alert: sampleAlert()}, "[01234567] extended to 2 responses"},
		{"investigating", alerts.Event{Kind: alerts.EventInvestigating, Alert: sampleAlert()}, "[01234567] investigating"},
		{"resolved", alerts.Event{Kind: alerts.EventResolved, Alert: resolved}, "[01234567] resolved as data_corrected"},
		{"note with author", alerts.Event{Kind: alerts.EventNoteAdded, Alert: noted}, "[01234567] note by asha: checked with supervisor"},
		{"note without author", alerts.Event{Kind: alerts.EventNoteAdded, Alert: anonymous}, "[01234567] note: looks fine"},
		{"escalated", alerts.Event{Kind: alerts.EventEscalated, Alert: sampleAlert(), Detail: "policy_violation"}, "[01234567] escalated (policy_violation)"},
		{"contacted", alerts.Event{Kind: alerts.EventConductorContacted, Alert: contacted}, "[01234567] conductor contacted: Please re-verify the household"},
		{"unknown kind", alerts.Event{Kind: "archived", Alert: sampleAlert()}, "[01234567] archived"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatEvent(tt.ev).Formatted; got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestEventFormat_SingleResponse(t *testing.T) {
	a := sampleAlert()
	a.Type = alerts.TypeLocationMismatch
	a.Severity = alerts.SeverityMedium
	a.AffectedResponses = []string{"r9"}
	a.Message = "Response collected outside expected area"

	got := FormatEvent(alerts.Event{Kind: alerts.EventCreated, Alert: a}).Formatted
	if !strings.HasSuffix(got, "(1 response)") {
		t.Errorf("expected singular response count, got %q", got)
	}
	if !strings.Contains(got, "MEDIUM Location Mismatch") {
		t.Errorf("expected severity and type label, got %q", got)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly ten", 11, "exactly ten"},
		{"this is far too long", 10, "this is..."},
		{"abcdef", 3, "abc"},
		{"multi\nline  text", 20, "multi line text"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}
