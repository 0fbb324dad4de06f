package alerts

import (
	"sync"
	"testing"
)

func TestTruncateID(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "long ID is truncated",
			input: "survey-1234567890abcdef",
			want:  "survey-12345...",
		},
		{
			name:  "short ID unchanged",
			input: "survey-1",
			want:  "survey-1",
		},
		{
			name:  "exactly 12 chars unchanged",
			input: "123456789012",
			want:  "123456789012",
		},
		{
			name:  "13 chars truncated",
			input: "1234567890123",
			want:  "123456789012...",
		},
		{
			name:  "empty string",
			input: "",
			want:  "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := truncateID(tc.input)
			if got != tc.want {
				t.Errorf("truncateID(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestEscapeAppleScript(t *testing.T) {
	escaped := escapeAppleScript(`He said "hello" and \n stuff`)
	expected := `He said \"hello\" and \\n stuff`
	if escaped != expected {
		t.Errorf("escapeAppleScript: expected %q, got %q", expected, escaped)
	}
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []RiskAlert
}

func (r *recordingNotifier) Notify(a RiskAlert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.alerts)
}

func TestNotificationListener_FiltersBySeverityAndKind(t *testing.T) {
	rec := &recordingNotifier{}
	l := NotificationListener(SeverityMedium, rec)

	l(Event{Kind: EventCreated, Alert: RiskAlert{ID: "low", Severity: SeverityLow}})
	l(Event{Kind: EventCreated, Alert: RiskAlert{ID: "med", Severity: SeverityMedium}})
	l(Event{Kind: EventCreated, Alert: RiskAlert{ID: "high", Severity: SeverityHigh}})
	l(Event{Kind: EventResolved, Alert: RiskAlert{ID: "res", Severity: SeverityHigh}})

	if rec.count() != 2 {
		t.Fatalf("want 2 notifications, got %d", rec.count())
	}
	if rec.alerts[0].ID != "med" || rec.alerts[1].ID != "high" {
		t.Errorf("unexpected notified alerts: %s, %s", rec.alerts[0].ID, rec.alerts[1].ID)
	}
}

func TestNotificationBody(t *testing.T) {
	a := RiskAlert{Message: "Multiple responses", SurveyID: "water-2026"}
	if got := notificationBody(a); got != "Survey: water-2026\nMultiple responses" {
		t.Errorf("notificationBody: got %q", got)
	}
	a.SurveyID = ""
	if got := notificationBody(a); got != "Multiple responses" {
		t.Errorf("notificationBody without survey: got %q", got)
	}
	if got := notificationTitle(RiskAlert{Type: TypeDeviceAnomaly, Severity: SeverityMedium}); got != "fieldwatch: Device Anomaly (medium)" {
		t.Errorf("notificationTitle: got %q", got)
	}
}
