//go:build darwin

package alerts

import (
	"testing"
	"time"
)

func TestAlertNotification_OSAScript(t *testing.T) {
	// Disabled notifier: nothing is executed, so no UI popups in tests.
	notifier := NewOSAScriptNotifier(false)

	alert := RiskAlert{
		ID:         "a-1",
		Type:       TypeLocationMismatch,
		Severity:   SeverityMedium,
		Message:    `Response collected 15.2 km from "Urban Zone B"`,
		SurveyID:   "survey-notification-test-1234567890",
		DetectedAt: time.Now(),
	}
	notifier.Notify(alert)

	if NewOSAScriptNotifier(true).enabled != true {
		t.Error("expected notifier to be enabled")
	}
	if _, ok := NewPlatformNotifier(false).(*OSAScriptNotifier); !ok {
		t.Error("expected the macOS platform notifier")
	}
}
