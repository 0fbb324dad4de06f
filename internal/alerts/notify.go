package alerts

import (
	"fmt"
	"strings"
)

// Notifier sends alert notifications. Implementations must be non-blocking.
type Notifier interface {
	Notify(alert RiskAlert)
}

// NotificationListener returns a lifecycle listener that forwards newly
// created alerts at or above minSeverity to every notifier.
func NotificationListener(minSeverity Severity, notifiers ...Notifier) Listener {
	return func(ev Event) {
		if ev.Kind != EventCreated {
			return
		}
		if ev.Alert.Severity.Rank() < minSeverity.Rank() {
			return
		}
		for _, n := range notifiers {
			n.Notify(ev.Alert)
		}
	}
}

// notificationTitle is the headline shown by desktop notifiers.
func notificationTitle(a RiskAlert) string {
	return fmt.Sprintf("fieldwatch: %s (%s)", a.Type.Label(), a.Severity)
}

// notificationBody prefixes the alert message with its survey, if known.
func notificationBody(a RiskAlert) string {
	if a.SurveyID == "" {
		return a.Message
	}
	return fmt.Sprintf("Survey: %s\n%s", truncateID(a.SurveyID), a.Message)
}

// truncateID shortens an identifier for display in notifications.
func truncateID(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:12] + "..."
}

// escapeAppleScript escapes characters that could break AppleScript strings.
func escapeAppleScript(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}
