//go:build darwin

package alerts

import (
	"fmt"
	"os/exec"

	"github.com/nixlim/fieldwatch/internal/logging"
	"github.com/nixlim/fieldwatch/internal/metrics"
)

// OSAScriptNotifier sends macOS system notifications via osascript.
// Notifications are sent in a background goroutine so a slow notification
// centre never holds up the alert manager.
type OSAScriptNotifier struct {
	// enabled controls whether notifications are actually sent.
	// When false, Notify is a no-op.
	enabled bool
}

// NewOSAScriptNotifier creates a new macOS notification sender.
// If enabled is false, notifications are silently dropped.
func NewOSAScriptNotifier(enabled bool) *OSAScriptNotifier {
	return &OSAScriptNotifier{enabled: enabled}
}

// NewPlatformNotifier creates the platform-appropriate notifier for macOS.
func NewPlatformNotifier(enabled bool) Notifier {
	return NewOSAScriptNotifier(enabled)
}

// Notify sends a macOS notification for the given alert.
func (n *OSAScriptNotifier) Notify(alert RiskAlert) {
	if !n.enabled {
		return
	}

	title := notificationTitle(alert)
	subtitle := ""
	if alert.SurveyID != "" {
		subtitle = fmt.Sprintf("Survey: %s", truncateID(alert.SurveyID))
	}
	message := alert.Message

	go func() {
		if err := sendOSANotification(title, subtitle, message); err != nil {
			metrics.NotifierFailures.WithLabelValues("osascript").Inc()
			logging.Warn().Err(err).Str("alert", alert.ID).Msg("failed to send macOS notification")
		}
	}()
}

func sendOSANotification(title, subtitle, message string) error {
	title = escapeAppleScript(title)
	subtitle = escapeAppleScript(subtitle)
	message = escapeAppleScript(message)

	script := fmt.Sprintf(
		`display notification "%s" with title "%s"`,
		message, title,
	)
	if subtitle != "" {
		script = fmt.Sprintf(
			`display notification "%s" with title "%s" subtitle "%s"`,
			message, title, subtitle,
		)
	}

	cmd := exec.Command("osascript", "-e", script)
	return cmd.Run()
}
