//go:build linux

package alerts

import (
	"os/exec"

	"github.com/nixlim/fieldwatch/internal/logging"
	"github.com/nixlim/fieldwatch/internal/metrics"
)

// NotifySendNotifier sends Linux desktop notifications via notify-send.
// Notifications are sent in a background goroutine so a slow notification
// daemon never holds up the alert manager.
type NotifySendNotifier struct {
	// enabled controls whether notifications are actually sent.
	// When false, Notify is a no-op.
	enabled bool
}

// NewNotifySendNotifier creates a new Linux notification sender.
// If enabled is false, notifications are silently dropped.
func NewNotifySendNotifier(enabled bool) *NotifySendNotifier {
	return &NotifySendNotifier{enabled: enabled}
}

// NewPlatformNotifier creates the platform-appropriate notifier for Linux.
func NewPlatformNotifier(enabled bool) Notifier {
	return NewNotifySendNotifier(enabled)
}

// Notify sends a Linux desktop notification for the given alert.
func (n *NotifySendNotifier) Notify(alert RiskAlert) {
	if !n.enabled {
		return
	}

	title := notificationTitle(alert)
	body := notificationBody(alert)
	urgency := urgencyFor(alert.Severity)

	go func() {
		if err := sendNotifySend(title, body, urgency); err != nil {
			metrics.NotifierFailures.WithLabelValues("notify-send").Inc()
			logging.Warn().Err(err).Str("alert", alert.ID).Msg("failed to send Linux notification")
		}
	}()
}

// urgencyFor maps alert severity to a notify-send urgency level.
func urgencyFor(s Severity) string {
	switch s {
	case SeverityHigh:
		return "critical"
	case SeverityLow:
		return "low"
	}
	return "normal"
}

func sendNotifySend(title, body, urgency string) error {
	cmd := exec.Command("notify-send", "--urgency", urgency, "--app-name", "fieldwatch", title, body)
	return cmd.Run()
}
