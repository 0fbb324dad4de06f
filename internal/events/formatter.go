// Package events formats and buffers alert lifecycle events for dashboards
// and the live event stream.
package events

import (
	"fmt"
	"strings"

	"github.com/nixlim/fieldwatch/internal/alerts"
)

// FormatEvent converts a lifecycle event into a display-ready FormattedEvent:
//   - created:             "[alert] HIGH Duplicate Responses: message (N responses)"
//   - extended:            "[alert] extended to N responses"
//   - investigating:       "[alert] investigating"
//   - resolved:            "[alert] resolved as false_positive"
//   - note_added:          "[alert] note by author: text"
//   - escalated:           "[alert] escalated (reason)"
//   - conductor_contacted: "[alert] conductor contacted: message"
func FormatEvent(ev alerts.Event) FormattedEvent {
	a := ev.Alert
	fe := FormattedEvent{
		AlertID:   a.ID,
		SurveyID:  a.SurveyID,
		Kind:      string(ev.Kind),
		Severity:  string(a.Severity),
		Timestamp: ev.At,
	}

	short := shortID(a.ID)
	switch ev.Kind {
	case alerts.EventCreated:
		fe.Formatted = fmt.Sprintf("[%s] %s %s: %s (%s)", short,
			strings.ToUpper(string(a.Severity)), a.Type.Label(),
			truncate(a.Message, 80), pluralResponses(len(a.AffectedResponses)))
	case alerts.EventExtended:
		fe.Formatted = fmt.Sprintf("[%s] extended to %s", short, pluralResponses(len(a.AffectedResponses)))
	case alerts.EventInvestigating:
		fe.Formatted = fmt.Sprintf("[%s] investigating", short)
	case alerts.EventResolved:
		fe.Formatted = fmt.Sprintf("[%s] resolved as %s", short, a.Resolution)
	case alerts.EventNoteAdded:
		fe.Formatted = formatNote(short, a)
	case alerts.EventEscalated:
		fe.Formatted = fmt.Sprintf("[%s] escalated (%s)", short, ev.Detail)
	case alerts.EventConductorContacted:
		msg := ""
		if n := len(a.Contacts); n > 0 {
			msg = a.Contacts[n-1].Message
		}
		fe.Formatted = fmt.Sprintf("[%s] conductor contacted: %s", short, truncate(msg, 60))
	default:
		fe.Formatted = fmt.Sprintf("[%s] %s", short, ev.Kind)
	}
	return fe
}

func formatNote(short string, a alerts.RiskAlert) string {
	if len(a.Notes) == 0 {
		return fmt.Sprintf("[%s] note added", short)
	}
	n := a.Notes[len(a.Notes)-1]
	if n.Author == "" {
		return fmt.Sprintf("[%s] note: %s", short, truncate(n.Text, 60))
	}
	return fmt.Sprintf("[%s] note by %s: %s", short, n.Author, truncate(n.Text, 60))
}

func pluralResponses(n int) string {
	if n == 1 {
		return "1 response"
	}
	return fmt.Sprintf("%d responses", n)
}

// shortID returns the first 8 characters of an alert id.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// truncate shortens s to maxLen runes, appending "..." when cut, and
// flattens newlines so the result fits on one line.
func truncate(s string, maxLen int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}
