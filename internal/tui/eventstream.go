package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nixlim/fieldwatch/internal/alerts"
	"github.com/nixlim/fieldwatch/internal/events"
)

// eventKindIcons maps lifecycle event kinds to their display icons.
var eventKindIcons = map[string]string{
	string(alerts.EventCreated):            "++",
	string(alerts.EventExtended):           "+=",
	string(alerts.EventInvestigating):      "??",
	string(alerts.EventResolved):           "OK",
	string(alerts.EventNoteAdded):          "N:",
	string(alerts.EventEscalated):          "!!",
	string(alerts.EventConductorContacted): "@>",
}

// eventKindStyles maps lifecycle event kinds to their display styles.
var eventKindStyles = map[string]lipgloss.Style{
	string(alerts.EventCreated):            lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	string(alerts.EventExtended):           lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
	string(alerts.EventInvestigating):      lipgloss.NewStyle().Foreground(lipgloss.Color("226")),
	string(alerts.EventResolved):           lipgloss.NewStyle().Foreground(lipgloss.Color("114")),
	string(alerts.EventNoteAdded):          lipgloss.NewStyle().Foreground(lipgloss.Color("117")),
	string(alerts.EventEscalated):          lipgloss.NewStyle().Foreground(lipgloss.Color("208")),
	string(alerts.EventConductorContacted): lipgloss.NewStyle().Foreground(lipgloss.Color("183")),
}

// renderEventStreamPanel renders the scrolling lifecycle event panel.
func (m Model) renderEventStreamPanel(w, h int) string {
	contentW := w - 4
	if contentW < 10 {
		contentW = 10
	}
	contentH := h - 2
	if contentH < 1 {
		contentH = 1
	}

	lines := []string{panelTitleStyle.Render("Events")}

	evts := m.recentEvents()
	if len(evts) == 0 {
		lines = append(lines, "", dimStyle.Render("No events yet"))
		return renderBorderedPanelStyled(strings.Join(lines, "\n"), w, h, m.panelStyle(FocusEvents))
	}

	visibleLines := contentH - 2 // title + scroll indicator
	if visibleLines < 1 {
		visibleLines = 1
	}

	// Auto-scroll shows the most recent events; otherwise follow the cursor.
	var startIdx int
	if m.autoScroll {
		startIdx = len(evts) - visibleLines
	} else {
		startIdx = m.eventCursor - visibleLines + 1
	}
	if startIdx > len(evts)-visibleLines {
		startIdx = len(evts) - visibleLines
	}
	if startIdx < 0 {
		startIdx = 0
	}

	endIdx := startIdx + visibleLines
	if endIdx > len(evts) {
		endIdx = len(evts)
	}

	for i := startIdx; i < endIdx; i++ {
		line := renderEventLine(evts[i], contentW)
		if !m.autoScroll && m.panelFocus == FocusEvents && i == m.eventCursor {
			line = cursorStyle.Render(stripAnsi(line))
		}
		lines = append(lines, line)
	}

	if len(evts) > visibleLines {
		pos := formatScrollPos(startIdx+1, endIdx, len(evts))
		pad := contentW - len(pos)
		if pad < 0 {
			pad = 0
		}
		lines = append(lines, dimStyle.Render(strings.Repeat(" ", pad)+pos))
	}

	return renderBorderedPanelStyled(strings.Join(lines, "\n"), w, h, m.panelStyle(FocusEvents))
}

// renderEventLine formats a single event for display.
func renderEventLine(e events.FormattedEvent, maxW int) string {
	icon := eventKindIcons[e.Kind]
	if icon == "" {
		icon = ".."
	}

	style, ok := eventKindStyles[e.Kind]
	if !ok {
		style = dimStyle
	}

	formatted := e.Timestamp.Format("15:04:05") + " " + e.Formatted
	maxFormatted := maxW - len(icon) - 1
	if len(formatted) > maxFormatted && maxFormatted > 3 {
		formatted = formatted[:maxFormatted-3] + "..."
	}

	return style.Render(icon + " " + formatted)
}
