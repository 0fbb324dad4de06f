package tui

import (
	"fmt"
	"strings"

	"github.com/nixlim/fieldwatch/internal/alerts"
)

// severityBadges are the short severity markers shown in list rows.
var severityBadges = map[alerts.Severity]string{
	alerts.SeverityHigh:   "HIGH",
	alerts.SeverityMedium: "MED ",
	alerts.SeverityLow:    "LOW ",
}

// renderAlertListPanel renders the alert list, newest first.
func (m Model) renderAlertListPanel(w, h int) string {
	contentW := w - 4
	if contentW < 10 {
		contentW = 10
	}
	contentH := h - 2
	if contentH < 1 {
		contentH = 1
	}

	title := panelTitleStyle.Render("Alerts") +
		dimStyle.Render(fmt.Sprintf(" (%d/%d)", len(m.visible), len(m.all)))
	lines := []string{title}

	if len(m.visible) == 0 {
		lines = append(lines, "")
		if len(m.all) == 0 {
			lines = append(lines, dimStyle.Render("No alerts. Press d to run detection."))
		} else {
			lines = append(lines, dimStyle.Render("No alerts match the filter"))
		}
		return renderBorderedPanelStyled(strings.Join(lines, "\n"), w, h, m.panelStyle(FocusAlerts))
	}

	visibleRows := contentH - 1
	if visibleRows < 1 {
		visibleRows = 1
	}

	// Keep the cursor on screen.
	startIdx := 0
	if m.alertCursor >= visibleRows {
		startIdx = m.alertCursor - visibleRows + 1
	}
	endIdx := startIdx + visibleRows
	if endIdx > len(m.visible) {
		endIdx = len(m.visible)
	}

	for i := startIdx; i < endIdx; i++ {
		row := m.renderAlertRow(m.visible[i], contentW)
		if i == m.alertCursor && m.panelFocus == FocusAlerts {
			row = cursorStyle.Render(truncateStr(stripAnsi(row), contentW))
		}
		lines = append(lines, row)
	}

	return renderBorderedPanelStyled(strings.Join(lines, "\n"), w, h, m.panelStyle(FocusAlerts))
}

// renderAlertRow formats one alert as
// "HIGH  Duplicate Responses  active         5m  hh-2026  3".
func (m Model) renderAlertRow(a alerts.RiskAlert, maxW int) string {
	badge := severityBadges[a.Severity]
	if badge == "" {
		badge = "??? "
	}
	age := formatAge(m.now().Sub(a.DetectedAt))
	survey := a.SurveyID
	if survey == "" {
		survey = "-"
	}

	plain := fmt.Sprintf("%-20s %-13s %4s %-10s %3d",
		truncateStr(a.Type.Label(), 20), a.Status, age, truncateStr(survey, 10), len(a.AffectedResponses))
	plain = truncateStr(plain, maxW-len(badge)-1)

	status := string(a.Status)
	styled := strings.Replace(plain, status, statusStyle(a.Status).Render(status), 1)
	return severityStyle(a.Severity).Render(badge) + " " + styled
}

// renderPreviewPanel shows a summary of the selected alert.
func (m Model) renderPreviewPanel(w, h int) string {
	contentW := w - 4
	if contentW < 10 {
		contentW = 10
	}

	lines := []string{panelTitleStyle.Render("Selected")}
	a, ok := m.selectedAlert()
	if !ok {
		lines = append(lines, "", dimStyle.Render("Nothing selected"))
		return renderBorderedPanel(strings.Join(lines, "\n"), w, h)
	}

	lines = append(lines,
		severityStyle(a.Severity).Render(strings.ToUpper(string(a.Severity)))+" "+a.Type.Label()+
			"  "+statusStyle(a.Status).Render(string(a.Status)),
	)
	for _, l := range wrapLines([]string{a.Message}, contentW) {
		lines = append(lines, l)
	}
	if a.Location != nil {
		loc := fmt.Sprintf("@ %.4f, %.4f", a.Location.Latitude, a.Location.Longitude)
		if a.Location.Address != "" {
			loc += " " + a.Location.Address
		}
		lines = append(lines, dimStyle.Render(truncateStr(loc, contentW)))
	}
	lines = append(lines, dimStyle.Render(truncateStr(
		"Responses: "+strings.Join(a.AffectedResponses, ", "), contentW)))

	var trail []string
	if n := len(a.Notes); n > 0 {
		trail = append(trail, fmt.Sprintf("%d notes", n))
	}
	if n := len(a.Escalations); n > 0 {
		trail = append(trail, fmt.Sprintf("%d escalations", n))
	}
	if n := len(a.Contacts); n > 0 {
		trail = append(trail, fmt.Sprintf("%d contacts", n))
	}
	if a.Resolution != "" {
		trail = append(trail, "resolved: "+string(a.Resolution))
	}
	if len(trail) > 0 {
		lines = append(lines, dimStyle.Render(strings.Join(trail, "  ")))
	}

	return renderBorderedPanel(strings.Join(lines, "\n"), w, h)
}
