package tui

import (
	"regexp"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nixlim/fieldwatch/internal/alerts"
)

type panelDimensions struct {
	alertListW, alertListH     int
	previewW, previewH         int
	eventStreamW, eventStreamH int
	statusW, statusH           int
	headerH                    int
}

const (
	minWidth  = 40
	minHeight = 10

	headerHeight = 1

	statusBarHeight = 1

	previewMinHeight = 7

	previewMaxHeight = 14
)

func computeDimensions(totalW, totalH int) panelDimensions {
	if totalW < minWidth {
		totalW = minWidth
	}
	if totalH < minHeight {
		totalH = minHeight
	}

	d := panelDimensions{
		headerH: headerHeight,
	}

	usableH := totalH - headerHeight - statusBarHeight
	if usableH < 4 {
		usableH = 4
	}

	d.alertListW = totalW * 55 / 100
	if d.alertListW < 20 {
		d.alertListW = 20
	}
	if d.alertListW > totalW-20 {
		d.alertListW = totalW - 20
	}
	d.alertListH = usableH

	rightW := totalW - d.alertListW
	if rightW < 20 {
		rightW = 20
	}

	d.previewW = rightW
	maxPreview := usableH * 45 / 100
	if maxPreview < previewMinHeight {
		maxPreview = previewMinHeight
	}
	if maxPreview > previewMaxHeight {
		maxPreview = previewMaxHeight
	}
	d.previewH = maxPreview
	if d.previewH > usableH/2 {
		d.previewH = usableH / 2
	}

	d.eventStreamW = rightW
	d.eventStreamH = usableH - d.previewH
	if d.eventStreamH < 3 {
		d.eventStreamH = 3
	}

	d.statusW = totalW
	d.statusH = statusBarHeight

	return d
}

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62"))

	panelBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("240"))

	panelTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("69"))

	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	activeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	investigatingStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("226"))

	resolvedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	severityHighStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("196"))

	severityMediumStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("214"))

	severityLowStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("82"))

	alertWarningStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("226"))

	alertCriticalStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("196"))

	filterMenuStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(1, 2)

	resolveDialogStyle = lipgloss.NewStyle().
				Border(lipgloss.DoubleBorder()).
				BorderForeground(lipgloss.Color("82")).
				Padding(1, 3)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	focusBorderColor = lipgloss.Color("63")

	cursorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62"))

	detailOverlayStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("69")).
				Padding(1, 2)
)

func severityStyle(s alerts.Severity) lipgloss.Style {
	switch s {
	case alerts.SeverityHigh:
		return severityHighStyle
	case alerts.SeverityMedium:
		return severityMediumStyle
	}
	return severityLowStyle
}

func statusStyle(s alerts.Status) lipgloss.Style {
	switch s {
	case alerts.StatusActive:
		return activeStyle
	case alerts.StatusInvestigating:
		return investigatingStyle
	}
	return resolvedStyle
}

func renderBorderedPanel(content string, w, h int) string {
	return renderBorderedPanelStyled(content, w, h, panelBorderStyle)
}

func renderBorderedPanelStyled(content string, w, h int, style lipgloss.Style) string {
	contentH := h - 2
	if contentH < 1 {
		contentH = 1
	}

	lines := strings.Split(content, "\n")
	if len(lines) > contentH {
		lines = lines[:contentH]
		content = strings.Join(lines, "\n")
	}

	return style.
		Width(w - 2).
		Height(contentH).
		Render(content)
}

// panelStyle highlights the border of the focused panel.
func (m Model) panelStyle(focus PanelFocus) lipgloss.Style {
	if m.panelFocus == focus {
		return panelBorderStyle.BorderForeground(focusBorderColor)
	}
	return panelBorderStyle
}

var ansiRe = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func stripAnsi(s string) string {
	return ansiRe.ReplaceAllString(s, "")
}

func (m Model) renderDashboard() string {
	dims := computeDimensions(m.width, m.height)

	header := m.renderHeader(" [Dashboard]", m.headerHelp())

	alertList := m.renderAlertListPanel(dims.alertListW, dims.alertListH)
	preview := m.renderPreviewPanel(dims.previewW, dims.previewH)
	eventStream := m.renderEventStreamPanel(dims.eventStreamW, dims.eventStreamH)
	statusBar := m.renderStatusBar(dims.statusW)

	rightCol := lipgloss.JoinVertical(lipgloss.Left, preview, eventStream)

	mainContent := lipgloss.JoinHorizontal(lipgloss.Top, alertList, rightCol)

	usableH := m.height - dims.headerH - dims.statusH
	if usableH < 4 {
		usableH = 4
	}
	mcLines := strings.Split(mainContent, "\n")
	if len(mcLines) > usableH {
		mcLines = mcLines[:usableH]
		mainContent = strings.Join(mcLines, "\n")
	}

	layout := lipgloss.JoinVertical(lipgloss.Left, header, mainContent, statusBar)

	if m.resolve.active {
		layout = m.overlayResolveDialog(layout)
	}

	if m.filterMenu.Active {
		layout = m.overlayFilterMenu(layout)
	}

	if m.detailOverlay {
		layout = m.overlayDetail(layout)
	}

	return layout
}

func (m Model) renderHeader(viewLabel, help string) string {
	title := " fieldwatch"
	if m.filter.SurveyID != "" {
		viewLabel += " Survey: " + m.filter.SurveyID
	}

	indicators := m.headerIndicators()

	padding := m.width - lipgloss.Width(title) - lipgloss.Width(viewLabel) - lipgloss.Width(indicators) - lipgloss.Width(help)
	if padding < 0 {
		// Help is the first thing dropped on a narrow terminal.
		padding += lipgloss.Width(help)
		help = ""
	}
	if padding < 0 {
		padding = 0
	}

	return headerStyle.Width(m.width).Render(title + viewLabel + indicators + strings.Repeat(" ", padding) + help)
}

func (m Model) headerHelp() string {
	switch m.panelFocus {
	case FocusEvents:
		return "Enter:Detail  Esc:Back  a:Alerts  Tab:Stats  q:Quit "
	default:
		return "i:Investigate  r:Resolve  d:Detect  f:Filter  e:Events  Tab:Stats  q:Quit "
	}
}

// renderStatusBar shows the outcome of the last action, or a count summary.
func (m Model) renderStatusBar(w int) string {
	text := m.status
	style := statusBarStyle
	switch {
	case m.loadErr != "":
		text = "Error loading alerts: " + m.loadErr
		style = alertCriticalStyle
	case m.statusErr:
		style = alertWarningStyle
	case text == "":
		open := m.dashStats.ByStatus[alerts.StatusActive] + m.dashStats.ByStatus[alerts.StatusInvestigating]
		text = formatNumber(int64(len(m.visible))) + " shown  " +
			formatNumber(int64(open)) + " open  " +
			formatNumber(int64(m.dashStats.AffectedResponses)) + " responses affected"
	}
	return style.Width(w).Render(" " + truncateStr(text, w-2))
}

func (m Model) overlayResolveDialog(base string) string {
	var sb strings.Builder
	sb.WriteString(panelTitleStyle.Render("Resolve alert " + truncateID(m.resolve.alertID, 8)))
	sb.WriteString("\n\n")
	for i, r := range alerts.Resolutions {
		line := "  " + string(r)
		if i == m.resolve.cursor {
			line = selectedStyle.Render("> " + string(r))
		}
		sb.WriteString(line + "\n")
	}
	sb.WriteString("\n" + m.resolve.notes.View() + "\n")
	if m.resolve.err != "" {
		sb.WriteString(alertCriticalStyle.Render(m.resolve.err) + "\n")
	}
	sb.WriteString("\n" + dimStyle.Render("Up/Down: Resolution  Enter: Resolve  Esc: Cancel"))

	return m.placeCentered(resolveDialogStyle.Render(sb.String()), base)
}

func (m Model) overlayFilterMenu(base string) string {
	content := panelTitleStyle.Render("Alert Filter") + "\n\n"
	for i, opt := range m.filterMenu.Options {
		cursor := "  "
		if i == m.filterMenu.Cursor {
			cursor = "> "
		}
		check := "[ ]"
		if opt.Enabled {
			check = "[x]"
		}
		line := cursor + check + " " + opt.Label
		if i == m.filterMenu.Cursor {
			line = selectedStyle.Render(line)
		}
		content += line + "\n"
	}
	content += "\nEnter: Toggle  Esc: Close"

	return m.placeCentered(filterMenuStyle.Render(content), base)
}

func (m Model) placeCentered(dialog, base string) string {
	dialogW := lipgloss.Width(dialog)
	dialogH := lipgloss.Height(dialog)
	x := (m.width - dialogW) / 2
	y := (m.height - dialogH) / 2
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}

	return placeOverlay(x, y, dialog, base)
}

func (m Model) overlayDetail(base string) string {
	overlayW := m.width * 70 / 100
	if overlayW < 40 {
		overlayW = 40
	}
	if overlayW > m.width-4 {
		overlayW = m.width - 4
	}
	overlayH := m.height * 60 / 100
	if overlayH < 10 {
		overlayH = 10
	}
	if overlayH > m.height-4 {
		overlayH = m.height - 4
	}

	contentW := overlayW - 6
	if contentW < 10 {
		contentW = 10
	}
	contentH := overlayH - 4
	if contentH < 3 {
		contentH = 3
	}

	wrapped := wrapLines(strings.Split(m.detailContent, "\n"), contentW)

	startIdx := m.detailScrollPos
	if startIdx > len(wrapped)-contentH {
		startIdx = len(wrapped) - contentH
	}
	if startIdx < 0 {
		startIdx = 0
	}
	endIdx := startIdx + contentH
	if endIdx > len(wrapped) {
		endIdx = len(wrapped)
	}

	body := strings.Join(wrapped[startIdx:endIdx], "\n")

	title := panelTitleStyle.Render(m.detailTitle)
	footer := dimStyle.Render("Esc/Enter: Close")
	if len(wrapped) > contentH {
		footer += dimStyle.Render("  Up/Down: Scroll")
	}

	content := title + "\n\n" + body + "\n\n" + footer

	dialog := detailOverlayStyle.
		Width(overlayW - 2).
		Render(content)

	return placeOverlay(0, 0, dialog, base)
}

// wrapLines breaks lines longer than w at the last space before w.
func wrapLines(lines []string, w int) []string {
	var wrapped []string
	for _, line := range lines {
		for len(line) > w {
			cutAt := w
			for i := w; i > 0; i-- {
				if line[i] == ' ' {
					cutAt = i
					break
				}
			}
			wrapped = append(wrapped, line[:cutAt])
			line = strings.TrimPrefix(line[cutAt:], " ")
		}
		wrapped = append(wrapped, line)
	}
	return wrapped
}

func placeOverlay(x, y int, fg, bg string) string {
	return lipgloss.Place(
		lipgloss.Width(bg),
		lipgloss.Height(bg),
		lipgloss.Center,
		lipgloss.Center,
		fg,
		lipgloss.WithWhitespaceChars(" "),
	)
}
