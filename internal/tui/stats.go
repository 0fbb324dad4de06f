package tui

import (
	"fmt"
	"strings"

	"github.com/nixlim/fieldwatch/internal/alerts"
	"github.com/nixlim/fieldwatch/internal/stats"
)

func (m Model) renderStats() string {
	var sb strings.Builder

	sb.WriteString(m.renderHeader(" [Stats]", "Tab:Dashboard  d:Detect  q:Quit "))
	sb.WriteByte('\n')

	ds := m.dashStats

	sections := []string{
		renderOverviewSection(ds),
		renderStatusSection(ds),
		renderSeveritySection(ds),
		renderTypeSection(ds),
		renderResolutionSection(ds),
		m.renderHighPrioritySection(ds),
		renderHotspotSection(ds),
	}

	var allLines []string
	for _, section := range sections {
		allLines = append(allLines, strings.Split(section, "\n")...)
		allLines = append(allLines, "")
	}

	visibleH := m.height - 3
	if visibleH < 1 {
		visibleH = 1
	}
	startIdx := m.statsScrollPos
	if startIdx > len(allLines)-visibleH {
		startIdx = len(allLines) - visibleH
	}
	if startIdx < 0 {
		startIdx = 0
	}
	endIdx := startIdx + visibleH
	if endIdx > len(allLines) {
		endIdx = len(allLines)
	}

	for i := startIdx; i < endIdx; i++ {
		sb.WriteString(allLines[i])
		sb.WriteByte('\n')
	}

	return sb.String()
}

func renderOverviewSection(ds stats.DashboardStats) string {
	mttr := "n/a"
	if ds.MeanTimeToResolve > 0 {
		mttr = formatDuration(ds.MeanTimeToResolve)
	}
	lines := []string{
		panelTitleStyle.Render("Overview"),
		fmt.Sprintf("  Total alerts:        %s", formatNumber(int64(ds.Total))),
		fmt.Sprintf("  Affected responses:  %s", formatNumber(int64(ds.AffectedResponses))),
		fmt.Sprintf("  Escalated:           %s", formatNumber(int64(ds.Escalated))),
		fmt.Sprintf("  Mean time to resolve: %s", mttr),
	}
	return strings.Join(lines, "\n")
}

// renderCountBars renders one progress bar per label, scaled to total.
func renderCountBars(title string, labels []string, counts []int, total int) string {
	lines := []string{panelTitleStyle.Render(title)}
	if total == 0 {
		return strings.Join(append(lines, dimStyle.Render("  No alerts")), "\n")
	}
	for i, label := range labels {
		ratio := float64(counts[i]) / float64(total)
		lines = append(lines, fmt.Sprintf("  %-20s %s %s", label, renderProgressBar(ratio, 20), formatNumber(int64(counts[i]))))
	}
	return strings.Join(lines, "\n")
}

func renderStatusSection(ds stats.DashboardStats) string {
	statuses := []alerts.Status{alerts.StatusActive, alerts.StatusInvestigating, alerts.StatusResolved}
	labels := make([]string, len(statuses))
	counts := make([]int, len(statuses))
	for i, s := range statuses {
		labels[i] = string(s)
		counts[i] = ds.ByStatus[s]
	}
	return renderCountBars("By Status", labels, counts, ds.Total)
}

func renderSeveritySection(ds stats.DashboardStats) string {
	severities := []alerts.Severity{alerts.SeverityHigh, alerts.SeverityMedium, alerts.SeverityLow}
	labels := make([]string, len(severities))
	counts := make([]int, len(severities))
	for i, s := range severities {
		labels[i] = string(s)
		counts[i] = ds.BySeverity[s]
	}
	return renderCountBars("By Severity", labels, counts, ds.Total)
}

func renderTypeSection(ds stats.DashboardStats) string {
	labels := make([]string, len(alerts.Types))
	counts := make([]int, len(alerts.Types))
	for i, t := range alerts.Types {
		labels[i] = t.Label()
		counts[i] = ds.ByType[t]
	}
	return renderCountBars("By Type", labels, counts, ds.Total)
}

func renderResolutionSection(ds stats.DashboardStats) string {
	resolved := ds.ByStatus[alerts.StatusResolved]
	labels := make([]string, len(alerts.Resolutions))
	counts := make([]int, len(alerts.Resolutions))
	for i, r := range alerts.Resolutions {
		labels[i] = string(r)
		counts[i] = ds.ByResolution[r]
	}
	return renderCountBars("Resolutions", labels, counts, resolved)
}

func (m Model) renderHighPrioritySection(ds stats.DashboardStats) string {
	lines := []string{panelTitleStyle.Render("High Priority")}
	if len(ds.HighPriorityActive) == 0 {
		return strings.Join(append(lines, dimStyle.Render("  No open high-severity alerts")), "\n")
	}
	for _, a := range ds.HighPriorityActive {
		lines = append(lines, fmt.Sprintf("  %s %-20s %4s  %s",
			severityHighStyle.Render(truncateID(a.ID, 8)),
			truncateStr(a.Type.Label(), 20),
			formatAge(m.now().Sub(a.DetectedAt)),
			truncateStr(a.Message, 50)))
	}
	return strings.Join(lines, "\n")
}

func renderHotspotSection(ds stats.DashboardStats) string {
	lines := []string{panelTitleStyle.Render("Hotspots")}
	if len(ds.Hotspots) == 0 {
		return strings.Join(append(lines, dimStyle.Render("  No located alerts")), "\n")
	}
	maxAlerts := 0
	for _, h := range ds.Hotspots {
		maxAlerts = max(maxAlerts, h.Alerts)
	}
	for _, h := range ds.Hotspots {
		line := fmt.Sprintf("  %-25s %s %d", truncateStr(h.Label, 25),
			renderProgressBar(float64(h.Alerts)/float64(maxAlerts), 15), h.Alerts)
		if h.High > 0 {
			line += alertCriticalStyle.Render(fmt.Sprintf(" (%d high)", h.High))
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func renderProgressBar(ratio float64, width int) string {
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	filled := int(ratio * float64(width))
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + "]"
}
