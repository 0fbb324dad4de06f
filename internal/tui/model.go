package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nixlim/fieldwatch/internal/alerts"
	"github.com/nixlim/fieldwatch/internal/config"
	"github.com/nixlim/fieldwatch/internal/events"
	"github.com/nixlim/fieldwatch/internal/monitor"
	"github.com/nixlim/fieldwatch/internal/stats"
)

type ViewState int

const (
	ViewDashboard ViewState = iota
	ViewStats
)

type PanelFocus int

const (
	FocusAlerts PanelFocus = iota
	FocusEvents
)

// actionTimeout bounds a single lifecycle action started from the dashboard.
const actionTimeout = 10 * time.Second

type tickMsg time.Time

// actionDoneMsg reports the outcome of a lifecycle action.
type actionDoneMsg struct {
	verb  string
	alert alerts.RiskAlert
	err   error
}

// refreshDoneMsg reports the outcome of an operator-triggered detection run.
type refreshDoneMsg struct {
	summary monitor.Summary
	err     error
}

// AlertManager is the subset of *alerts.Manager the dashboard drives.
type AlertManager interface {
	List(ctx context.Context, f alerts.Filter) ([]alerts.RiskAlert, error)
	MarkInvestigating(ctx context.Context, id, note string) (alerts.RiskAlert, error)
	Resolve(ctx context.Context, id string, resolution alerts.Resolution, notes string) (alerts.RiskAlert, error)
}

type EventProvider interface {
	Recent(limit int) []events.FormattedEvent
}

type Refresher interface {
	Refresh(ctx context.Context) (monitor.Summary, error)
}

// WriteMonitor reports writes lost by an asynchronous storage writer.
type WriteMonitor interface {
	DroppedWrites() int64
}

// resolveDialog collects the resolution and notes for the selected alert.
type resolveDialog struct {
	active  bool
	alertID string
	cursor  int
	notes   textinput.Model
	err     string
}

func newResolveDialog(alertID string) resolveDialog {
	notes := textinput.New()
	notes.Prompt = "Notes: "
	notes.Placeholder = "what was found"
	notes.CharLimit = 500
	notes.Width = 40
	notes.Focus()
	return resolveDialog{active: true, alertID: alertID, notes: notes}
}

type Model struct {
	view     ViewState
	width    int
	height   int
	keys     KeyMap
	quitting bool

	cfg config.Config

	manager   AlertManager
	events    EventProvider
	refresher Refresher
	calc      *stats.Calculator
	writes    WriteMonitor

	all       []alerts.RiskAlert
	visible   []alerts.RiskAlert
	dashStats stats.DashboardStats
	loadErr   string

	alertCursor int

	eventCursor int
	autoScroll  bool

	filter     AlertFilter
	filterMenu FilterMenuState

	panelFocus      PanelFocus
	detailOverlay   bool
	detailContent   string
	detailTitle     string
	detailScrollPos int

	resolve resolveDialog

	detecting bool
	status    string
	statusErr bool

	statsScrollPos int

	isPersistent bool

	refreshRate time.Duration
	now         func() time.Time

	onShutdown func()
}

func NewModel(cfg config.Config, opts ...ModelOption) Model {
	m := Model{
		view:        ViewDashboard,
		keys:        DefaultKeyMap(),
		cfg:         cfg,
		autoScroll:  true,
		filter:      NewAlertFilter(),
		filterMenu:  NewFilterMenu(),
		calc:        stats.NewCalculator(0, 0),
		refreshRate: time.Duration(cfg.Display.RefreshRateMS) * time.Millisecond,
		now:         time.Now,
	}
	if m.refreshRate <= 0 {
		m.refreshRate = 500 * time.Millisecond
	}

	for _, opt := range opts {
		opt(&m)
	}

	m.reload()
	return m
}

type ModelOption func(*Model)

func WithAlertManager(a AlertManager) ModelOption {
	return func(m *Model) { m.manager = a }
}

func WithEventProvider(e EventProvider) ModelOption {
	return func(m *Model) { m.events = e }
}

func WithRefresher(r Refresher) ModelOption {
	return func(m *Model) { m.refresher = r }
}

func WithCalculator(c *stats.Calculator) ModelOption {
	return func(m *Model) { m.calc = c }
}

func WithWriteMonitor(w WriteMonitor) ModelOption {
	return func(m *Model) { m.writes = w }
}

func WithStartView(v ViewState) ModelOption {
	return func(m *Model) { m.view = v }
}

func WithOnShutdown(fn func()) ModelOption {
	return func(m *Model) { m.onShutdown = fn }
}

func WithPersistenceFlag(isPersistent bool) ModelOption {
	return func(m *Model) { m.isPersistent = isPersistent }
}

// WithClock overrides the time source used for alert ages.
func WithClock(now func() time.Time) ModelOption {
	return func(m *Model) { m.now = now }
}

func (m Model) Init() tea.Cmd {
	return m.tickCmd()
}

func (m Model) tickCmd() tea.Cmd {
	return tea.Tick(m.refreshRate, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		m.reload()
		return m, m.tickCmd()

	case actionDoneMsg:
		if msg.err != nil {
			m.setError(msg.err)
		} else {
			m.setStatus(fmt.Sprintf("%s %s", truncateID(msg.alert.ID, 8), msg.verb))
		}
		m.reload()
		return m, nil

	case refreshDoneMsg:
		m.detecting = false
		switch {
		case msg.err == nil:
			m.setStatus(fmt.Sprintf("Detection: %d new, %d known", len(msg.summary.Created), msg.summary.Known))
		case errors.Is(msg.err, alerts.ErrDetectionPartialFailure):
			m.status = fmt.Sprintf("Detection partial: %d new, failed: %s",
				len(msg.summary.Created), strings.Join(msg.summary.Failures, ", "))
			m.statusErr = true
		default:
			m.setError(msg.err)
		}
		m.reload()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m *Model) setStatus(s string) {
	m.status = s
	m.statusErr = false
}

func (m *Model) setError(err error) {
	m.status = "Error: " + err.Error()
	m.statusErr = true
}

// reload refreshes the cached alert list and statistics from the manager.
func (m *Model) reload() {
	if m.manager == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()

	list, err := m.manager.List(ctx, alerts.Filter{})
	if err != nil {
		m.loadErr = err.Error()
		return
	}
	m.loadErr = ""
	m.all = list
	m.dashStats = m.calc.Compute(list)
	m.applyAlertFilter()
}

// applyAlertFilter rebuilds the visible list and keeps the cursor in range.
func (m *Model) applyAlertFilter() {
	visible := make([]alerts.RiskAlert, 0, len(m.all))
	for _, a := range m.all {
		if m.filter.Matches(a) {
			visible = append(visible, a)
		}
	}
	m.visible = visible
	if m.alertCursor >= len(m.visible) {
		m.alertCursor = len(m.visible) - 1
	}
	if m.alertCursor < 0 {
		m.alertCursor = 0
	}
}

// selectedAlert returns the alert under the cursor.
func (m Model) selectedAlert() (alerts.RiskAlert, bool) {
	if m.alertCursor < 0 || m.alertCursor >= len(m.visible) {
		return alerts.RiskAlert{}, false
	}
	return m.visible[m.alertCursor], true
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.resolve.active {
		return m.handleResolveKey(msg)
	}

	if m.detailOverlay {
		return m.handleDetailOverlayKey(msg)
	}

	if m.filterMenu.Active {
		return m.handleFilterMenuKey(msg)
	}

	if key.Matches(msg, m.keys.Quit) {
		m.quitting = true
		if m.onShutdown != nil {
			m.onShutdown()
		}
		return m, tea.Quit
	}

	switch m.view {
	case ViewDashboard:
		return m.handleDashboardKey(msg)
	case ViewStats:
		return m.handleStatsKey(msg)
	}

	return m, nil
}

func (m Model) handleDashboardKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Tab):
		m.view = ViewStats
		m.statsScrollPos = 0
		return m, nil

	case key.Matches(msg, m.keys.Filter):
		m.filterMenu.Active = true
		m.filterMenu.Cursor = 0
		return m, nil

	case key.Matches(msg, m.keys.Detect):
		return m.startDetection()

	case key.Matches(msg, m.keys.FocusAlerts):
		m.panelFocus = FocusAlerts
		m.autoScroll = true
		return m, nil

	case key.Matches(msg, m.keys.FocusEvents):
		if m.panelFocus != FocusEvents {
			m.panelFocus = FocusEvents
			m.autoScroll = false
			if evts := m.recentEvents(); len(evts) > 0 {
				m.eventCursor = len(evts) - 1
			}
		}
		return m, nil
	}

	if m.panelFocus == FocusEvents {
		return m.handleEventsPanelKey(msg)
	}
	return m.handleAlertsPanelKey(msg)
}

func (m Model) handleAlertsPanelKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Up):
		if m.alertCursor > 0 {
			m.alertCursor--
		}
		return m, nil

	case key.Matches(msg, m.keys.Down):
		if m.alertCursor < len(m.visible)-1 {
			m.alertCursor++
		}
		return m, nil

	case key.Matches(msg, m.keys.Enter):
		if a, ok := m.selectedAlert(); ok {
			m.detailOverlay = true
			m.detailTitle = a.Type.Label() + " " + truncateID(a.ID, 8)
			m.detailContent = m.formatAlertDetail(a)
			m.detailScrollPos = 0
		}
		return m, nil

	case key.Matches(msg, m.keys.Investigate):
		a, ok := m.selectedAlert()
		if !ok || m.manager == nil {
			return m, nil
		}
		if a.Status != alerts.StatusActive {
			m.status = "Only active alerts can be investigated"
			m.statusErr = true
			return m, nil
		}
		return m, investigateCmd(m.manager, a.ID)

	case key.Matches(msg, m.keys.Resolve):
		a, ok := m.selectedAlert()
		if !ok || m.manager == nil {
			return m, nil
		}
		if !a.Open() {
			m.status = "Alert is already resolved"
			m.statusErr = true
			return m, nil
		}
		m.resolve = newResolveDialog(a.ID)
		return m, textinput.Blink
	}
	return m, nil
}

func (m Model) handleEventsPanelKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	evts := m.recentEvents()
	switch {
	case key.Matches(msg, m.keys.Escape):
		m.panelFocus = FocusAlerts
		m.autoScroll = true
		return m, nil

	case key.Matches(msg, m.keys.Up):
		if m.eventCursor > 0 {
			m.eventCursor--
		}
		return m, nil

	case key.Matches(msg, m.keys.Down):
		if m.eventCursor < len(evts)-1 {
			m.eventCursor++
		}
		return m, nil

	case key.Matches(msg, m.keys.ScrollUp):
		m.eventCursor -= 10
		if m.eventCursor < 0 {
			m.eventCursor = 0
		}
		return m, nil

	case key.Matches(msg, m.keys.ScrollDown):
		m.eventCursor += 10
		if m.eventCursor > len(evts)-1 {
			m.eventCursor = len(evts) - 1
		}
		return m, nil

	case key.Matches(msg, m.keys.Enter):
		if m.eventCursor >= 0 && m.eventCursor < len(evts) {
			e := evts[m.eventCursor]
			m.detailOverlay = true
			m.detailTitle = "Event " + e.Kind
			m.detailContent = m.formatEventDetail(e)
			m.detailScrollPos = 0
		}
		return m, nil
	}
	return m, nil
}

func (m Model) handleResolveKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.resolve = resolveDialog{}
		return m, nil

	case tea.KeyUp:
		if m.resolve.cursor > 0 {
			m.resolve.cursor--
		}
		return m, nil

	case tea.KeyDown:
		if m.resolve.cursor < len(alerts.Resolutions)-1 {
			m.resolve.cursor++
		}
		return m, nil

	case tea.KeyEnter:
		notes := strings.TrimSpace(m.resolve.notes.Value())
		if notes == "" {
			m.resolve.err = "Resolution notes are required"
			return m, nil
		}
		resolution := alerts.Resolutions[m.resolve.cursor]
		id := m.resolve.alertID
		m.resolve = resolveDialog{}
		return m, resolveCmd(m.manager, id, resolution, notes)
	}

	var cmd tea.Cmd
	m.resolve.notes, cmd = m.resolve.notes.Update(msg)
	return m, cmd
}

func investigateCmd(mgr AlertManager, id string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		a, err := mgr.MarkInvestigating(ctx, id, "")
		return actionDoneMsg{verb: "marked investigating", alert: a, err: err}
	}
}

func resolveCmd(mgr AlertManager, id string, resolution alerts.Resolution, notes string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		a, err := mgr.Resolve(ctx, id, resolution, notes)
		return actionDoneMsg{verb: "resolved as " + string(resolution), alert: a, err: err}
	}
}

func (m Model) startDetection() (tea.Model, tea.Cmd) {
	if m.refresher == nil {
		m.status = "Detection is not available"
		m.statusErr = true
		return m, nil
	}
	if m.detecting {
		return m, nil
	}
	m.detecting = true
	m.setStatus("Running detection...")
	r := m.refresher
	return m, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		summary, err := r.Refresh(ctx)
		return refreshDoneMsg{summary: summary, err: err}
	}
}

func (m Model) handleDetailOverlayKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Escape), key.Matches(msg, m.keys.Enter):
		m.detailOverlay = false
		m.detailContent = ""
		m.detailTitle = ""
		m.detailScrollPos = 0
		return m, nil

	case key.Matches(msg, m.keys.Up), key.Matches(msg, m.keys.ScrollUp):
		if m.detailScrollPos > 0 {
			m.detailScrollPos--
		}
		return m, nil

	case key.Matches(msg, m.keys.Down), key.Matches(msg, m.keys.ScrollDown):
		m.detailScrollPos++
		return m, nil
	}

	return m, nil
}

func (m Model) formatEventDetail(e events.FormattedEvent) string {
	var lines []string
	lines = append(lines, "Kind:      "+e.Kind)
	lines = append(lines, "Alert:     "+e.AlertID)
	if e.SurveyID != "" {
		lines = append(lines, "Survey:    "+e.SurveyID)
	}
	if e.Severity != "" {
		lines = append(lines, "Severity:  "+e.Severity)
	}
	lines = append(lines, "Timestamp: "+e.Timestamp.Format("2006-01-02 15:04:05"))
	lines = append(lines, "")
	lines = append(lines, e.Formatted)
	return strings.Join(lines, "\n")
}

func (m Model) formatAlertDetail(a alerts.RiskAlert) string {
	const stamp = "2006-01-02 15:04:05"
	var lines []string
	lines = append(lines, "ID:        "+a.ID)
	lines = append(lines, "Severity:  "+string(a.Severity))
	lines = append(lines, "Status:    "+string(a.Status))
	if a.SurveyID != "" {
		lines = append(lines, "Survey:    "+a.SurveyID)
	}
	lines = append(lines, "Detected:  "+a.DetectedAt.Format(stamp))
	if a.Location != nil {
		loc := fmt.Sprintf("%.5f, %.5f", a.Location.Latitude, a.Location.Longitude)
		if a.Location.Address != "" {
			loc += " (" + a.Location.Address + ")"
		}
		lines = append(lines, "Location:  "+loc)
	}
	lines = append(lines, "")
	lines = append(lines, "Message:")
	lines = append(lines, a.Message)
	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("Affected responses (%d):", len(a.AffectedResponses)))
	lines = append(lines, "  "+strings.Join(a.AffectedResponses, ", "))

	if a.InvestigatedAt != nil {
		lines = append(lines, "", "Investigating since "+a.InvestigatedAt.Format(stamp))
	}
	if a.ResolvedAt != nil {
		lines = append(lines, "", fmt.Sprintf("Resolved %s as %s", a.ResolvedAt.Format(stamp), a.Resolution))
		lines = append(lines, "  "+a.ResolutionNotes)
	}
	if len(a.Notes) > 0 {
		lines = append(lines, "", "Notes:")
		for _, n := range a.Notes {
			who := ""
			if n.Author != "" {
				who = " " + n.Author
			}
			lines = append(lines, fmt.Sprintf("  %s%s: %s", n.CreatedAt.Format(stamp), who, n.Text))
		}
	}
	if len(a.Escalations) > 0 {
		lines = append(lines, "", "Escalations:")
		for _, e := range a.Escalations {
			line := fmt.Sprintf("  %s %s", e.EscalatedAt.Format(stamp), e.Reason)
			if e.Notes != "" {
				line += ": " + e.Notes
			}
			lines = append(lines, line)
		}
	}
	if len(a.Contacts) > 0 {
		lines = append(lines, "", "Conductor contacts:")
		for _, c := range a.Contacts {
			lines = append(lines, fmt.Sprintf("  %s %s", c.SentAt.Format(stamp), c.Message))
		}
	}
	return strings.Join(lines, "\n")
}

func (m Model) handleStatsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Tab), key.Matches(msg, m.keys.Escape):
		m.view = ViewDashboard
		return m, nil
	case key.Matches(msg, m.keys.Up):
		if m.statsScrollPos > 0 {
			m.statsScrollPos--
		}
		return m, nil
	case key.Matches(msg, m.keys.Down):
		m.statsScrollPos++
		return m, nil
	case key.Matches(msg, m.keys.Detect):
		return m.startDetection()
	}
	return m, nil
}

func (m Model) handleFilterMenuKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Escape), key.Matches(msg, m.keys.Filter):
		m.filterMenu.Active = false
		return m, nil

	case key.Matches(msg, m.keys.Up):
		if m.filterMenu.Cursor > 0 {
			m.filterMenu.Cursor--
		}
		return m, nil

	case key.Matches(msg, m.keys.Down):
		if m.filterMenu.Cursor < len(m.filterMenu.Options)-1 {
			m.filterMenu.Cursor++
		}
		return m, nil

	case key.Matches(msg, m.keys.Enter):
		if m.filterMenu.Cursor >= 0 && m.filterMenu.Cursor < len(m.filterMenu.Options) {
			opt := &m.filterMenu.Options[m.filterMenu.Cursor]
			opt.Enabled = !opt.Enabled
			m.filterMenu.Apply(&m.filter)
			m.applyAlertFilter()
		}
		return m, nil
	}
	return m, nil
}

func (m Model) recentEvents() []events.FormattedEvent {
	if m.events == nil {
		return nil
	}
	return m.events.Recent(m.cfg.Display.EventBufferSize)
}

func (m Model) headerIndicators() string {
	var parts []string
	if !m.isPersistent {
		parts = append(parts, "[No persistence]")
	}
	if m.writes != nil && m.writes.DroppedWrites() > 0 {
		parts = append(parts, "[!] Writes dropped")
	}
	if m.detecting {
		parts = append(parts, "[Detecting]")
	}
	if len(parts) == 0 {
		return ""
	}
	return " " + dimStyle.Render(strings.Join(parts, " "))
}

func (m Model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var output string
	switch m.view {
	case ViewDashboard:
		output = m.renderDashboard()
	case ViewStats:
		output = m.renderStats()
	}

	if m.height > 0 {
		lines := strings.Split(output, "\n")
		if len(lines) > m.height {
			lines = lines[:m.height]
			output = strings.Join(lines, "\n")
		}
	}

	return output
}
