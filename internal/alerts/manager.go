package alerts

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/nixlim/fieldwatch/internal/logging"
	"github.com/nixlim/fieldwatch/internal/metrics"
)

// ErrManagerClosed is returned by operations on a closed Manager.
var ErrManagerClosed = errors.New("alert manager closed")

// Store is the persistence the Manager needs. PutAlerts must apply the whole
// batch or nothing.
type Store interface {
	GetAlert(ctx context.Context, id string) (RiskAlert, bool, error)
	PutAlerts(ctx context.Context, alerts []RiskAlert) error
	ListAlerts(ctx context.Context) ([]RiskAlert, error)
}

// Manager owns every mutation of the alert store. Merges and operator
// actions are serialized by a single mutex; reads go straight to the store.
type Manager struct {
	store Store
	now   func() time.Time

	mu     sync.Mutex
	closed bool

	listenerMu sync.RWMutex
	listeners  []Listener
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithClock overrides the time source used for lifecycle timestamps.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a Manager around the given store.
func NewManager(store Store, opts ...ManagerOption) *Manager {
	m := &Manager{store: store, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Init verifies the store is readable and primes the open-alert gauges.
func (m *Manager) Init(ctx context.Context) error {
	list, err := m.store.ListAlerts(ctx)
	if err != nil {
		return fmt.Errorf("loading alerts: %w", err)
	}
	updateOpenGauge(list)
	logging.Info().Int("alerts", len(list)).Msg("alert manager initialised")
	return nil
}

// Close stops the manager from accepting further changes. The store is owned
// by the caller and is not closed.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Subscribe registers a lifecycle listener.
func (m *Manager) Subscribe(l Listener) {
	m.listenerMu.Lock()
	defer m.listenerMu.Unlock()
	m.listeners = append(m.listeners, l)
}

func (m *Manager) emit(events []Event) {
	if len(events) == 0 {
		return
	}
	m.listenerMu.RLock()
	listeners := make([]Listener, len(m.listeners))
	copy(listeners, m.listeners)
	m.listenerMu.RUnlock()

	for _, ev := range events {
		for _, l := range listeners {
			l(ev)
		}
	}
}

// Outcome reports what one merge changed.
type Outcome struct {
	Created  []RiskAlert
	Extended []RiskAlert
	// Known holds, per candidate matching an existing alert, that alert's id.
	Known []string
}

// Apply merges candidates into the store in one atomic write and returns the
// alerts that were created. A cancelled context aborts before anything is
// written.
func (m *Manager) Apply(ctx context.Context, candidates []RiskAlert) ([]RiskAlert, error) {
	out, err := m.Reconcile(ctx, candidates)
	return out.Created, err
}

// Reconcile is Apply reporting extended alerts as well as created ones.
func (m *Manager) Reconcile(ctx context.Context, candidates []RiskAlert) (Outcome, error) {
	out, err := m.apply(ctx, candidates)
	if err != nil {
		return Outcome{}, err
	}

	now := m.now()
	events := make([]Event, 0, len(out.Created)+len(out.Extended))
	for _, a := range out.Created {
		events = append(events, Event{Kind: EventCreated, At: now, Alert: a.Clone()})
	}
	for _, a := range out.Extended {
		events = append(events, Event{Kind: EventExtended, At: now, Alert: a.Clone()})
	}
	m.emit(events)
	return out, nil
}

func (m *Manager) apply(ctx context.Context, candidates []RiskAlert) (Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Outcome{}, ErrManagerClosed
	}

	existing, err := m.store.ListAlerts(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("loading alerts: %w", err)
	}

	p := reconcile(existing, candidates)
	out := Outcome{Created: p.created, Extended: p.extended, Known: p.known}
	if len(p.created) == 0 && len(p.extended) == 0 {
		return out, nil
	}

	if err := ctx.Err(); err != nil {
		return Outcome{}, fmt.Errorf("merge aborted: %w", err)
	}
	writes := append(slices.Clone(p.created), p.extended...)
	if err := m.store.PutAlerts(ctx, writes); err != nil {
		return Outcome{}, fmt.Errorf("storing merged alerts: %w", err)
	}

	for _, a := range p.created {
		metrics.AlertsCreated.WithLabelValues(string(a.Type), string(a.Severity)).Inc()
	}
	updateOpenGauge(p.all)
	logging.Info().
		Int("created", len(p.created)).
		Int("extended", len(p.extended)).
		Int("candidates", len(candidates)).
		Msg("alerts merged")
	return out, nil
}

// mutate loads one alert, applies fn to a copy and stores the result. fn
// returns the event to emit or an error, in which case nothing is written.
func (m *Manager) mutate(ctx context.Context, id, action string, fn func(a *RiskAlert, now time.Time) (Event, error)) (RiskAlert, error) {
	ev, err := m.mutateLocked(ctx, id, action, fn)
	if err != nil {
		return RiskAlert{}, err
	}
	m.emit([]Event{ev})
	return ev.Alert.Clone(), nil
}

func (m *Manager) mutateLocked(ctx context.Context, id, action string, fn func(a *RiskAlert, now time.Time) (Event, error)) (Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Event{}, ErrManagerClosed
	}

	current, ok, err := m.store.GetAlert(ctx, id)
	if err != nil {
		return Event{}, fmt.Errorf("loading alert %s: %w", id, err)
	}
	if !ok {
		return Event{}, fmt.Errorf("%w: %s", ErrUnknownAlert, id)
	}

	updated := current.Clone()
	now := m.now()
	ev, err := fn(&updated, now)
	if err != nil {
		return Event{}, err
	}

	if err := ctx.Err(); err != nil {
		return Event{}, fmt.Errorf("%s aborted: %w", action, err)
	}
	if err := m.store.PutAlerts(ctx, []RiskAlert{updated}); err != nil {
		return Event{}, fmt.Errorf("storing alert %s: %w", id, err)
	}

	metrics.AlertTransitions.WithLabelValues(action).Inc()
	if current.Status != updated.Status {
		metrics.AlertsOpen.WithLabelValues(string(current.Status)).Dec()
		if updated.Open() {
			metrics.AlertsOpen.WithLabelValues(string(updated.Status)).Inc()
		}
	}

	ev.At = now
	ev.Alert = updated
	return ev, nil
}

// MarkInvestigating moves an active alert to investigating. A non-empty note
// is recorded as an investigation note.
func (m *Manager) MarkInvestigating(ctx context.Context, id, note string) (RiskAlert, error) {
	return m.mutate(ctx, id, "investigate", func(a *RiskAlert, now time.Time) (Event, error) {
		if a.Status != StatusActive {
			return Event{}, &TransitionError{AlertID: a.ID, From: a.Status, Action: "investigate", Reason: "only active alerts can be investigated"}
		}
		a.Status = StatusInvestigating
		a.InvestigatedAt = &now
		if n := strings.TrimSpace(note); n != "" {
			a.Notes = append(a.Notes, Note{Text: n, CreatedAt: now})
		}
		return Event{Kind: EventInvestigating}, nil
	})
}

// Resolve closes an active or investigating alert. Both a resolution from the
// taxonomy and non-empty notes are required.
func (m *Manager) Resolve(ctx context.Context, id string, resolution Resolution, notes string) (RiskAlert, error) {
	return m.mutate(ctx, id, "resolve", func(a *RiskAlert, now time.Time) (Event, error) {
		if a.Status == StatusResolved {
			return Event{}, fmt.Errorf("%w: %s", ErrAlreadyResolved, a.ID)
		}
		if !resolution.Valid() {
			return Event{}, &TransitionError{AlertID: a.ID, From: a.Status, Action: "resolve", Reason: fmt.Sprintf("unknown resolution %q", resolution)}
		}
		notes = strings.TrimSpace(notes)
		if notes == "" {
			return Event{}, &TransitionError{AlertID: a.ID, From: a.Status, Action: "resolve", Reason: "resolution notes are required"}
		}
		a.Status = StatusResolved
		a.ResolvedAt = &now
		a.Resolution = resolution
		a.ResolutionNotes = notes
		return Event{Kind: EventResolved, Detail: string(resolution)}, nil
	})
}

// AddNote attaches an investigation note to an open alert.
func (m *Manager) AddNote(ctx context.Context, id, author, text string) (RiskAlert, error) {
	return m.mutate(ctx, id, "note", func(a *RiskAlert, now time.Time) (Event, error) {
		if a.Status == StatusResolved {
			return Event{}, fmt.Errorf("%w: %s", ErrAlreadyResolved, a.ID)
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return Event{}, &TransitionError{AlertID: a.ID, From: a.Status, Action: "add note to", Reason: "note text is required"}
		}
		a.Notes = append(a.Notes, Note{Text: text, Author: strings.TrimSpace(author), CreatedAt: now})
		return Event{Kind: EventNoteAdded}, nil
	})
}

// Escalate records a hand-off of an open alert to an administrator. Status is
// unchanged.
func (m *Manager) Escalate(ctx context.Context, id string, reason EscalationReason, notes string) (RiskAlert, error) {
	return m.mutate(ctx, id, "escalate", func(a *RiskAlert, now time.Time) (Event, error) {
		if a.Status == StatusResolved {
			return Event{}, fmt.Errorf("%w: %s", ErrAlreadyResolved, a.ID)
		}
		if !reason.Valid() {
			return Event{}, &TransitionError{AlertID: a.ID, From: a.Status, Action: "escalate", Reason: fmt.Sprintf("unknown escalation reason %q", reason)}
		}
		a.Escalations = append(a.Escalations, Escalation{Reason: reason, Notes: strings.TrimSpace(notes), EscalatedAt: now})
		return Event{Kind: EventEscalated, Detail: string(reason)}, nil
	})
}

// ContactConductor logs a message sent to the conductor behind an open alert.
func (m *Manager) ContactConductor(ctx context.Context, id, message string) (RiskAlert, error) {
	return m.mutate(ctx, id, "contact", func(a *RiskAlert, now time.Time) (Event, error) {
		if a.Status == StatusResolved {
			return Event{}, fmt.Errorf("%w: %s", ErrAlreadyResolved, a.ID)
		}
		message = strings.TrimSpace(message)
		if message == "" {
			return Event{}, &TransitionError{AlertID: a.ID, From: a.Status, Action: "contact conductor for", Reason: "message is required"}
		}
		a.Contacts = append(a.Contacts, Contact{Message: message, SentAt: now})
		return Event{Kind: EventConductorContacted}, nil
	})
}

// Get returns one alert.
func (m *Manager) Get(ctx context.Context, id string) (RiskAlert, error) {
	a, ok, err := m.store.GetAlert(ctx, id)
	if err != nil {
		return RiskAlert{}, fmt.Errorf("loading alert %s: %w", id, err)
	}
	if !ok {
		return RiskAlert{}, fmt.Errorf("%w: %s", ErrUnknownAlert, id)
	}
	return a, nil
}

// List returns the alerts matching f, newest first with ties broken by id.
func (m *Manager) List(ctx context.Context, f Filter) ([]RiskAlert, error) {
	all, err := m.store.ListAlerts(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing alerts: %w", err)
	}
	out := make([]RiskAlert, 0, len(all))
	for _, a := range all {
		if f.Matches(a) {
			out = append(out, a)
		}
	}
	SortForDisplay(out)
	return out, nil
}

func updateOpenGauge(list []RiskAlert) {
	counts := map[Status]int{StatusActive: 0, StatusInvestigating: 0}
	for _, a := range list {
		if a.Open() {
			counts[a.Status]++
		}
	}
	for status, n := range counts {
		metrics.AlertsOpen.WithLabelValues(string(status)).Set(float64(n))
	}
}
