package alerts

import "time"

// EventKind names a lifecycle change.
type EventKind string

const (
	EventCreated            EventKind = "created"
	EventExtended           EventKind = "extended"
	EventInvestigating      EventKind = "investigating"
	EventResolved           EventKind = "resolved"
	EventNoteAdded          EventKind = "note_added"
	EventEscalated          EventKind = "escalated"
	EventConductorContacted EventKind = "conductor_contacted"
)

// Event is emitted after a lifecycle change has been committed to the store.
// Alert is a snapshot taken at commit time.
type Event struct {
	Kind   EventKind `json:"kind"`
	At     time.Time `json:"at"`
	Alert  RiskAlert `json:"alert"`
	Detail string    `json:"detail,omitempty"`
}

// Listener receives lifecycle events. Listeners are called synchronously on
// the goroutine that made the change, after the manager's lock is released,
// so they must not block for long.
type Listener func(Event)
