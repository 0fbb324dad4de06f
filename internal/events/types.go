package events

import "time"

// FormattedEvent holds a display-ready lifecycle event with metadata.
type FormattedEvent struct {
	AlertID   string    `json:"alertId"`
	SurveyID  string    `json:"surveyId,omitempty"`
	Kind      string    `json:"kind"` // created, investigating, resolved, note_added, escalated, conductor_contacted
	Severity  string    `json:"severity"`
	Formatted string    `json:"formatted"`
	Timestamp time.Time `json:"timestamp"`
}
