package alerts

import (
	"maps"
	"slices"
	"time"

	"github.com/nixlim/fieldwatch/internal/survey"
)

// Type identifies the rule that produced an alert.
type Type string

// Alert rule types.
const (
	TypeDuplicateResponses Type = "duplicate_responses"
	TypeLocationMismatch   Type = "location_mismatch"
	TypeSuspiciousPattern  Type = "suspicious_pattern"
	TypeDeviceAnomaly      Type = "device_anomaly"
)

// Types lists every rule type in display order.
var Types = []Type{TypeDuplicateResponses, TypeLocationMismatch, TypeSuspiciousPattern, TypeDeviceAnomaly}

// Valid reports whether t is a known rule type.
func (t Type) Valid() bool {
	return slices.Contains(Types, t)
}

// Label returns a short human-readable name.
func (t Type) Label() string {
	switch t {
	case TypeDuplicateResponses:
		return "Duplicate Responses"
	case TypeLocationMismatch:
		return "Location Mismatch"
	case TypeSuspiciousPattern:
		return "Suspicious Pattern"
	case TypeDeviceAnomaly:
		return "Device Anomaly"
	}
	return string(t)
}

// Severity is the urgency of an alert.
type Severity string

// Alert severity constants.
const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	return s.Rank() > 0
}

// Rank orders severities; unknown values rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	}
	return 0
}

// Status is the lifecycle state of an alert.
type Status string

// Lifecycle states. Resolved is terminal.
const (
	StatusActive        Status = "active"
	StatusInvestigating Status = "investigating"
	StatusResolved      Status = "resolved"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInvestigating, StatusResolved:
		return true
	}
	return false
}

// Resolution records how an alert was closed.
type Resolution string

const (
	ResolutionFalsePositive      Resolution = "false_positive"
	ResolutionDataCorrected      Resolution = "data_corrected"
	ResolutionConductorContacted Resolution = "conductor_contacted"
	ResolutionSystemUpdated      Resolution = "system_updated"
	ResolutionEscalated          Resolution = "escalated"
)

// Resolutions lists the resolution taxonomy.
var Resolutions = []Resolution{
	ResolutionFalsePositive,
	ResolutionDataCorrected,
	ResolutionConductorContacted,
	ResolutionSystemUpdated,
	ResolutionEscalated,
}

// Valid reports whether r belongs to the resolution taxonomy.
func (r Resolution) Valid() bool {
	return slices.Contains(Resolutions, r)
}

// EscalationReason classifies why an alert was handed to an administrator.
type EscalationReason string

const (
	EscalationHighSeverity        EscalationReason = "high_severity"
	EscalationRequiresAdminAction EscalationReason = "requires_admin_action"
	EscalationPolicyViolation     EscalationReason = "policy_violation"
	EscalationTechnicalIssue      EscalationReason = "technical_issue"
	EscalationOther               EscalationReason = "other"
)

// EscalationReasons lists the escalation taxonomy.
var EscalationReasons = []EscalationReason{
	EscalationHighSeverity,
	EscalationRequiresAdminAction,
	EscalationPolicyViolation,
	EscalationTechnicalIssue,
	EscalationOther,
}

// Valid reports whether r belongs to the escalation taxonomy.
func (r EscalationReason) Valid() bool {
	return slices.Contains(EscalationReasons, r)
}

// Note is a free-text investigation note.
type Note struct {
	Text      string    `json:"text"`
	Author    string    `json:"author,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Escalation records a hand-off to an administrator.
type Escalation struct {
	Reason      EscalationReason `json:"reason"`
	Notes       string           `json:"notes"`
	EscalatedAt time.Time        `json:"escalatedAt"`
}

// Contact records a message sent to the conductor who collected the
// affected responses.
type Contact struct {
	Message string    `json:"message"`
	SentAt  time.Time `json:"sentAt"`
}

// RiskAlert is a flagged anomaly in survey-response data. Alerts are created
// only through Merge and are never deleted.
type RiskAlert struct {
	ID                string           `json:"id"`
	Type              Type             `json:"type"`
	Severity          Severity         `json:"severity"`
	Message           string           `json:"message"`
	Location          *survey.Location `json:"location,omitempty"`
	AffectedResponses []string         `json:"affectedResponses"`
	DetectedAt        time.Time        `json:"detectedAt"`
	Status            Status           `json:"status"`
	Metadata          map[string]any   `json:"metadata"`
	SurveyID          string           `json:"surveyId,omitempty"`
	// Scope is the rule-specific grouping: device id, survey id or
	// fingerprint.
	Scope string `json:"scope,omitempty"`
	// DedupKey is the key the alert was created under. It does not change
	// when re-detection extends the alert.
	DedupKey string `json:"dedupKey"`

	InvestigatedAt  *time.Time `json:"investigatedAt,omitempty"`
	ResolvedAt      *time.Time `json:"resolvedAt,omitempty"`
	Resolution      Resolution `json:"resolution,omitempty"`
	ResolutionNotes string     `json:"resolutionNotes,omitempty"`

	Notes       []Note       `json:"notes,omitempty"`
	Escalations []Escalation `json:"escalations,omitempty"`
	Contacts    []Contact    `json:"contacts,omitempty"`
}

// Open reports whether the alert still needs attention.
func (a RiskAlert) Open() bool {
	return a.Status != StatusResolved
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (a RiskAlert) Clone() RiskAlert {
	c := a
	if a.Location != nil {
		loc := *a.Location
		c.Location = &loc
	}
	c.AffectedResponses = slices.Clone(a.AffectedResponses)
	c.Metadata = maps.Clone(a.Metadata)
	if a.InvestigatedAt != nil {
		t := *a.InvestigatedAt
		c.InvestigatedAt = &t
	}
	if a.ResolvedAt != nil {
		t := *a.ResolvedAt
		c.ResolvedAt = &t
	}
	c.Notes = slices.Clone(a.Notes)
	c.Escalations = slices.Clone(a.Escalations)
	c.Contacts = slices.Clone(a.Contacts)
	return c
}

// Filter narrows alert listings. Zero-valued fields match everything.
type Filter struct {
	Status   Status
	Severity Severity
	Type     Type
	SurveyID string
}

// Matches reports whether a satisfies the filter.
func (f Filter) Matches(a RiskAlert) bool {
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if f.Severity != "" && a.Severity != f.Severity {
		return false
	}
	if f.Type != "" && a.Type != f.Type {
		return false
	}
	if f.SurveyID != "" && a.SurveyID != f.SurveyID {
		return false
	}
	return true
}

// SortForDisplay orders alerts by DetectedAt descending, then ID ascending.
func SortForDisplay(list []RiskAlert) {
	slices.SortStableFunc(list, func(a, b RiskAlert) int {
		if c := b.DetectedAt.Compare(a.DetectedAt); c != 0 {
			return c
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}
