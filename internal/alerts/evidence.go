package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/nixlim/fieldwatch/internal/survey"
)

// EvidenceBundle is the audit snapshot of one alert. Two bundles exported
// from the same alert state differ only in ExportedAt.
type EvidenceBundle struct {
	AlertID            string           `json:"alertId"`
	Type               Type             `json:"type"`
	Severity           Severity         `json:"severity"`
	Status             Status           `json:"status"`
	Message            string           `json:"message"`
	SurveyID           string           `json:"surveyId,omitempty"`
	Location           *survey.Location `json:"location,omitempty"`
	DetectedAt         time.Time        `json:"detectedAt"`
	AffectedResponses  []string         `json:"affectedResponses"`
	Metadata           map[string]any   `json:"metadata"`
	InvestigatedAt     *time.Time       `json:"investigatedAt,omitempty"`
	ResolvedAt         *time.Time       `json:"resolvedAt,omitempty"`
	Resolution         Resolution       `json:"resolution,omitempty"`
	ResolutionNotes    string           `json:"resolutionNotes,omitempty"`
	InvestigationNotes []Note           `json:"investigationNotes"`
	Escalations        []Escalation     `json:"escalations"`
	Contacts           []Contact        `json:"contacts"`
	ExportedAt         time.Time        `json:"exportedAt"`
}

// NewEvidenceBundle snapshots a. The slices are always non-nil so the JSON
// shape does not depend on whether notes were ever taken.
func NewEvidenceBundle(a RiskAlert, exportedAt time.Time) EvidenceBundle {
	c := a.Clone()
	b := EvidenceBundle{
		AlertID:            c.ID,
		Type:               c.Type,
		Severity:           c.Severity,
		Status:             c.Status,
		Message:            c.Message,
		SurveyID:           c.SurveyID,
		Location:           c.Location,
		DetectedAt:         c.DetectedAt,
		AffectedResponses:  c.AffectedResponses,
		Metadata:           c.Metadata,
		InvestigatedAt:     c.InvestigatedAt,
		ResolvedAt:         c.ResolvedAt,
		Resolution:         c.Resolution,
		ResolutionNotes:    c.ResolutionNotes,
		InvestigationNotes: c.Notes,
		Escalations:        c.Escalations,
		Contacts:           c.Contacts,
		ExportedAt:         exportedAt,
	}
	if b.AffectedResponses == nil {
		b.AffectedResponses = []string{}
	}
	if b.Metadata == nil {
		b.Metadata = map[string]any{}
	}
	if b.InvestigationNotes == nil {
		b.InvestigationNotes = []Note{}
	}
	if b.Escalations == nil {
		b.Escalations = []Escalation{}
	}
	if b.Contacts == nil {
		b.Contacts = []Contact{}
	}
	return b
}

// JSON renders the bundle as indented JSON.
func (b EvidenceBundle) JSON() ([]byte, error) {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding evidence bundle: %w", err)
	}
	return data, nil
}

// Filename returns the conventional download name for the bundle.
func (b EvidenceBundle) Filename() string {
	return fmt.Sprintf("risk_evidence_%s_%d.json", b.AlertID, b.ExportedAt.UnixMilli())
}

// ExportEvidence returns an evidence bundle for the alert with the given id.
func (m *Manager) ExportEvidence(ctx context.Context, id string) (EvidenceBundle, error) {
	a, err := m.Get(ctx, id)
	if err != nil {
		return EvidenceBundle{}, err
	}
	return NewEvidenceBundle(a, m.now()), nil
}
