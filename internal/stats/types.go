package stats

import (
	"time"

	"github.com/nixlim/fieldwatch/internal/alerts"
)

// DashboardStats holds the aggregate alert statistics shown on the
// dashboard overview.
type DashboardStats struct {
	Total              int                       `json:"total"`
	ByStatus           map[alerts.Status]int     `json:"byStatus"`
	ByType             map[alerts.Type]int       `json:"byType"`
	BySeverity         map[alerts.Severity]int   `json:"bySeverity"`
	ByResolution       map[alerts.Resolution]int `json:"byResolution"`
	AffectedResponses  int                       `json:"affectedResponses"` // unique across open alerts
	HighPriorityActive []alerts.RiskAlert        `json:"highPriorityActive"`
	Hotspots           []Hotspot                 `json:"hotspots"`
	MeanTimeToResolve  time.Duration             `json:"meanTimeToResolve"`
	Escalated          int                       `json:"escalated"`
}

// Hotspot is a place with open alerts, for the risk map.
type Hotspot struct {
	Label     string  `json:"label"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Alerts    int     `json:"alerts"`
	High      int     `json:"high"`
}
