// Package stats computes aggregate statistics over the alert collection.
// All functions are pure computations with no side effects.
package stats

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/nixlim/fieldwatch/internal/alerts"
)

const (
	defaultHighPriorityLimit = 5
	defaultHotspotLimit      = 10
)

// Calculator computes dashboard statistics from alerts.
type Calculator struct {
	highPriorityLimit int
	hotspotLimit      int
}

// NewCalculator creates a Calculator. Non-positive limits use the defaults
// of 5 high-priority alerts and 10 hotspots.
func NewCalculator(highPriorityLimit, hotspotLimit int) *Calculator {
	if highPriorityLimit <= 0 {
		highPriorityLimit = defaultHighPriorityLimit
	}
	if hotspotLimit <= 0 {
		hotspotLimit = defaultHotspotLimit
	}
	return &Calculator{highPriorityLimit: highPriorityLimit, hotspotLimit: hotspotLimit}
}

// Compute calculates DashboardStats from the given alerts.
func (c *Calculator) Compute(list []alerts.RiskAlert) DashboardStats {
	stats := DashboardStats{
		Total:        len(list),
		ByStatus:     make(map[alerts.Status]int),
		ByType:       make(map[alerts.Type]int),
		BySeverity:   make(map[alerts.Severity]int),
		ByResolution: make(map[alerts.Resolution]int),
	}

	affected := make(map[string]bool)
	for _, a := range list {
		stats.ByStatus[a.Status]++
		stats.ByType[a.Type]++
		stats.BySeverity[a.Severity]++
		if a.Resolution != "" {
			stats.ByResolution[a.Resolution]++
		}
		if len(a.Escalations) > 0 {
			stats.Escalated++
		}
		if a.Open() {
			for _, id := range a.AffectedResponses {
				affected[id] = true
			}
		}
	}
	stats.AffectedResponses = len(affected)
	stats.HighPriorityActive = c.computeHighPriority(list)
	stats.Hotspots = c.computeHotspots(list)
	stats.MeanTimeToResolve = computeMTTR(list)
	return stats
}

// computeHighPriority returns active high-severity alerts, newest first.
func (c *Calculator) computeHighPriority(list []alerts.RiskAlert) []alerts.RiskAlert {
	out := []alerts.RiskAlert{}
	for _, a := range list {
		if a.Status == alerts.StatusActive && a.Severity == alerts.SeverityHigh {
			out = append(out, a.Clone())
		}
	}
	alerts.SortForDisplay(out)
	if len(out) > c.highPriorityLimit {
		out = out[:c.highPriorityLimit]
	}
	return out
}

// computeHotspots groups open alerts that carry a location by address, or
// by coordinates rounded to two decimals when there is no address. Ordered
// by alert count, then high-severity count, then label.
func (c *Calculator) computeHotspots(list []alerts.RiskAlert) []Hotspot {
	byLabel := make(map[string]*Hotspot)
	for _, a := range list {
		if !a.Open() || a.Location == nil || !a.Location.Known() {
			continue
		}
		label := a.Location.Address
		if label == "" {
			label = fmt.Sprintf("%.2f,%.2f", a.Location.Latitude, a.Location.Longitude)
		}
		h, ok := byLabel[label]
		if !ok {
			h = &Hotspot{Label: label, Latitude: a.Location.Latitude, Longitude: a.Location.Longitude}
			byLabel[label] = h
		}
		h.Alerts++
		if a.Severity == alerts.SeverityHigh {
			h.High++
		}
	}

	out := make([]Hotspot, 0, len(byLabel))
	for _, h := range byLabel {
		out = append(out, *h)
	}
	slices.SortFunc(out, func(a, b Hotspot) int {
		if n := cmp.Compare(b.Alerts, a.Alerts); n != 0 {
			return n
		}
		if n := cmp.Compare(b.High, a.High); n != 0 {
			return n
		}
		return cmp.Compare(a.Label, b.Label)
	})
	if len(out) > c.hotspotLimit {
		out = out[:c.hotspotLimit]
	}
	return out
}

// computeMTTR returns the mean of ResolvedAt - DetectedAt over resolved
// alerts, or zero when none are resolved.
func computeMTTR(list []alerts.RiskAlert) time.Duration {
	var total time.Duration
	var n int
	for _, a := range list {
		if a.Status != alerts.StatusResolved || a.ResolvedAt == nil {
			continue
		}
		d := a.ResolvedAt.Sub(a.DetectedAt)
		if d < 0 {
			continue
		}
		total += d
		n++
	}
	if n == 0 {
		return 0
	}
	return total / time.Duration(n)
}
