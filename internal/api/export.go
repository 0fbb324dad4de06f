package api

import (
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nixlim/fieldwatch/internal/alerts"
	"github.com/nixlim/fieldwatch/internal/logging"
)

var csvHeader = []string{
	"id", "type", "severity", "status", "survey_id", "detected_at", "message",
	"affected_responses", "latitude", "longitude", "address",
	"investigated_at", "resolved_at", "resolution", "resolution_notes",
	"notes", "escalations", "contacts",
}

// WriteCSV writes alerts as CSV with a header row. Affected response ids
// are joined with ';'. Timestamps are RFC 3339 in UTC.
func WriteCSV(w io.Writer, list []alerts.RiskAlert) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}
	for _, a := range list {
		if err := cw.Write(csvRow(a)); err != nil {
			return fmt.Errorf("writing CSV row for %s: %w", a.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvRow(a alerts.RiskAlert) []string {
	var lat, lng, addr string
	if a.Location != nil {
		lat = strconv.FormatFloat(a.Location.Latitude, 'f', 6, 64)
		lng = strconv.FormatFloat(a.Location.Longitude, 'f', 6, 64)
		addr = a.Location.Address
	}
	return []string{
		a.ID,
		string(a.Type),
		string(a.Severity),
		string(a.Status),
		a.SurveyID,
		formatTime(&a.DetectedAt),
		a.Message,
		strings.Join(a.AffectedResponses, ";"),
		lat,
		lng,
		addr,
		formatTime(a.InvestigatedAt),
		formatTime(a.ResolvedAt),
		string(a.Resolution),
		a.ResolutionNotes,
		strconv.Itoa(len(a.Notes)),
		strconv.Itoa(len(a.Escalations)),
		strconv.Itoa(len(a.Contacts)),
	}
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// handleExportCSV streams the filtered alert listing as a CSV download.
func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	q, ok := parseListQuery(w, r)
	if !ok {
		return
	}
	list, err := s.manager.List(r.Context(), q.filter())
	if err != nil {
		respondManagerError(w, err)
		return
	}
	if q.Limit > 0 && len(list) > q.Limit {
		list = list[:q.Limit]
	}

	name := fmt.Sprintf("risk_alerts_%d.csv", s.now().UnixMilli())
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)
	if err := WriteCSV(w, list); err != nil {
		logging.Error().Err(err).Msg("CSV export interrupted")
	}
}
