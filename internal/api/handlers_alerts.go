package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nixlim/fieldwatch/internal/alerts"
)

// listQuery holds the filters accepted by the alert listing and CSV export.
type listQuery struct {
	Status   string `query:"status" validate:"omitempty,alert_status"`
	Severity string `query:"severity" validate:"omitempty,severity"`
	Type     string `query:"type" validate:"omitempty,alert_type"`
	SurveyID string `query:"surveyId" validate:"omitempty,max=200"`
	Limit    int    `query:"limit" validate:"min=0,max=10000"`
}

func (q listQuery) filter() alerts.Filter {
	return alerts.Filter{
		Status:   alerts.Status(q.Status),
		Severity: alerts.Severity(q.Severity),
		Type:     alerts.Type(q.Type),
		SurveyID: q.SurveyID,
	}
}

// parseListQuery reads and validates the listing filters. It writes the
// error response itself.
func parseListQuery(w http.ResponseWriter, r *http.Request) (listQuery, bool) {
	v := r.URL.Query()
	q := listQuery{
		Status:   strings.ToLower(strings.TrimSpace(v.Get("status"))),
		Severity: strings.ToLower(strings.TrimSpace(v.Get("severity"))),
		Type:     strings.ToLower(strings.TrimSpace(v.Get("type"))),
		SurveyID: strings.TrimSpace(v.Get("surveyId")),
	}
	if raw := strings.TrimSpace(v.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			respondValidation(w, &validationError{Fields: []string{"limit"}, Message: "limit must be an integer"})
			return q, false
		}
		q.Limit = n
	}
	if verr := validateStruct(&q); verr != nil {
		respondValidation(w, verr)
		return q, false
	}
	return q, true
}

// AlertList is the body of GET /alerts.
type AlertList struct {
	Alerts []alerts.RiskAlert `json:"alerts"`
	Total  int                `json:"total"`
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	q, ok := parseListQuery(w, r)
	if !ok {
		return
	}
	list, err := s.manager.List(r.Context(), q.filter())
	if err != nil {
		respondManagerError(w, err)
		return
	}
	total := len(list)
	if q.Limit > 0 && len(list) > q.Limit {
		list = list[:q.Limit]
	}
	respondData(w, http.StatusOK, AlertList{Alerts: list, Total: total})
}

func (s *Server) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	a, err := s.manager.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondManagerError(w, err)
		return
	}
	respondData(w, http.StatusOK, a)
}

type investigateRequest struct {
	Note string `json:"note" validate:"max=4000"`
}

func (req *investigateRequest) trim() { req.Note = strings.TrimSpace(req.Note) }

func (s *Server) handleInvestigate(w http.ResponseWriter, r *http.Request) {
	var req investigateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	a, err := s.manager.MarkInvestigating(r.Context(), chi.URLParam(r, "id"), req.Note)
	if err != nil {
		respondManagerError(w, err)
		return
	}
	respondData(w, http.StatusOK, a)
}

type resolveRequest struct {
	Resolution string `json:"resolution" validate:"required,resolution"`
	Notes      string `json:"notes" validate:"required,max=4000"`
}

func (req *resolveRequest) trim() {
	req.Resolution = strings.TrimSpace(req.Resolution)
	req.Notes = strings.TrimSpace(req.Notes)
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	a, err := s.manager.Resolve(r.Context(), chi.URLParam(r, "id"), alerts.Resolution(req.Resolution), req.Notes)
	if err != nil {
		respondManagerError(w, err)
		return
	}
	respondData(w, http.StatusOK, a)
}

type noteRequest struct {
	Author string `json:"author" validate:"max=200"`
	Text   string `json:"text" validate:"required,max=4000"`
}

func (req *noteRequest) trim() {
	req.Author = strings.TrimSpace(req.Author)
	req.Text = strings.TrimSpace(req.Text)
}

func (s *Server) handleAddNote(w http.ResponseWriter, r *http.Request) {
	var req noteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	a, err := s.manager.AddNote(r.Context(), chi.URLParam(r, "id"), req.Author, req.Text)
	if err != nil {
		respondManagerError(w, err)
		return
	}
	respondData(w, http.StatusOK, a)
}

type escalateRequest struct {
	Reason string `json:"reason" validate:"required,escalation_reason"`
	Notes  string `json:"notes" validate:"max=4000"`
}

func (req *escalateRequest) trim() {
	req.Reason = strings.TrimSpace(req.Reason)
	req.Notes = strings.TrimSpace(req.Notes)
}

func (s *Server) handleEscalate(w http.ResponseWriter, r *http.Request) {
	var req escalateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	a, err := s.manager.Escalate(r.Context(), chi.URLParam(r, "id"), alerts.EscalationReason(req.Reason), req.Notes)
	if err != nil {
		respondManagerError(w, err)
		return
	}
	respondData(w, http.StatusOK, a)
}

type contactRequest struct {
	Message string `json:"message" validate:"required,max=2000"`
}

func (req *contactRequest) trim() { req.Message = strings.TrimSpace(req.Message) }

func (s *Server) handleContact(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if !decodeBody(w, r, &req) {
		return
	}
	a, err := s.manager.ContactConductor(r.Context(), chi.URLParam(r, "id"), req.Message)
	if err != nil {
		respondManagerError(w, err)
		return
	}
	respondData(w, http.StatusOK, a)
}

// handleEvidence serves the evidence bundle as a JSON download.
func (s *Server) handleEvidence(w http.ResponseWriter, r *http.Request) {
	bundle, err := s.manager.ExportEvidence(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondManagerError(w, err)
		return
	}
	data, err := bundle.JSON()
	if err != nil {
		respondError(w, http.StatusInternalServerError, codeInternal, "failed to encode evidence", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="`+bundle.Filename()+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
