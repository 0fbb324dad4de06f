package api

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/nixlim/fieldwatch/internal/alerts"
	"github.com/nixlim/fieldwatch/internal/logging"
	"github.com/nixlim/fieldwatch/internal/monitor"
	"github.com/nixlim/fieldwatch/internal/stats"
)

// Health is the body of GET /healthz.
type Health struct {
	Status        string `json:"status"`
	Alerts        int    `json:"alerts"`
	StreamClients int    `json:"streamClients"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	list, err := s.manager.List(r.Context(), alerts.Filter{})
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, codeUnavailable, "alert store unavailable", err)
		return
	}
	respondData(w, http.StatusOK, Health{Status: "ok", Alerts: len(list), StreamClients: s.hub.count()})
}

// handleDetect runs one refresh. Rule failures still return 200 with the
// failures listed in the summary, since the other rules' alerts were merged.
func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		respondError(w, http.StatusServiceUnavailable, codeUnavailable, "detection is not configured", nil)
		return
	}
	sum, err := s.engine.Refresh(r.Context())
	if err != nil && !errors.Is(err, alerts.ErrDetectionPartialFailure) {
		respondManagerError(w, err)
		return
	}
	if err != nil {
		logging.Warn().Err(err).Msg("on-demand detection completed with rule failures")
	}
	respondData(w, http.StatusOK, sum)
}

// Summary is the body of GET /summary.
type Summary struct {
	Stats       stats.DashboardStats `json:"stats"`
	LastRefresh *monitor.Summary     `json:"lastRefresh,omitempty"`
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	q, ok := parseListQuery(w, r)
	if !ok {
		return
	}
	list, err := s.manager.List(r.Context(), q.filter())
	if err != nil {
		respondManagerError(w, err)
		return
	}
	out := Summary{Stats: s.calc.Compute(list)}
	if s.engine != nil {
		if last, ok := s.engine.LastSummary(); ok {
			out.LastRefresh = &last
		}
	}
	respondData(w, http.StatusOK, out)
}

// handleEvents upgrades to a websocket and streams lifecycle events. The
// optional "replay" query parameter asks for that many recent events first.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	replay := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("replay")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondValidation(w, &validationError{Fields: []string{"replay"}, Message: "replay must be a non-negative integer"})
			return
		}
		replay = n
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		logging.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{
		id:   s.clientSeq.Add(1),
		hub:  s.hub,
		conn: conn,
		send: make(chan Message, clientQueue),
	}
	if !s.hub.register(c, replay) {
		_ = conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

// sameOrigin accepts requests without an Origin header (non-browser
// clients) and browser requests from the API's own host.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}
