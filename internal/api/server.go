// Package api serves the operator HTTP API: alert listing and lifecycle
// actions, evidence and CSV export, on-demand detection, the dashboard
// summary and a websocket stream of lifecycle events.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nixlim/fieldwatch/internal/alerts"
	"github.com/nixlim/fieldwatch/internal/config"
	"github.com/nixlim/fieldwatch/internal/logging"
	"github.com/nixlim/fieldwatch/internal/metrics"
	"github.com/nixlim/fieldwatch/internal/monitor"
	"github.com/nixlim/fieldwatch/internal/stats"
)

// Refresher runs detection on demand. *monitor.Engine satisfies it.
type Refresher interface {
	Refresh(ctx context.Context) (monitor.Summary, error)
	LastSummary() (monitor.Summary, bool)
}

// Server is the operator API.
type Server struct {
	cfg     config.APIConfig
	manager *alerts.Manager
	engine  Refresher
	calc    *stats.Calculator
	hub     *hub
	now     func() time.Time

	clientSeq atomic.Uint64
	upgrader  websocket.Upgrader

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithRefresher enables POST /detect and the last-refresh block of the
// summary.
func WithRefresher(r Refresher) Option {
	return func(s *Server) { s.engine = r }
}

// WithCalculator overrides the dashboard statistics calculator.
func WithCalculator(c *stats.Calculator) Option {
	return func(s *Server) { s.calc = c }
}

// WithHistory sets how many lifecycle events are kept for replay to new
// stream clients.
func WithHistory(n int) Option {
	return func(s *Server) { s.hub = newHub(n) }
}

// WithClock overrides the time source used for export file names.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// New creates the API server and subscribes its event stream to manager.
func New(cfg config.APIConfig, manager *alerts.Manager, opts ...Option) *Server {
	s := &Server{
		cfg:     cfg,
		manager: manager,
		calc:    stats.NewCalculator(0, 0),
		hub:     newHub(200),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  4096,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      sameOrigin,
	}
	manager.Subscribe(s.hub.publish)
	return s
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(recordMetrics)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/healthz", s.handleHealth)
		r.Handle("/metrics", promhttp.Handler())

		r.Get("/alerts", s.handleListAlerts)
		r.Get("/alerts/export.csv", s.handleExportCSV)
		r.Route("/alerts/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetAlert)
			r.Get("/evidence", s.handleEvidence)
			r.Post("/investigate", s.handleInvestigate)
			r.Post("/resolve", s.handleResolve)
			r.Post("/notes", s.handleAddNote)
			r.Post("/escalate", s.handleEscalate)
			r.Post("/contact", s.handleContact)
		})

		r.Post("/detect", s.handleDetect)
		r.Get("/summary", s.handleSummary)
		r.Get("/events", s.handleEvents)
	})
	return r
}

// Start binds the configured port and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Bind, strconv.Itoa(s.cfg.Port))
	lis, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return fmt.Errorf("port %d already in use", s.cfg.Port)
		}
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       seconds(s.cfg.ReadTimeoutSeconds, 15),
		WriteTimeout:      seconds(s.cfg.WriteTimeoutSeconds, 30),
	}

	s.mu.Lock()
	s.listener = lis
	s.server = srv
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error().Err(err).Msg("API server stopped")
		}
	}()
	logging.Info().Str("addr", lis.Addr().String()).Msg("operator API listening")
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop disconnects stream clients and shuts the server down, waiting up to
// five seconds for in-flight requests.
func (s *Server) Stop() {
	s.hub.close()

	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.mu.Unlock()
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

func seconds(n, fallback int) time.Duration {
	if n <= 0 {
		n = fallback
	}
	return time.Duration(n) * time.Second
}

// recordMetrics counts requests by chi route pattern so path parameters do
// not explode label cardinality.
func recordMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		switch {
		case status != 0:
		case websocket.IsWebSocketUpgrade(r):
			status = http.StatusSwitchingProtocols
		default:
			status = http.StatusOK
		}
		metrics.RecordAPIRequest(r.Method, route, strconv.Itoa(status), time.Since(start))
	})
}
