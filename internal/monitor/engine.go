// Package monitor runs the detection refresh cycle: load responses, detect,
// merge the candidates into the alert store.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nixlim/fieldwatch/internal/alerts"
	"github.com/nixlim/fieldwatch/internal/logging"
	"github.com/nixlim/fieldwatch/internal/risk"
	"github.com/nixlim/fieldwatch/internal/state"
	"github.com/nixlim/fieldwatch/internal/survey"
)

// ingestDebounce is how long the engine waits after new responses arrive
// before refreshing, so a burst of uploads triggers one run.
const ingestDebounce = 2 * time.Second

// Summary describes one refresh.
type Summary struct {
	StartedAt  time.Time     `json:"startedAt"`
	Duration   time.Duration `json:"duration"`
	Analyzed   int           `json:"analyzed"`
	Candidates int           `json:"candidates"`
	Known      int           `json:"known"`
	Skipped    int           `json:"skipped"`
	Created    []string      `json:"created"`
	Extended   []string      `json:"extended"`
	Failures   []string      `json:"failures,omitempty"`
}

// Engine owns the refresh cycle. Refreshes are serialized; the alert
// manager additionally serializes every merge against operator actions.
type Engine struct {
	store    state.Store
	manager  *alerts.Manager
	detector *risk.Detector
	interval time.Duration
	query    state.ResponseQuery
	debounce time.Duration
	onIngest bool

	refreshMu sync.Mutex

	lastMu sync.RWMutex
	last   *Summary

	trigger chan struct{}

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithInterval enables periodic refresh. Zero or negative disables it.
func WithInterval(d time.Duration) Option {
	return func(e *Engine) { e.interval = d }
}

// WithQuery restricts which responses are analysed.
func WithQuery(q state.ResponseQuery) Option {
	return func(e *Engine) { e.query = q }
}

// WithIngestTrigger refreshes shortly after new responses are stored.
func WithIngestTrigger() Option {
	return func(e *Engine) { e.onIngest = true }
}

// New creates an Engine. Call Start for background refresh.
func New(store state.Store, manager *alerts.Manager, detector *risk.Detector, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		manager:  manager,
		detector: detector,
		debounce: ingestDebounce,
		trigger:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.onIngest {
		store.OnResponses(func([]survey.Response) { e.Trigger() })
	}
	return e
}

// Refresh runs one detection pass and merges the candidates. When some
// rules fail, the candidates of the others are still merged and the
// returned error wraps alerts.ErrDetectionPartialFailure.
func (e *Engine) Refresh(ctx context.Context) (Summary, error) {
	e.refreshMu.Lock()
	defer e.refreshMu.Unlock()

	start := time.Now()
	sum := Summary{StartedAt: start.UTC(), Created: []string{}, Extended: []string{}}

	responses, err := e.store.ListResponses(ctx, e.query)
	if err != nil {
		return sum, fmt.Errorf("loading responses: %w", err)
	}
	existing, err := e.manager.List(ctx, alerts.Filter{})
	if err != nil {
		return sum, err
	}

	res, err := e.detector.Detect(ctx, responses, existing)
	if err != nil {
		return sum, err
	}
	sum.Analyzed = res.Analyzed
	sum.Candidates = len(res.Candidates)
	sum.Known = len(res.Known)
	sum.Skipped = len(res.Skipped)
	for _, f := range res.Failures {
		sum.Failures = append(sum.Failures, f.Error())
	}

	out, err := e.manager.Reconcile(ctx, res.Candidates)
	if err != nil {
		return sum, err
	}
	for _, a := range out.Created {
		sum.Created = append(sum.Created, a.ID)
	}
	for _, a := range out.Extended {
		sum.Extended = append(sum.Extended, a.ID)
	}
	sum.Duration = time.Since(start)

	e.lastMu.Lock()
	s := sum
	e.last = &s
	e.lastMu.Unlock()

	logging.Info().
		Int("analyzed", sum.Analyzed).
		Int("candidates", sum.Candidates).
		Int("created", len(sum.Created)).
		Int("extended", len(sum.Extended)).
		Int("failures", len(sum.Failures)).
		Dur("duration", sum.Duration).
		Msg("refresh complete")

	return sum, res.Err()
}

// LastSummary returns the most recent successful refresh.
func (e *Engine) LastSummary() (Summary, bool) {
	e.lastMu.RLock()
	defer e.lastMu.RUnlock()
	if e.last == nil {
		return Summary{}, false
	}
	return *e.last, true
}

// Trigger requests a refresh from the background loop. It never blocks; at
// most one request is pending at a time.
func (e *Engine) Trigger() {
	select {
	case e.trigger <- struct{}{}:
	default:
	}
}

// Start launches the background loop. It runs an initial refresh, then
// refreshes every interval and after ingest triggers.
func (e *Engine) Start(ctx context.Context) {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.running {
		return
	}
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})
	e.running = true
	go e.loop(ctx, e.done)
}

// Stop cancels the loop and waits for an in-flight refresh to finish.
func (e *Engine) Stop() {
	e.runMu.Lock()
	if !e.running {
		e.runMu.Unlock()
		return
	}
	e.running = false
	cancel, done := e.cancel, e.done
	e.runMu.Unlock()

	cancel()
	<-done
}

func (e *Engine) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	e.refreshLogged(ctx)

	var tick <-chan time.Time
	if e.interval > 0 {
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	var debounce *time.Timer
	var debounceC <-chan time.Time
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			e.refreshLogged(ctx)
		case <-e.trigger:
			if debounce == nil {
				debounce = time.NewTimer(e.debounce)
			} else {
				debounce.Reset(e.debounce)
			}
			debounceC = debounce.C
		case <-debounceC:
			debounceC = nil
			e.refreshLogged(ctx)
		}
	}
}

func (e *Engine) refreshLogged(ctx context.Context) {
	_, err := e.Refresh(ctx)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
	case errors.Is(err, alerts.ErrDetectionPartialFailure):
		logging.Warn().Err(err).Msg("refresh completed with rule failures")
	default:
		logging.Error().Err(err).Msg("refresh failed")
	}
}
