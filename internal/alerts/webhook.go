package alerts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/nixlim/fieldwatch/internal/logging"
	"github.com/nixlim/fieldwatch/internal/metrics"
)

const webhookQueueSize = 64

// WebhookConfig configures the webhook notifier.
type WebhookConfig struct {
	URL           string
	Headers       map[string]string
	RatePerMinute float64
	Timeout       time.Duration
}

// WebhookPayload is the JSON document posted for each alert.
type WebhookPayload struct {
	EventType string    `json:"event_type"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	Alert     RiskAlert `json:"alert"`
}

// WebhookNotifier posts newly created alerts to an HTTP endpoint. Deliveries
// are queued and sent by a single worker, rate limited and guarded by a
// circuit breaker so a failing endpoint is not hammered.
type WebhookNotifier struct {
	url     string
	headers map[string]string
	client  *http.Client
	limiter *rate.Limiter
	cb      *gobreaker.CircuitBreaker[struct{}]

	queue chan RiskAlert

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewWebhookNotifier creates a webhook notifier. Call Start before use.
func NewWebhookNotifier(cfg WebhookConfig) *WebhookNotifier {
	perMinute := cfg.RatePerMinute
	if perMinute <= 0 {
		perMinute = 30
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers[k] = v
	}

	const cbName = "webhook"
	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0)

	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
		},
	})

	return &WebhookNotifier{
		url:     cfg.URL,
		headers: headers,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(perMinute/60), 1),
		cb:      cb,
		queue:   make(chan RiskAlert, webhookQueueSize),
	}
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	}
	return 0
}

// Start launches the delivery worker.
func (n *WebhookNotifier) Start(ctx context.Context) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.running {
		return
	}
	ctx, n.cancel = context.WithCancel(ctx)
	n.done = make(chan struct{})
	n.running = true
	go n.run(ctx, n.done)
}

// Stop cancels the worker and waits for it to exit. Queued alerts that were
// not yet delivered are dropped.
func (n *WebhookNotifier) Stop() {
	n.mu.Lock()
	if !n.running {
		n.mu.Unlock()
		return
	}
	n.running = false
	cancel, done := n.cancel, n.done
	n.mu.Unlock()

	cancel()
	<-done
}

// Notify queues an alert for delivery. When the queue is full the alert is
// dropped and counted as a failure.
func (n *WebhookNotifier) Notify(alert RiskAlert) {
	select {
	case n.queue <- alert.Clone():
	default:
		metrics.NotifierFailures.WithLabelValues("webhook").Inc()
		logging.Warn().Str("alert", alert.ID).Msg("webhook queue full, dropping notification")
	}
}

func (n *WebhookNotifier) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case alert := <-n.queue:
			if err := n.Send(ctx, alert); err != nil && !errors.Is(err, context.Canceled) {
				metrics.NotifierFailures.WithLabelValues("webhook").Inc()
				logging.Warn().Err(err).Str("alert", alert.ID).Msg("webhook delivery failed")
			}
		}
	}
}

// Send delivers one alert synchronously, waiting for the rate limiter.
func (n *WebhookNotifier) Send(ctx context.Context, alert RiskAlert) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for webhook rate limit: %w", err)
	}

	body, err := json.Marshal(WebhookPayload{
		EventType: "risk_alert",
		Source:    "fieldwatch",
		Timestamp: time.Now().UTC(),
		Alert:     alert,
	})
	if err != nil {
		return fmt.Errorf("encoding webhook payload: %w", err)
	}

	_, err = n.cb.Execute(func() (struct{}, error) {
		return struct{}{}, n.post(ctx, body)
	})
	return err
}

func (n *WebhookNotifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range n.headers {
		req.Header.Set(k, v)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
