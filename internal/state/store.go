package state

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/nixlim/fieldwatch/internal/alerts"
	"github.com/nixlim/fieldwatch/internal/survey"
)

// Store is the persistence layer for responses and alerts.
// All methods must be thread-safe.
type Store interface {
	// GetAlert, PutAlerts and ListAlerts satisfy alerts.Store. PutAlerts
	// upserts by id and applies the whole batch or nothing.
	alerts.Store

	// PutResponses upserts responses by id and returns how many ids were not
	// stored before.
	PutResponses(ctx context.Context, responses []survey.Response) (int, error)

	// GetResponse returns the response with the given id.
	GetResponse(ctx context.Context, id string) (survey.Response, bool, error)

	// ListResponses returns the responses matching q sorted by submission
	// time, then id.
	ListResponses(ctx context.Context, q ResponseQuery) ([]survey.Response, error)

	// DeleteResponsesBefore removes responses submitted before cutoff and
	// returns how many were removed. Alerts are never deleted.
	DeleteResponsesBefore(ctx context.Context, cutoff time.Time) (int, error)

	// OnResponses registers a listener called after every successful
	// PutResponses.
	OnResponses(fn ResponseListener)

	Close() error
}

// ResponseQuery filters ListResponses. Zero fields match everything.
type ResponseQuery struct {
	SurveyID string
	Since    time.Time
}

// Matches reports whether r passes the query.
func (q ResponseQuery) Matches(r survey.Response) bool {
	if q.SurveyID != "" && r.SurveyID != q.SurveyID {
		return false
	}
	if !q.Since.IsZero() && r.SubmittedAt.Before(q.Since) {
		return false
	}
	return true
}

// ResponseListener is called with each batch stored by PutResponses.
// Listeners run outside the store lock and must not block.
type ResponseListener func(responses []survey.Response)

// MemoryStore is a thread-safe in-memory implementation of Store.
type MemoryStore struct {
	mu        sync.RWMutex
	responses map[string]survey.Response
	alerts    map[string]alerts.RiskAlert
	listeners []ResponseListener
}

// NewMemoryStore creates a new empty MemoryStore ready for use.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		responses: make(map[string]survey.Response),
		alerts:    make(map[string]alerts.RiskAlert),
	}
}

// OnResponses registers a listener called after every PutResponses.
func (ms *MemoryStore) OnResponses(fn ResponseListener) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.listeners = append(ms.listeners, fn)
}

func (ms *MemoryStore) PutResponses(ctx context.Context, responses []survey.Response) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(responses) == 0 {
		return 0, nil
	}

	ms.mu.Lock()
	added := 0
	for _, r := range responses {
		if _, ok := ms.responses[r.ID]; !ok {
			added++
		}
		ms.responses[r.ID] = r.Clone()
	}
	listeners := ms.listeners
	ms.mu.Unlock()

	ms.notify(listeners, responses)
	return added, nil
}

// notify calls listeners outside the lock, each with its own copy.
func (ms *MemoryStore) notify(listeners []ResponseListener, responses []survey.Response) {
	for _, fn := range listeners {
		batch := make([]survey.Response, len(responses))
		for i, r := range responses {
			batch[i] = r.Clone()
		}
		fn(batch)
	}
}

func (ms *MemoryStore) GetResponse(ctx context.Context, id string) (survey.Response, bool, error) {
	if err := ctx.Err(); err != nil {
		return survey.Response{}, false, err
	}
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	r, ok := ms.responses[id]
	if !ok {
		return survey.Response{}, false, nil
	}
	return r.Clone(), true, nil
}

func (ms *MemoryStore) ListResponses(ctx context.Context, q ResponseQuery) ([]survey.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ms.mu.RLock()
	result := make([]survey.Response, 0, len(ms.responses))
	for _, r := range ms.responses {
		if q.Matches(r) {
			result = append(result, r.Clone())
		}
	}
	ms.mu.RUnlock()

	SortResponses(result)
	return result, nil
}

func (ms *MemoryStore) DeleteResponsesBefore(ctx context.Context, cutoff time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	removed := 0
	for id, r := range ms.responses {
		if r.SubmittedAt.Before(cutoff) {
			delete(ms.responses, id)
			removed++
		}
	}
	return removed, nil
}

func (ms *MemoryStore) GetAlert(ctx context.Context, id string) (alerts.RiskAlert, bool, error) {
	if err := ctx.Err(); err != nil {
		return alerts.RiskAlert{}, false, err
	}
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	a, ok := ms.alerts[id]
	if !ok {
		return alerts.RiskAlert{}, false, nil
	}
	return a.Clone(), true, nil
}

// PutAlerts upserts the batch under a single lock hold, so readers see all
// of it or none of it.
func (ms *MemoryStore) PutAlerts(ctx context.Context, batch []alerts.RiskAlert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	for _, a := range batch {
		ms.alerts[a.ID] = a.Clone()
	}
	return nil
}

func (ms *MemoryStore) ListAlerts(ctx context.Context) ([]alerts.RiskAlert, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ms.mu.RLock()
	result := make([]alerts.RiskAlert, 0, len(ms.alerts))
	for _, a := range ms.alerts {
		result = append(result, a.Clone())
	}
	ms.mu.RUnlock()

	alerts.SortForDisplay(result)
	return result, nil
}

// Counts returns the number of stored responses and alerts.
func (ms *MemoryStore) Counts() (responses, alertCount int) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return len(ms.responses), len(ms.alerts)
}

// Close is a no-op for MemoryStore.
func (ms *MemoryStore) Close() error {
	return nil
}

// SortResponses orders responses by submission time, then id, in place.
func SortResponses(responses []survey.Response) {
	slices.SortFunc(responses, func(a, b survey.Response) int {
		if c := a.SubmittedAt.Compare(b.SubmittedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
