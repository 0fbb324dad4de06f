// Package risk runs the rule engine that turns survey responses into
// candidate alerts. Detection is pure: it reads responses and survey
// metadata and never touches the alert store.
package risk

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nixlim/fieldwatch/internal/alerts"
	"github.com/nixlim/fieldwatch/internal/logging"
	"github.com/nixlim/fieldwatch/internal/metrics"
	"github.com/nixlim/fieldwatch/internal/survey"
)

// SurveyLookup resolves survey metadata. *survey.Catalog satisfies it.
type SurveyLookup interface {
	Get(id string) (survey.Survey, bool)
}

// Skip records a response a rule could not evaluate. Err wraps
// alerts.ErrMalformedResponse.
type Skip struct {
	Rule       alerts.Type
	ResponseID string
	Err        error
}

// Result is the outcome of one detection run.
type Result struct {
	// Candidates are sorted by dedup key.
	Candidates []alerts.RiskAlert
	Skipped    []Skip
	// Failures holds rules that errored or panicked. The remaining rules'
	// candidates are still present.
	Failures []*alerts.RuleFailure
	// Known holds, for each candidate matching an existing alert, the id of
	// that alert. Such candidates create nothing when merged.
	Known    []string
	Analyzed int
}

// Err returns the joined rule failures, or nil when every rule completed.
func (r Result) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// ruleOutput is what one rule contributes to a run.
type ruleOutput struct {
	candidates []alerts.RiskAlert
	skipped    []Skip
}

// rule evaluates responses already sorted by (SubmittedAt, ID).
type rule interface {
	Type() alerts.Type
	Evaluate(ctx context.Context, responses []survey.Response) (ruleOutput, error)
}

// Detector applies the rule set to a batch of responses.
type Detector struct {
	cfg     Config
	surveys SurveyLookup
	now     func() time.Time
	rules   []rule
}

// Option configures a Detector.
type Option func(*Detector)

// WithClock sets the time source used for DetectedAt.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) { d.now = now }
}

// withRules replaces the rule set; used by tests to inject failing rules.
func withRules(rules ...rule) Option {
	return func(d *Detector) { d.rules = rules }
}

// NewDetector creates a detector. surveys may be nil, in which case the
// boundary rule never fires and the pattern rule relies on defaults.
func NewDetector(cfg Config, surveys SurveyLookup, opts ...Option) *Detector {
	if surveys == nil {
		surveys = (*survey.Catalog)(nil)
	}
	d := &Detector{cfg: cfg, surveys: surveys, now: time.Now}
	d.rules = []rule{
		duplicateRule{cfg: cfg},
		locationRule{surveys: surveys},
		patternRule{cfg: cfg, surveys: surveys},
		deviceRule{cfg: cfg},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SortResponses orders responses by submission time, then id. Every rule
// sees this order so results never depend on input order.
func SortResponses(responses []survey.Response) []survey.Response {
	sorted := slices.Clone(responses)
	slices.SortStableFunc(sorted, func(a, b survey.Response) int {
		if c := a.SubmittedAt.Compare(b.SubmittedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return sorted
}

// Detect runs every rule over responses. Rules run concurrently and are
// isolated from each other: an error or panic in one rule is reported in
// Result.Failures while the others complete. The returned error is non-nil
// only when ctx is cancelled, in which case the result must be discarded.
func (d *Detector) Detect(ctx context.Context, responses []survey.Response, existing []alerts.RiskAlert) (Result, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("detection cancelled: %w", err)
	}

	sorted := SortResponses(responses)
	outputs := make([]ruleOutput, len(d.rules))
	failures := make([]error, len(d.rules))

	var g errgroup.Group
	for i, r := range d.rules {
		g.Go(func() error {
			outputs[i], failures[i] = evaluate(ctx, r, sorted)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("detection cancelled: %w", err)
	}

	detectedAt := d.now().UTC()
	res := Result{Analyzed: len(sorted)}
	perRule := make(map[string]int, len(d.rules))
	for i, r := range d.rules {
		if failures[i] != nil {
			rf := &alerts.RuleFailure{Rule: r.Type(), Err: failures[i]}
			res.Failures = append(res.Failures, rf)
			metrics.RuleFailures.WithLabelValues(string(r.Type())).Inc()
			logging.Error().Err(failures[i]).Str("rule", string(r.Type())).Msg("rule evaluation failed")
			continue
		}
		for _, c := range outputs[i].candidates {
			c.DetectedAt = detectedAt
			res.Candidates = append(res.Candidates, c)
		}
		res.Skipped = append(res.Skipped, outputs[i].skipped...)
		perRule[string(r.Type())] = len(outputs[i].candidates)
	}

	slices.SortFunc(res.Candidates, func(a, b alerts.RiskAlert) int {
		return cmp.Compare(a.DedupKey, b.DedupKey)
	})
	slices.SortFunc(res.Skipped, func(a, b Skip) int {
		if c := cmp.Compare(a.Rule, b.Rule); c != 0 {
			return c
		}
		return cmp.Compare(a.ResponseID, b.ResponseID)
	})

	res.Known = alerts.Known(existing, res.Candidates)

	metrics.RecordDetection(time.Since(start), perRule)
	logging.Debug().
		Int("responses", res.Analyzed).
		Int("candidates", len(res.Candidates)).
		Int("known", len(res.Known)).
		Int("skipped", len(res.Skipped)).
		Int("failures", len(res.Failures)).
		Msg("detection run complete")
	return res, nil
}

// evaluate runs one rule, converting a panic into an error.
func evaluate(ctx context.Context, r rule, responses []survey.Response) (out ruleOutput, err error) {
	defer func() {
		if p := recover(); p != nil {
			logging.Error().Str("rule", string(r.Type())).Str("stack", string(debug.Stack())).Msg("rule panicked")
			out = ruleOutput{}
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return r.Evaluate(ctx, responses)
}

func skip(rule alerts.Type, responseID, reason string) Skip {
	return Skip{
		Rule:       rule,
		ResponseID: responseID,
		Err:        fmt.Errorf("%w: %s", alerts.ErrMalformedResponse, reason),
	}
}

// commonSurvey returns the survey id shared by every response, or "".
func commonSurvey(responses []survey.Response) string {
	if len(responses) == 0 {
		return ""
	}
	id := responses[0].SurveyID
	for _, r := range responses[1:] {
		if r.SurveyID != id {
			return ""
		}
	}
	return id
}

// latestLocation returns the location of the most recently submitted
// response that has one. responses must be sorted.
func latestLocation(responses []survey.Response) *survey.Location {
	for i := len(responses) - 1; i >= 0; i-- {
		if responses[i].HasLocation() {
			loc := *responses[i].Location
			return &loc
		}
	}
	return nil
}

func ids(responses []survey.Response) []string {
	out := make([]string, len(responses))
	for i, r := range responses {
		out[i] = r.ID
	}
	return out
}
