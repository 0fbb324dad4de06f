package risk

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/nixlim/fieldwatch/internal/alerts"
	"github.com/nixlim/fieldwatch/internal/survey"
)

// patternRule flags surveys whose responses are, on average, completed far
// faster than the survey could plausibly be answered.
type patternRule struct {
	cfg     Config
	surveys SurveyLookup
}

func (patternRule) Type() alerts.Type { return alerts.TypeSuspiciousPattern }

func (r patternRule) Evaluate(ctx context.Context, responses []survey.Response) (ruleOutput, error) {
	var out ruleOutput

	bySurvey := make(map[string][]survey.Response)
	var order []string
	for _, resp := range responses {
		if _, ok := bySurvey[resp.SurveyID]; !ok {
			order = append(order, resp.SurveyID)
		}
		bySurvey[resp.SurveyID] = append(bySurvey[resp.SurveyID], resp)
	}

	for _, surveyID := range order {
		if err := ctx.Err(); err != nil {
			return ruleOutput{}, err
		}
		s, _ := r.surveys.Get(surveyID)

		var timed []survey.Response
		var totalActual, totalExpected time.Duration
		for _, resp := range bySurvey[surveyID] {
			actual, ok := resp.CompletionTime()
			if !ok {
				out.skipped = append(out.skipped, skip(r.Type(), resp.ID, "no completion timing"))
				continue
			}
			expected := s.ExpectedDuration(len(resp.Answers), r.cfg.DefaultSecondsPerQuestion)
			if expected <= 0 {
				out.skipped = append(out.skipped, skip(r.Type(), resp.ID, "no questions to derive expected time"))
				continue
			}
			timed = append(timed, resp)
			totalActual += actual
			totalExpected += expected
		}

		if len(timed) == 0 || len(timed) < r.cfg.PatternMinResponses {
			continue
		}

		n := float64(len(timed))
		avg := totalActual.Seconds() / n
		expected := totalExpected.Seconds() / n
		threshold := expected * r.cfg.FastCompletionRatio
		if avg >= threshold {
			continue
		}

		message := fmt.Sprintf("Unusually fast completion: %d responses averaged %.0fs against an expected %.0fs", len(timed), avg, expected)
		c := alerts.NewCandidate(alerts.TypeSuspiciousPattern, alerts.SeverityLow, surveyID, ids(timed), message, map[string]any{
			"averageTimeSeconds":  round1(avg),
			"expectedTimeSeconds": math.Round(expected),
			"thresholdSeconds":    round1(threshold),
			"responseCount":       len(timed),
		})
		c.Location = latestLocation(timed)
		c.SurveyID = surveyID
		out.candidates = append(out.candidates, c)
	}
	return out, nil
}
