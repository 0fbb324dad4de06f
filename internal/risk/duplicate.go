package risk

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/nixlim/fieldwatch/internal/alerts"
	"github.com/nixlim/fieldwatch/internal/survey"
)

// duplicateRule flags bursts of submissions from one device. Adjacent
// submissions closer than the window are linked; each maximal chain of links
// becomes one candidate.
type duplicateRule struct {
	cfg Config
}

func (duplicateRule) Type() alerts.Type { return alerts.TypeDuplicateResponses }

func (r duplicateRule) Evaluate(ctx context.Context, responses []survey.Response) (ruleOutput, error) {
	var out ruleOutput

	byDevice := make(map[string][]survey.Response)
	var order []string
	for _, resp := range responses {
		if !resp.Correlatable() {
			out.skipped = append(out.skipped, skip(r.Type(), resp.ID, "missing device id"))
			continue
		}
		id := resp.Device.DeviceID
		if _, ok := byDevice[id]; !ok {
			order = append(order, id)
		}
		byDevice[id] = append(byDevice[id], resp)
	}

	for _, deviceID := range order {
		if err := ctx.Err(); err != nil {
			return ruleOutput{}, err
		}
		group := byDevice[deviceID]
		for _, burst := range r.bursts(group) {
			out.candidates = append(out.candidates, r.candidate(deviceID, burst))
		}
	}
	return out, nil
}

type burst struct {
	responses []survey.Response
	minGap    time.Duration
}

// bursts splits a device's sorted submissions into connected bursts.
func (r duplicateRule) bursts(group []survey.Response) []burst {
	var result []burst
	var cur *burst
	for i := 1; i < len(group); i++ {
		gap := group[i].SubmittedAt.Sub(group[i-1].SubmittedAt)
		if gap >= r.cfg.DuplicateWindow {
			cur = nil
			continue
		}
		if cur == nil {
			result = append(result, burst{responses: []survey.Response{group[i-1]}, minGap: gap})
			cur = &result[len(result)-1]
		}
		cur.responses = append(cur.responses, group[i])
		if gap < cur.minGap {
			cur.minGap = gap
		}
	}
	return result
}

func (r duplicateRule) candidate(deviceID string, b burst) alerts.RiskAlert {
	first := b.responses[0].SubmittedAt
	last := b.responses[len(b.responses)-1].SubmittedAt
	span := int(math.Round(last.Sub(first).Minutes()))

	severity := alerts.SeverityMedium
	if b.minGap < r.cfg.DuplicateHigh {
		severity = alerts.SeverityHigh
	}

	message := fmt.Sprintf("Multiple responses from same device within %d minutes", span)
	if n := len(b.responses); n > 2 {
		message = fmt.Sprintf("%d responses from same device within %d minutes", n, span)
	}

	c := alerts.NewCandidate(alerts.TypeDuplicateResponses, severity, deviceID, ids(b.responses), message, map[string]any{
		"deviceId":        deviceID,
		"timeSpanMinutes": span,
		"minGapMinutes":   round2(b.minGap.Minutes()),
		"responseCount":   len(b.responses),
	})
	c.Location = latestLocation(b.responses)
	c.SurveyID = commonSurvey(b.responses)
	return c
}
