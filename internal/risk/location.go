package risk

import (
	"context"
	"fmt"

	"github.com/nixlim/fieldwatch/internal/alerts"
	"github.com/nixlim/fieldwatch/internal/survey"
)

// locationRule flags responses recorded outside their survey's boundary.
// Surveys without a boundary are not checked.
type locationRule struct {
	surveys SurveyLookup
}

func (locationRule) Type() alerts.Type { return alerts.TypeLocationMismatch }

func (r locationRule) Evaluate(ctx context.Context, responses []survey.Response) (ruleOutput, error) {
	var out ruleOutput
	for _, resp := range responses {
		if err := ctx.Err(); err != nil {
			return ruleOutput{}, err
		}
		s, ok := r.surveys.Get(resp.SurveyID)
		if !ok || s.Boundary == nil {
			continue
		}
		if !resp.HasLocation() {
			out.skipped = append(out.skipped, skip(r.Type(), resp.ID, "missing location"))
			continue
		}

		b := s.Boundary
		dist := haversineKm(b.Center.Latitude, b.Center.Longitude, resp.Location.Latitude, resp.Location.Longitude)
		if dist <= b.RadiusKm {
			continue
		}

		region := b.Region
		if region == "" {
			region = "the designated area"
		}
		message := fmt.Sprintf("Response collected %.1f km from the centre of %s (allowed radius %.1f km)", dist, region, b.RadiusKm)
		c := alerts.NewCandidate(alerts.TypeLocationMismatch, alerts.SeverityMedium, resp.SurveyID, []string{resp.ID}, message, map[string]any{
			"expectedRegion":    b.Region,
			"actualDistanceKm":  round2(dist),
			"distanceOutsideKm": round2(dist - b.RadiusKm),
			"radiusKm":          b.RadiusKm,
			"boundaryViolation": true,
		})
		loc := *resp.Location
		c.Location = &loc
		c.SurveyID = resp.SurveyID
		out.candidates = append(out.candidates, c)
	}
	return out, nil
}
