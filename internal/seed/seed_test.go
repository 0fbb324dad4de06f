package seed

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nixlim/fieldwatch/internal/alerts"
	"github.com/nixlim/fieldwatch/internal/ingest"
	"github.com/nixlim/fieldwatch/internal/risk"
	"github.com/nixlim/fieldwatch/internal/survey"
)

func detect(t *testing.T, ds Dataset) risk.Result {
	t.Helper()
	responses, diags := ingest.Normalize(ds.Responses)
	if len(diags) != 0 {
		t.Fatalf("generated data should normalize cleanly, got %v", diags)
	}
	d := risk.NewDetector(risk.DefaultConfig(), survey.NewCatalog(ds.Surveys...),
		risk.WithClock(func() time.Time { return DefaultOptions().Start }))
	res, err := d.Detect(context.Background(), responses, nil)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	return res
}

func TestGenerate_Deterministic(t *testing.T) {
	a := Generate(DefaultOptions())
	b := Generate(DefaultOptions())
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("same options produced different data (-first +second):\n%s", diff)
	}

	other := DefaultOptions()
	other.Seed = 7
	if cmp.Equal(a.Responses, Generate(other).Responses) {
		t.Error("different seeds should produce different data")
	}
}

func TestGenerate_Counts(t *testing.T) {
	opts := DefaultOptions()
	opts.Anomalies = false
	ds := Generate(opts)
	if len(ds.Responses) != opts.Conductors*opts.ResponsesPerConductor {
		t.Errorf("expected %d responses, got %d", opts.Conductors*opts.ResponsesPerConductor, len(ds.Responses))
	}

	seen := make(map[string]bool)
	for _, r := range ds.Responses {
		if seen[r.ID] {
			t.Errorf("duplicate id %s", r.ID)
		}
		seen[r.ID] = true
	}
}

func TestGenerate_DefaultsFilled(t *testing.T) {
	ds := Generate(Options{Seed: 1})
	def := DefaultOptions()
	if len(ds.Responses) != def.Conductors*def.ResponsesPerConductor {
		t.Errorf("expected defaults to apply, got %d responses", len(ds.Responses))
	}
}

func TestGenerate_NormalDataIsClean(t *testing.T) {
	opts := DefaultOptions()
	opts.Anomalies = false
	opts.Conductors = 10

	res := detect(t, Generate(opts))
	if len(res.Candidates) != 0 {
		for _, c := range res.Candidates {
			t.Errorf("unexpected candidate %s: %s", c.Type, c.Message)
		}
	}
}

func TestGenerate_AnomaliesTriggerEveryRule(t *testing.T) {
	res := detect(t, Generate(DefaultOptions()))

	byType := make(map[alerts.Type][]alerts.RiskAlert)
	for _, c := range res.Candidates {
		byType[c.Type] = append(byType[c.Type], c)
	}
	for _, typ := range alerts.Types {
		if len(byType[typ]) != 1 {
			t.Errorf("expected exactly one %s candidate, got %d", typ, len(byType[typ]))
		}
	}

	if dup := byType[alerts.TypeDuplicateResponses]; len(dup) == 1 {
		if dup[0].Severity != alerts.SeverityHigh || len(dup[0].AffectedResponses) != 3 {
			t.Errorf("unexpected burst alert: %+v", dup[0])
		}
	}
	if dev := byType[alerts.TypeDeviceAnomaly]; len(dev) == 1 && len(dev[0].AffectedResponses) != 3 {
		t.Errorf("expected the three cloned devices, got %v", dev[0].AffectedResponses)
	}
	if pat := byType[alerts.TypeSuspiciousPattern]; len(pat) == 1 && pat[0].SurveyID != SurveyNutrition {
		t.Errorf("expected pattern alert on %s, got %s", SurveyNutrition, pat[0].SurveyID)
	}
}

func TestOffset(t *testing.T) {
	loc := offset(18.5204, 73.8567, 10, 0)
	want := 18.5204 + 10/kmPerDegree
	if math.Abs(loc.Latitude-want) > 1e-5 {
		t.Errorf("expected latitude ~%.6f, got %.6f", want, loc.Latitude)
	}
	if loc.Longitude != 73.8567 {
		t.Errorf("moving north should keep longitude, got %v", loc.Longitude)
	}

	east := offset(0, 10, kmPerDegree, 90)
	if math.Abs(east.Longitude-11) > 1e-5 || math.Abs(east.Latitude) > 1e-5 {
		t.Errorf("expected one degree east at the equator, got %+v", east)
	}
}
