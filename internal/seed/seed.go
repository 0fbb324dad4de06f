// Package seed generates deterministic demo and fixture data: a survey
// catalog and raw responses with optional planted anomalies, one per rule.
// Seed data is only ever fed through the normal ingest path.
package seed

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/nixlim/fieldwatch/internal/ingest"
	"github.com/nixlim/fieldwatch/internal/survey"
)

// Survey ids used by the generated catalog.
const (
	SurveyHousehold = "hh-2026"
	SurveyWater     = "wash-2026"
	SurveyNutrition = "nutri-2026"
)

const kmPerDegree = 111.32

var userAgents = []string{
	"Mozilla/5.0 (Linux; Android 14; SM-A546E) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.6367.82 Mobile Safari/537.36",
	"Mozilla/5.0 (Linux; Android 13; Redmi Note 12) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.6312.99 Mobile Safari/537.36",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (Linux; Android 12; moto g62 5G; wv) AppleWebKit/537.36 (KHTML, like Gecko) Version/4.0 Chrome/122.0.6261.105 Mobile Safari/537.36",
}

var conductorNames = []string{
	"Asha Patil", "Ravi Kumar", "Meena Iyer", "Suresh Rao", "Fatima Shaikh",
	"Arjun Mehta", "Lakshmi Nair", "Vikram Singh", "Pooja Desai", "Imran Khan",
}

// Options controls generation. The same options always produce the same
// dataset.
type Options struct {
	Seed                  uint64
	Start                 time.Time
	Conductors            int
	ResponsesPerConductor int
	// Anomalies plants one scenario per detection rule.
	Anomalies bool
}

// DefaultOptions returns six conductors with five responses each, starting
// 2026-03-02 08:00 UTC, with anomalies planted.
func DefaultOptions() Options {
	return Options{
		Seed:                  42,
		Start:                 time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
		Conductors:            6,
		ResponsesPerConductor: 5,
		Anomalies:             true,
	}
}

// Dataset is a generated catalog plus raw responses.
type Dataset struct {
	Surveys   []survey.Survey
	Responses []ingest.RawResponse
}

// Catalog returns the demo survey catalog.
func Catalog() []survey.Survey {
	return []survey.Survey{
		{
			ID: SurveyHousehold, Title: "Household Census", QuestionCount: 20, SecondsPerQuestion: 45,
			Boundary: &survey.Boundary{Region: "Pune", Center: survey.Point{Latitude: 18.5204, Longitude: 73.8567}, RadiusKm: 15},
		},
		{
			ID: SurveyWater, Title: "Water and Sanitation", QuestionCount: 12, SecondsPerQuestion: 60,
			Boundary: &survey.Boundary{Region: "Nagpur", Center: survey.Point{Latitude: 21.1458, Longitude: 79.0882}, RadiusKm: 10},
		},
		{ID: SurveyNutrition, Title: "Child Nutrition", QuestionCount: 15},
	}
}

type generator struct {
	rng     *rand.Rand
	opts    Options
	surveys map[string]survey.Survey
	seq     int
	out     []ingest.RawResponse
}

// Generate builds a dataset. Normal responses come from conductors with
// one device each, spaced at least 45 minutes apart, inside their survey's
// boundary, taking 80-130% of the expected time.
func Generate(opts Options) Dataset {
	def := DefaultOptions()
	if opts.Start.IsZero() {
		opts.Start = def.Start
	}
	if opts.Conductors <= 0 {
		opts.Conductors = def.Conductors
	}
	if opts.ResponsesPerConductor <= 0 {
		opts.ResponsesPerConductor = def.ResponsesPerConductor
	}

	cat := Catalog()
	g := &generator{
		rng:     rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15)),
		opts:    opts,
		surveys: make(map[string]survey.Survey, len(cat)),
	}
	for _, s := range cat {
		g.surveys[s.ID] = s
	}

	normal := []string{SurveyHousehold, SurveyWater}
	for c := range opts.Conductors {
		sv := g.surveys[normal[c%len(normal)]]
		dev := device{
			id:        fmt.Sprintf("dev-%02d", c+1),
			userAgent: userAgents[c%len(userAgents)],
			screen:    fmt.Sprintf("1080x%d", 2200+c),
		}
		at := opts.Start.Add(time.Duration(c*7) * time.Minute)
		for range opts.ResponsesPerConductor {
			took := g.duration(sv, 0.8, 1.3)
			g.add(sv, conductor(c), dev, at, took, g.inside(sv))
			at = at.Add(time.Duration(45+g.rng.IntN(46)) * time.Minute)
		}
	}

	if opts.Anomalies {
		g.plantAnomalies()
	}
	return Dataset{Surveys: cat, Responses: g.out}
}

type device struct {
	id        string
	userAgent string
	screen    string
}

func conductor(i int) [2]string {
	return [2]string{fmt.Sprintf("c-%02d", i+1), conductorNames[i%len(conductorNames)]}
}

func (g *generator) plantAnomalies() {
	day := g.opts.Start.Add(26 * time.Hour)
	hh := g.surveys[SurveyHousehold]
	water := g.surveys[SurveyWater]
	nutri := g.surveys[SurveyNutrition]

	// Duplicate burst: one device submitting three times two minutes apart.
	dup := device{id: "dev-burst", userAgent: userAgents[0], screen: "720x1600"}
	for i := range 3 {
		g.add(hh, [2]string{"c-burst", "Burst Conductor"}, dup, day.Add(time.Duration(2*i)*time.Minute), g.duration(hh, 0.9, 1.1), g.inside(hh))
	}

	// Boundary violation: collected well outside the Nagpur circle.
	far := water.Boundary
	loc := offset(far.Center.Latitude, far.Center.Longitude, 2*far.RadiusKm+5, 0)
	loc.Address = "Wardha"
	g.add(water, [2]string{"c-far", "Far Conductor"}, device{id: "dev-far", userAgent: userAgents[1], screen: "720x1612"},
		day.Add(time.Hour), g.duration(water, 0.9, 1.1), &loc)

	// Fast completions: every nutrition response takes about a minute.
	for i := range 4 {
		dev := device{id: fmt.Sprintf("dev-fast-%d", i+1), userAgent: userAgents[2], screen: fmt.Sprintf("828x%d", 1792+i)}
		g.add(nutri, [2]string{fmt.Sprintf("c-fast-%d", i+1), "Fast Conductor"}, dev,
			day.Add(time.Duration(2+i)*time.Hour), time.Duration(50+g.rng.IntN(20))*time.Second, nil)
	}

	// Cloned fingerprints: three device ids presenting an identical device.
	for i := range 3 {
		dev := device{id: fmt.Sprintf("dev-clone-%d", i+1), userAgent: userAgents[3], screen: "720x1520"}
		g.add(hh, [2]string{fmt.Sprintf("c-clone-%d", i+1), "Clone Conductor"}, dev,
			day.Add(time.Duration(8+i)*time.Hour), g.duration(hh, 0.9, 1.1), g.inside(hh))
	}
}

// duration returns the survey's expected time scaled by a factor drawn
// from [lo, hi).
func (g *generator) duration(s survey.Survey, lo, hi float64) time.Duration {
	expected := s.ExpectedDuration(10, 60)
	f := lo + g.rng.Float64()*(hi-lo)
	return time.Duration(float64(expected) * f).Round(time.Second)
}

// inside returns a point within half the survey's boundary radius, or nil
// for surveys without a boundary.
func (g *generator) inside(s survey.Survey) *survey.Location {
	if s.Boundary == nil {
		return nil
	}
	b := s.Boundary
	loc := offset(b.Center.Latitude, b.Center.Longitude, g.rng.Float64()*b.RadiusKm/2, g.rng.Float64()*360)
	loc.Address = b.Region
	return &loc
}

// offset moves distKm from (lat, lon) along bearing degrees, using a flat
// approximation that is accurate enough at survey scales.
func offset(lat, lon, distKm, bearing float64) survey.Location {
	rad := bearing * math.Pi / 180
	dLat := distKm * math.Cos(rad) / kmPerDegree
	dLon := distKm * math.Sin(rad) / (kmPerDegree * math.Cos(lat*math.Pi/180))
	return survey.Location{
		Latitude:  math.Round((lat+dLat)*1e6) / 1e6,
		Longitude: math.Round((lon+dLon)*1e6) / 1e6,
	}
}

func (g *generator) add(s survey.Survey, who [2]string, dev device, submitted time.Time, took time.Duration, loc *survey.Location) {
	g.seq++
	started := submitted.Add(-took)

	questions := s.QuestionCount
	if questions <= 0 {
		questions = 10
	}
	type answer struct {
		Question   string `json:"question"`
		Answer     string `json:"answer"`
		AnsweredAt string `json:"answeredAt"`
	}
	answers := make([]answer, questions)
	step := took / time.Duration(questions)
	for i := range answers {
		answers[i] = answer{
			Question:   fmt.Sprintf("q%02d", i+1),
			Answer:     strconv.Itoa(g.rng.IntN(5) + 1),
			AnsweredAt: started.Add(step * time.Duration(i+1)).Format(time.RFC3339),
		}
	}
	data, _ := json.Marshal(answers)

	raw := ingest.RawResponse{
		ID:            fmt.Sprintf("resp-%04d", g.seq),
		SurveyID:      s.ID,
		ConductorID:   who[0],
		ConductorName: who[1],
		Responses:     data,
		StartedAt:     started.UTC().Format(time.RFC3339),
		SubmittedAt:   submitted.UTC().Format(time.RFC3339),
		SyncStatus:    string(survey.SyncSynced),
		DeviceInfo: &ingest.RawDevice{
			UserAgent: dev.userAgent,
			Timestamp: json.RawMessage(strconv.FormatInt(submitted.UnixMilli(), 10)),
			DeviceID:  dev.id,
			Platform:  platformOf(dev.userAgent),
			Screen:    dev.screen,
			Language:  "en-IN",
			Timezone:  "Asia/Kolkata",
		},
	}
	if loc != nil {
		lat, lon := loc.Latitude, loc.Longitude
		raw.Location = &ingest.RawLocation{Latitude: &lat, Longitude: &lon, Address: loc.Address}
	}
	g.out = append(g.out, raw)
}

func platformOf(userAgent string) string {
	if strings.Contains(strings.ToLower(userAgent), "iphone") {
		return "iPhone"
	}
	return "Linux armv8l"
}
