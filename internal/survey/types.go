package survey

import (
	"math"
	"time"
)

// CoordinateEpsilon is the threshold below which a coordinate pair is treated
// as the unknown sentinel (0, 0).
const CoordinateEpsilon = 1e-7

// SyncStatus is the collection-side sync state of a response. It plays no
// part in detection and is carried through unchanged.
type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncSynced  SyncStatus = "synced"
	SyncFailed  SyncStatus = "failed"
)

// Valid reports whether s is one of the known sync states.
func (s SyncStatus) Valid() bool {
	switch s {
	case SyncPending, SyncSynced, SyncFailed:
		return true
	}
	return false
}

// Location is a recorded geo position.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address,omitempty"`
}

// Known reports whether the location carries real coordinates.
func (l Location) Known() bool {
	return math.Abs(l.Latitude) >= CoordinateEpsilon || math.Abs(l.Longitude) >= CoordinateEpsilon
}

// DeviceInfo identifies the collecting device. DeviceID is the correlation
// key for device-based rules; the remaining fields feed the coarse
// fingerprint.
type DeviceInfo struct {
	UserAgent string    `json:"userAgent"`
	Timestamp time.Time `json:"timestamp,omitzero"`
	DeviceID  string    `json:"deviceId,omitempty"`
	Platform  string    `json:"platform,omitempty"`
	Screen    string    `json:"screen,omitempty"`
	Language  string    `json:"language,omitempty"`
	Timezone  string    `json:"timezone,omitempty"`
}

// Answer is one question/answer pair in submission order.
type Answer struct {
	Question   string    `json:"question"`
	Answer     string    `json:"answer"`
	AnsweredAt time.Time `json:"answeredAt,omitzero"`
}

// Response is the canonical, normalized survey response. Responses are
// immutable once ingested.
type Response struct {
	ID            string     `json:"id"`
	SurveyID      string     `json:"surveyId"`
	ConductorID   string     `json:"conductorId,omitempty"`
	ConductorName string     `json:"conductorName,omitempty"`
	Answers       []Answer   `json:"responses"`
	Location      *Location  `json:"location,omitempty"`
	Device        DeviceInfo `json:"deviceInfo"`
	StartedAt     time.Time  `json:"startedAt,omitzero"`
	SubmittedAt   time.Time  `json:"submittedAt"`
	SyncStatus    SyncStatus `json:"syncStatus"`
}

// Clone returns a deep copy of r.
func (r Response) Clone() Response {
	c := r
	if r.Answers != nil {
		c.Answers = make([]Answer, len(r.Answers))
		copy(c.Answers, r.Answers)
	}
	if r.Location != nil {
		loc := *r.Location
		c.Location = &loc
	}
	return c
}

// Correlatable reports whether the response can take part in device-based
// rules. Responses without a device id are kept for every other rule.
func (r Response) Correlatable() bool {
	return r.Device.DeviceID != ""
}

// HasLocation reports whether the response recorded a usable position.
func (r Response) HasLocation() bool {
	return r.Location != nil && r.Location.Known()
}

// CompletionTime returns the wall-clock time spent filling the form and
// whether it could be determined. StartedAt takes precedence; otherwise the
// span between the first and last timestamped answers is used.
func (r Response) CompletionTime() (time.Duration, bool) {
	if !r.StartedAt.IsZero() && !r.SubmittedAt.Before(r.StartedAt) {
		return r.SubmittedAt.Sub(r.StartedAt), true
	}

	var first, last time.Time
	timed := 0
	for _, a := range r.Answers {
		if a.AnsweredAt.IsZero() {
			continue
		}
		timed++
		if first.IsZero() || a.AnsweredAt.Before(first) {
			first = a.AnsweredAt
		}
		if last.IsZero() || a.AnsweredAt.After(last) {
			last = a.AnsweredAt
		}
	}
	if timed < 2 {
		return 0, false
	}
	return last.Sub(first), true
}

// Boundary is the designated collection area of a survey: a circle around a
// centroid.
type Boundary struct {
	Region   string  `yaml:"region" json:"region"`
	Center   Point   `yaml:"center" json:"center"`
	RadiusKm float64 `yaml:"radius_km" json:"radiusKm"`
}

// Point is a bare coordinate pair.
type Point struct {
	Latitude  float64 `yaml:"lat" json:"lat"`
	Longitude float64 `yaml:"lng" json:"lng"`
}

// Survey is the metadata the detector needs about a survey. It is owned by
// the survey/assignment subsystem and supplied through the Catalog.
type Survey struct {
	ID                 string    `yaml:"id" json:"id"`
	Title              string    `yaml:"title" json:"title"`
	QuestionCount      int       `yaml:"question_count" json:"questionCount"`
	SecondsPerQuestion float64   `yaml:"seconds_per_question" json:"secondsPerQuestion"`
	Boundary           *Boundary `yaml:"boundary,omitempty" json:"boundary,omitempty"`
}

// ExpectedDuration returns the expected completion time for the survey given
// a fallback question count and per-question pace. It returns zero when
// neither the survey nor the fallbacks provide a positive value.
func (s Survey) ExpectedDuration(fallbackQuestions int, fallbackSecondsPerQuestion float64) time.Duration {
	questions := s.QuestionCount
	if questions <= 0 {
		questions = fallbackQuestions
	}
	pace := s.SecondsPerQuestion
	if pace <= 0 {
		pace = fallbackSecondsPerQuestion
	}
	if questions <= 0 || pace <= 0 {
		return 0
	}
	return time.Duration(float64(questions) * pace * float64(time.Second))
}
