package ingest

import (
	"bytes"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/nixlim/fieldwatch/internal/alerts"
	"github.com/nixlim/fieldwatch/internal/logging"
	"github.com/nixlim/fieldwatch/internal/survey"
)

// Diagnostic describes a problem found in one raw response. When Skipped is
// true the response was dropped; otherwise the offending field was repaired
// or cleared and the response kept.
type Diagnostic struct {
	Index      int
	ResponseID string
	Field      string
	Skipped    bool
	Err        error
}

func (d Diagnostic) Error() string {
	id := d.ResponseID
	if id == "" {
		id = fmt.Sprintf("#%d", d.Index)
	}
	return fmt.Sprintf("response %s: %s: %v", id, d.Field, d.Err)
}

func (d Diagnostic) Unwrap() error { return d.Err }

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", alerts.ErrMalformedResponse, fmt.Sprintf(format, args...))
}

// Normalize converts raw responses into canonical responses. Items missing
// id, surveyId, submittedAt or deviceInfo, or carrying an unparseable
// submittedAt, are skipped; later duplicates of an id already seen in the
// batch are skipped too. Lesser problems are repaired in place. Every
// problem is reported as a Diagnostic and logged; Normalize never fails as a
// whole.
func Normalize(raws []RawResponse) ([]survey.Response, []Diagnostic) {
	out := make([]survey.Response, 0, len(raws))
	var diags []Diagnostic
	seen := make(map[string]bool, len(raws))

	for i, raw := range raws {
		resp, itemDiags, ok := normalizeOne(i, raw)
		if ok && seen[resp.ID] {
			itemDiags = append(itemDiags, Diagnostic{
				Index: i, ResponseID: resp.ID, Field: "id", Skipped: true,
				Err: malformed("duplicate id in batch"),
			})
			ok = false
		}
		for _, d := range itemDiags {
			logging.Warn().Err(d.Err).Int("index", d.Index).Str("response", d.ResponseID).
				Str("field", d.Field).Bool("skipped", d.Skipped).Msg("malformed survey response")
		}
		diags = append(diags, itemDiags...)
		if !ok {
			continue
		}
		seen[resp.ID] = true
		out = append(out, resp)
	}
	return out, diags
}

func normalizeOne(index int, raw RawResponse) (survey.Response, []Diagnostic, bool) {
	id := strings.TrimSpace(raw.ID)
	var diags []Diagnostic
	fail := func(field string, err error) (survey.Response, []Diagnostic, bool) {
		diags = append(diags, Diagnostic{Index: index, ResponseID: id, Field: field, Skipped: true, Err: err})
		return survey.Response{}, diags, false
	}
	repair := func(field string, err error) {
		diags = append(diags, Diagnostic{Index: index, ResponseID: id, Field: field, Err: err})
	}

	if id == "" {
		return fail("id", malformed("missing id"))
	}
	surveyID := strings.TrimSpace(raw.SurveyID)
	if surveyID == "" {
		return fail("surveyId", malformed("missing surveyId"))
	}
	if strings.TrimSpace(raw.SubmittedAt) == "" {
		return fail("submittedAt", malformed("missing submittedAt"))
	}
	submittedAt, err := parseTime(raw.SubmittedAt)
	if err != nil {
		return fail("submittedAt", malformed("%v", err))
	}
	if raw.DeviceInfo == nil {
		return fail("deviceInfo", malformed("missing deviceInfo"))
	}

	resp := survey.Response{
		ID:            id,
		SurveyID:      surveyID,
		ConductorID:   strings.TrimSpace(raw.ConductorID),
		ConductorName: strings.TrimSpace(raw.ConductorName),
		SubmittedAt:   submittedAt,
		Device: survey.DeviceInfo{
			UserAgent: strings.TrimSpace(raw.DeviceInfo.UserAgent),
			DeviceID:  strings.TrimSpace(raw.DeviceInfo.DeviceID),
			Platform:  strings.TrimSpace(raw.DeviceInfo.Platform),
			Screen:    strings.TrimSpace(raw.DeviceInfo.Screen),
			Language:  strings.TrimSpace(raw.DeviceInfo.Language),
			Timezone:  strings.TrimSpace(raw.DeviceInfo.Timezone),
		},
	}

	if ts, err := parseDeviceTimestamp(raw.DeviceInfo.Timestamp); err != nil {
		repair("deviceInfo.timestamp", malformed("%v", err))
	} else {
		resp.Device.Timestamp = ts
	}

	if raw.StartedAt != "" {
		if t, err := parseTime(raw.StartedAt); err != nil {
			repair("startedAt", malformed("%v", err))
		} else if t.After(submittedAt) {
			repair("startedAt", malformed("startedAt is after submittedAt"))
		} else {
			resp.StartedAt = t
		}
	}

	answers, answerDiags := parseAnswers(raw.Responses)
	resp.Answers = answers
	for _, err := range answerDiags {
		repair("responses", err)
	}

	if raw.Location != nil {
		loc, err := parseLocation(*raw.Location)
		if err != nil {
			repair("location", err)
		} else {
			resp.Location = loc
		}
	}

	resp.SyncStatus = survey.SyncStatus(strings.ToLower(strings.TrimSpace(raw.SyncStatus)))
	if !resp.SyncStatus.Valid() {
		if raw.SyncStatus != "" {
			repair("syncStatus", malformed("unknown sync status %q", raw.SyncStatus))
		}
		resp.SyncStatus = survey.SyncPending
	}

	return resp, diags, true
}

// parseTime accepts RFC 3339 timestamps with or without fractional seconds
// and returns them in UTC.
func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
	}
	return t.UTC(), nil
}

// parseDeviceTimestamp accepts a JSON string (RFC 3339 or digits) or a JSON
// number of epoch milliseconds. A missing value yields the zero time.
func parseDeviceTimestamp(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, nil
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, fmt.Errorf("invalid device timestamp: %w", err)
		}
		if s == "" {
			return time.Time{}, nil
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.UnixMilli(ms).UTC(), nil
		}
		return parseTime(s)
	}

	var ms float64
	if err := json.Unmarshal(raw, &ms); err != nil {
		return time.Time{}, fmt.Errorf("invalid device timestamp %s", raw)
	}
	if math.IsNaN(ms) || math.IsInf(ms, 0) || ms < 0 {
		return time.Time{}, fmt.Errorf("invalid device timestamp %s", raw)
	}
	return time.UnixMilli(int64(ms)).UTC(), nil
}

// parseAnswers accepts the list form [{question, answer}] in order, or the
// object form {question: answer} with keys sorted.
func parseAnswers(raw json.RawMessage) ([]survey.Answer, []error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var errs []error
	switch raw[0] {
	case '[':
		var list []rawAnswer
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, []error{malformed("invalid answer list: %v", err)}
		}
		answers := make([]survey.Answer, 0, len(list))
		for _, item := range list {
			a := survey.Answer{Question: strings.TrimSpace(item.Question)}
			value, err := answerText(item.Answer)
			if err != nil {
				errs = append(errs, malformed("question %q: %v", a.Question, err))
			}
			a.Answer = value
			if item.AnsweredAt != "" {
				if t, err := parseTime(item.AnsweredAt); err != nil {
					errs = append(errs, malformed("question %q: %v", a.Question, err))
				} else {
					a.AnsweredAt = t
				}
			}
			answers = append(answers, a)
		}
		return answers, errs

	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, []error{malformed("invalid answer object: %v", err)}
		}
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		answers := make([]survey.Answer, 0, len(keys))
		for _, k := range keys {
			value, err := answerText(obj[k])
			if err != nil {
				errs = append(errs, malformed("question %q: %v", k, err))
			}
			answers = append(answers, survey.Answer{Question: k, Answer: value})
		}
		return answers, errs
	}

	return nil, []error{malformed("responses must be a list or an object")}
}

// answerText renders an answer value as text. Lists are joined with ", ".
func answerText(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", fmt.Errorf("invalid answer: %w", err)
	}
	switch val := v.(type) {
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			s, err := scalarText(item)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, ", "), nil
	default:
		return scalarText(val)
	}
}

func scalarText(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	case bool:
		return strconv.FormatBool(val), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("unsupported answer value of type %T", v)
	}
}

func parseLocation(raw RawLocation) (*survey.Location, error) {
	if raw.Latitude == nil || raw.Longitude == nil {
		return nil, malformed("location is missing coordinates")
	}
	lat, lng := *raw.Latitude, *raw.Longitude
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return nil, malformed("coordinates out of range (%f, %f)", lat, lng)
	}
	loc := &survey.Location{Latitude: lat, Longitude: lng, Address: strings.TrimSpace(raw.Address)}
	if !loc.Known() {
		return nil, nil
	}
	return loc, nil
}
