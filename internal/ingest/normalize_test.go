package ingest

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nixlim/fieldwatch/internal/alerts"
	"github.com/nixlim/fieldwatch/internal/survey"
)

func decode(t *testing.T, body string) []RawResponse {
	t.Helper()
	raws, err := DecodeBatch([]byte(body))
	if err != nil {
		t.Fatalf("DecodeBatch: %v", err)
	}
	return raws
}

func TestNormalize_ListAnswersAndEpochDeviceTimestamp(t *testing.T) {
	raws := decode(t, `{
		"id": "response_1",
		"surveyId": "survey1",
		"conductorId": "3",
		"conductorName": "Survey Conductor",
		"responses": [
			{"question": "Primary source of drinking water?", "answer": "Well water"},
			{"question": "Rate the water quality", "answer": 4},
			{"question": "Facilities nearby", "answer": ["School", "Clinic"]}
		],
		"location": {"latitude": 40.7128, "longitude": -74.006, "address": "New York, NY"},
		"deviceInfo": {"userAgent": "Demo Device", "timestamp": 1767225600000, "deviceId": "demo_device_1"},
		"submittedAt": "2026-01-01T00:05:00.000Z",
		"syncStatus": "synced"
	}`)

	got, diags := Normalize(raws)
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}

	want := []survey.Response{{
		ID:            "response_1",
		SurveyID:      "survey1",
		ConductorID:   "3",
		ConductorName: "Survey Conductor",
		Answers: []survey.Answer{
			{Question: "Primary source of drinking water?", Answer: "Well water"},
			{Question: "Rate the water quality", Answer: "4"},
			{Question: "Facilities nearby", Answer: "School, Clinic"},
		},
		Location: &survey.Location{Latitude: 40.7128, Longitude: -74.006, Address: "New York, NY"},
		Device: survey.DeviceInfo{
			UserAgent: "Demo Device",
			Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			DeviceID:  "demo_device_1",
		},
		SubmittedAt: time.Date(2026, 1, 1, 0, 5, 0, 0, time.UTC),
		SyncStatus:  survey.SyncSynced,
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Normalize (-want +got):\n%s", diff)
	}
}

func TestNormalize_ObjectAnswersSortedByKey(t *testing.T) {
	raws := decode(t, `[{
		"id": "r1", "surveyId": "s1",
		"responses": {"q2": ["a", "b"], "q1": "yes", "q3": true},
		"deviceInfo": {"userAgent": "ua", "timestamp": "2026-01-01T00:00:00Z"},
		"submittedAt": "2026-01-01T00:05:00Z"
	}]`)

	got, diags := Normalize(raws)
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	want := []survey.Answer{
		{Question: "q1", Answer: "yes"},
		{Question: "q2", Answer: "a, b"},
		{Question: "q3", Answer: "true"},
	}
	if diff := cmp.Diff(want, got[0].Answers); diff != "" {
		t.Errorf("answers (-want +got):\n%s", diff)
	}
	if got[0].SyncStatus != survey.SyncPending {
		t.Errorf("missing sync status should default to pending, got %q", got[0].SyncStatus)
	}
}

func TestNormalize_SkipsInvalidItems(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"missing id", `{"surveyId":"s1","deviceInfo":{"userAgent":"ua"},"submittedAt":"2026-01-01T00:00:00Z"}`, "id"},
		{"missing survey", `{"id":"r1","deviceInfo":{"userAgent":"ua"},"submittedAt":"2026-01-01T00:00:00Z"}`, "surveyId"},
		{"missing submittedAt", `{"id":"r1","surveyId":"s1","deviceInfo":{"userAgent":"ua"}}`, "submittedAt"},
		{"malformed submittedAt", `{"id":"r1","surveyId":"s1","deviceInfo":{"userAgent":"ua"},"submittedAt":"yesterday"}`, "submittedAt"},
		{"missing deviceInfo", `{"id":"r1","surveyId":"s1","submittedAt":"2026-01-01T00:00:00Z"}`, "deviceInfo"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, diags := Normalize(decode(t, tc.body))
			if len(got) != 0 {
				t.Errorf("want item skipped, got %d responses", len(got))
			}
			if len(diags) != 1 {
				t.Fatalf("want 1 diagnostic, got %d: %v", len(diags), diags)
			}
			d := diags[0]
			if !d.Skipped || d.Field != tc.field {
				t.Errorf("diagnostic: want skipped on %q, got %+v", tc.field, d)
			}
			if !errors.Is(d, alerts.ErrMalformedResponse) {
				t.Errorf("diagnostic should wrap ErrMalformedResponse: %v", d)
			}
		})
	}
}

func TestNormalize_ContinuesAfterBadItem(t *testing.T) {
	raws := decode(t, `[
		{"id":"r1","surveyId":"s1","deviceInfo":{"userAgent":"ua"},"submittedAt":"not a time"},
		{"id":"r2","surveyId":"s1","deviceInfo":{"userAgent":"ua","deviceId":"d1"},"submittedAt":"2026-01-01T00:00:00Z"},
		{"id":"r2","surveyId":"s1","deviceInfo":{"userAgent":"ua","deviceId":"d9"},"submittedAt":"2026-01-01T00:01:00Z"}
	]`)

	got, diags := Normalize(raws)
	if len(got) != 1 || got[0].ID != "r2" || got[0].Device.DeviceID != "d1" {
		t.Fatalf("want only the first r2, got %+v", got)
	}
	if len(diags) != 2 {
		t.Fatalf("want 2 diagnostics, got %v", diags)
	}
	if diags[1].Index != 2 || diags[1].Field != "id" {
		t.Errorf("duplicate id diagnostic: %+v", diags[1])
	}
}

func TestNormalize_RepairsLesserProblems(t *testing.T) {
	raws := decode(t, `{
		"id": "r1", "surveyId": "s1",
		"startedAt": "2026-01-01T00:10:00Z",
		"location": {"latitude": 123, "longitude": 10},
		"deviceInfo": {"userAgent": "ua", "timestamp": {"bad": true}},
		"submittedAt": "2026-01-01T00:05:00Z",
		"syncStatus": "uploaded"
	}`)

	got, diags := Normalize(raws)
	if len(got) != 1 {
		t.Fatalf("response should be kept, got %d", len(got))
	}
	r := got[0]
	if r.Location != nil {
		t.Errorf("out of range location should be cleared, got %+v", r.Location)
	}
	if !r.StartedAt.IsZero() {
		t.Errorf("startedAt after submission should be cleared, got %v", r.StartedAt)
	}
	if !r.Device.Timestamp.IsZero() {
		t.Errorf("bad device timestamp should be cleared, got %v", r.Device.Timestamp)
	}
	if r.SyncStatus != survey.SyncPending {
		t.Errorf("unknown sync status should become pending, got %q", r.SyncStatus)
	}

	fields := map[string]bool{}
	for _, d := range diags {
		if d.Skipped {
			t.Errorf("repair diagnostic marked as skip: %+v", d)
		}
		fields[d.Field] = true
	}
	for _, f := range []string{"location", "startedAt", "deviceInfo.timestamp", "syncStatus"} {
		if !fields[f] {
			t.Errorf("missing diagnostic for %s: %v", f, diags)
		}
	}
}

func TestNormalize_NonCorrelatableRetained(t *testing.T) {
	got, diags := Normalize(decode(t, `{"id":"r1","surveyId":"s1","deviceInfo":{"userAgent":"ua"},"submittedAt":"2026-01-01T00:00:00+05:30"}`))
	if len(diags) != 0 || len(got) != 1 {
		t.Fatalf("got %d responses, diagnostics %v", len(got), diags)
	}
	if got[0].Correlatable() {
		t.Error("response without device id should not be correlatable")
	}
	if want := time.Date(2025, 12, 31, 18, 30, 0, 0, time.UTC); !got[0].SubmittedAt.Equal(want) || got[0].SubmittedAt.Location() != time.UTC {
		t.Errorf("submittedAt should be normalized to UTC: %v", got[0].SubmittedAt)
	}
}

func TestNormalize_ZeroLocationIsUnknown(t *testing.T) {
	got, _ := Normalize(decode(t, `{"id":"r1","surveyId":"s1","location":{"latitude":0,"longitude":0},"deviceInfo":{"userAgent":"ua"},"submittedAt":"2026-01-01T00:00:00Z"}`))
	if got[0].Location != nil {
		t.Errorf("(0, 0) should be treated as no location, got %+v", got[0].Location)
	}
}

func TestParseDeviceTimestamp(t *testing.T) {
	want := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		raw     string
		want    time.Time
		wantErr bool
	}{
		{"epoch millis", `1767225600000`, want, false},
		{"epoch millis string", `"1767225600000"`, want, false},
		{"rfc3339", `"2026-01-01T00:00:00Z"`, want, false},
		{"null", `null`, time.Time{}, false},
		{"empty string", `""`, time.Time{}, false},
		{"negative", `-5`, time.Time{}, true},
		{"garbage", `"soon"`, time.Time{}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseDeviceTimestamp([]byte(tc.raw))
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if !got.Equal(tc.want) {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestDecodeBatch_Errors(t *testing.T) {
	for _, body := range []string{"", "   ", "[{", "42"} {
		if _, err := DecodeBatch([]byte(body)); err == nil {
			t.Errorf("DecodeBatch(%q) should fail", body)
		}
	}
}
