package receiver

import (
	"strconv"
	"time"

	"github.com/goccy/go-json"
	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	logspb "go.opentelemetry.io/proto/otlp/logs/v1"

	"github.com/nixlim/fieldwatch/internal/ingest"
)

// ResponseEventName is the OTLP log record name that carries a survey
// response. Other records are ignored.
const ResponseEventName = "survey.response"

// Attribute keys read from resource and log record attributes. Record
// attributes override resource attributes with the same key.
const (
	attrEventName     = "event.name"
	attrResponseID    = "response.id"
	attrSurveyID      = "survey.id"
	attrConductorID   = "conductor.id"
	attrConductorName = "conductor.name"
	attrDeviceID      = "device.id"
	attrUserAgent     = "user_agent.original"
	attrPlatform      = "device.platform"
	attrScreen        = "device.screen"
	attrLanguage      = "device.language"
	attrTimezone      = "device.timezone"
	attrLatitude      = "geo.lat"
	attrLongitude     = "geo.lon"
	attrAddress       = "geo.address"
	attrStartedAt     = "started_at"
	attrSyncStatus    = "sync.status"
)

// rawFromLogs extracts one raw response per survey.response log record.
func rawFromLogs(req *collogspb.ExportLogsServiceRequest) []ingest.RawResponse {
	var out []ingest.RawResponse
	for _, rl := range req.GetResourceLogs() {
		resAttrs := attrMap(rl.GetResource().GetAttributes())
		for _, sl := range rl.GetScopeLogs() {
			for _, lr := range sl.GetLogRecords() {
				attrs := mergeAttrs(resAttrs, attrMap(lr.GetAttributes()))
				if recordName(lr, attrs) != ResponseEventName {
					continue
				}
				out = append(out, rawFromRecord(lr, attrs))
			}
		}
	}
	return out
}

func recordName(lr *logspb.LogRecord, attrs map[string]*commonpb.AnyValue) string {
	if name := lr.GetEventName(); name != "" {
		return name
	}
	return stringOf(attrs[attrEventName])
}

func rawFromRecord(lr *logspb.LogRecord, attrs map[string]*commonpb.AnyValue) ingest.RawResponse {
	raw := ingest.RawResponse{
		ID:            stringOf(attrs[attrResponseID]),
		SurveyID:      stringOf(attrs[attrSurveyID]),
		ConductorID:   stringOf(attrs[attrConductorID]),
		ConductorName: stringOf(attrs[attrConductorName]),
		StartedAt:     stringOf(attrs[attrStartedAt]),
		SyncStatus:    stringOf(attrs[attrSyncStatus]),
	}

	if ts := recordTime(lr); !ts.IsZero() {
		raw.SubmittedAt = ts.UTC().Format(time.RFC3339Nano)
	}

	if body := lr.GetBody().GetKvlistValue(); body != nil {
		answers := make(map[string]any, len(body.GetValues()))
		for _, kv := range body.GetValues() {
			answers[kv.GetKey()] = plainValue(kv.GetValue())
		}
		if data, err := json.Marshal(answers); err == nil {
			raw.Responses = data
		}
	}

	lat, latOK := floatOf(attrs[attrLatitude])
	lon, lonOK := floatOf(attrs[attrLongitude])
	if latOK || lonOK || attrs[attrAddress] != nil {
		loc := &ingest.RawLocation{Address: stringOf(attrs[attrAddress])}
		if latOK {
			loc.Latitude = &lat
		}
		if lonOK {
			loc.Longitude = &lon
		}
		raw.Location = loc
	}

	if hasDeviceAttrs(attrs) {
		raw.DeviceInfo = &ingest.RawDevice{
			UserAgent: stringOf(attrs[attrUserAgent]),
			DeviceID:  stringOf(attrs[attrDeviceID]),
			Platform:  stringOf(attrs[attrPlatform]),
			Screen:    stringOf(attrs[attrScreen]),
			Language:  stringOf(attrs[attrLanguage]),
			Timezone:  stringOf(attrs[attrTimezone]),
		}
		if obs := lr.GetObservedTimeUnixNano(); obs > 0 {
			raw.DeviceInfo.Timestamp = json.RawMessage(strconv.FormatInt(int64(obs/uint64(time.Millisecond)), 10))
		}
	}
	return raw
}

func hasDeviceAttrs(attrs map[string]*commonpb.AnyValue) bool {
	for _, k := range []string{attrDeviceID, attrUserAgent, attrPlatform, attrScreen, attrLanguage, attrTimezone} {
		if attrs[k] != nil {
			return true
		}
	}
	return false
}

// recordTime returns the event time, falling back to the observed time.
func recordTime(lr *logspb.LogRecord) time.Time {
	ns := lr.GetTimeUnixNano()
	if ns == 0 {
		ns = lr.GetObservedTimeUnixNano()
	}
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, int64(ns))
}

func attrMap(kvs []*commonpb.KeyValue) map[string]*commonpb.AnyValue {
	m := make(map[string]*commonpb.AnyValue, len(kvs))
	for _, kv := range kvs {
		m[kv.GetKey()] = kv.GetValue()
	}
	return m
}

func mergeAttrs(base, override map[string]*commonpb.AnyValue) map[string]*commonpb.AnyValue {
	out := make(map[string]*commonpb.AnyValue, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

// stringOf renders scalar values as strings; other kinds yield "".
func stringOf(v *commonpb.AnyValue) string {
	switch x := v.GetValue().(type) {
	case *commonpb.AnyValue_StringValue:
		return x.StringValue
	case *commonpb.AnyValue_IntValue:
		return strconv.FormatInt(x.IntValue, 10)
	case *commonpb.AnyValue_DoubleValue:
		return strconv.FormatFloat(x.DoubleValue, 'f', -1, 64)
	case *commonpb.AnyValue_BoolValue:
		return strconv.FormatBool(x.BoolValue)
	}
	return ""
}

func floatOf(v *commonpb.AnyValue) (float64, bool) {
	switch x := v.GetValue().(type) {
	case *commonpb.AnyValue_DoubleValue:
		return x.DoubleValue, true
	case *commonpb.AnyValue_IntValue:
		return float64(x.IntValue), true
	case *commonpb.AnyValue_StringValue:
		f, err := strconv.ParseFloat(x.StringValue, 64)
		return f, err == nil
	}
	return 0, false
}

// plainValue converts an AnyValue into the JSON-friendly Go value used for
// answers. Nested lists are kept; nested maps are flattened to strings.
func plainValue(v *commonpb.AnyValue) any {
	switch x := v.GetValue().(type) {
	case *commonpb.AnyValue_StringValue:
		return x.StringValue
	case *commonpb.AnyValue_IntValue:
		return x.IntValue
	case *commonpb.AnyValue_DoubleValue:
		return x.DoubleValue
	case *commonpb.AnyValue_BoolValue:
		return x.BoolValue
	case *commonpb.AnyValue_ArrayValue:
		items := make([]any, 0, len(x.ArrayValue.GetValues()))
		for _, item := range x.ArrayValue.GetValues() {
			items = append(items, plainValue(item))
		}
		return items
	case *commonpb.AnyValue_KvlistValue:
		m := make(map[string]any, len(x.KvlistValue.GetValues()))
		for _, kv := range x.KvlistValue.GetValues() {
			m[kv.GetKey()] = plainValue(kv.GetValue())
		}
		data, _ := json.Marshal(m)
		return string(data)
	}
	return nil
}
