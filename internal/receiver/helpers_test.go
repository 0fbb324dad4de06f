package receiver

import (
	"time"

	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	logspb "go.opentelemetry.io/proto/otlp/logs/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
)

var submitted = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func strVal(s string) *commonpb.AnyValue {
	return &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: s}}
}

func dblVal(f float64) *commonpb.AnyValue {
	return &commonpb.AnyValue{Value: &commonpb.AnyValue_DoubleValue{DoubleValue: f}}
}

func kv(key string, v *commonpb.AnyValue) *commonpb.KeyValue {
	return &commonpb.KeyValue{Key: key, Value: v}
}

// responseRecord builds a survey.response log record for response id.
func responseRecord(id string) *logspb.LogRecord {
	return &logspb.LogRecord{
		TimeUnixNano: uint64(submitted.UnixNano()),
		Attributes: []*commonpb.KeyValue{
			kv("event.name", strVal("survey.response")),
			kv("response.id", strVal(id)),
			kv("device.id", strVal("dev-1")),
			kv("user_agent.original", strVal("Mozilla/5.0 (Linux; Android 14)")),
			kv("geo.lat", dblVal(19.07)),
			kv("geo.lon", dblVal(72.87)),
			kv("geo.address", strVal("Mumbai")),
			kv("sync.status", strVal("synced")),
		},
		Body: &commonpb.AnyValue{Value: &commonpb.AnyValue_KvlistValue{KvlistValue: &commonpb.KeyValueList{
			Values: []*commonpb.KeyValue{
				kv("household_size", &commonpb.AnyValue{Value: &commonpb.AnyValue_IntValue{IntValue: 4}}),
				kv("water_source", strVal("well")),
			},
		}}},
	}
}

// makeLogsRequest wraps records in a resource carrying the survey id.
func makeLogsRequest(records ...*logspb.LogRecord) *collogspb.ExportLogsServiceRequest {
	return &collogspb.ExportLogsServiceRequest{
		ResourceLogs: []*logspb.ResourceLogs{
			{
				Resource: &resourcepb.Resource{
					Attributes: []*commonpb.KeyValue{
						kv("service.name", strVal("field-collector")),
						kv("survey.id", strVal("s1")),
						kv("conductor.id", strVal("c-7")),
					},
				},
				ScopeLogs: []*logspb.ScopeLogs{{LogRecords: records}},
			},
		},
	}
}
