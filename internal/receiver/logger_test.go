package receiver

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/nixlim/fieldwatch/internal/ingest"
	"github.com/nixlim/fieldwatch/internal/state"
	"github.com/nixlim/fieldwatch/internal/survey"
)

func TestNopLogger_ImplementsInterface(t *testing.T) {
	var l Logger = NopLogger{}
	l.LogResponse("http", survey.Response{ID: "r1"})
	l.LogRejected("http", ingest.Diagnostic{})
}

func TestFileLogger_LogResponse(t *testing.T) {
	var buf bytes.Buffer
	l := NewFileLogger(&buf)

	l.LogResponse(TransportHTTP, survey.Response{
		ID:          "r1",
		SurveyID:    "s1",
		SubmittedAt: submitted,
		Answers:     []survey.Answer{{Question: "q", Answer: "a"}},
		Device:      survey.DeviceInfo{DeviceID: "dev-1"},
	})

	var entry logEntry
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("invalid JSON line %q: %v", buf.String(), err)
	}
	if entry.Type != "response" || entry.Transport != "http" || entry.ResponseID != "r1" ||
		entry.DeviceID != "dev-1" || entry.Answers != 1 {
		t.Errorf("unexpected entry: %+v", entry)
	}
	if entry.Timestamp != "2026-03-01T09:30:00Z" {
		t.Errorf("expected submitted time, got %q", entry.Timestamp)
	}
}

func TestFileLogger_LogRejected(t *testing.T) {
	var buf bytes.Buffer
	l := NewFileLogger(&buf)
	l.now = func() time.Time { return submitted }

	l.LogRejected(TransportOTLPGRPC, ingest.Diagnostic{
		ResponseID: "r9", Field: "deviceInfo", Skipped: true, Err: fmt.Errorf("missing deviceInfo"),
	})

	var entry logEntry
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if entry.Type != "diagnostic" || !entry.Skipped || entry.Field != "deviceInfo" || entry.Error != "missing deviceInfo" {
		t.Errorf("unexpected entry: %+v", entry)
	}
}

func TestFileLogger_ConcurrentWrites(t *testing.T) {
	var buf bytes.Buffer
	l := NewFileLogger(&buf)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			l.LogResponse(TransportHTTP, survey.Response{ID: fmt.Sprintf("r%d", n), SubmittedAt: submitted})
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 20 {
		t.Fatalf("expected 20 lines, got %d", len(lines))
	}
	for _, line := range lines {
		if !json.Valid([]byte(line)) {
			t.Errorf("interleaved or invalid line: %q", line)
		}
	}
}

func TestIngester_LogsThroughLogger(t *testing.T) {
	var buf bytes.Buffer
	in := NewIngester(state.NewMemoryStore(), NewFileLogger(&buf))

	raws, err := ingest.DecodeBatch([]byte("[" + rawJSON + `, {"id": "bad"}]`))
	if err != nil {
		t.Fatalf("DecodeBatch: %v", err)
	}
	res, err := in.Ingest(context.Background(), TransportCLI, raws)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.Accepted != 1 || res.Rejected != 1 || res.New != 1 {
		t.Errorf("unexpected result: %+v", res)
	}

	out := buf.String()
	if !strings.Contains(out, `"type":"response"`) || !strings.Contains(out, `"type":"diagnostic"`) {
		t.Errorf("expected both response and diagnostic lines, got %s", out)
	}
}

func TestIngester_DuplicateBatchNotNew(t *testing.T) {
	in := NewIngester(state.NewMemoryStore(), nil)
	raws, _ := ingest.DecodeBatch([]byte(rawJSON))

	first, _ := in.Ingest(context.Background(), TransportHTTP, raws)
	second, _ := in.Ingest(context.Background(), TransportHTTP, raws)
	if first.New != 1 || second.New != 0 || second.Accepted != 1 {
		t.Errorf("expected resubmission to be accepted but not new: %+v, %+v", first, second)
	}
}
