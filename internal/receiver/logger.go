package receiver

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/nixlim/fieldwatch/internal/ingest"
	"github.com/nixlim/fieldwatch/internal/survey"
)

// Logger records every response a receiver accepts or rejects, for
// debugging collection clients. Implementations must be safe for concurrent
// use.
type Logger interface {
	// LogResponse logs an accepted, normalized response.
	LogResponse(transport string, r survey.Response)

	// LogRejected logs a diagnostic produced while normalizing a batch.
	LogRejected(transport string, d ingest.Diagnostic)
}

// NopLogger discards all log output. This is the default when debug logging
// is not enabled.
type NopLogger struct{}

// LogResponse is a no-op.
func (NopLogger) LogResponse(string, survey.Response) {}

// LogRejected is a no-op.
func (NopLogger) LogRejected(string, ingest.Diagnostic) {}

// logEntry is the JSON structure written by FileLogger.
type logEntry struct {
	Timestamp  string `json:"ts"`
	Type       string `json:"type"`
	Transport  string `json:"transport"`
	ResponseID string `json:"response,omitempty"`
	SurveyID   string `json:"survey,omitempty"`
	DeviceID   string `json:"device,omitempty"`
	Answers    int    `json:"answers,omitempty"`
	Field      string `json:"field,omitempty"`
	Skipped    bool   `json:"skipped,omitempty"`
	Error      string `json:"error,omitempty"`
}

// FileLogger writes structured JSON debug output to an io.Writer.
// Each line is a complete JSON object (JSONL format).
type FileLogger struct {
	w   io.Writer
	mu  sync.Mutex
	now func() time.Time
}

// NewFileLogger creates a FileLogger that writes to the given writer.
func NewFileLogger(w io.Writer) *FileLogger {
	return &FileLogger{w: w, now: time.Now}
}

// LogResponse writes a JSON line for an accepted response.
func (l *FileLogger) LogResponse(transport string, r survey.Response) {
	l.write(logEntry{
		Timestamp:  r.SubmittedAt.UTC().Format(time.RFC3339Nano),
		Type:       "response",
		Transport:  transport,
		ResponseID: r.ID,
		SurveyID:   r.SurveyID,
		DeviceID:   r.Device.DeviceID,
		Answers:    len(r.Answers),
	})
}

// LogRejected writes a JSON line for a normalization diagnostic.
func (l *FileLogger) LogRejected(transport string, d ingest.Diagnostic) {
	entry := logEntry{
		Timestamp:  l.now().UTC().Format(time.RFC3339Nano),
		Type:       "diagnostic",
		Transport:  transport,
		ResponseID: d.ResponseID,
		Field:      d.Field,
		Skipped:    d.Skipped,
	}
	if d.Err != nil {
		entry.Error = d.Err.Error()
	}
	l.write(entry)
}

// write serialises a logEntry as JSON and writes it as a single line.
// Serialisation errors are silently dropped to avoid disrupting the receiver.
func (l *FileLogger) write(entry logEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, "%s\n", data)
}
