// Package ingest converts raw survey responses, as produced by collection
// clients, into the canonical survey.Response model.
package ingest

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
)

// RawResponse is a response as submitted by a collection client. Fields that
// clients encode in more than one shape are kept as raw JSON and resolved
// during normalization.
type RawResponse struct {
	ID            string          `json:"id"`
	SurveyID      string          `json:"surveyId"`
	ConductorID   string          `json:"conductorId,omitempty"`
	ConductorName string          `json:"conductorName,omitempty"`
	Responses     json.RawMessage `json:"responses,omitempty"`
	Location      *RawLocation    `json:"location,omitempty"`
	DeviceInfo    *RawDevice      `json:"deviceInfo,omitempty"`
	StartedAt     string          `json:"startedAt,omitempty"`
	SubmittedAt   string          `json:"submittedAt"`
	SyncStatus    string          `json:"syncStatus,omitempty"`
}

// RawLocation is a client-reported position. Coordinates are pointers so a
// missing value can be told apart from zero.
type RawLocation struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Address   string   `json:"address,omitempty"`
}

// RawDevice is the client device block. Timestamp is either an RFC 3339
// string or epoch milliseconds.
type RawDevice struct {
	UserAgent string          `json:"userAgent"`
	Timestamp json.RawMessage `json:"timestamp,omitempty"`
	DeviceID  string          `json:"deviceId,omitempty"`
	Platform  string          `json:"platform,omitempty"`
	Screen    string          `json:"screen,omitempty"`
	Language  string          `json:"language,omitempty"`
	Timezone  string          `json:"timezone,omitempty"`
}

// rawAnswer is one entry of the list form of "responses".
type rawAnswer struct {
	Question   string          `json:"question"`
	Answer     json.RawMessage `json:"answer"`
	AnsweredAt string          `json:"answeredAt,omitempty"`
}

// DecodeBatch decodes either a single JSON object or an array of objects.
func DecodeBatch(data []byte) ([]RawResponse, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty request body")
	}

	if trimmed[0] == '[' {
		var batch []RawResponse
		if err := json.Unmarshal(trimmed, &batch); err != nil {
			return nil, fmt.Errorf("decoding response batch: %w", err)
		}
		return batch, nil
	}

	var one RawResponse
	if err := json.Unmarshal(trimmed, &one); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return []RawResponse{one}, nil
}
