package storage

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/nixlim/fieldwatch/internal/alerts"
	"github.com/nixlim/fieldwatch/internal/survey"
)

// Timestamps are stored as fixed-width UTC strings so lexical order matches
// time order in SQL comparisons.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func encodeResponse(r survey.Response) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encoding response %s: %w", r.ID, err)
	}
	return data, nil
}

func decodeResponse(data []byte) (survey.Response, error) {
	var r survey.Response
	if err := json.Unmarshal(data, &r); err != nil {
		return survey.Response{}, fmt.Errorf("decoding response: %w", err)
	}
	return r, nil
}

func encodeAlert(a alerts.RiskAlert) ([]byte, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encoding alert %s: %w", a.ID, err)
	}
	return data, nil
}

func decodeAlert(data []byte) (alerts.RiskAlert, error) {
	var a alerts.RiskAlert
	if err := json.Unmarshal(data, &a); err != nil {
		return alerts.RiskAlert{}, fmt.Errorf("decoding alert: %w", err)
	}
	if a.Metadata == nil {
		a.Metadata = map[string]any{}
	}
	return a, nil
}
