package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/nixlim/fieldwatch/internal/alerts"
	"github.com/nixlim/fieldwatch/internal/logging"
)

const maxRequestBytes = 1 << 20

// Error codes returned in the error envelope.
const (
	codeValidation        = "VALIDATION_ERROR"
	codeNotFound          = "NOT_FOUND"
	codeInvalidTransition = "INVALID_TRANSITION"
	codeAlreadyResolved   = "ALREADY_RESOLVED"
	codeUnavailable       = "SERVICE_UNAVAILABLE"
	codeInternal          = "INTERNAL_ERROR"
)

// Response is the envelope for every JSON reply.
type Response struct {
	Status    string    `json:"status"`
	Data      any       `json:"data,omitempty"`
	Error     *APIError `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// APIError describes a failed request.
type APIError struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Fields  []string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Error().Err(err).Msg("failed to write JSON response")
	}
}

func respondData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Response{Status: "success", Data: data, Timestamp: time.Now().UTC()})
}

func respondError(w http.ResponseWriter, status int, code, message string, err error) {
	if err != nil && status >= http.StatusInternalServerError {
		logging.Error().Err(err).Str("code", code).Msg("API error")
	}
	writeJSON(w, status, Response{
		Status:    "error",
		Error:     &APIError{Code: code, Message: message},
		Timestamp: time.Now().UTC(),
	})
}

func respondValidation(w http.ResponseWriter, verr *validationError) {
	writeJSON(w, http.StatusBadRequest, Response{
		Status:    "error",
		Error:     &APIError{Code: codeValidation, Message: verr.Message, Fields: verr.Fields},
		Timestamp: time.Now().UTC(),
	})
}

// respondManagerError maps alert manager errors onto HTTP statuses.
func respondManagerError(w http.ResponseWriter, err error) {
	var te *alerts.TransitionError
	switch {
	case errors.Is(err, alerts.ErrUnknownAlert):
		respondError(w, http.StatusNotFound, codeNotFound, err.Error(), nil)
	case errors.Is(err, alerts.ErrAlreadyResolved):
		respondError(w, http.StatusConflict, codeAlreadyResolved, err.Error(), nil)
	case errors.As(err, &te):
		respondError(w, http.StatusConflict, codeInvalidTransition, te.Error(), nil)
	case errors.Is(err, alerts.ErrManagerClosed),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusServiceUnavailable, codeUnavailable, "alert manager unavailable", err)
	default:
		respondError(w, http.StatusInternalServerError, codeInternal, "internal error", err)
	}
}

// decodeBody reads a JSON request body into dst and validates it. An empty
// body leaves dst at its zero value before validation. It writes the error
// response itself and reports whether the handler should continue.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes+1))
	if err != nil {
		respondError(w, http.StatusBadRequest, codeValidation, "failed to read request body", nil)
		return false
	}
	if len(data) > maxRequestBytes {
		respondError(w, http.StatusRequestEntityTooLarge, codeValidation, "request body too large", nil)
		return false
	}
	if len(strings.TrimSpace(string(data))) > 0 {
		if err := json.Unmarshal(data, dst); err != nil {
			respondError(w, http.StatusBadRequest, codeValidation, fmt.Sprintf("invalid JSON body: %v", err), nil)
			return false
		}
	}
	if t, ok := dst.(interface{ trim() }); ok {
		t.trim()
	}
	if verr := validateStruct(dst); verr != nil {
		respondValidation(w, verr)
		return false
	}
	return true
}
