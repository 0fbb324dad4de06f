package alerts

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedResponse marks a response missing fields required by ingest
	// or by a specific rule. It is always recovered locally.
	ErrMalformedResponse = errors.New("malformed response")

	ErrInvalidTransition = errors.New("invalid transition")
	ErrUnknownAlert      = errors.New("unknown alert")
	ErrAlreadyResolved   = errors.New("alert already resolved")

	// ErrDetectionPartialFailure marks a rule that failed while the others
	// completed.
	ErrDetectionPartialFailure = errors.New("detection partially failed")
)

// TransitionError describes a refused operator action.
type TransitionError struct {
	AlertID string
	From    Status
	Action  string
	Reason  string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s alert %s (status %s): %s", e.Action, e.AlertID, e.From, e.Reason)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// RuleFailure describes one rule that errored or panicked during detection.
type RuleFailure struct {
	Rule Type
	Err  error
}

func (e *RuleFailure) Error() string {
	return fmt.Sprintf("rule %s failed: %v", e.Rule, e.Err)
}

func (e *RuleFailure) Unwrap() []error { return []error{ErrDetectionPartialFailure, e.Err} }
