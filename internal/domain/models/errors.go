package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNoSnapshot is returned when no trained model has been persisted yet.
	ErrNoSnapshot = errors.New("no model snapshot")
	// ErrCycleInProgress is returned when another invocation holds the cycle lock.
	ErrCycleInProgress = errors.New("cycle already in progress")
	// ErrDeadlineExceeded is returned when the cycle deadline passed at a step boundary.
	ErrDeadlineExceeded = errors.New("cycle deadline exceeded")
)

// InsufficientDataError reports a history too short to fit the model's seasonality.
type InsufficientDataError struct {
	Observations int
	Span         time.Duration
	Required     time.Duration
}

func (e *InsufficientDataError) Error() string {
	if e.Observations == 0 {
		return "insufficient data: history is empty"
	}
	return fmt.Sprintf("insufficient data: %d observations spanning %s, need at least %s",
		e.Observations, e.Span, e.Required)
}

// WindowBeforeCutoffError guards against forecasting a window the model has already seen.
type WindowBeforeCutoffError struct {
	WindowStart time.Time
	Cutoff      time.Time
}

func (e *WindowBeforeCutoffError) Error() string {
	return fmt.Sprintf("window start %s precedes training cutoff %s",
		e.WindowStart.Format(time.RFC3339), e.Cutoff.Format(time.RFC3339))
}

// RepositoryError wraps a storage I/O failure.
type RepositoryError struct {
	Op  string
	Err error
}

func (e *RepositoryError) Error() string { return fmt.Sprintf("repository %s: %v", e.Op, e.Err) }

func (e *RepositoryError) Unwrap() error { return e.Err }

// NewRepositoryError returns nil when err is nil.
func NewRepositoryError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &RepositoryError{Op: op, Err: err}
}

// ReconciliationSkipped is a non-fatal condition: the window could not be scored.
type ReconciliationSkipped struct {
	WindowID string
	Reason   string
	Matched  int
	Expected int
}

func (e *ReconciliationSkipped) Error() string {
	return fmt.Sprintf("reconciliation skipped for %s: %s (%d/%d hours matched)",
		e.WindowID, e.Reason, e.Matched, e.Expected)
}

// PublishDegraded is a non-fatal condition: the artifact was written partially or not at all.
type PublishDegraded struct {
	Written  bool
	Missing  []string
	Failures []error
}

func (e *PublishDegraded) Error() string {
	parts := make([]string, 0, 2)
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if len(e.Failures) > 0 {
		msgs := make([]string, 0, len(e.Failures))
		for _, f := range e.Failures {
			msgs = append(msgs, f.Error())
		}
		parts = append(parts, "exporters failed: "+strings.Join(msgs, "; "))
	}
	return fmt.Sprintf("publish degraded (written=%t): %s", e.Written, strings.Join(parts, "; "))
}

func (e *PublishDegraded) Unwrap() []error { return e.Failures }
