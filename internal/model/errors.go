package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrAlertNotFound is returned when an alert id does not exist.
var ErrAlertNotFound = errors.New("alert not found")

// ErrScheduleNotFound is returned when a schedule id does not exist.
var ErrScheduleNotFound = errors.New("schedule not found")

// ErrPolicyNotFound is returned when a policy id does not exist.
var ErrPolicyNotFound = errors.New("policy not found")

// ErrNoMatchingPolicy is returned when no enabled policy matches an
// alert's severity. Log-only: the alert stays tracked without escalation.
var ErrNoMatchingPolicy = errors.New("no matching escalation policy")

// InvalidTransitionError reports a state move that is not in the
// transition table. Non-retryable; surfaced to the caller.
type InvalidTransitionError struct {
	AlertID string
	From    State
	To      State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition for alert %s: %s -> %s", e.AlertID, e.From, e.To)
}

// ConcurrentModificationError reports an optimistic-lock mismatch: the
// alert changed state between read and write. The caller should refresh
// the alert and retry.
type ConcurrentModificationError struct {
	AlertID  string
	Expected State
}

func (e *ConcurrentModificationError) Error() string {
	return fmt.Sprintf("alert %s no longer in state %s: refresh and retry", e.AlertID, e.Expected)
}

// ClockSkewError reports an on-call lookup instant far outside the valid
// range of a schedule. Rejected explicitly rather than returning an
// ambiguous member.
type ClockSkewError struct {
	ScheduleID string
	Instant    time.Time
	Reason     string
}

func (e *ClockSkewError) Error() string {
	return fmt.Sprintf("schedule %s: instant %s out of range: %s",
		e.ScheduleID, e.Instant.Format(time.RFC3339), e.Reason)
}

// DeliveryError classifies a notifier failure. Retryable errors are
// retried with backoff; fatal errors fail the attempt immediately.
type DeliveryError struct {
	Channel   string
	Retryable bool
	Err       error
}

func (e *DeliveryError) Error() string {
	kind := "fatal"
	if e.Retryable {
		kind = "retryable"
	}
	return fmt.Sprintf("%s delivery error on channel %s: %v", kind, e.Channel, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
