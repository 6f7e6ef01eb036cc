package flow

import (
	"errors"
	"fmt"
)

// Kind classifies a failed network step.
type Kind int

const (
	// BootstrapFailure blocks the flow until Bootstrap succeeds.
	BootstrapFailure Kind = iota + 1
	// SyncFailure is a non-blocking warning; the local value stays.
	SyncFailure
	// SubmissionFailure leaves the flow on the current screen.
	SubmissionFailure
)

func (k Kind) String() string {
	switch k {
	case BootstrapFailure:
		return "bootstrap failure"
	case SyncFailure:
		return "sync failure"
	case SubmissionFailure:
		return "submission failure"
	default:
		return "unknown failure"
	}
}

// Error is a network failure caught at the controller boundary.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a flow error, or 0 when err is not one.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return 0
}

var (
	// ErrBusy is returned when the same action already has a call in flight.
	ErrBusy = errors.New("flow: action already in progress")
	// ErrInvalidTransition is returned when an event does not apply to the current state.
	ErrInvalidTransition = errors.New("flow: invalid transition")
	// ErrLabelUnavailable is returned when the current result has no ROI identifier.
	ErrLabelUnavailable = errors.New("flow: labeling unavailable for this result")
	// ErrStale is returned when a response arrives after the flow moved on.
	ErrStale = errors.New("flow: response discarded, scan no longer active")
	// ErrNoPhoto is returned when capture is given no photo.
	ErrNoPhoto = errors.New("flow: no photo captured")
)

func invalid(event string, from State) error {
	return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, event, from)
}
