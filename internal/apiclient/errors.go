package apiclient

import (
	"errors"
	"fmt"
	"strings"
)

// ErrStatus matches every non-2xx response error via errors.Is.
var ErrStatus = errors.New("apiclient: unexpected status")

// StatusError is a non-2xx response. Message is the raw response body.
type StatusError struct {
	Operation  string
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		return fmt.Sprintf("%s: status %d", e.Operation, e.StatusCode)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Operation, e.StatusCode, msg)
}

// Is lets errors.Is(err, ErrStatus) match any status error.
func (e *StatusError) Is(target error) bool {
	return target == ErrStatus
}

// Status returns the embedded status details of any typed status error.
func (e *StatusError) Status() *StatusError {
	return e
}

// AsStatusError finds the status details of a rejected call anywhere in err's
// chain, whichever operation-specific type carries them.
func AsStatusError(err error) (*StatusError, bool) {
	var carrier interface{ Status() *StatusError }
	if !errors.As(err, &carrier) {
		return nil, false
	}
	return carrier.Status(), true
}

// SessionError is returned when a session cannot be created.
type SessionError struct{ StatusError }

// ConsentSyncError is returned when the consent upsert is rejected.
type ConsentSyncError struct{ StatusError }

// AnalysisError is returned when the analyze call is rejected.
type AnalysisError struct{ StatusError }

// LabelError is returned when the label call is rejected. A declined label is
// not a LabelError; see LabelOutcome.
type LabelError struct{ StatusError }

// DeletionError is returned when a delete call is rejected.
type DeletionError struct{ StatusError }

// ProgressError is returned when progress history cannot be listed.
type ProgressError struct{ StatusError }

// LegalError is returned when the legal bundle cannot be fetched, for
// example 503 while documents are not configured.
type LegalError struct{ StatusError }

// DonationError is returned when an explicit donation is rejected.
type DonationError struct{ StatusError }

// MalformedResponseError is returned when a 2xx body does not match the
// documented schema.
type MalformedResponseError struct {
	Operation string
	Err       error
}

// Error implements the error interface.
func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s: malformed response: %v", e.Operation, e.Err)
}

// Unwrap returns the decode or validation error.
func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

const (
	opCreateSession  = "create_session"
	opUpsertConsent  = "upsert_consent"
	opAnalyze        = "analyze"
	opLabelSample    = "label_sample"
	opDeleteProgress = "delete_progress"
	opListProgress   = "list_progress"
	opDeleteMe       = "delete_me"
	opLegalBundle    = "legal_bundle"
	opDonate         = "donate"
)

func statusError(operation string, statusCode int, body []byte) error {
	base := StatusError{Operation: operation, StatusCode: statusCode, Message: string(body)}
	switch operation {
	case opCreateSession:
		return &SessionError{base}
	case opUpsertConsent:
		return &ConsentSyncError{base}
	case opAnalyze:
		return &AnalysisError{base}
	case opLabelSample:
		return &LabelError{base}
	case opDeleteProgress, opDeleteMe:
		return &DeletionError{base}
	case opListProgress:
		return &ProgressError{base}
	case opLegalBundle:
		return &LegalError{base}
	case opDonate:
		return &DonationError{base}
	default:
		return &base
	}
}
