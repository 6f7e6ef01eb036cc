package logging

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// OperationError is a failed client operation: what was attempted, for which
// session and how many tries were made before giving up.
type OperationError struct {
	Operation string
	SessionID string
	// Attempts is zero when the operation is not retried.
	Attempts int
	Err      error
}

// Error implements the error interface.
func (e *OperationError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(e.Operation)
	if e.SessionID != "" {
		fmt.Fprintf(&b, " (session_id=%s)", e.SessionID)
	}
	if e.Attempts > 1 {
		fmt.Fprintf(&b, " after %d attempts", e.Attempts)
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// MarshalLogObject lets zap log the failure as structured fields.
func (e *OperationError) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("operation", e.Operation)
	if e.SessionID != "" {
		enc.AddString("session_id", e.SessionID)
	}
	if e.Attempts > 0 {
		enc.AddInt("attempts", e.Attempts)
	}
	if e.Err != nil {
		enc.AddString("cause", e.Err.Error())
	}
	return nil
}

// NewOperationError wraps err with the operation and session it belongs to.
func NewOperationError(operation, sessionID string, err error) error {
	return NewRetriedError(operation, sessionID, 0, err)
}

// NewRetriedError is NewOperationError for an operation tried attempts times.
func NewRetriedError(operation, sessionID string, attempts int, err error) error {
	if err == nil {
		return nil
	}
	return &OperationError{Operation: operation, SessionID: sessionID, Attempts: attempts, Err: err}
}

// ErrorField logs an OperationError as an object and anything else as a
// plain error.
func ErrorField(err error) zap.Field {
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return zap.Object("error", opErr)
	}
	return zap.Error(err)
}
