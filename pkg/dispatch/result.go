package dispatch

import (
	"fmt"

	"github.com/harun/toolgate/pkg/permission"
)

// ErrorKind classifies a failed call
type ErrorKind string

const (
	UnknownTool           ErrorKind = "unknown_tool"
	WritePermissionDenied ErrorKind = "write_permission_denied"
	AdminPermissionDenied ErrorKind = "admin_permission_denied"
	InvalidArguments      ErrorKind = "invalid_arguments"
	HandlerError          ErrorKind = "handler_error"
	// DuplicateRegistration is only ever reported at startup
	DuplicateRegistration ErrorKind = "duplicate_registration"
	// Canceled means the caller's context ended before the handler returned
	Canceled ErrorKind = "canceled"
)

// kindForOutcome maps a permission denial to its error kind
func kindForOutcome(o permission.Outcome) ErrorKind {
	switch o {
	case permission.AdminPermissionDenied:
		return AdminPermissionDenied
	case permission.WritePermissionDenied:
		return WritePermissionDenied
	default:
		return ""
	}
}

// CallError describes why a call failed. Message is safe to show the caller;
// details are only logged, keyed by CorrelationID.
type CallError struct {
	Kind          ErrorKind `json:"kind"`
	Message       string    `json:"message"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

func (e *CallError) Error() string {
	if e.CorrelationID != "" {
		return fmt.Sprintf("%s: %s (correlation id %s)", e.Kind, e.Message, e.CorrelationID)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// CallResult is the normalized outcome of a dispatch. Exactly one of Payload
// and Err is meaningful.
type CallResult struct {
	Tool    string     `json:"tool"`
	Payload any        `json:"result,omitempty"`
	Err     *CallError `json:"error,omitempty"`
}

// OK reports whether the call succeeded
func (r CallResult) OK() bool {
	return r.Err == nil
}

// Kind returns the error kind, or "" on success
func (r CallResult) Kind() ErrorKind {
	if r.Err == nil {
		return ""
	}
	return r.Err.Kind
}

// Success wraps a handler's return value unmodified
func Success(tool string, payload any) CallResult {
	return CallResult{Tool: tool, Payload: payload}
}

// Failure builds a failed result
func Failure(tool string, kind ErrorKind, message, correlationID string) CallResult {
	return CallResult{
		Tool: tool,
		Err: &CallError{
			Kind:          kind,
			Message:       message,
			CorrelationID: correlationID,
		},
	}
}
