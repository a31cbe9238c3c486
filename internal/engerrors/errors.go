// Package engerrors defines the execution engine's error taxonomy (spec
// §7) and maps each kind to an HTTP status class, extending the agent
// package's ToolError/classifyToolError pattern with a coarser,
// API-facing classification.
package engerrors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind is one of the seven error kinds named in spec §7 (not a message,
// a classification).
type Kind string

const (
	Validation        Kind = "validation"
	PermissionDenied  Kind = "permission_denied"
	NotFound          Kind = "not_found"
	Conflict          Kind = "conflict"
	TransientUpstream Kind = "transient_upstream"
	PermanentUpstream Kind = "permanent_upstream"
	Cancelled         Kind = "cancelled"
	Internal          Kind = "internal"
)

// HTTPStatus maps a Kind to the status class spec §7 assigns it.
func (k Kind) HTTPStatus() int {
	switch k {
	case Validation:
		return http.StatusBadRequest
	case PermissionDenied:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case TransientUpstream, Internal:
		return http.StatusInternalServerError
	case PermanentUpstream:
		return http.StatusBadGateway
	case Cancelled:
		return http.StatusOK // surfaced via Done event, not an HTTP failure
	default:
		return http.StatusInternalServerError
	}
}

// Code is a short machine-readable identifier used in JSON error bodies.
func (k Kind) Code() string {
	return strings.ToUpper(string(k))
}

// EngineError is a classified error carrying a Kind alongside the
// underlying cause, so API handlers and the executor's cleanup wrapper can
// branch on Kind without string-matching messages.
type EngineError struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *EngineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *EngineError) Unwrap() error { return e.Cause }

// New constructs an EngineError of the given kind.
func New(kind Kind, message string) *EngineError {
	return &EngineError{Kind: kind, Message: message}
}

// Wrap constructs an EngineError of the given kind around cause.
func Wrap(kind Kind, message string, cause error) *EngineError {
	return &EngineError{Kind: kind, Message: message, Cause: cause}
}

// As extracts an *EngineError from err, if present.
func As(err error) (*EngineError, bool) {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee, true
	}
	return nil, false
}

// KindOf returns the Kind of err if it is (or wraps) an EngineError, else
// Internal.
func KindOf(err error) Kind {
	if ee, ok := As(err); ok {
		return ee.Kind
	}
	return Internal
}

// transientSubstrings is the exact token list from spec §4.1's failure
// semantics, extending the agent package's classifier with the tokens it
// was missing (502, 503, broken pipe, temporarily unavailable, overloaded).
var transientSubstrings = []string{
	"timeout", "timed out", "rate limit", "429", "502", "503",
	"connection reset", "connection refused", "broken pipe",
	"temporarily unavailable", "overloaded",
}

// IsTransient reports whether err's message matches the spec's transient
// upstream error substring catalog.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range transientSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// Classify converts a raw error from a provider or tool call into an
// EngineError, preferring an already-classified EngineError, then falling
// back to substring-based transient detection, then Internal.
func Classify(err error) *EngineError {
	if err == nil {
		return nil
	}
	if ee, ok := As(err); ok {
		return ee
	}
	if errors.Is(err, ErrCancelled) {
		return Wrap(Cancelled, "cancelled", err)
	}
	if IsTransient(err) {
		return Wrap(TransientUpstream, "transient upstream error", err)
	}
	return Wrap(Internal, "internal error", err)
}

// ErrCancelled is the sentinel used to signal executor cancellation.
var ErrCancelled = errors.New("execution cancelled")
