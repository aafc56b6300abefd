package errors

import (
	"context"
	stderrors "errors"
	"fmt"
)

// MaktabaError is the structured error type for maktaba.
// It carries the machine-readable kind alongside context for logging and
// operator presentation.
type MaktabaError struct {
	// Kind is the failure classification (e.g. store_busy).
	Kind Kind

	// Message is the human-readable error message.
	Message string

	// Details carries extra context as key-value pairs.
	Details map[string]string

	// Cause is the wrapped underlying error, if any.
	Cause error

	// Retryable reports whether another attempt may succeed.
	Retryable bool

	// Suggestion is an actionable hint for the operator.
	Suggestion string
}

func (e *MaktabaError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap exposes the cause to errors.Is and errors.As.
func (e *MaktabaError) Unwrap() error {
	return e.Cause
}

// Is matches two classified errors by kind, so errors.Is can compare
// against a bare New(kind, ...) sentinel.
func (e *MaktabaError) Is(target error) bool {
	if t, ok := target.(*MaktabaError); ok {
		return e.Kind == t.Kind
	}
	return false
}

// WithDetail attaches one context pair and returns e for chaining.
func (e *MaktabaError) WithDetail(key, value string) *MaktabaError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion attaches an operator hint and returns e for chaining.
func (e *MaktabaError) WithSuggestion(suggestion string) *MaktabaError {
	e.Suggestion = suggestion
	return e
}

// New creates a new MaktabaError with the given kind and message.
// The retryable flag is derived from the kind.
func New(kind Kind, message string, cause error) *MaktabaError {
	return &MaktabaError{
		Kind:      kind,
		Message:   message,
		Cause:     cause,
		Retryable: kindRetryable(kind),
	}
}

// Wrap creates a MaktabaError from an existing error.
// The error's message becomes the MaktabaError message.
// Context errors are reclassified to their own kinds first.
func Wrap(kind Kind, err error) *MaktabaError {
	if err == nil {
		return nil
	}
	if ctxKind, ok := contextKind(err); ok {
		kind = ctxKind
	}
	return New(kind, err.Error(), err)
}

// InputInvalid creates an error for malformed or unreadable input.
func InputInvalid(message string, cause error) *MaktabaError {
	return New(KindInputInvalid, message, cause)
}

// ProviderTransient creates a retryable provider error (5xx, timeout).
func ProviderTransient(message string, cause error) *MaktabaError {
	return New(KindProviderTransient, message, cause)
}

// ProviderPermanent creates a non-retryable provider error (4xx).
func ProviderPermanent(message string, cause error) *MaktabaError {
	return New(KindProviderPermanent, message, cause)
}

// StoreBusy creates a catalog lock-contention error.
func StoreBusy(message string, cause error) *MaktabaError {
	return New(KindStoreBusy, message, cause)
}

// StoreFailed creates a catalog failure error.
func StoreFailed(message string, cause error) *MaktabaError {
	return New(KindStoreFailed, message, cause)
}

// SearchFailed creates a search-store write error.
func SearchFailed(message string, cause error) *MaktabaError {
	return New(KindSearchFailed, message, cause)
}

// ValidationFailed creates a marker round-trip mismatch error.
func ValidationFailed(message string, cause error) *MaktabaError {
	return New(KindValidationFailed, message, cause)
}

// DeadlineExceeded creates a deadline-expiry error.
func DeadlineExceeded(message string, cause error) *MaktabaError {
	return New(KindDeadlineExceeded, message, cause)
}

// Cancelled creates a cooperative-cancellation error.
func Cancelled(message string, cause error) *MaktabaError {
	return New(KindCancelled, message, cause)
}

// contextKind maps context sentinel errors to their kinds.
func contextKind(err error) (Kind, bool) {
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		return KindDeadlineExceeded, true
	case stderrors.Is(err, context.Canceled):
		return KindCancelled, true
	default:
		return "", false
	}
}

// KindOf extracts the kind from an error chain.
// Context errors map to deadline_exceeded/cancelled; anything else without a
// MaktabaError in the chain reports an empty kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var me *MaktabaError
	if stderrors.As(err, &me) {
		return me.Kind
	}
	if k, ok := contextKind(err); ok {
		return k
	}
	return ""
}

// HasKind reports whether any error in the chain carries the given kind.
func HasKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsRetryable checks if an error is retryable.
// MaktabaError carries an explicit flag; bare context deadline errors are
// retryable while attempts remain, bare cancellation never is.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var me *MaktabaError
	if stderrors.As(err, &me) {
		return me.Retryable
	}
	if k, ok := contextKind(err); ok {
		return kindRetryable(k)
	}
	return false
}
