package core

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/JonMunkholm/tabled/internal/cache"
	"github.com/JonMunkholm/tabled/internal/store"
)

// Kind classifies a core error for callers that translate it to a transport
// status.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindForbidden
	KindNotFound
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindConflict:
		return "conflict"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindUnavailable:
		return "unavailable"
	default:
		return "internal_error"
	}
}

// HTTPStatus returns the response status for the kind.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error is the typed error returned by every core operation. Message is safe
// to show to the caller; Err carries the technical cause for logs.
type Error struct {
	Kind    Kind
	Message string
	Details []string
	Total   int // problems found; Details may be capped below this
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// ValidationError reports malformed or incompatible input.
func ValidationError(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// ValidationErrors reports a list of input problems. The first one becomes
// the message.
func ValidationErrors(details []string) *Error {
	msg := "validation failed"
	if len(details) > 0 {
		msg = details[0]
	}
	return &Error{Kind: KindValidation, Message: msg, Details: details, Total: len(details)}
}

// ConflictError reports a duplicate name or value.
func ConflictError(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// ForbiddenError reports an ownership or access failure.
func ForbiddenError(format string, args ...any) *Error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a missing entity.
func NotFoundError(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// InternalError wraps an unexpected failure.
func InternalError(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

// KindOf returns the kind of err. Errors that are not *Error are internal,
// except for the store and lock sentinels.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return KindNotFound
	case errors.Is(err, store.ErrConflict):
		return KindConflict
	case errors.Is(err, cache.ErrLockBusy), errors.Is(err, ErrTooManyImports):
		return KindUnavailable
	}
	return KindInternal
}

// storeError converts a storage failure into a core error, turning
// ErrNotFound into a NotFoundError for what.
func storeError(err error, what string) error {
	var e *Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &e):
		return err
	case errors.Is(err, store.ErrNotFound):
		return &Error{Kind: KindNotFound, Message: what + " not found", Err: err}
	case errors.Is(err, store.ErrConflict):
		return &Error{Kind: KindConflict, Message: what + " already exists", Err: err}
	case errors.Is(err, cache.ErrLockBusy):
		return &Error{Kind: KindUnavailable, Message: "system busy, please try again later", Err: err}
	}
	return InternalError("failed to load "+what, err)
}
