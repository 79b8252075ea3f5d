package ledger

import (
	"errors"
	"fmt"
	"net/http"
)

// Store-level sentinels. Store implementations translate driver errors into
// these so the ledger never inspects driver types.
var (
	ErrRecordNotFound   = errors.New("record not found")
	ErrTargetNotFound   = errors.New("target not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrConflict         = errors.New("write conflict")
	ErrCounterUnderflow = errors.New("counter would become negative")
)

// Kind is the category of a ledger failure as seen by callers.
type Kind string

const (
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindNotFound     Kind = "not_found"
	KindValidation   Kind = "validation"
	KindVoteFailed   Kind = "vote_failed"
	KindInternal     Kind = "internal"
)

// Error is the structured failure returned by every public ledger operation.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
	Context map[string]any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus maps the error kind to a response code.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindVoteFailed:
		if errors.Is(e.Cause, ErrConflict) {
			return http.StatusConflict
		}
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// WithField attaches a context field (chainable).
func (e *Error) WithField(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

func Unauthorized(message string) *Error {
	return &Error{Kind: KindUnauthorized, Message: message}
}

func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

func NotFound(message string, cause error) *Error {
	return &Error{Kind: KindNotFound, Message: message, Cause: cause}
}

func ValidationError(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

func VoteFailed(cause error) *Error {
	return &Error{Kind: KindVoteFailed, Message: "vote could not be applied", Cause: cause}
}

func Internal(message string, cause error) *Error {
	return &Error{Kind: KindInternal, Message: message, Cause: cause}
}

// AsError converts any error into an *Error. Structured errors are returned
// unchanged, store not-found sentinels become KindNotFound and everything
// else becomes KindInternal.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if isNotFound(err) {
		return NotFound(err.Error(), err)
	}
	return Internal("internal error", err)
}

// IsKind reports whether err is a ledger error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrRecordNotFound) ||
		errors.Is(err, ErrTargetNotFound) ||
		errors.Is(err, ErrUserNotFound)
}

// passthrough reports whether a failure inside a transaction should reach
// the caller with its own kind instead of being wrapped.
func passthrough(err error) bool {
	return IsKind(err, KindNotFound) || IsKind(err, KindValidation) ||
		IsKind(err, KindForbidden) || IsKind(err, KindUnauthorized)
}
