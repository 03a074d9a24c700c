// Package apperr defines the outcome kinds returned by the services and how
// they map onto HTTP status codes.
package apperr

import (
	"errors"
	"net/http"
	"strings"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindAuthentication
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindStoreUnavailable
	KindSessionSave
)

var kindNames = map[Kind]string{
	KindInternal:         "internal_error",
	KindValidation:       "validation_error",
	KindConflict:         "conflict",
	KindAuthentication:   "authentication_failed",
	KindUnauthenticated:  "unauthenticated",
	KindForbidden:        "forbidden",
	KindNotFound:         "not_found",
	KindStoreUnavailable: "store_unavailable",
	KindSessionSave:      "session_save_failed",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// StatusCode is the HTTP status a handler answers with for this kind.
// Unauthenticated requests are redirected to the login form instead.
func (k Kind) StatusCode() int {
	switch k {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindConflict:
		return http.StatusConflict
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindUnauthenticated:
		return http.StatusFound
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Messages shown to users. Causes are never rendered.
const (
	MsgInvalidCredentials = "Invalid username or password"
	MsgUnauthenticated    = "Please log in to continue"
	MsgForbidden          = "You don't have permission to perform this action"
	MsgNotFound           = "Not found"
	MsgStoreUnavailable   = "We are having trouble reaching the database. Please try again in a moment."
	MsgSessionSave        = "Could not start your session. Please try again."
	MsgInternal           = "Something went wrong. Please try again."
	MsgUsernameTaken      = "Username already exists"
	MsgEmailTaken         = "Email already exists"
)

// Error is the single error type returned by the services. Only the fields
// relevant to Kind are populated.
type Error struct {
	Kind     Kind
	Messages []string
	Fields   []string // conflicting fields for KindConflict
	err      error
}

func (e *Error) Error() string {
	if len(e.Messages) == 0 {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + strings.Join(e.Messages, "; ")
}

func (e *Error) Unwrap() error {
	return e.err
}

// Is matches any *Error of the same kind, so the package level sentinels
// work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Message returns the first user-facing message.
func (e *Error) Message() string {
	if len(e.Messages) > 0 {
		return e.Messages[0]
	}
	return MsgInternal
}

var (
	ErrValidation       = &Error{Kind: KindValidation}
	ErrConflict         = &Error{Kind: KindConflict}
	ErrAuthentication   = &Error{Kind: KindAuthentication}
	ErrUnauthenticated  = &Error{Kind: KindUnauthenticated}
	ErrForbidden        = &Error{Kind: KindForbidden}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrStoreUnavailable = &Error{Kind: KindStoreUnavailable}
	ErrSessionSave      = &Error{Kind: KindSessionSave}
	ErrInternal         = &Error{Kind: KindInternal}
)

func Validation(messages ...string) *Error {
	return &Error{Kind: KindValidation, Messages: messages}
}

// Conflict builds a uniqueness error for the given fields ("username",
// "email").
func Conflict(fields ...string) *Error {
	e := &Error{Kind: KindConflict, Fields: fields}
	for _, f := range fields {
		switch f {
		case "username":
			e.Messages = append(e.Messages, MsgUsernameTaken)
		case "email":
			e.Messages = append(e.Messages, MsgEmailTaken)
		}
	}
	return e
}

func Authentication() *Error {
	return &Error{Kind: KindAuthentication, Messages: []string{MsgInvalidCredentials}}
}

func Unauthenticated() *Error {
	return &Error{Kind: KindUnauthenticated, Messages: []string{MsgUnauthenticated}}
}

func Forbidden() *Error {
	return &Error{Kind: KindForbidden, Messages: []string{MsgForbidden}}
}

func NotFound(what string) *Error {
	msg := MsgNotFound
	if what != "" {
		msg = what + " not found"
	}
	return &Error{Kind: KindNotFound, Messages: []string{msg}}
}

func StoreUnavailable(cause error) *Error {
	return &Error{Kind: KindStoreUnavailable, Messages: []string{MsgStoreUnavailable}, err: cause}
}

func SessionSave(cause error) *Error {
	return &Error{Kind: KindSessionSave, Messages: []string{MsgSessionSave}, err: cause}
}

func Internal(cause error) *Error {
	return &Error{Kind: KindInternal, Messages: []string{MsgInternal}, err: cause}
}

// From returns err as an *Error, wrapping anything else as internal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}

// KindOf returns the kind of err, KindInternal for foreign errors.
func KindOf(err error) Kind {
	return From(err).Kind
}
