// Package apperr classifies engine failures so transports can report them
// consistently. Every rejection the engine returns wraps exactly one *Error.
package apperr

import (
	"errors"
	"net/http"
)

// Kind is the category of a rejection.
type Kind int

const (
	KindUnknown Kind = iota
	// KindAuthorization: bad signature, wrong wallet, replayed or stale nonce.
	KindAuthorization
	// KindValidation: malformed or rule-violating input.
	KindValidation
	// KindConflict: the action is valid in general but not in the current state.
	KindConflict
	// KindSettlement: an external transfer could not be verified.
	KindSettlement
	// KindFatal: the engine has stopped accepting actions.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindAuthorization:
		return "authorization"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindSettlement:
		return "settlement"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is a categorized sentinel. Compare with errors.Is.
type Error struct {
	Kind Kind
	msg  string
}

// New creates a sentinel of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, msg: msg}
}

func (e *Error) Error() string { return e.msg }

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// HTTPStatus maps an error to the status code the API responds with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindAuthorization:
		return http.StatusForbidden
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindSettlement:
		return http.StatusPaymentRequired
	case KindFatal:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
