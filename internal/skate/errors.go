package skate

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is the stable machine-readable error code returned to callers.
type Code string

const (
	CodeGameNotFound    Code = "GAME_NOT_FOUND"
	CodeRoundNotFound   Code = "ROUND_NOT_FOUND"
	CodeDisputeNotFound Code = "DISPUTE_NOT_FOUND"
	CodeAttemptNotFound Code = "ATTEMPT_NOT_FOUND"
	CodeGameNotActive   Code = "GAME_NOT_ACTIVE"
	CodeWrongPlayer     Code = "WRONG_PLAYER"
	CodeWrongPhase      Code = "WRONG_PHASE"
	CodeAccessDenied    Code = "ACCESS_DENIED"
	CodeInvalidState    Code = "INVALID_STATE"
	CodeAlreadyResolved Code = "ALREADY_RESOLVED"
	CodeDisputeUsed     Code = "DISPUTE_ALREADY_USED"
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
)

// Kind groups codes by how a caller should react.
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindForbidden    Kind = "forbidden"
	KindInvalidState Kind = "invalid_state"
	KindConflict     Kind = "conflict"
)

// Kind returns the taxonomy bucket of the code.
func (c Code) Kind() Kind {
	switch c {
	case CodeGameNotFound, CodeRoundNotFound, CodeDisputeNotFound, CodeAttemptNotFound:
		return KindNotFound
	case CodeWrongPlayer, CodeAccessDenied:
		return KindForbidden
	case CodeAlreadyResolved, CodeDisputeUsed:
		return KindConflict
	default:
		return KindInvalidState
	}
}

// Status maps the code to its HTTP-equivalent status.
func (c Code) Status() int {
	switch c.Kind() {
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusBadRequest
	}
}

// Error is a terminal rule violation. Validation always happens before any
// write, so an *Error means the stored state is untouched.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches on code so errors.Is(err, ErrGameNotFound) works for any message.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

// Errorf builds a coded error.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the code of a rule error; empty for infrastructure errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

var (
	ErrGameNotFound    = &Error{Code: CodeGameNotFound, Message: "game not found"}
	ErrRoundNotFound   = &Error{Code: CodeRoundNotFound, Message: "round not found"}
	ErrDisputeNotFound = &Error{Code: CodeDisputeNotFound, Message: "dispute not found"}
	ErrAttemptNotFound = &Error{Code: CodeAttemptNotFound, Message: "attempt not found"}
	ErrGameNotActive   = &Error{Code: CodeGameNotActive, Message: "game is not active"}
	ErrWrongPlayer     = &Error{Code: CodeWrongPlayer, Message: "not your turn"}
	ErrWrongPhase      = &Error{Code: CodeWrongPhase, Message: "action not allowed in this phase"}
	ErrAccessDenied    = &Error{Code: CodeAccessDenied, Message: "access denied"}
	ErrInvalidState    = &Error{Code: CodeInvalidState, Message: "invalid state"}
	ErrAlreadyResolved = &Error{Code: CodeAlreadyResolved, Message: "already resolved"}
	ErrDisputeUsed     = &Error{Code: CodeDisputeUsed, Message: "already used your dispute for this game"}
	ErrInvalidArgument = &Error{Code: CodeInvalidArgument, Message: "invalid arguments"}
)
