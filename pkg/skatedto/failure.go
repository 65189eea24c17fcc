package skatedto

import (
	"errors"
	"net/http"

	"github.com/park285/skate-duel/internal/skate"
)

const CodeInternal = "INTERNAL"

// Failure is the wire form of an error.
type Failure struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Status  int    `json:"-"`
}

// FailureFrom maps rule errors to their code and status. Anything else is
// reported as INTERNAL without leaking the cause.
func FailureFrom(err error) Failure {
	if err == nil {
		return Failure{}
	}
	code := skate.CodeOf(err)
	if code == "" {
		return Failure{Error: CodeInternal, Message: "internal error", Status: http.StatusInternalServerError}
	}
	msg := string(code)
	var e *skate.Error
	if errors.As(err, &e) && e.Message != "" {
		msg = e.Message
	}
	return Failure{Error: string(code), Message: msg, Status: code.Status()}
}
