package api

import (
	"errors"
	"fmt"
	"net/http"

	"templateflow/pkg/template"
)

// Error is a failure with the HTTP status and message sent to the client.
// Err is kept for logging and never written to the response.
type Error struct {
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// invalid builds a 400 error for malformed request input.
func invalid(format string, args ...any) *Error {
	return &Error{Status: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

// toError converts any failure into an *Error. Store failures keep only the
// kind of failure in the message.
func toError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	switch {
	case errors.Is(err, template.ErrRead):
		return &Error{Status: http.StatusInternalServerError, Message: "something went wrong: " + template.ErrRead.Error(), Err: err}
	case errors.Is(err, template.ErrWrite):
		return &Error{Status: http.StatusInternalServerError, Message: "something went wrong: " + template.ErrWrite.Error(), Err: err}
	default:
		return &Error{Status: http.StatusInternalServerError, Message: "something went wrong", Err: err}
	}
}
