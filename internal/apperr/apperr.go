// Package apperr defines the error taxonomy shared by the study workflow.
// Every failure surfaced to the client carries exactly one Kind; callers
// branch on KindOf instead of inspecting message text.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a workflow failure.
type Kind int

const (
	// Precondition: required input missing; caught before any network call.
	Precondition Kind = iota + 1
	// Transport: non-2xx status or connection failure from an endpoint.
	Transport
	// Blocked: the endpoint reported a content-safety block.
	Blocked
	// Empty: success status but no usable content in the response.
	Empty
	// Schema: a structured response was requested but did not parse or
	// validate against the expected shape.
	Schema
	// Persistence: a history write failed; logged, never surfaced as a
	// generation failure.
	Persistence
)

func (k Kind) String() string {
	switch k {
	case Precondition:
		return "precondition"
	case Transport:
		return "transport"
	case Blocked:
		return "content_blocked"
	case Empty:
		return "empty_response"
	case Schema:
		return "schema_validation"
	case Persistence:
		return "persistence"
	}
	return "unknown"
}

// Error pairs a Kind with a user-visible message and an optional cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// New returns an error of the given kind with a formatted message.
func New(k Kind, format string, args ...any) error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying cause.
func Wrap(k Kind, err error, format string, args ...any) error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind carried by err, or 0 if err is not an apperr Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
