// Package apperr carries the error classification shared by the admission
// controller, the retry executor and the HTTP layer.
package apperr

import (
	"errors"
	"net/http"
)

type Kind int

const (
	// Unclassified errors are judged by status code and message.
	Unclassified Kind = iota
	Retryable
	Fatal
)

func (k Kind) String() string {
	switch k {
	case Retryable:
		return "retryable"
	case Fatal:
		return "fatal"
	default:
		return "unclassified"
	}
}

// Error is a tagged error. Zero StatusCode and RetryAfter mean absent.
type Error struct {
	Kind       Kind
	StatusCode int
	RetryAfter int
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return "unknown error"
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func New(kind Kind, message string, statusCode int) *Error {
	return &Error{Kind: kind, Message: message, StatusCode: statusCode}
}

func NewRetryable(message string, statusCode int) *Error {
	return New(Retryable, message, statusCode)
}

func NewFatal(message string, statusCode int) *Error {
	return New(Fatal, message, statusCode)
}

// Overloaded reports that work was refused before it ran. It is fatal so a
// retry loop never re-submits it locally; the client gets the Retry-After hint.
func Overloaded(message string, retryAfter int) *Error {
	return &Error{
		Kind:       Fatal,
		StatusCode: http.StatusServiceUnavailable,
		RetryAfter: retryAfter,
		Message:    message,
	}
}

// Wrap tags err, keeping its message.
func Wrap(err error, kind Kind, statusCode int) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, StatusCode: statusCode, Message: err.Error(), Cause: err}
}

func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// StatusCode returns the first status code found in the chain, or 0.
func StatusCode(err error) int {
	for err != nil {
		if tagged, ok := err.(*Error); ok && tagged.StatusCode != 0 {
			return tagged.StatusCode
		}
		if coder, ok := err.(interface{ HTTPStatus() int }); ok {
			if status := coder.HTTPStatus(); status != 0 {
				return status
			}
		}
		err = errors.Unwrap(err)
	}
	return 0
}

// RetryAfter returns the first retry hint found in the chain, or 0.
func RetryAfter(err error) int {
	for err != nil {
		if tagged, ok := err.(*Error); ok && tagged.RetryAfter > 0 {
			return tagged.RetryAfter
		}
		err = errors.Unwrap(err)
	}
	return 0
}

// KindOf returns the outermost explicit kind in the chain.
func KindOf(err error) Kind {
	for err != nil {
		if tagged, ok := err.(*Error); ok && tagged.Kind != Unclassified {
			return tagged.Kind
		}
		err = errors.Unwrap(err)
	}
	return Unclassified
}
