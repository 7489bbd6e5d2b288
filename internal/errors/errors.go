package errors

import (
	"errors"
	"fmt"
)

var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
)

type appError struct {
	code    ErrorCode
	message string
	err     error
	data    any
}

func (e *appError) Error() string {
	msg := e.message
	if msg == "" {
		msg = GetErrorMessage(e.code)
	}

	switch {
	case e.data != nil:
		return fmt.Sprintf("%s: %v", msg, e.data)
	case e.err != nil:
		return fmt.Sprintf("%s: %v", msg, e.err)
	default:
		return msg
	}
}

func (e *appError) Code() ErrorCode { return e.code }
func (e *appError) Data() any       { return e.data }
func (e *appError) Unwrap() error   { return e.err }

// Is matches any Error with the same code.
func (e *appError) Is(target error) bool {
	t, ok := target.(Error)
	return ok && t.Code() == e.code
}

func (e *appError) clone() *appError {
	c := *e
	return &c
}

func (e *appError) WithMessage(msg string) Error {
	c := e.clone()
	c.message = msg
	return c
}

func (e *appError) WithData(data any) Error {
	c := e.clone()
	c.data = data
	return c
}

type defaultFactory struct{}

func (defaultFactory) New(code ErrorCode) Error {
	return &appError{code: code}
}

func (defaultFactory) Wrap(code ErrorCode, err error) Error {
	return &appError{code: code, err: err}
}

func (defaultFactory) WithMessage(code ErrorCode, msg string) Error {
	return &appError{code: code, message: msg}
}

func (defaultFactory) WithData(code ErrorCode, data any) Error {
	return &appError{code: code, data: data}
}

// New returns the error factory.
func New() Factory {
	return defaultFactory{}
}

// HasCode reports whether err, or any error it wraps, carries code.
func HasCode(err error, code ErrorCode) bool {
	return Is(err, &appError{code: code})
}

// CodeOf returns the code of the outermost coded error in err's chain, or
// the empty code when there is none.
func CodeOf(err error) ErrorCode {
	var e Error
	if As(err, &e) {
		return e.Code()
	}

	return ""
}

// IsParameterError reports whether err was raised for malformed control
// surface input.
func IsParameterError(err error) bool {
	return HasCode(err, ErrInvalidParameter)
}
