package errors

// ErrorCode is a stable machine readable error identifier.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Error is an error carrying a code and optional context. Two Errors
// match under Is when their codes are equal.
type Error interface {
	error
	Code() ErrorCode
	WithMessage(msg string) Error
	WithData(data any) Error
	Data() any
	Unwrap() error
}

// Factory builds coded errors.
type Factory interface {
	New(code ErrorCode) Error
	Wrap(code ErrorCode, err error) Error
	WithMessage(code ErrorCode, msg string) Error
	WithData(code ErrorCode, data any) Error
}
