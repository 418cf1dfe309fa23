package errors

import "fmt"

// ErrorCode represents a unique identifier for specific error conditions in stackd.
type ErrorCode int

const (
	ErrCodeUnknown       ErrorCode = 1000
	ErrCodeConfigInvalid ErrorCode = 1001

	// Phase 1: Host detection
	ErrCodeProfileDetectFail ErrorCode = 2001

	// Phase 2: Dependency install
	ErrCodeInstallFailed ErrorCode = 3001

	// Phase 3: Child launch & steady state
	ErrCodeLaunchFailed ErrorCode = 4001
	ErrCodeChildCrashed ErrorCode = 4002
)

// StackdError is a custom error type that provides structured error information,
// including an error code, the operation being performed, and the underlying cause.
type StackdError struct {
	// Code is the specific error code.
	Code ErrorCode
	// Msg is a human-readable description of the error.
	Msg string
	// Operation describes the action being performed when the error occurred.
	Operation string
	// Err is the underlying error that caused this error, if any.
	Err error
}

// Error returns a formatted string representation of the error.
func (e *StackdError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %s (cause: %v)", e.Code, e.Operation, e.Msg, e.Err)
	}
	return fmt.Sprintf("[%d] %s: %s", e.Code, e.Operation, e.Msg)
}

// Unwrap returns the underlying error.
func (e *StackdError) Unwrap() error {
	return e.Err
}

// New creates a new StackdError with the specified code, operation, message, and underlying error.
func New(code ErrorCode, op, msg string, err error) error {
	return &StackdError{
		Code:      code,
		Msg:       msg,
		Operation: op,
		Err:       err,
	}
}

// CodeOf extracts the ErrorCode from err if it is a StackdError, walking the
// cause chain. Returns ErrCodeUnknown for foreign errors.
func CodeOf(err error) ErrorCode {
	for err != nil {
		if se, ok := err.(*StackdError); ok {
			return se.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return ErrCodeUnknown
}

// Personal.AI order the ending
