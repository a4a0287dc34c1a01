package harvest

import (
	"errors"
	"fmt"
)

// Application error codes.
//
// These are meant to be generic and they map well to the failure classes of the
// document store: configuration errors, integrity errors and transient errors.
const (
	ECONFLICT        = "conflict"
	EINTERNAL        = "internal"
	EINVALID         = "invalid"
	ENOTFOUND        = "not_found"
	EDIMENSION       = "dimension_mismatch"
	ECORRUPTINDEX    = "corrupt_index"
	ECORRUPTMETADATA = "corrupt_metadata"
	ESTORECORRUPT    = "store_corrupt"
	EEMBEDDING       = "embedding_failed"
)

// Error represents an application-specific error. Application errors can be
// unwrapped by the caller to extract out the code & message.
//
// Any non-application error (such as a disk error) should be reported as an
// EINTERNAL error and the human user should only see "Internal error" as the
// message. These low-level internal error details should only be logged and
// reported to the operator of the application (not the end user).
type Error struct {
	// Machine-readable error code.
	Code string

	// Human-readable error message.
	Message string

	// Underlying cause, if any.
	Err error
}

// Error implements the error interface. Not used by the application otherwise.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("harvest error: code=%s message=%s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("harvest error: code=%s message=%s", e.Code, e.Message)
}

// Unwrap returns the underlying cause so errors.Is works through application errors.
func (e *Error) Unwrap() error {
	return e.Err
}

// ErrorCode unwraps an application error and returns its code.
// Non-application errors always return EINTERNAL.
func ErrorCode(err error) string {
	var e *Error
	if err == nil {
		return ""
	} else if errors.As(err, &e) {
		return e.Code
	}
	return EINTERNAL
}

// ErrorMessage unwraps an application error and returns its message.
// Non-application errors always return "Internal error".
func ErrorMessage(err error) string {
	var e *Error
	if err == nil {
		return ""
	} else if errors.As(err, &e) {
		return e.Message
	}
	return "Internal error."
}

// Errorf is a helper function to return an Error with a given code and formatted message.
func Errorf(code string, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// WrapError returns an Error with the given code that keeps err as its cause.
// The cause's text is appended to the message.
func WrapError(code string, err error, format string, args ...any) *Error {
	msg := fmt.Sprintf(format, args...)
	if err != nil {
		msg += ": " + err.Error()
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// IsConfigError reports whether err is fatal at store creation or first insert.
func IsConfigError(err error) bool {
	switch ErrorCode(err) {
	case EDIMENSION:
		return true
	}
	return false
}

// IsIntegrityError reports whether err means the store must not serve queries.
func IsIntegrityError(err error) bool {
	switch ErrorCode(err) {
	case ECORRUPTINDEX, ECORRUPTMETADATA, ESTORECORRUPT:
		return true
	}
	return false
}

// IsTransient reports whether err may succeed when retried.
func IsTransient(err error) bool {
	return ErrorCode(err) == EEMBEDDING
}
