package usecase

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ErrorInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrorGateway         ErrorCode = "GATEWAY_ERROR"
	ErrorRateLimited     ErrorCode = "RATE_LIMITED"
	ErrorDeserialization ErrorCode = "DESERIALIZATION_ERROR"
	ErrorNoContent       ErrorCode = "NO_CONTENT"
	ErrorDialogCancelled ErrorCode = "DIALOG_CANCELLED"
	ErrorFilesystem      ErrorCode = "FILESYSTEM_ERROR"
	ErrorMissingAPIKey   ErrorCode = "MISSING_API_KEY"
	ErrorInternal        ErrorCode = "INTERNAL_ERROR"
)

type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Message is the text shown to the user for this error.
func (e *Error) Message() string {
	switch e.Code {
	case ErrorGateway:
		return withCause("The completion request failed", e.Err)
	case ErrorRateLimited:
		return "The completion service is rate limiting requests. Wait a moment and try again."
	case ErrorDeserialization:
		return withCause("The file is not a valid chat history", e.Err)
	case ErrorNoContent:
		return "There is no answer to export yet."
	case ErrorDialogCancelled:
		return "Save cancelled."
	case ErrorFilesystem:
		return withCause("Could not save the file", e.Err)
	case ErrorMissingAPIKey:
		return "An OpenAI API key is required."
	case ErrorInvalidInput:
		return withCause("Invalid input", errors.New(e.Reason))
	default:
		return "Something went wrong. Please try again."
	}
}

func withCause(msg string, err error) string {
	if err == nil {
		return msg + "."
	}
	return msg + ": " + err.Error()
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}
