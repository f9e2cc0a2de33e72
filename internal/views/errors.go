package views

import (
	"errors"
	"fmt"

	"github.com/dgnsrekt/eglc_companion/internal/cleanapi"
)

const (
	CodeValidation   = "VALIDATION"
	CodeNotReady     = "NOT_READY"
	CodePending      = "PENDING"
	CodeNotFound     = "NOT_FOUND"
	CodeUpstream     = "UPSTREAM"
	CodeUnauthorized = "UNAUTHORIZED"
)

// CodedError is a typed error used for stable API mapping.
type CodedError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CodedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *CodedError) Unwrap() error { return e.Cause }

func newError(code, msg string, cause error) error {
	return &CodedError{Code: code, Message: msg, Cause: cause}
}

// ErrDownloadPending is returned when a download is already running for the
// view.
var ErrDownloadPending = &CodedError{Code: CodePending, Message: "a download is already in progress"}

// Upstream classifies an error from the cleaning service. Errors that are
// already coded pass through.
func Upstream(err error) error {
	if err == nil {
		return nil
	}
	var coded *CodedError
	if errors.As(err, &coded) {
		return err
	}
	if cleanapi.IsUnauthorized(err) {
		return newError(CodeUnauthorized, cleanapi.Message(err), err)
	}
	return newError(CodeUpstream, cleanapi.Message(err), err)
}

// userMessage is the text shown next to the action that failed.
func userMessage(err error) string {
	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Message
	}
	return cleanapi.Message(err)
}
