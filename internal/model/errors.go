package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a pipeline failure for clients. The kinds double as the
// wire values in task errors and HTTP error bodies.
type ErrorKind string

const (
	ErrKindValidation  ErrorKind = "ValidationError"
	ErrKindDownload    ErrorKind = "DownloadError"
	ErrKindUpload      ErrorKind = "UploadError"
	ErrKindExtraction  ErrorKind = "ExtractionError"
	ErrKindPersistence ErrorKind = "PersistenceError"
	ErrKindNotFound    ErrorKind = "NotFound"
	ErrKindTimeout     ErrorKind = "Timeout"
)

// PipelineError pairs a taxonomy kind with a message safe to surface to
// clients. The wrapped cause stays internal and is only ever logged.
type PipelineError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// NewError builds a PipelineError with a formatted client-safe message.
func NewError(kind ErrorKind, format string, args ...any) *PipelineError {
	return &PipelineError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError attaches a kind and client-safe message to an internal cause.
func WrapError(cause error, kind ErrorKind, format string, args ...any) *PipelineError {
	return &PipelineError{Kind: kind, Message: fmt.Sprintf(format, args...), Err: cause}
}

// KindOf walks the error chain for a PipelineError and returns its kind.
// Unclassified errors report ErrKindUpload, which the HTTP layer maps to a
// plain 500.
func KindOf(err error) ErrorKind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ErrKindUpload
}

// ClientMessage returns the client-safe message for err, falling back to a
// generic line for unclassified errors so internals never leak.
func ClientMessage(err error) string {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Message
	}
	return "internal error"
}

// AsTaskError converts err into the wire failure attached to a failed task.
func AsTaskError(err error) *TaskError {
	return &TaskError{Kind: KindOf(err), Message: ClientMessage(err)}
}
