package domain

import (
	"context"
	"errors"
	"fmt"
)

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a DomainError with the same code and message,
// so errors built with NewDomainErrorWithCause still match their sentinel.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Wrap returns a copy of the sentinel carrying err as its cause.
func (e *DomainError) Wrap(err error) *DomainError {
	return NewDomainErrorWithCause(e.Code, e.Message, err)
}

// Common domain error codes
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeModelUnavailable = "MODEL_UNAVAILABLE"
	ErrCodeDeadline         = "DEADLINE_EXCEEDED"
	ErrCodePartialIngest    = "PARTIAL_INGEST"
	ErrCodeClassifier       = "CLASSIFIER_ERROR"
)

// Validation errors
var (
	ErrInvalidInput           = NewDomainError(ErrCodeValidation, "invalid input")
	ErrMissingRequiredField   = NewDomainError(ErrCodeValidation, "missing required field")
	ErrDimensionMismatch      = NewDomainError(ErrCodeValidation, "embedding dimension mismatch")
	ErrInvalidIngestStatus    = NewDomainError(ErrCodeValidation, "invalid ingest status")
	ErrInvalidIndexJobStatus  = NewDomainError(ErrCodeValidation, "invalid index job status")
	ErrInvalidStateTransition = NewDomainError(ErrCodeValidation, "invalid ingest state transition")
	ErrChunkOwnerConflict     = NewDomainError(ErrCodeValidation, "chunk belongs to another owner")
)

// Not found errors
var (
	ErrIndexJobNotFound = NewDomainError(ErrCodeNotFound, "index job not found")
)

// Embedding and retrieval errors
var (
	// ErrModelUnavailable is returned by every embedding call once model
	// initialization has failed. Retryable after backoff.
	ErrModelUnavailable = NewDomainError(ErrCodeModelUnavailable, "embedding model unavailable")
	// ErrDeadlineExceeded is returned when inference or search outlives the caller deadline.
	ErrDeadlineExceeded = NewDomainError(ErrCodeDeadline, "deadline exceeded")
	// ErrPartialIngest marks a single chunk that could not be embedded or stored.
	ErrPartialIngest = NewDomainError(ErrCodePartialIngest, "chunk skipped during ingestion")
	// ErrClassifierTimeout is recorded when the query router gives up waiting on the classifier.
	ErrClassifierTimeout = NewDomainError(ErrCodeClassifier, "classifier timed out")
	ErrStoreUnavailable  = NewDomainError(ErrCodeInternalError, "vector store operation failed")
)

// FromContextError maps a context error to ErrDeadlineExceeded when the
// deadline expired, and returns err unchanged otherwise.
func FromContextError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrDeadlineExceeded.Wrap(err)
	}
	return err
}
