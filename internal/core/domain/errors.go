package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested document or index entry does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedType indicates an unknown document type.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrValidationFailed indicates a document failed schema validation.
	ErrValidationFailed = errors.New("validation failed")

	// ErrStorage indicates an I/O, serialisation or backup failure.
	ErrStorage = errors.New("storage failure")

	// ErrNotSupported indicates the configured backend lacks an optional capability.
	ErrNotSupported = errors.New("not supported by this store")

	// Pipeline Errors.

	// ErrContextNotFound indicates the pipeline run id is unknown or already discarded.
	ErrContextNotFound = errors.New("pipeline context not found")

	// ErrInvalidTransition indicates an out-of-order stage transition.
	ErrInvalidTransition = errors.New("invalid stage transition")

	// ErrRetriesExhausted indicates the retry bound was reached.
	ErrRetriesExhausted = errors.New("retries exhausted")

	// ErrPipelineCancelled is recorded on a context when it is cancelled.
	ErrPipelineCancelled = errors.New("pipeline cancelled")

	// ErrUnsupportedTransform indicates there is no transformer for a type pair.
	ErrUnsupportedTransform = errors.New("unsupported transform")
)

// ValidationFailedError carries the full validation result of a rejected document.
type ValidationFailedError struct {
	DocumentID string
	Result     ValidationResult
}

func (e *ValidationFailedError) Error() string {
	codes := make([]string, 0, len(e.Result.Errors))
	for _, ve := range e.Result.Errors {
		codes = append(codes, ve.Code)
	}
	return fmt.Sprintf("validation failed for %q: %s", e.DocumentID, strings.Join(codes, ", "))
}

// Is reports whether target is ErrValidationFailed.
func (e *ValidationFailedError) Is(target error) bool {
	return target == ErrValidationFailed
}

// StorageError describes a failed storage operation.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying cause.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrStorage.
func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

// PipelineError is returned by orchestrator calls that cannot proceed.
type PipelineError struct {
	Op        string
	ContextID string
	Kind      error
	Detail    string
}

func (e *PipelineError) Error() string {
	msg := fmt.Sprintf("pipeline %s [%s]: %v", e.Op, e.ContextID, e.Kind)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Unwrap returns the sentinel kind so errors.Is works.
func (e *PipelineError) Unwrap() error {
	return e.Kind
}
