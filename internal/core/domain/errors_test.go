package domain

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrors_Uniqueness(t *testing.T) {
	errs := []error{
		ErrNotFound, ErrInvalidInput, ErrUnsupportedType, ErrValidationFailed,
		ErrStorage, ErrNotSupported, ErrContextNotFound, ErrInvalidTransition,
		ErrRetriesExhausted, ErrPipelineCancelled, ErrUnsupportedTransform,
	}

	for i, a := range errs {
		assert.NotEmpty(t, a.Error())
		for j, b := range errs {
			if i != j {
				assert.False(t, errors.Is(a, b), "%v should not match %v", a, b)
			}
		}
	}
}

func TestValidationFailedError(t *testing.T) {
	err := &ValidationFailedError{
		DocumentID: "s1",
		Result: ValidationResult{Errors: []ValidationError{
			{Field: "layers", Code: "LAYER_GAP"},
			{Field: "briefId", Code: "MISSING_REFERENCE:briefId"},
		}},
	}

	assert.Equal(t, `validation failed for "s1": LAYER_GAP, MISSING_REFERENCE:briefId`, err.Error())
	assert.ErrorIs(t, err, ErrValidationFailed)
	assert.ErrorIs(t, fmt.Errorf("save: %w", err), ErrValidationFailed)
	assert.NotErrorIs(t, err, ErrStorage)

	var vf *ValidationFailedError
	assert.ErrorAs(t, fmt.Errorf("wrapped: %w", err), &vf)
	assert.Equal(t, "s1", vf.DocumentID)
}

func TestStorageError(t *testing.T) {
	err := &StorageError{Op: "write", Path: "/tmp/x.md", Err: fs.ErrPermission}
	assert.Equal(t, "storage write /tmp/x.md: permission denied", err.Error())
	assert.ErrorIs(t, err, ErrStorage)
	assert.ErrorIs(t, err, fs.ErrPermission)

	noPath := &StorageError{Op: "index", Err: errors.New("boom")}
	assert.Equal(t, "storage index: boom", noPath.Error())
}

func TestPipelineError(t *testing.T) {
	err := &PipelineError{Op: "transition", ContextID: "run-1", Kind: ErrInvalidTransition, Detail: "collection to creation"}
	assert.Equal(t, "pipeline transition [run-1]: invalid stage transition: collection to creation", err.Error())
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.NotErrorIs(t, err, ErrContextNotFound)

	bare := &PipelineError{Op: "cancel", ContextID: "run-2", Kind: ErrContextNotFound}
	assert.Equal(t, "pipeline cancel [run-2]: pipeline context not found", bare.Error())
}
