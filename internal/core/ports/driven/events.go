package driven

import (
	"context"

	"github.com/custodia-labs/flcm/internal/core/domain"
)

// EventSink receives pipeline lifecycle events.
// Emit is called synchronously from the orchestrator and must not block.
type EventSink interface {
	Emit(event domain.PipelineEvent)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(event domain.PipelineEvent)

// Emit calls f(event).
func (f EventSinkFunc) Emit(event domain.PipelineEvent) {
	f(event)
}

// ReferenceResolver confirms that an upstream document exists.
type ReferenceResolver interface {
	Exists(ctx context.Context, id string) (bool, error)
}

// FileOperation is the kind of change a watcher observed.
type FileOperation int

// File operations.
const (
	FileCreated FileOperation = iota
	FileModified
	FileDeleted
)

// String returns the operation name.
func (o FileOperation) String() string {
	switch o {
	case FileCreated:
		return "created"
	case FileModified:
		return "modified"
	case FileDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// FileEvent is one observed change to a document file.
type FileEvent struct {
	Path      string
	Operation FileOperation
}

// FileWatcher reports changes made to the storage tree by other programs.
type FileWatcher interface {
	// Watch monitors root until ctx is cancelled.
	Watch(ctx context.Context, root string) (<-chan FileEvent, error)

	// Stop releases the watcher.
	Stop() error
}
