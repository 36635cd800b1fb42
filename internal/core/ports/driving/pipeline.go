package driving

import (
	"context"

	"github.com/custodia-labs/flcm/internal/core/domain"
)

// PipelineService drives documents through the four stages.
// Each run is addressed by the context id returned from StartPipeline.
type PipelineService interface {
	// StartPipeline opens a run for a brief and returns its context id.
	// Validation or storage failures of the brief are fatal: no run is created.
	StartPipeline(ctx context.Context, brief *domain.ContentBrief) (string, error)

	// TransitionToSynthesis moves a run from collection to synthesis.
	TransitionToSynthesis(ctx context.Context, id string, doc *domain.KnowledgeSynthesis) error

	// TransitionToCreation moves a run from synthesis to creation.
	TransitionToCreation(ctx context.Context, id string, doc *domain.ContentDraft) error

	// TransitionToAdaptation moves a run from creation to adaptation. It may
	// be called again while in adaptation, once per platform.
	TransitionToAdaptation(ctx context.Context, id string, doc *domain.PlatformAdaptation) error

	// CompletePipeline finishes a run in adaptation and discards its context.
	CompletePipeline(ctx context.Context, id string) (*domain.RunResult, error)

	// CancelPipeline discards a run and applies the cancellation policy to
	// the documents it persisted.
	CancelPipeline(ctx context.Context, id, reason string) error

	// RetryStage waits out the backoff for attempt retryCount+1, or fails
	// once the retry bound is reached.
	RetryStage(ctx context.Context, id string, retryCount int) error

	// TransformDocument derives the next-stage document from source.
	TransformDocument(source domain.Document, target domain.DocumentType, opts domain.TransformOptions) (domain.Document, error)

	// Context returns a snapshot of a live run.
	Context(id string) (domain.PipelineContext, error)

	// Active returns the ids of live runs.
	Active() []string
}
