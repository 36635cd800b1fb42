package domain

import (
	"time"
)

// Stage is a pipeline state. Runs move strictly forward through the stages.
type Stage string

// Pipeline stages in order.
const (
	StageCollection Stage = "collection"
	StageSynthesis  Stage = "synthesis"
	StageCreation   Stage = "creation"
	StageAdaptation Stage = "adaptation"
	StageComplete   Stage = "complete"
)

// Next returns the only legal successor of s, or "" for complete.
func (s Stage) Next() Stage {
	switch s {
	case StageCollection:
		return StageSynthesis
	case StageSynthesis:
		return StageCreation
	case StageCreation:
		return StageAdaptation
	case StageAdaptation:
		return StageComplete
	default:
		return ""
	}
}

// Agent returns the agent working in this stage.
func (s Stage) Agent() Agent {
	switch s {
	case StageCollection:
		return AgentCollector
	case StageSynthesis:
		return AgentScholar
	case StageCreation:
		return AgentCreator
	case StageAdaptation:
		return AgentAdapter
	default:
		return ""
	}
}

// DocumentType returns the type of document a run holds after entering s.
func (s Stage) DocumentType() DocumentType {
	switch s {
	case StageCollection:
		return TypeContentBrief
	case StageSynthesis:
		return TypeKnowledgeSynthesis
	case StageCreation:
		return TypeContentDraft
	case StageAdaptation:
		return TypePlatformAdaptation
	default:
		return ""
	}
}

// Keys used for documents held on a pipeline context.
const (
	KeyBrief     = "brief"
	KeySynthesis = "synthesis"
	KeyDraft     = "draft"
)

// AdaptationKey returns the context key for a platform adaptation.
func AdaptationKey(p Platform) string {
	return "adaptation:" + string(p)
}

// PipelineContext is the runtime record of one run. Only the orchestrator
// mutates it.
type PipelineContext struct {
	ID           string
	StartTime    time.Time
	CurrentStage Stage
	Documents    map[string]Document
	Errors       []error
	Warnings     []string
	Metadata     map[string]string

	// Persisted lists ids written to storage during the run, in order.
	Persisted []string

	// Latest is the key of the most recently accepted document.
	Latest string
}

// Snapshot returns a copy safe to hand to callers. Documents are shared.
func (c *PipelineContext) Snapshot() PipelineContext {
	out := *c
	out.Documents = make(map[string]Document, len(c.Documents))
	for k, v := range c.Documents {
		out.Documents[k] = v
	}
	out.Errors = append([]error(nil), c.Errors...)
	out.Warnings = append([]string(nil), c.Warnings...)
	out.Persisted = append([]string(nil), c.Persisted...)
	out.Metadata = make(map[string]string, len(c.Metadata))
	for k, v := range c.Metadata {
		out.Metadata[k] = v
	}
	return out
}

// RunResult is the completion report of a pipeline run.
type RunResult struct {
	Success       bool
	Context       PipelineContext
	FinalDocument Document
	Errors        []error
	Duration      time.Duration
}

// EventType names a pipeline lifecycle event.
type EventType string

// Lifecycle events.
const (
	EventPipelineStarted     EventType = "pipeline_started"
	EventStageTransition     EventType = "stage_transition"
	EventStageError          EventType = "stage_error"
	EventPersistenceDegraded EventType = "persistence_degraded"
	EventRetryScheduled      EventType = "retry_scheduled"
	EventRetryExhausted      EventType = "retry_exhausted"
	EventPipelineCompleted   EventType = "pipeline_completed"
	EventPipelineCancelled   EventType = "pipeline_cancelled"
)

// PipelineEvent is emitted by the orchestrator.
type PipelineEvent struct {
	Type       EventType
	ContextID  string
	From       Stage
	To         Stage
	DocumentID string
	Attempt    int
	Err        error
	At         time.Time
}

// TransformOptions tune how a downstream document is derived from its source.
type TransformOptions struct {
	// ID is the new document's id. Empty means generate one.
	ID string

	// Platform is required when deriving an adaptation.
	Platform Platform

	// DepthLevel seeds a synthesis; zero means the default of 3.
	DepthLevel int

	// Methodologies and Tags are merged with those carried forward.
	Methodologies []string
	Tags          []string
}
