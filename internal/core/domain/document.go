package domain

import (
	"fmt"
	"time"
)

// DocumentType identifies one of the four document variants.
type DocumentType string

// Document variants, one per pipeline stage.
const (
	TypeContentBrief       DocumentType = "content-brief"
	TypeKnowledgeSynthesis DocumentType = "knowledge-synthesis"
	TypeContentDraft       DocumentType = "content-draft"
	TypePlatformAdaptation DocumentType = "platform-adaptation"
)

// AllDocumentTypes returns the variants in pipeline order.
func AllDocumentTypes() []DocumentType {
	return []DocumentType{
		TypeContentBrief,
		TypeKnowledgeSynthesis,
		TypeContentDraft,
		TypePlatformAdaptation,
	}
}

// IsValid returns true if the document type is recognised.
func (t DocumentType) IsValid() bool {
	switch t {
	case TypeContentBrief, TypeKnowledgeSynthesis, TypeContentDraft, TypePlatformAdaptation:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (t DocumentType) String() string {
	return string(t)
}

// Dir returns the storage subdirectory holding documents of this type.
func (t DocumentType) Dir() string {
	switch t {
	case TypeContentBrief:
		return "briefs"
	case TypeKnowledgeSynthesis:
		return "syntheses"
	case TypeContentDraft:
		return "drafts"
	case TypePlatformAdaptation:
		return "adaptations"
	default:
		return ""
	}
}

// FilePrefix returns the filename prefix used for documents of this type.
func (t DocumentType) FilePrefix() string {
	switch t {
	case TypeContentBrief:
		return "brief"
	case TypeKnowledgeSynthesis:
		return "synthesis"
	case TypeContentDraft:
		return "draft"
	case TypePlatformAdaptation:
		return "adaptation"
	default:
		return "document"
	}
}

// Agent returns the stage agent that owns documents of this type.
func (t DocumentType) Agent() Agent {
	switch t {
	case TypeContentBrief:
		return AgentCollector
	case TypeKnowledgeSynthesis:
		return AgentScholar
	case TypeContentDraft:
		return AgentCreator
	case TypePlatformAdaptation:
		return AgentAdapter
	default:
		return ""
	}
}

// ParseDocumentType accepts the canonical name or the short file prefix.
func ParseDocumentType(s string) (DocumentType, error) {
	for _, t := range AllDocumentTypes() {
		if s == string(t) || s == t.FilePrefix() {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: unknown document type %q", ErrInvalidInput, s)
}

// Agent names the stage worker that owns a document.
type Agent string

// Stage agents.
const (
	AgentCollector Agent = "collector"
	AgentScholar   Agent = "scholar"
	AgentCreator   Agent = "creator"
	AgentAdapter   Agent = "adapter"
)

// IsValid returns true if the agent is recognised.
func (a Agent) IsValid() bool {
	switch a {
	case AgentCollector, AgentScholar, AgentCreator, AgentAdapter:
		return true
	default:
		return false
	}
}

// Status is the lifecycle status of a document.
type Status string

// Lifecycle statuses.
const (
	StatusDraft      Status = "draft"
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusProcessed  Status = "processed"
	StatusPublished  Status = "published"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// IsValid returns true if the status is recognised.
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusPending, StatusProcessing, StatusProcessed,
		StatusPublished, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Metadata is the lifecycle metadata carried by every document.
type Metadata struct {
	// Agent is the stage that owns the document.
	Agent Agent

	// Status is the lifecycle status.
	Status Status

	// Methodologies lists the methodology tags applied while producing it.
	Methodologies []string

	// ProcessingTime is how long the owning stage spent, when known.
	ProcessingTime time.Duration

	// WordCount is the number of words in the primary text.
	WordCount int

	// Confidence is an overall confidence in [0,1].
	Confidence float64

	// Tags are free-form labels.
	Tags []string
}

// Header is the system envelope shared by all document variants.
type Header struct {
	// ID is unique within the document's type.
	ID string

	// Type identifies the variant.
	Type DocumentType

	// Created is when the first version was saved.
	Created time.Time

	// Modified is when the latest version was saved.
	Modified time.Time

	// Version starts at 1 and increases by one on every successful save.
	Version int

	// Meta holds lifecycle metadata.
	Meta Metadata
}

// Head returns the envelope. Variants embed Header and inherit it.
func (h *Header) Head() *Header {
	return h
}

// Document is implemented by pointers to every document variant.
type Document interface {
	// Head returns the mutable system envelope.
	Head() *Header

	// References returns upstream ids keyed by field name.
	References() map[string]string
}

// Ref is a lightweight handle to a stored document.
type Ref struct {
	ID      string
	Type    DocumentType
	Path    string
	Version int
}

// StoredDocument pairs a reconstructed document with its body text.
type StoredDocument struct {
	Document Document
	Body     string
	Path     string
}
