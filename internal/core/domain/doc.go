// Package domain defines the core business entities for FLCM.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Document: the versioned envelope shared by every stage output
//   - ContentBrief, KnowledgeSynthesis, ContentDraft, PlatformAdaptation:
//     the four stage-specific document variants
//   - IndexEntry: the persisted summary used to find documents without
//     opening their files
//   - PipelineContext: the runtime record of one pipeline run
//   - ValidationResult: the typed outcome of schema validation
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
