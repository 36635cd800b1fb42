package mcp

import (
	"github.com/custodia-labs/flcm/internal/core/ports/driving"
)

// Ports aggregates all driving port interfaces required by the MCP server.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Document reads, queries and validates stored documents.
	Document driving.DocumentService

	// Pipeline derives next-stage documents. Optional.
	Pipeline driving.PipelineService
}

// Validate ensures all required ports are set.
// Returns an error if any required port is nil.
func (p *Ports) Validate() error {
	if p.Document == nil {
		return ErrMissingDocumentService
	}
	return nil
}
