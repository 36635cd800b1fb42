// Package mcp provides an MCP (Model Context Protocol) server adapter for flcm.
// It lets AI assistants read, query and validate pipeline documents.
package mcp

import "errors"

// ErrMissingDocumentService is returned when the document service is not provided.
var ErrMissingDocumentService = errors.New("mcp: document service is required")
