// Package driving defines the interfaces the CLI and the MCP server use to
// run pipelines and manage stored documents.
//
// Implementations live in internal/core/services.
package driving
