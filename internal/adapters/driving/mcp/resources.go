package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/flcm/internal/core/domain"
)

const (
	// uriScheme is the custom URI scheme for flcm resources.
	uriScheme = "flcm://"
)

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	// Static resource listing every stored document.
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "documents",
		Name:        "documents",
		Description: "References to every stored document",
		MIMEType:    "application/json",
	}, s.handleDocumentsResource)

	// Template for a document file.
	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "documents/{documentId}",
		Name:        "document",
		Description: "A stored document with its header block",
		MIMEType:    "text/markdown",
	}, s.handleDocumentResource)
}

// handleDocumentsResource returns references to every stored document.
func (s *Server) handleDocumentsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	refs, err := s.ports.Document.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}

	type refInfo struct {
		ID      string `json:"id"`
		Type    string `json:"type"`
		Version int    `json:"version"`
		URI     string `json:"uri"`
	}

	infos := make([]refInfo, len(refs))
	for i, r := range refs {
		infos[i] = refInfo{
			ID:      r.ID,
			Type:    string(r.Type),
			Version: r.Version,
			URI:     uriScheme + "documents/" + r.ID,
		}
	}

	data, err := json.MarshalIndent(infos, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling documents: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// handleDocumentResource returns one document in its stored text form.
func (s *Server) handleDocumentResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	docID := extractDocumentID(req.Params.URI)
	if docID == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	stored, err := s.ports.Document.Get(ctx, docID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, mcp.ResourceNotFoundError(req.Params.URI)
		}
		return nil, fmt.Errorf("getting document: %w", err)
	}

	data, err := s.ports.Document.Encode(stored.Document, stored.Body)
	if err != nil {
		return nil, fmt.Errorf("encoding document: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "text/markdown",
			Text:     string(data),
		}},
	}, nil
}

// extractDocumentID extracts the document ID from a URI like flcm://documents/{documentId}.
func extractDocumentID(uri string) string {
	const prefix = uriScheme + "documents/"

	if !strings.HasPrefix(uri, prefix) {
		return ""
	}

	return strings.TrimPrefix(uri, prefix)
}
