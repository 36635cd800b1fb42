package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/flcm/internal/core/domain"
)

const defaultQueryLimit = 20

// GetInput is the input schema for the document_get tool.
type GetInput struct {
	ID string `json:"id" jsonschema:"the document id"`
}

// DocumentOutput is a stored document with its header summarised.
type DocumentOutput struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Version    int               `json:"version"`
	Agent      string            `json:"agent"`
	Status     string            `json:"status"`
	Created    string            `json:"created"`
	Modified   string            `json:"modified"`
	Path       string            `json:"path"`
	Tags       []string          `json:"tags,omitempty"`
	References map[string]string `json:"references,omitempty"`
	Body       string            `json:"body,omitempty"`
}

// QueryInput is the input schema for the document_query tool.
type QueryInput struct {
	Type      string   `json:"type,omitempty" jsonschema:"content-brief, knowledge-synthesis, content-draft or platform-adaptation"`
	Agent     string   `json:"agent,omitempty" jsonschema:"producing agent"`
	Status    string   `json:"status,omitempty" jsonschema:"processing status"`
	Tags      []string `json:"tags,omitempty" jsonschema:"documents must carry every tag"`
	Limit     int      `json:"limit,omitempty" jsonschema:"maximum number of results to return (default 20)"`
	Offset    int      `json:"offset,omitempty" jsonschema:"number of results to skip"`
	SortBy    string   `json:"sort_by,omitempty" jsonschema:"created, modified, id, version, status or type"`
	SortOrder string   `json:"sort_order,omitempty" jsonschema:"asc or desc"`
}

// QueryOutput is the output schema for the document_query tool.
type QueryOutput struct {
	Results []DocumentOutput `json:"results"`
	Count   int              `json:"count"`
}

// BacklinksInput is the input schema for the document_backlinks tool.
type BacklinksInput struct {
	ID string `json:"id" jsonschema:"the referenced document id"`
}

// BacklinksOutput lists the documents that reference an id.
type BacklinksOutput struct {
	IDs []string `json:"ids"`
}

// StatsInput is the empty input schema for the document_stats tool.
type StatsInput struct{}

// StatsOutput is the output schema for the document_stats tool.
type StatsOutput struct {
	Root           string         `json:"root"`
	TotalDocuments int            `json:"total_documents"`
	TotalBytes     int64          `json:"total_bytes"`
	ByType         map[string]int `json:"by_type"`
	ByStatus       map[string]int `json:"by_status"`
	Backups        int            `json:"backups"`
}

// ValidateInput is the input schema for the document_validate tool.
type ValidateInput struct {
	Content string `json:"content" jsonschema:"the full document text including its header block"`
}

// Issue is one validation error or warning.
type Issue struct {
	Field    string `json:"field"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Severity string `json:"severity,omitempty"`
}

// ValidateOutput is the output schema for the document_validate tool.
type ValidateOutput struct {
	Valid    bool    `json:"valid"`
	Score    int     `json:"score"`
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
}

// TransformInput is the input schema for the pipeline_transform tool.
type TransformInput struct {
	SourceID string `json:"source_id" jsonschema:"id of the stored document to derive from"`
	Target   string `json:"target" jsonschema:"knowledge-synthesis, content-draft or platform-adaptation"`
	Platform string `json:"platform,omitempty" jsonschema:"target platform for adaptations"`
	ID       string `json:"id,omitempty" jsonschema:"id for the new document; generated when empty"`
}

// TransformOutput carries the derived document in its stored text form.
type TransformOutput struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Content string `json:"content"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "document_get",
		Description: "Read a stored pipeline document by id",
	}, s.handleGet)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "document_query",
		Description: "Query stored documents by type, agent, status and tags",
	}, s.handleQuery)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "document_backlinks",
		Description: "List documents that reference a document",
	}, s.handleBacklinks)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "document_stats",
		Description: "Summarise the document store",
	}, s.handleStats)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "document_validate",
		Description: "Validate document text without storing it",
	}, s.handleValidate)

	if s.ports.Pipeline != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "pipeline_transform",
			Description: "Derive the next-stage document skeleton from a stored document",
		}, s.handleTransform)
	}
}

func (s *Server) handleGet(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input GetInput,
) (*mcp.CallToolResult, DocumentOutput, error) {
	stored, err := s.ports.Document.Get(ctx, input.ID)
	if err != nil {
		return nil, DocumentOutput{}, err
	}
	return nil, documentOutput(*stored, true), nil
}

func (s *Server) handleQuery(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input QueryInput,
) (*mcp.CallToolResult, QueryOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	filter := domain.QueryFilter{
		Type:      domain.DocumentType(input.Type),
		Agent:     domain.Agent(input.Agent),
		Status:    domain.Status(input.Status),
		Tags:      input.Tags,
		Limit:     limit,
		Offset:    input.Offset,
		SortBy:    input.SortBy,
		SortOrder: domain.SortOrder(input.SortOrder),
	}
	if filter.Type != "" && !filter.Type.IsValid() {
		return nil, QueryOutput{}, fmt.Errorf("%w: %q", domain.ErrUnsupportedType, input.Type)
	}

	docs, err := s.ports.Document.Query(ctx, filter)
	if err != nil {
		return nil, QueryOutput{}, err
	}
	out := QueryOutput{Results: make([]DocumentOutput, len(docs)), Count: len(docs)}
	for i := range docs {
		out.Results[i] = documentOutput(docs[i], false)
	}
	return nil, out, nil
}

func (s *Server) handleBacklinks(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input BacklinksInput,
) (*mcp.CallToolResult, BacklinksOutput, error) {
	entries, err := s.ports.Document.Backlinks(ctx, input.ID)
	if err != nil {
		return nil, BacklinksOutput{}, err
	}
	out := BacklinksOutput{IDs: make([]string, len(entries))}
	for i, e := range entries {
		out.IDs[i] = e.ID
	}
	return nil, out, nil
}

func (s *Server) handleStats(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ StatsInput,
) (*mcp.CallToolResult, StatsOutput, error) {
	stats, err := s.ports.Document.Stats(ctx)
	if err != nil {
		return nil, StatsOutput{}, err
	}
	out := StatsOutput{
		Root:           stats.Root,
		TotalDocuments: stats.TotalDocuments,
		TotalBytes:     stats.TotalBytes,
		ByType:         make(map[string]int, len(stats.ByType)),
		ByStatus:       make(map[string]int, len(stats.ByStatus)),
	}
	for t, ts := range stats.ByType {
		out.ByType[string(t)] = ts.Files
		out.Backups += ts.Backups
	}
	for st, n := range stats.ByStatus {
		out.ByStatus[string(st)] = n
	}
	return nil, out, nil
}

func (s *Server) handleValidate(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ValidateInput,
) (*mcp.CallToolResult, ValidateOutput, error) {
	res, err := s.ports.Document.ValidateFile(ctx, []byte(input.Content))
	if err != nil {
		return nil, ValidateOutput{}, err
	}
	out := ValidateOutput{
		Valid:    res.Valid,
		Score:    res.Score,
		Errors:   make([]Issue, 0, len(res.Errors)),
		Warnings: make([]Issue, 0, len(res.Warnings)),
	}
	for _, e := range res.Errors {
		out.Errors = append(out.Errors, Issue{Field: e.Field, Code: e.Code, Message: e.Message, Severity: string(e.Severity)})
	}
	for _, w := range res.Warnings {
		out.Warnings = append(out.Warnings, Issue{Field: w.Field, Code: w.Code, Message: w.Message})
	}
	return nil, out, nil
}

func (s *Server) handleTransform(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input TransformInput,
) (*mcp.CallToolResult, TransformOutput, error) {
	if s.ports.Pipeline == nil {
		return nil, TransformOutput{}, errors.New("pipeline service not configured")
	}
	source, err := s.ports.Document.Get(ctx, input.SourceID)
	if err != nil {
		return nil, TransformOutput{}, err
	}
	doc, err := s.ports.Pipeline.TransformDocument(source.Document, domain.DocumentType(input.Target), domain.TransformOptions{
		ID:       input.ID,
		Platform: domain.Platform(input.Platform),
	})
	if err != nil {
		return nil, TransformOutput{}, err
	}
	data, err := s.ports.Document.Encode(doc, "")
	if err != nil {
		return nil, TransformOutput{}, err
	}
	h := doc.Head()
	return nil, TransformOutput{ID: h.ID, Type: string(h.Type), Content: string(data)}, nil
}

func documentOutput(stored domain.StoredDocument, withBody bool) DocumentOutput {
	h := stored.Document.Head()
	out := DocumentOutput{
		ID:         h.ID,
		Type:       string(h.Type),
		Version:    h.Version,
		Agent:      string(h.Meta.Agent),
		Status:     string(h.Meta.Status),
		Created:    h.Created.Format(time.RFC3339),
		Modified:   h.Modified.Format(time.RFC3339),
		Path:       stored.Path,
		Tags:       h.Meta.Tags,
		References: stored.Document.References(),
	}
	if withBody {
		out.Body = stored.Body
	}
	return out
}
