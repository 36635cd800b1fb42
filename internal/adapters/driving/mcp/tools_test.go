package mcp

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/flcm/internal/core/domain"
)

func newTestServer(t *testing.T, docs *mockDocumentService) *Server {
	t.Helper()
	server, err := NewServer(&Ports{Document: docs, Pipeline: &mockPipelineService{}})
	require.NoError(t, err)
	return server
}

func TestServer_handleGet(t *testing.T) {
	ctx := context.Background()

	t.Run("returns document with body", func(t *testing.T) {
		server := newTestServer(t, &mockDocumentService{
			documents: map[string]domain.StoredDocument{"s1": storedSynthesis("s1", "b1")},
		})

		_, out, err := server.handleGet(ctx, nil, GetInput{ID: "s1"})
		require.NoError(t, err)
		assert.Equal(t, "s1", out.ID)
		assert.Equal(t, "knowledge-synthesis", out.Type)
		assert.Equal(t, map[string]string{"briefId": "b1"}, out.References)
		assert.Equal(t, "/tree/synthesis/s1.md", out.Path)
	})

	t.Run("missing document", func(t *testing.T) {
		server := newTestServer(t, &mockDocumentService{})
		_, _, err := server.handleGet(ctx, nil, GetInput{ID: "nope"})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestServer_handleQuery(t *testing.T) {
	ctx := context.Background()

	t.Run("filters and defaults the limit", func(t *testing.T) {
		docs := &mockDocumentService{documents: map[string]domain.StoredDocument{
			"b1": storedBrief("b1"),
			"s1": storedSynthesis("s1", "b1"),
		}}
		server := newTestServer(t, docs)

		_, out, err := server.handleQuery(ctx, nil, QueryInput{Type: "content-brief", Tags: []string{"go"}})
		require.NoError(t, err)
		require.Equal(t, 1, out.Count)
		assert.Equal(t, "b1", out.Results[0].ID)
		assert.Empty(t, out.Results[0].Body)
		assert.Equal(t, []string{"go"}, out.Results[0].Tags)
		assert.Equal(t, defaultQueryLimit, docs.lastFilter.Limit)
		assert.Equal(t, []string{"go"}, docs.lastFilter.Tags)
	})

	t.Run("unknown type", func(t *testing.T) {
		server := newTestServer(t, &mockDocumentService{})
		_, _, err := server.handleQuery(ctx, nil, QueryInput{Type: "memo"})
		assert.ErrorIs(t, err, domain.ErrUnsupportedType)
	})

	t.Run("store failure", func(t *testing.T) {
		server := newTestServer(t, &mockDocumentService{err: errors.New("disk gone")})
		_, _, err := server.handleQuery(ctx, nil, QueryInput{})
		assert.EqualError(t, err, "disk gone")
	})
}

func TestServer_handleBacklinks(t *testing.T) {
	server := newTestServer(t, &mockDocumentService{
		backlinks: []domain.IndexEntry{{ID: "s1"}, {ID: "s2"}},
	})
	_, out, err := server.handleBacklinks(context.Background(), nil, BacklinksInput{ID: "b1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2"}, out.IDs)
}

func TestServer_handleStats(t *testing.T) {
	server := newTestServer(t, &mockDocumentService{stats: &domain.StorageStats{
		Root:           "/tree",
		TotalDocuments: 3,
		TotalBytes:     900,
		ByType: map[domain.DocumentType]domain.TypeStats{
			domain.TypeContentBrief:       {Files: 2, Backups: 4},
			domain.TypeKnowledgeSynthesis: {Files: 1, Backups: 1},
		},
		ByStatus: map[domain.Status]int{domain.StatusProcessed: 3},
	}})

	_, out, err := server.handleStats(context.Background(), nil, StatsInput{})
	require.NoError(t, err)
	assert.Equal(t, 3, out.TotalDocuments)
	assert.Equal(t, 5, out.Backups)
	assert.Equal(t, 2, out.ByType["content-brief"])
	assert.Equal(t, 3, out.ByStatus["processed"])
}

func TestServer_handleValidate(t *testing.T) {
	server := newTestServer(t, &mockDocumentService{validation: domain.ValidationResult{
		Valid: false,
		Score: 40,
		Errors: []domain.ValidationError{
			{Field: "sources", Code: "MISSING_FIELD:sources", Message: "sources is required", Severity: domain.SeverityError},
		},
		Warnings: []domain.ValidationWarning{{Field: "insights", Code: domain.CodeNoInsights}},
	}})

	_, out, err := server.handleValidate(context.Background(), nil, ValidateInput{Content: "---\n---\n"})
	require.NoError(t, err)
	assert.False(t, out.Valid)
	assert.Equal(t, 40, out.Score)
	require.Len(t, out.Errors, 1)
	assert.Equal(t, "MISSING_FIELD:sources", out.Errors[0].Code)
	require.Len(t, out.Warnings, 1)
	assert.Equal(t, domain.CodeNoInsights, out.Warnings[0].Code)
}

func TestServer_handleTransform(t *testing.T) {
	ctx := context.Background()
	pipeline := &mockPipelineService{}
	server, err := NewServer(&Ports{
		Document: &mockDocumentService{documents: map[string]domain.StoredDocument{"b1": storedBrief("b1")}},
		Pipeline: pipeline,
	})
	require.NoError(t, err)

	_, out, err := server.handleTransform(ctx, nil, TransformInput{SourceID: "b1", Target: "knowledge-synthesis", ID: "s9"})
	require.NoError(t, err)
	assert.Equal(t, "s9", out.ID)
	assert.Equal(t, "knowledge-synthesis", out.Type)
	assert.Contains(t, out.Content, "flcm_id: s9")
	assert.Equal(t, "s9", pipeline.gotOpts.ID)

	_, _, err = server.handleTransform(ctx, nil, TransformInput{SourceID: "b1", Target: "content-draft"})
	assert.ErrorIs(t, err, domain.ErrUnsupportedTransform)

	_, _, err = server.handleTransform(ctx, nil, TransformInput{SourceID: "missing", Target: "knowledge-synthesis"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
