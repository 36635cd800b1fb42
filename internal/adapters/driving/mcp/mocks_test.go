package mcp

import (
	"context"

	"github.com/custodia-labs/flcm/internal/core/domain"
)

// mockDocumentService is a mock implementation of driving.DocumentService.
type mockDocumentService struct {
	documents  map[string]domain.StoredDocument
	refs       []domain.Ref
	stats      *domain.StorageStats
	backlinks  []domain.IndexEntry
	validation domain.ValidationResult
	lastFilter domain.QueryFilter
	err        error
}

func (m *mockDocumentService) Get(_ context.Context, id string) (*domain.StoredDocument, error) {
	if m.err != nil {
		return nil, m.err
	}
	doc, ok := m.documents[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &doc, nil
}

func (m *mockDocumentService) Query(_ context.Context, filter domain.QueryFilter) ([]domain.StoredDocument, error) {
	m.lastFilter = filter
	if m.err != nil {
		return nil, m.err
	}
	out := make([]domain.StoredDocument, 0, len(m.documents))
	for _, d := range m.documents {
		if filter.Type == "" || d.Document.Head().Type == filter.Type {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *mockDocumentService) List(_ context.Context, _ domain.DocumentType) ([]domain.Ref, error) {
	return m.refs, m.err
}

func (m *mockDocumentService) Delete(_ context.Context, _ string) error {
	return m.err
}

func (m *mockDocumentService) Stats(_ context.Context) (*domain.StorageStats, error) {
	return m.stats, m.err
}

func (m *mockDocumentService) Backlinks(_ context.Context, _ string) ([]domain.IndexEntry, error) {
	return m.backlinks, m.err
}

func (m *mockDocumentService) Backups(_ context.Context, _ string) ([]domain.BackupInfo, error) {
	return nil, m.err
}

func (m *mockDocumentService) Restore(_ context.Context, _ string, _ int) (*domain.Ref, error) {
	return nil, m.err
}

func (m *mockDocumentService) ValidateFile(_ context.Context, _ []byte) (domain.ValidationResult, error) {
	return m.validation, m.err
}

func (m *mockDocumentService) Reindex(_ context.Context) (int, error) {
	return 0, m.err
}

func (m *mockDocumentService) ExportIndex(_ context.Context) ([]byte, error) {
	return nil, m.err
}

func (m *mockDocumentService) ImportIndex(_ context.Context, _ []byte) error {
	return m.err
}

func (m *mockDocumentService) Decode(_ []byte) (domain.Document, string, error) {
	return nil, "", m.err
}

func (m *mockDocumentService) Encode(doc domain.Document, body string) ([]byte, error) {
	if m.err != nil {
		return nil, m.err
	}
	return []byte("---\nflcm_id: " + doc.Head().ID + "\n---\n" + body), nil
}

func (m *mockDocumentService) Open(_ context.Context, _ string) error {
	return m.err
}

// mockPipelineService implements only TransformDocument meaningfully.
type mockPipelineService struct {
	mockPipelineBase
	gotTarget domain.DocumentType
	gotOpts   domain.TransformOptions
}

func (m *mockPipelineService) TransformDocument(source domain.Document, target domain.DocumentType, opts domain.TransformOptions) (domain.Document, error) {
	m.gotTarget = target
	m.gotOpts = opts
	if target != domain.TypeKnowledgeSynthesis {
		return nil, domain.ErrUnsupportedTransform
	}
	return &domain.KnowledgeSynthesis{
		Header:  domain.Header{ID: opts.ID, Type: target},
		BriefID: source.Head().ID,
	}, nil
}

// mockPipelineBase stubs the run lifecycle methods.
type mockPipelineBase struct{}

func (mockPipelineBase) StartPipeline(context.Context, *domain.ContentBrief) (string, error) {
	return "", nil
}

func (mockPipelineBase) TransitionToSynthesis(context.Context, string, *domain.KnowledgeSynthesis) error {
	return nil
}

func (mockPipelineBase) TransitionToCreation(context.Context, string, *domain.ContentDraft) error {
	return nil
}

func (mockPipelineBase) TransitionToAdaptation(context.Context, string, *domain.PlatformAdaptation) error {
	return nil
}

func (mockPipelineBase) CompletePipeline(context.Context, string) (*domain.RunResult, error) {
	return nil, nil
}

func (mockPipelineBase) CancelPipeline(context.Context, string, string) error { return nil }

func (mockPipelineBase) RetryStage(context.Context, string, int) error { return nil }

func (mockPipelineBase) Context(string) (domain.PipelineContext, error) {
	return domain.PipelineContext{}, nil
}

func (mockPipelineBase) Active() []string { return nil }

func storedBrief(id string) domain.StoredDocument {
	return domain.StoredDocument{
		Document: &domain.ContentBrief{
			Header: domain.Header{
				ID:      id,
				Type:    domain.TypeContentBrief,
				Version: 2,
				Meta:    domain.Metadata{Agent: domain.AgentCollector, Status: domain.StatusProcessed, Tags: []string{"go"}},
			},
		},
		Body: "# brief\n",
		Path: "/tree/briefs/" + id + ".md",
	}
}

func storedSynthesis(id, briefID string) domain.StoredDocument {
	return domain.StoredDocument{
		Document: &domain.KnowledgeSynthesis{
			Header:  domain.Header{ID: id, Type: domain.TypeKnowledgeSynthesis, Version: 1},
			BriefID: briefID,
		},
		Path: "/tree/synthesis/" + id + ".md",
	}
}
