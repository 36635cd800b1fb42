package services

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/custodia-labs/flcm/internal/core/domain"
	"github.com/custodia-labs/flcm/internal/core/ports/driven"
	"github.com/custodia-labs/flcm/internal/core/ports/driving"
)

// Ensure DocumentService implements the interface.
var _ driving.DocumentService = (*DocumentService)(nil)

// DocumentService manages stored documents outside of pipeline runs.
// Backups, restore and reindexing need a store that implements the
// optional driven.BackupStore and driven.Reindexer ports.
type DocumentService struct {
	store     driven.DocumentStore
	index     driven.MetadataIndex
	codec     driven.Codec
	validator *Validator

	open func(path string) error
}

// NewDocumentService creates a new document service.
func NewDocumentService(
	store driven.DocumentStore,
	index driven.MetadataIndex,
	codec driven.Codec,
	validator *Validator,
) *DocumentService {
	if validator == nil {
		validator = NewValidator(nil)
	}
	return &DocumentService{
		store:     store,
		index:     index,
		codec:     codec,
		validator: validator,
		open:      openPath,
	}
}

// Get retrieves a document by ID.
func (s *DocumentService) Get(ctx context.Context, id string) (*domain.StoredDocument, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: empty id", domain.ErrInvalidInput)
	}
	return s.store.Load(ctx, id)
}

// Query returns documents matching the filter.
func (s *DocumentService) Query(ctx context.Context, filter domain.QueryFilter) ([]domain.StoredDocument, error) {
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, fmt.Errorf("%w: negative limit or offset", domain.ErrInvalidInput)
	}
	return s.store.Query(ctx, filter)
}

// List returns references to stored documents, optionally of one type.
func (s *DocumentService) List(ctx context.Context, docType domain.DocumentType) ([]domain.Ref, error) {
	return s.store.List(ctx, docType)
}

// Delete removes a document and its backups.
func (s *DocumentService) Delete(ctx context.Context, id string) error {
	ok, err := s.store.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("document %q: %w", id, domain.ErrNotFound)
	}
	return nil
}

// Stats aggregates on-disk and index counts.
func (s *DocumentService) Stats(ctx context.Context) (*domain.StorageStats, error) {
	return s.store.Stats(ctx)
}

// Backlinks returns index entries of documents that reference id, oldest first.
func (s *DocumentService) Backlinks(ctx context.Context, id string) ([]domain.IndexEntry, error) {
	if s.index == nil {
		return nil, domain.ErrNotSupported
	}
	entries, err := s.index.Search(ctx, domain.IndexCriteria{ReferenceTo: id})
	if err != nil {
		return nil, err
	}
	domain.SortIndexEntries(entries, domain.SortByCreated, domain.SortAsc)
	return entries, nil
}

// Backups lists the retained prior versions of a document.
func (s *DocumentService) Backups(ctx context.Context, id string) ([]domain.BackupInfo, error) {
	bs, ok := s.store.(driven.BackupStore)
	if !ok {
		return nil, fmt.Errorf("backups: %w", domain.ErrNotSupported)
	}
	return bs.Backups(ctx, id)
}

// Restore saves a retained version as the newest version.
func (s *DocumentService) Restore(ctx context.Context, id string, version int) (*domain.Ref, error) {
	bs, ok := s.store.(driven.BackupStore)
	if !ok {
		return nil, fmt.Errorf("restore: %w", domain.ErrNotSupported)
	}
	if version < 1 {
		return nil, fmt.Errorf("%w: version must be at least 1", domain.ErrInvalidInput)
	}
	res, err := bs.Restore(ctx, id, version)
	if err != nil {
		return nil, err
	}
	ref := &domain.Ref{ID: id, Path: res.Path, Version: res.Version}
	if stored, err := s.store.Load(ctx, id); err == nil {
		ref.Type = stored.Document.Head().Type
	}
	return ref, nil
}

// ValidateFile checks raw document bytes without storing them. The header
// block is checked first, including the shape of every known field; the
// typed document is only built and validated when the header has no
// critical problems. Unreadable headers are reported as MALFORMED_HEADER.
func (s *DocumentService) ValidateFile(ctx context.Context, data []byte) (domain.ValidationResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.ValidationResult{}, err
	}
	fields, err := s.codec.ParseHeader(data)
	if err != nil {
		return malformed(err), nil
	}
	res := s.validator.ValidateFrontmatter(fields)
	if res.Critical() {
		return res, nil
	}

	doc, _, err := s.codec.Parse(data)
	if err != nil {
		if !res.Valid {
			return res, nil
		}
		return malformed(err), nil
	}
	full := s.validator.Validate(ctx, doc)
	full.Warnings = append(res.Warnings, full.Warnings...)
	if !res.Valid {
		full.Errors = append(res.Errors, full.Errors...)
		full.Valid = false
	}
	return full, nil
}

func malformed(err error) domain.ValidationResult {
	return domain.ValidationResult{
		Errors: []domain.ValidationError{{
			Field:    "frontmatter",
			Code:     domain.CodeMalformedHeader,
			Message:  err.Error(),
			Severity: domain.SeverityCritical,
		}},
	}
}

// Reindex rebuilds the metadata index from the document tree.
func (s *DocumentService) Reindex(ctx context.Context) (int, error) {
	ri, ok := s.store.(driven.Reindexer)
	if !ok {
		return 0, fmt.Errorf("reindex: %w", domain.ErrNotSupported)
	}
	return ri.Reindex(ctx)
}

// ExportIndex serialises the metadata index.
func (s *DocumentService) ExportIndex(ctx context.Context) ([]byte, error) {
	if s.index == nil {
		return nil, domain.ErrNotSupported
	}
	return s.index.Export(ctx)
}

// ImportIndex replaces the metadata index with an exported blob.
func (s *DocumentService) ImportIndex(ctx context.Context, data []byte) error {
	if s.index == nil {
		return domain.ErrNotSupported
	}
	if len(data) == 0 {
		return fmt.Errorf("%w: empty index data", domain.ErrInvalidInput)
	}
	return s.index.Import(ctx, data)
}

// Decode parses raw document bytes into a typed document and its body.
func (s *DocumentService) Decode(data []byte) (domain.Document, string, error) {
	doc, body, err := s.codec.Parse(data)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return doc, body, nil
}

// Encode renders a document and body in the stored text form. An empty
// body is replaced by the generated Markdown rendering of the document.
func (s *DocumentService) Encode(doc domain.Document, body string) ([]byte, error) {
	if body == "" {
		body = RenderBody(doc)
	}
	return s.codec.Serialize(doc, body)
}

// Open opens the document file in the default application.
func (s *DocumentService) Open(ctx context.Context, id string) error {
	stored, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if strings.Contains(stored.Path, "://") {
		return fmt.Errorf("document %q has no local file: %w", id, domain.ErrNotSupported)
	}
	return s.open(stored.Path)
}

// openPath opens a path using the system default handler.
func openPath(path string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "linux":
		cmd = exec.Command("xdg-open", path)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", path)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	return cmd.Start()
}
