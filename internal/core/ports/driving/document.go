package driving

import (
	"context"

	"github.com/custodia-labs/flcm/internal/core/domain"
)

// DocumentService manages stored documents outside of pipeline runs.
type DocumentService interface {
	// Get retrieves a document by ID.
	Get(ctx context.Context, id string) (*domain.StoredDocument, error)

	// Query returns documents matching the filter.
	Query(ctx context.Context, filter domain.QueryFilter) ([]domain.StoredDocument, error)

	// List returns references to stored documents, optionally of one type.
	List(ctx context.Context, docType domain.DocumentType) ([]domain.Ref, error)

	// Delete removes a document and its backups.
	// Returns domain.ErrNotFound if it did not exist.
	Delete(ctx context.Context, id string) error

	// Stats aggregates on-disk and index counts.
	Stats(ctx context.Context) (*domain.StorageStats, error)

	// Backlinks returns index entries of documents that reference id.
	Backlinks(ctx context.Context, id string) ([]domain.IndexEntry, error)

	// Backups lists the retained prior versions of a document.
	Backups(ctx context.Context, id string) ([]domain.BackupInfo, error)

	// Restore saves a retained version as the newest version.
	Restore(ctx context.Context, id string, version int) (*domain.Ref, error)

	// ValidateFile checks raw document bytes without storing them.
	ValidateFile(ctx context.Context, data []byte) (domain.ValidationResult, error)

	// Reindex rebuilds the metadata index from the document tree.
	Reindex(ctx context.Context) (int, error)

	// ExportIndex serialises the metadata index.
	ExportIndex(ctx context.Context) ([]byte, error)

	// ImportIndex replaces the metadata index with an exported blob.
	ImportIndex(ctx context.Context, data []byte) error

	// Decode parses raw document bytes into a typed document and its body.
	Decode(data []byte) (domain.Document, string, error)

	// Encode renders a document and body in the stored text form.
	Encode(doc domain.Document, body string) ([]byte, error)

	// Open opens the document file in the default application.
	Open(ctx context.Context, id string) error
}
