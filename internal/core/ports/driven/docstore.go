package driven

import (
	"context"

	"github.com/custodia-labs/flcm/internal/core/domain"
)

// SaveResult reports the outcome of DocumentStore.Save.
type SaveResult struct {
	Success    bool
	Path       string
	Version    int
	Validation domain.ValidationResult
}

// DocumentStore persists versioned documents.
// Backed by the local file tree, one file per document.
type DocumentStore interface {
	// Save validates and writes a document with its body text. The
	// document's header is updated with the persisted version and timestamps.
	// Validation failures return a *domain.ValidationFailedError and write nothing.
	Save(ctx context.Context, doc domain.Document, body string) (*SaveResult, error)

	// Load retrieves a document by id. Returns domain.ErrNotFound if absent.
	Load(ctx context.Context, id string) (*domain.StoredDocument, error)

	// Query returns documents matching the filter. Documents that fail to
	// load are skipped.
	Query(ctx context.Context, filter domain.QueryFilter) ([]domain.StoredDocument, error)

	// Delete removes a document. Returns false if it did not exist.
	Delete(ctx context.Context, id string) (bool, error)

	// Exists reports whether a document is stored.
	Exists(ctx context.Context, id string) (bool, error)

	// List returns references to stored documents, optionally of one type.
	List(ctx context.Context, docType domain.DocumentType) ([]domain.Ref, error)

	// Stats aggregates on-disk and index counts.
	Stats(ctx context.Context) (*domain.StorageStats, error)
}

// BackupStore is implemented by stores that retain prior versions.
type BackupStore interface {
	// Backups lists the retained versions of a document, oldest first.
	Backups(ctx context.Context, id string) ([]domain.BackupInfo, error)

	// Restore saves a retained version as the newest version.
	Restore(ctx context.Context, id string, version int) (*SaveResult, error)
}

// Reindexer is implemented by stores that can rebuild their index from disk.
type Reindexer interface {
	// Reindex rebuilds the whole index from a scan and returns the entry count.
	Reindex(ctx context.Context) (int, error)

	// ReindexPath refreshes the entry for a single file.
	ReindexPath(ctx context.Context, path string) error

	// ForgetPath drops the entry for a file that no longer exists.
	ForgetPath(ctx context.Context, path string) error
}
