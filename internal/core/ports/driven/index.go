package driven

import (
	"context"

	"github.com/custodia-labs/flcm/internal/core/domain"
)

// MetadataIndex is the id-keyed summary of every stored document.
// It is the only mutable resource shared between pipeline runs, so every
// implementation must make Put, Update and Delete safe for concurrent use.
type MetadataIndex interface {
	// Put inserts or replaces an entry.
	Put(ctx context.Context, entry domain.IndexEntry) error

	// Update applies fn to the current entry (nil when absent) and stores
	// the result as one atomic read-modify-write. Returning a nil entry
	// from fn leaves the index untouched. fn must not call back into the index.
	Update(ctx context.Context, id string, fn func(current *domain.IndexEntry) (*domain.IndexEntry, error)) error

	// Get returns the entry for id or domain.ErrNotFound.
	Get(ctx context.Context, id string) (*domain.IndexEntry, error)

	// Delete removes an entry. Deleting a missing id is not an error.
	Delete(ctx context.Context, id string) error

	// Search returns entries matching every set predicate.
	Search(ctx context.Context, criteria domain.IndexCriteria) ([]domain.IndexEntry, error)

	// All returns every entry.
	All(ctx context.Context) ([]domain.IndexEntry, error)

	// Export serialises the whole index to one blob.
	Export(ctx context.Context) ([]byte, error)

	// Import replaces the index with the contents of a blob from Export.
	Import(ctx context.Context, data []byte) error

	// Close releases resources.
	Close() error
}
