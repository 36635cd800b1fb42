package driven

import (
	"context"

	"github.com/custodia-labs/flcm/internal/core/domain"
)

// DocumentValidator checks a document before it is persisted.
// Stores call it after assigning version and timestamps.
type DocumentValidator interface {
	Validate(ctx context.Context, doc domain.Document) domain.ValidationResult
}
