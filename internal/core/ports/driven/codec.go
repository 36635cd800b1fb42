package driven

import "github.com/custodia-labs/flcm/internal/core/domain"

// Codec converts documents to and from their persisted text form:
// a structured header block followed by the body.
type Codec interface {
	// Serialize renders the header block followed by body, unmodified.
	Serialize(doc domain.Document, body string) ([]byte, error)

	// Parse splits header from body and decodes a fully-defaulted document.
	Parse(data []byte) (domain.Document, string, error)

	// ParseHeader decodes only the header block into raw fields.
	ParseHeader(data []byte) (map[string]any, error)

	// IndexEntry builds the index entry for a document stored at path.
	IndexEntry(doc domain.Document, path, body string) domain.IndexEntry
}
