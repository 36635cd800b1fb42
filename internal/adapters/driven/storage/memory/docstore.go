package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-labs/flcm/internal/core/domain"
	"github.com/custodia-labs/flcm/internal/core/ports/driven"
)

// Ensure DocumentStore implements the interface.
var _ driven.DocumentStore = (*DocumentStore)(nil)

// DocumentStore is an in-memory implementation of driven.DocumentStore.
// Documents are kept in serialised form so callers never share state with
// the store. Used for dry runs and service tests.
type DocumentStore struct {
	mu        sync.RWMutex
	codec     driven.Codec
	validator driven.DocumentValidator
	documents map[string][]byte
	entries   map[string]domain.IndexEntry
	now       func() time.Time

	// FailSaves makes every Save return a storage error. For tests.
	FailSaves bool
}

// NewDocumentStore creates a new in-memory document store.
// validator may be nil, in which case documents are stored unchecked.
func NewDocumentStore(codec driven.Codec, validator driven.DocumentValidator) *DocumentStore {
	return &DocumentStore{
		codec:     codec,
		validator: validator,
		documents: make(map[string][]byte),
		entries:   make(map[string]domain.IndexEntry),
		now:       time.Now,
	}
}

// Save validates and stores a document, assigning version and timestamps.
func (s *DocumentStore) Save(ctx context.Context, doc domain.Document, body string) (*driven.SaveResult, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: nil document", domain.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailSaves {
		return nil, &domain.StorageError{Op: "save", Err: fmt.Errorf("store unavailable")}
	}

	h := doc.Head()
	orig := *h
	prior, had := s.entries[h.ID]
	if had && prior.Type != h.Type {
		return nil, fmt.Errorf("%w: id %q already used by %s", domain.ErrInvalidInput, h.ID, prior.Type)
	}

	now := s.now().UTC()
	h.Modified = now
	h.Version = 1
	if had {
		h.Created = prior.Created
		h.Version = prior.Version + 1
	} else if h.Created.IsZero() {
		h.Created = now
	}
	if h.Meta.Agent == "" {
		h.Meta.Agent = h.Type.Agent()
	}
	if h.Meta.Status == "" {
		h.Meta.Status = domain.StatusPending
	}
	if d, ok := doc.(*domain.ContentDraft); ok {
		d.FillWordCount()
	}

	result := domain.ValidationResult{Valid: true}
	if s.validator != nil {
		result = s.validator.Validate(ctx, doc)
		if !result.Valid {
			*h = orig
			return &driven.SaveResult{Validation: result}, &domain.ValidationFailedError{DocumentID: h.ID, Result: result}
		}
	}

	data, err := s.codec.Serialize(doc, body)
	if err != nil {
		*h = orig
		return nil, &domain.StorageError{Op: "save", Err: err}
	}
	path := "memory://" + h.Type.Dir() + "/" + h.ID
	s.documents[h.ID] = data
	s.entries[h.ID] = s.codec.IndexEntry(doc, path, body)

	return &driven.SaveResult{Success: true, Path: path, Version: h.Version, Validation: result}, nil
}

// Load retrieves a document by id.
func (s *DocumentStore) Load(_ context.Context, id string) (*domain.StoredDocument, error) {
	s.mu.RLock()
	data, ok := s.documents[id]
	entry := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	doc, body, err := s.codec.Parse(data)
	if err != nil {
		return nil, &domain.StorageError{Op: "load", Path: entry.Path, Err: err}
	}
	return &domain.StoredDocument{Document: doc, Body: body, Path: entry.Path}, nil
}

// Query returns documents matching the filter.
func (s *DocumentStore) Query(ctx context.Context, filter domain.QueryFilter) ([]domain.StoredDocument, error) {
	criteria := filter.Criteria()
	s.mu.RLock()
	entries := make([]domain.IndexEntry, 0, len(s.entries))
	for _, e := range s.entries {
		if criteria.Matches(e) {
			entries = append(entries, e.Clone())
		}
	}
	s.mu.RUnlock()

	domain.SortIndexEntries(entries, filter.SortBy, filter.SortOrder)
	docs := make([]domain.StoredDocument, 0, len(entries))
	for _, e := range entries {
		stored, err := s.Load(ctx, e.ID)
		if err != nil {
			continue
		}
		docs = append(docs, *stored)
	}
	return domain.Paginate(docs, filter.Offset, filter.Limit), nil
}

// Delete removes a document.
func (s *DocumentStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[id]; !ok {
		return false, nil
	}
	delete(s.documents, id)
	delete(s.entries, id)
	return true, nil
}

// Exists reports whether a document is stored.
func (s *DocumentStore) Exists(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.documents[id]
	return ok, nil
}

// List returns references to stored documents.
func (s *DocumentStore) List(_ context.Context, docType domain.DocumentType) ([]domain.Ref, error) {
	s.mu.RLock()
	entries := make([]domain.IndexEntry, 0, len(s.entries))
	for _, e := range s.entries {
		if docType == "" || e.Type == docType {
			entries = append(entries, e)
		}
	}
	s.mu.RUnlock()

	sortByID(entries)
	refs := make([]domain.Ref, 0, len(entries))
	for _, e := range entries {
		refs = append(refs, domain.Ref{ID: e.ID, Type: e.Type, Path: e.Path, Version: e.Version})
	}
	return refs, nil
}

// Stats reports counts and serialised sizes.
func (s *DocumentStore) Stats(_ context.Context) (*domain.StorageStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := &domain.StorageStats{
		Root:          "memory://",
		ByType:        make(map[domain.DocumentType]domain.TypeStats),
		ByStatus:      make(map[domain.Status]int),
		IndexedByType: make(map[domain.DocumentType]int),
	}
	for id, e := range s.entries {
		size := int64(len(s.documents[id]))
		ts := stats.ByType[e.Type]
		ts.Files++
		ts.Bytes += size
		stats.ByType[e.Type] = ts
		stats.TotalBytes += size
		stats.ByStatus[e.Status]++
		stats.IndexedByType[e.Type]++
	}
	stats.TotalDocuments = len(s.entries)
	return stats, nil
}
