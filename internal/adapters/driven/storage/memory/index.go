package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/custodia-labs/flcm/internal/core/domain"
	"github.com/custodia-labs/flcm/internal/core/ports/driven"
)

// Ensure Index implements the interface.
var _ driven.MetadataIndex = (*Index)(nil)

// Index is an in-memory implementation of driven.MetadataIndex.
// When opened with a path, every mutation rewrites the JSON snapshot at that
// path while the write lock is held, so the file never lags the map.
type Index struct {
	mu      sync.RWMutex
	entries map[string]domain.IndexEntry
	path    string
}

// NewIndex creates an index that is never persisted.
func NewIndex() *Index {
	return &Index{entries: make(map[string]domain.IndexEntry)}
}

// OpenIndex loads the snapshot at path, if any, and persists to it afterwards.
func OpenIndex(path string) (*Index, error) {
	idx := &Index{entries: make(map[string]domain.IndexEntry), path: path}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return idx, nil
	case err != nil:
		return nil, &domain.StorageError{Op: "open index", Path: path, Err: err}
	}
	if len(data) == 0 {
		return idx, nil
	}
	entries, err := decodeSnapshot(data)
	if err != nil {
		return nil, &domain.StorageError{Op: "open index", Path: path, Err: err}
	}
	idx.entries = entries
	return idx, nil
}

// Path returns the snapshot path, or "" for a purely in-memory index.
func (i *Index) Path() string {
	return i.path
}

// Put inserts or replaces an entry.
func (i *Index) Put(_ context.Context, entry domain.IndexEntry) error {
	if entry.ID == "" {
		return fmt.Errorf("%w: index entry without id", domain.ErrInvalidInput)
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	prev, had := i.entries[entry.ID]
	i.entries[entry.ID] = entry.Clone()
	if err := i.persistLocked(); err != nil {
		if had {
			i.entries[entry.ID] = prev
		} else {
			delete(i.entries, entry.ID)
		}
		return err
	}
	return nil
}

// Update applies fn to the current entry under the write lock.
func (i *Index) Update(_ context.Context, id string, fn func(*domain.IndexEntry) (*domain.IndexEntry, error)) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	var current *domain.IndexEntry
	prev, had := i.entries[id]
	if had {
		c := prev.Clone()
		current = &c
	}
	next, err := fn(current)
	if err != nil {
		return err
	}
	if next == nil {
		return nil
	}
	if next.ID != id {
		return fmt.Errorf("%w: update of %q returned entry %q", domain.ErrInvalidInput, id, next.ID)
	}
	i.entries[id] = next.Clone()
	if err := i.persistLocked(); err != nil {
		if had {
			i.entries[id] = prev
		} else {
			delete(i.entries, id)
		}
		return err
	}
	return nil
}

// Get returns the entry for id.
func (i *Index) Get(_ context.Context, id string) (*domain.IndexEntry, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	entry, ok := i.entries[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := entry.Clone()
	return &c, nil
}

// Delete removes an entry.
func (i *Index) Delete(_ context.Context, id string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	prev, ok := i.entries[id]
	if !ok {
		return nil
	}
	delete(i.entries, id)
	if err := i.persistLocked(); err != nil {
		i.entries[id] = prev
		return err
	}
	return nil
}

// Search returns matching entries ordered by id.
func (i *Index) Search(_ context.Context, criteria domain.IndexCriteria) ([]domain.IndexEntry, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	result := make([]domain.IndexEntry, 0)
	for _, entry := range i.entries {
		if criteria.Matches(entry) {
			result = append(result, entry.Clone())
		}
	}
	sortByID(result)
	return result, nil
}

// All returns every entry ordered by id.
func (i *Index) All(ctx context.Context) ([]domain.IndexEntry, error) {
	return i.Search(ctx, domain.IndexCriteria{})
}

// Export serialises the index.
func (i *Index) Export(_ context.Context) ([]byte, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return encodeSnapshot(i.entries)
}

// Import replaces every entry with the contents of data.
func (i *Index) Import(_ context.Context, data []byte) error {
	entries, err := decodeSnapshot(data)
	if err != nil {
		return err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	prev := i.entries
	i.entries = entries
	if err := i.persistLocked(); err != nil {
		i.entries = prev
		return err
	}
	return nil
}

// Close is a no-op; every mutation is already persisted.
func (i *Index) Close() error {
	return nil
}

// persistLocked writes the snapshot atomically. Caller holds the write lock.
func (i *Index) persistLocked() error {
	if i.path == "" {
		return nil
	}
	data, err := encodeSnapshot(i.entries)
	if err != nil {
		return &domain.StorageError{Op: "persist index", Path: i.path, Err: err}
	}
	dir := filepath.Dir(i.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &domain.StorageError{Op: "persist index", Path: i.path, Err: err}
	}
	tmp, err := os.CreateTemp(dir, ".index-*.tmp")
	if err != nil {
		return &domain.StorageError{Op: "persist index", Path: i.path, Err: err}
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &domain.StorageError{Op: "persist index", Path: i.path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &domain.StorageError{Op: "persist index", Path: i.path, Err: err}
	}
	if err := os.Rename(tmpName, i.path); err != nil {
		os.Remove(tmpName)
		return &domain.StorageError{Op: "persist index", Path: i.path, Err: err}
	}
	return nil
}

func encodeSnapshot(entries map[string]domain.IndexEntry) ([]byte, error) {
	snap := domain.IndexSnapshot{
		Version: domain.IndexSnapshotVersion,
		Entries: entries,
	}
	return json.MarshalIndent(snap, "", "  ")
}

func decodeSnapshot(data []byte) (map[string]domain.IndexEntry, error) {
	var snap domain.IndexSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: decoding index snapshot: %v", domain.ErrInvalidInput, err)
	}
	if snap.Version > domain.IndexSnapshotVersion {
		return nil, fmt.Errorf("%w: index snapshot version %d is newer than supported", domain.ErrInvalidInput, snap.Version)
	}
	entries := make(map[string]domain.IndexEntry, len(snap.Entries))
	for id, entry := range snap.Entries {
		if entry.ID == "" {
			entry.ID = id
		}
		if entry.ID != id {
			return nil, fmt.Errorf("%w: snapshot key %q holds entry %q", domain.ErrInvalidInput, id, entry.ID)
		}
		entries[id] = entry
	}
	return entries, nil
}

func sortByID(entries []domain.IndexEntry) {
	sort.Slice(entries, func(a, b int) bool { return entries[a].ID < entries[b].ID })
}
