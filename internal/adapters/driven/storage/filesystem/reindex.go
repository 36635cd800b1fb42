package filesystem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"

	"github.com/custodia-labs/flcm/internal/core/domain"
	"github.com/custodia-labs/flcm/internal/logger"
)

// Reindex rebuilds the index from a scan of every type directory and
// replaces its contents in one step. Files that cannot be parsed are left
// out and reported together; the rest of the index is still rebuilt.
func (s *Store) Reindex(ctx context.Context) (int, error) {
	files, err := s.documentFiles()
	if err != nil {
		return 0, err
	}

	snap := domain.IndexSnapshot{
		Version: domain.IndexSnapshotVersion,
		Entries: make(map[string]domain.IndexEntry, len(files)),
	}
	var errs []error
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		stored, err := s.read(rel)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", rel, err))
			continue
		}
		entry := s.codec.IndexEntry(stored.Document, rel, stored.Body)
		if prev, dup := snap.Entries[entry.ID]; dup {
			logger.Warn("reindex: %s found at %s and %s; keeping v%d", entry.ID, prev.Path, rel, max(prev.Version, entry.Version))
			if prev.Version >= entry.Version {
				continue
			}
		}
		snap.Entries[entry.ID] = entry
	}

	blob, err := json.Marshal(snap)
	if err != nil {
		return 0, &domain.StorageError{Op: "reindex", Err: err}
	}
	if err := s.index.Import(ctx, blob); err != nil {
		return 0, &domain.StorageError{Op: "reindex", Err: err}
	}
	logger.Info("reindexed %d documents from %s", len(snap.Entries), s.root)
	return len(snap.Entries), errors.Join(errs...)
}

// ReindexPath refreshes the index entry for one file. Paths outside the
// type directories are ignored; a missing file is forgotten.
func (s *Store) ReindexPath(ctx context.Context, path string) error {
	rel, err := s.rel(path)
	if err != nil {
		return err
	}
	if !isDocumentFile(rel) {
		return nil
	}
	stored, err := s.read(rel)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return s.ForgetPath(ctx, path)
		}
		return err
	}
	entry := s.codec.IndexEntry(stored.Document, rel, stored.Body)

	unlock := s.locks.lock(entry.ID)
	defer unlock()

	if err := s.forget(ctx, rel, entry.ID); err != nil {
		return err
	}
	if err := s.index.Put(ctx, entry); err != nil {
		return &domain.StorageError{Op: "reindex", Path: rel, Err: err}
	}
	logger.Debug("reindexed %s from %s", entry.ID, rel)
	return nil
}

// ForgetPath drops every index entry that points at path.
func (s *Store) ForgetPath(ctx context.Context, path string) error {
	rel, err := s.rel(path)
	if err != nil {
		return err
	}
	return s.forget(ctx, rel, "")
}

// forget drops entries at rel other than keep.
func (s *Store) forget(ctx context.Context, rel, keep string) error {
	entries, err := s.index.All(ctx)
	if err != nil {
		return &domain.StorageError{Op: "forget", Path: rel, Err: err}
	}
	for _, e := range entries {
		if e.Path != rel || e.ID == keep {
			continue
		}
		if err := s.index.Delete(ctx, e.ID); err != nil {
			return &domain.StorageError{Op: "forget", Path: rel, Err: err}
		}
		logger.Debug("dropped index entry %s for %s", e.ID, rel)
	}
	return nil
}
