package filesystem

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"

	"github.com/custodia-labs/flcm/internal/core/domain"
	"github.com/custodia-labs/flcm/internal/logger"
)

// Query returns the documents whose index entries match filter, sorted and
// paginated. Entries whose file cannot be read are skipped.
func (s *Store) Query(ctx context.Context, filter domain.QueryFilter) ([]domain.StoredDocument, error) {
	entries, err := s.index.Search(ctx, filter.Criteria())
	if err != nil {
		return nil, &domain.StorageError{Op: "query", Err: err}
	}
	domain.SortIndexEntries(entries, filter.SortBy, filter.SortOrder)

	docs := make([]domain.StoredDocument, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		stored, err := s.read(e.Path)
		if err != nil {
			logger.Warn("query: skipping %s: %v", e.ID, err)
			continue
		}
		docs = append(docs, *stored)
	}
	return domain.Paginate(docs, filter.Offset, filter.Limit), nil
}

// List returns references to indexed documents in pipeline order, then by id.
func (s *Store) List(ctx context.Context, docType domain.DocumentType) ([]domain.Ref, error) {
	if docType != "" && !docType.IsValid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedType, docType)
	}
	entries, err := s.index.Search(ctx, domain.IndexCriteria{Type: docType})
	if err != nil {
		return nil, &domain.StorageError{Op: "list", Err: err}
	}
	order := make(map[domain.DocumentType]int)
	for i, t := range domain.AllDocumentTypes() {
		order[t] = i
	}
	slices.SortFunc(entries, func(a, b domain.IndexEntry) int {
		if c := cmp.Compare(order[a.Type], order[b.Type]); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	refs := make([]domain.Ref, 0, len(entries))
	for _, e := range entries {
		refs = append(refs, domain.Ref{ID: e.ID, Type: e.Type, Path: s.abs(e.Path), Version: e.Version})
	}
	return refs, nil
}

// Stats walks the type directories and combines file counts with the index.
func (s *Store) Stats(ctx context.Context) (*domain.StorageStats, error) {
	stats := &domain.StorageStats{
		Root:          s.root,
		ByType:        make(map[domain.DocumentType]domain.TypeStats),
		ByStatus:      make(map[domain.Status]int),
		IndexedByType: make(map[domain.DocumentType]int),
	}

	for _, t := range domain.AllDocumentTypes() {
		base := filepath.Join(s.root, t.Dir())
		var ts domain.TypeStats
		err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil
				}
				return err
			}
			if d.IsDir() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return nil
			}
			rel, err := s.rel(path)
			if err != nil {
				return err
			}
			switch {
			case isDocumentFile(rel):
				ts.Files++
				ts.Bytes += info.Size()
			case isBackupFile(rel):
				ts.Backups++
				ts.BackupBytes += info.Size()
			}
			return nil
		})
		if err != nil {
			return nil, &domain.StorageError{Op: "stats", Path: base, Err: err}
		}
		stats.ByType[t] = ts
		stats.TotalBytes += ts.Bytes
	}

	entries, err := s.index.All(ctx)
	if err != nil {
		return nil, &domain.StorageError{Op: "stats", Err: err}
	}
	for _, e := range entries {
		stats.IndexedByType[e.Type]++
		stats.ByStatus[e.Status]++
	}
	stats.TotalDocuments = len(entries)
	return stats, nil
}

// isBackupFile reports whether rel is a retained version under .backups.
func isBackupFile(rel string) bool {
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < 3 || parts[len(parts)-3] != BackupDirName {
		return false
	}
	_, ok := parseBackupName(parts[len(parts)-1])
	return ok
}
