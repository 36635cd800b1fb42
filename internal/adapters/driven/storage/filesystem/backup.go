package filesystem

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/custodia-labs/flcm/internal/core/domain"
	"github.com/custodia-labs/flcm/internal/core/ports/driven"
	"github.com/custodia-labs/flcm/internal/logger"
)

// backup copies the file at src into the backup folder next to dst as
// v<version>.md, then prunes the folder to maxBackups files.
func (s *Store) backup(src, dst, id string, version int) error {
	data, err := os.ReadFile(s.abs(src))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn("no file to back up for %s v%d at %s", id, version, src)
			return nil
		}
		return &domain.StorageError{Op: "backup", Path: s.abs(src), Err: err}
	}
	dir := s.abs(backupDir(dst, id))
	path := filepath.Join(dir, backupName(version))
	if err := writeAtomic(path, data); err != nil {
		return &domain.StorageError{Op: "backup", Path: path, Err: err}
	}
	return s.prune(dir)
}

// prune removes the oldest retained versions beyond maxBackups.
func (s *Store) prune(dir string) error {
	infos, err := listBackups(dir, "")
	if err != nil {
		return &domain.StorageError{Op: "backup", Path: dir, Err: err}
	}
	for len(infos) > s.maxBackups {
		if err := os.Remove(infos[0].Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return &domain.StorageError{Op: "backup", Path: infos[0].Path, Err: err}
		}
		logger.Debug("pruned backup %s", infos[0].Path)
		infos = infos[1:]
	}
	return nil
}

// listBackups returns the retained versions in dir, oldest first.
func listBackups(dir, id string) ([]domain.BackupInfo, error) {
	dirents, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var infos []domain.BackupInfo
	for _, d := range dirents {
		if d.IsDir() {
			continue
		}
		v, ok := parseBackupName(d.Name())
		if !ok {
			continue
		}
		info, err := d.Info()
		if err != nil {
			continue
		}
		infos = append(infos, domain.BackupInfo{
			ID:      id,
			Version: v,
			Path:    filepath.Join(dir, d.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	slices.SortFunc(infos, func(a, b domain.BackupInfo) int {
		return cmp.Compare(a.Version, b.Version)
	})
	return infos, nil
}

// entryFor resolves the current index entry for id, scanning on a miss.
func (s *Store) entryFor(ctx context.Context, id string) (*domain.IndexEntry, error) {
	entry, err := s.index.Get(ctx, id)
	if err == nil {
		return entry, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, &domain.StorageError{Op: "lookup", Err: err}
	}
	stored, err := s.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	rel, err := s.rel(stored.Path)
	if err != nil {
		return nil, err
	}
	e := s.codec.IndexEntry(stored.Document, rel, stored.Body)
	return &e, nil
}

// Backups lists the retained versions of a document, oldest first.
func (s *Store) Backups(ctx context.Context, id string) ([]domain.BackupInfo, error) {
	entry, err := s.entryFor(ctx, id)
	if err != nil {
		return nil, err
	}
	dir := s.abs(backupDir(entry.Path, id))
	infos, err := listBackups(dir, id)
	if err != nil {
		return nil, &domain.StorageError{Op: "backups", Path: dir, Err: err}
	}
	if infos == nil {
		infos = []domain.BackupInfo{}
	}
	return infos, nil
}

// Restore saves a retained version as a new version of the document.
func (s *Store) Restore(ctx context.Context, id string, version int) (*driven.SaveResult, error) {
	entry, err := s.entryFor(ctx, id)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(s.abs(backupDir(entry.Path, id)), backupName(version))
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: no backup v%d of %q", domain.ErrNotFound, version, id)
		}
		return nil, &domain.StorageError{Op: "restore", Path: path, Err: err}
	}
	doc, body, err := s.codec.Parse(data)
	if err != nil {
		return nil, &domain.StorageError{Op: "restore", Path: path, Err: err}
	}
	if got := doc.Head().ID; got != id {
		return nil, fmt.Errorf("%w: backup %s holds %q, not %q", domain.ErrInvalidInput, path, got, id)
	}
	logger.Info("restoring %s from v%d", id, version)
	return s.Save(ctx, doc, body)
}
