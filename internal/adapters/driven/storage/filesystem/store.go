package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/custodia-labs/flcm/internal/core/domain"
	"github.com/custodia-labs/flcm/internal/core/ports/driven"
	"github.com/custodia-labs/flcm/internal/logger"
)

// Ensure Store implements the interfaces.
var (
	_ driven.DocumentStore = (*Store)(nil)
	_ driven.BackupStore   = (*Store)(nil)
	_ driven.Reindexer     = (*Store)(nil)
)

// Store is the file-tree implementation of driven.DocumentStore.
type Store struct {
	root       string
	codec      driven.Codec
	index      driven.MetadataIndex
	validator  driven.DocumentValidator
	backups    bool
	maxBackups int
	now        func() time.Time
	locks      idLocks
	cache      *readCache
}

// Option configures a Store.
type Option func(*Store)

// WithValidator checks every document before it is written.
func WithValidator(v driven.DocumentValidator) Option {
	return func(s *Store) { s.validator = v }
}

// WithBackups sets whether prior versions are kept and how many.
func WithBackups(enabled bool, max int) Option {
	return func(s *Store) {
		s.backups = enabled
		s.maxBackups = max
	}
}

// WithReadCache keeps up to size document files in memory. Zero disables it.
func WithReadCache(size int) Option {
	return func(s *Store) { s.cache = newReadCache(size) }
}

// WithClock overrides the time source used for created/modified.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New opens the storage tree at root, creating the type directories.
func New(root string, codec driven.Codec, index driven.MetadataIndex, opts ...Option) (*Store, error) {
	if codec == nil || index == nil {
		return nil, fmt.Errorf("%w: codec and index are required", domain.ErrInvalidInput)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, &domain.StorageError{Op: "open", Path: root, Err: err}
	}
	s := &Store{
		root:       abs,
		codec:      codec,
		index:      index,
		backups:    true,
		maxBackups: 5,
		now:        time.Now,
		cache:      newReadCache(DefaultReadCacheSize),
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, t := range domain.AllDocumentTypes() {
		if err := os.MkdirAll(filepath.Join(abs, t.Dir()), dirPerm); err != nil {
			return nil, &domain.StorageError{Op: "open", Path: abs, Err: err}
		}
	}
	return s, nil
}

// Root returns the absolute storage root.
func (s *Store) Root() string {
	return s.root
}

// Save validates doc, backs up the prior version and writes the new one.
// On success doc carries the persisted version and timestamps; on failure
// it is left as it was.
func (s *Store) Save(ctx context.Context, doc domain.Document, body string) (*driven.SaveResult, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: nil document", domain.ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h := doc.Head()

	unlock := s.locks.lock(h.ID)
	defer unlock()

	prior, err := s.prior(ctx, doc)
	if err != nil {
		return nil, err
	}

	orig := *h
	s.stamp(h, prior)
	if d, ok := doc.(*domain.ContentDraft); ok {
		d.FillWordCount()
	}

	result := domain.ValidationResult{Valid: true, Score: 100}
	if s.validator != nil {
		result = s.validator.Validate(ctx, doc)
		if !result.Valid {
			*h = orig
			return &driven.SaveResult{Validation: result}, &domain.ValidationFailedError{DocumentID: h.ID, Result: result}
		}
	}

	res, err := s.write(ctx, doc, body, prior)
	if err != nil {
		*h = orig
		return nil, err
	}
	res.Validation = result
	return res, nil
}

// prior returns the index entry of the stored version of doc, or nil.
// An index miss falls back to scanning the type directory.
func (s *Store) prior(ctx context.Context, doc domain.Document) (*domain.IndexEntry, error) {
	h := doc.Head()
	if strings.TrimSpace(h.ID) == "" {
		return nil, nil
	}
	entry, err := s.index.Get(ctx, h.ID)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotFound):
		if !h.Type.IsValid() {
			return nil, nil
		}
		rel, err := s.locate(h.ID, h.Type)
		if err != nil || rel == "" {
			return nil, err
		}
		stored, err := s.read(rel)
		if err != nil {
			return nil, err
		}
		logger.Warn("index has no entry for %s; recovered %s from disk", h.ID, rel)
		e := s.codec.IndexEntry(stored.Document, rel, stored.Body)
		entry = &e
	default:
		return nil, &domain.StorageError{Op: "save", Err: err}
	}
	if entry.Type != h.Type {
		return nil, fmt.Errorf("%w: id %q is already used by a %s", domain.ErrInvalidInput, h.ID, entry.Type)
	}
	return entry, nil
}

// stamp assigns version, timestamps and default metadata.
func (s *Store) stamp(h *domain.Header, prior *domain.IndexEntry) {
	now := s.now().UTC()
	h.Modified = now
	h.Version = 1
	if prior != nil {
		h.Version = prior.Version + 1
		if !prior.Created.IsZero() {
			h.Created = prior.Created
		}
	}
	if h.Created.IsZero() {
		h.Created = now
	}
	defaultMeta(h)
}

// defaultMeta fills the owning agent and pending status when unset.
func defaultMeta(h *domain.Header) {
	if h.Meta.Agent == "" {
		h.Meta.Agent = h.Type.Agent()
	}
	if h.Meta.Status == "" {
		h.Meta.Status = domain.StatusPending
	}
}

// write performs steps after validation: path, backup, file, index.
func (s *Store) write(ctx context.Context, doc domain.Document, body string, prior *domain.IndexEntry) (*driven.SaveResult, error) {
	h := doc.Head()
	dir, err := typeDir(doc)
	if err != nil {
		return nil, err
	}

	rel := ""
	moved := ""
	if prior != nil {
		if filepath.Dir(filepath.FromSlash(prior.Path)) == dir {
			rel = prior.Path
		} else {
			moved = prior.Path
		}
	}
	if rel == "" {
		rel = s.freeName(dir, doc)
	}

	if prior != nil && s.backups && s.maxBackups > 0 {
		src := prior.Path
		if moved != "" {
			src = moved
		}
		if err := s.backup(src, rel, h.ID, prior.Version); err != nil {
			return nil, err
		}
	}

	data, err := s.codec.Serialize(doc, body)
	if err != nil {
		return nil, &domain.StorageError{Op: "serialize", Path: rel, Err: err}
	}
	abs := s.abs(rel)
	s.cache.forget(abs)
	if err := writeAtomic(abs, data); err != nil {
		return nil, &domain.StorageError{Op: "write", Path: abs, Err: err}
	}
	if moved != "" {
		s.cache.forget(s.abs(moved))
		if err := os.Remove(s.abs(moved)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("could not remove old location %s: %v", moved, err)
		}
	}

	entry := s.codec.IndexEntry(doc, rel, body)
	err = s.index.Update(ctx, h.ID, func(current *domain.IndexEntry) (*domain.IndexEntry, error) {
		if current != nil && current.Type != entry.Type {
			return nil, fmt.Errorf("%w: id %q is already used by a %s", domain.ErrInvalidInput, h.ID, current.Type)
		}
		return &entry, nil
	})
	if err != nil {
		return nil, &domain.StorageError{Op: "index", Path: rel, Err: err}
	}

	logger.Debug("saved %s v%d to %s", h.ID, h.Version, rel)
	return &driven.SaveResult{Success: true, Path: abs, Version: h.Version}, nil
}

// freeName picks an unused file name for a new document in dir.
func (s *Store) freeName(dir string, doc domain.Document) string {
	for n := 1; ; n++ {
		rel := filepath.ToSlash(filepath.Join(dir, fileName(doc, n)))
		if _, err := os.Stat(s.abs(rel)); errors.Is(err, fs.ErrNotExist) {
			return rel
		}
	}
}

// Load returns the stored document. An index miss or a stale entry falls
// back to a scan of every type directory, and the index is repaired.
func (s *Store) Load(ctx context.Context, id string) (*domain.StoredDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entry, err := s.index.Get(ctx, id)
	switch {
	case err == nil:
		stored, err := s.read(entry.Path)
		if err == nil && stored.Document.Head().ID == id {
			return stored, nil
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		logger.Warn("index entry for %s points at %s which no longer holds it; scanning", id, entry.Path)
	case errors.Is(err, domain.ErrNotFound):
		logger.Debug("index miss for %s; scanning", id)
	default:
		return nil, &domain.StorageError{Op: "load", Err: err}
	}

	rel, err := s.locate(id)
	if err != nil {
		return nil, err
	}
	if rel == "" {
		if entry != nil {
			if err := s.index.Delete(ctx, id); err != nil {
				logger.Warn("could not drop stale index entry %s: %v", id, err)
			}
		}
		return nil, fmt.Errorf("%w: document %q", domain.ErrNotFound, id)
	}
	stored, err := s.read(rel)
	if err != nil {
		return nil, err
	}
	if err := s.index.Put(ctx, s.codec.IndexEntry(stored.Document, rel, stored.Body)); err != nil {
		logger.Warn("could not repair index entry for %s: %v", id, err)
	}
	return stored, nil
}

// read parses the file at rel and fills timestamps a hand-written header
// may lack from the file's modification time.
func (s *Store) read(rel string) (*domain.StoredDocument, error) {
	abs := s.abs(rel)
	data, err := s.cache.readFile(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		return nil, &domain.StorageError{Op: "read", Path: abs, Err: err}
	}
	doc, body, err := s.codec.Parse(data)
	if err != nil {
		return nil, &domain.StorageError{Op: "parse", Path: abs, Err: err}
	}
	h := doc.Head()
	if h.Created.IsZero() || h.Modified.IsZero() {
		if info, err := os.Stat(abs); err == nil {
			mod := info.ModTime().UTC()
			if h.Created.IsZero() {
				h.Created = mod
			}
			if h.Modified.IsZero() {
				h.Modified = mod
			}
		}
	}
	// a file on disk is at least its first version
	h.Version = max(h.Version, 1)
	defaultMeta(h)
	return &domain.StoredDocument{Document: doc, Body: body, Path: abs}, nil
}

// Exists reports whether the document is stored.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	entry, err := s.index.Get(ctx, id)
	switch {
	case err == nil:
		if _, err := os.Stat(s.abs(entry.Path)); err == nil {
			return true, nil
		}
	case !errors.Is(err, domain.ErrNotFound):
		return false, &domain.StorageError{Op: "exists", Err: err}
	}
	rel, err := s.locate(id)
	if err != nil {
		return false, err
	}
	return rel != "", nil
}

// Delete removes the document, its backups and its index entry.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	rel := ""
	entry, err := s.index.Get(ctx, id)
	switch {
	case err == nil:
		rel = entry.Path
	case !errors.Is(err, domain.ErrNotFound):
		return false, &domain.StorageError{Op: "delete", Err: err}
	}
	if rel == "" {
		if rel, err = s.locate(id); err != nil {
			return false, err
		}
	}
	if rel == "" {
		return false, nil
	}

	removed := true
	s.cache.forget(s.abs(rel))
	if err := os.Remove(s.abs(rel)); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return false, &domain.StorageError{Op: "delete", Path: s.abs(rel), Err: err}
		}
		removed = entry != nil
	}
	if err := os.RemoveAll(s.abs(backupDir(rel, id))); err != nil {
		logger.Warn("could not remove backups of %s: %v", id, err)
	}
	if err := s.index.Delete(ctx, id); err != nil {
		return removed, &domain.StorageError{Op: "delete", Path: rel, Err: err}
	}
	logger.Debug("deleted %s (%s)", id, rel)
	return removed, nil
}

// abs converts an index path into an absolute filesystem path.
func (s *Store) abs(rel string) string {
	return filepath.Join(s.root, filepath.FromSlash(rel))
}

// rel converts a filesystem path into an index path.
func (s *Store) rel(path string) (string, error) {
	if !filepath.IsAbs(path) {
		return filepath.ToSlash(filepath.Clean(path)), nil
	}
	r, err := filepath.Rel(s.root, path)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s is outside %s", domain.ErrInvalidInput, path, s.root)
	}
	return filepath.ToSlash(r), nil
}

// locate scans for the file holding id, trying names that carry its slug
// first. types limits the scan; none means every type. Returns "" if absent.
func (s *Store) locate(id string, types ...domain.DocumentType) (string, error) {
	if strings.TrimSpace(id) == "" {
		return "", nil
	}
	files, err := s.documentFiles(types...)
	if err != nil {
		return "", err
	}
	slug := "-" + Slug(id)
	var rest []string
	for _, rel := range files {
		base := strings.TrimSuffix(filepath.Base(rel), ext)
		if strings.HasSuffix(base, slug) || strings.Contains(base, slug+"-") {
			if s.fileHasID(rel, id) {
				return rel, nil
			}
			continue
		}
		rest = append(rest, rel)
	}
	for _, rel := range rest {
		if s.fileHasID(rel, id) {
			return rel, nil
		}
	}
	return "", nil
}

func (s *Store) fileHasID(rel, id string) bool {
	data, err := s.cache.readFile(s.abs(rel))
	if err != nil {
		return false
	}
	fields, err := s.codec.ParseHeader(data)
	if err != nil {
		return false
	}
	return fmt.Sprint(fields["flcm_id"]) == id
}

// documentFiles lists document files under the given type directories,
// skipping hidden directories such as .backups.
func (s *Store) documentFiles(types ...domain.DocumentType) ([]string, error) {
	if len(types) == 0 {
		types = domain.AllDocumentTypes()
	}
	var files []string
	for _, t := range types {
		base := filepath.Join(s.root, t.Dir())
		err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil
				}
				return err
			}
			if d.IsDir() {
				if path != base && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			rel, err := s.rel(path)
			if err != nil {
				return err
			}
			if isDocumentFile(rel) {
				files = append(files, rel)
			}
			return nil
		})
		if err != nil {
			return nil, &domain.StorageError{Op: "scan", Path: base, Err: err}
		}
	}
	return files, nil
}
