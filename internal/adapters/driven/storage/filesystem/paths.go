package filesystem

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode"

	"github.com/custodia-labs/flcm/internal/core/domain"
)

const (
	// BackupDirName is the hidden per-directory backup folder.
	BackupDirName = ".backups"

	ext      = ".md"
	dateFmt  = "2006-01-02"
	maxSlug  = 80
	dirPerm  = 0755
	filePerm = 0644
)

// Slug turns an id into a filename-safe fragment.
func Slug(id string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(id) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	s := strings.TrimSuffix(b.String(), "-")
	if len(s) > maxSlug {
		s = strings.TrimSuffix(s[:maxSlug], "-")
	}
	if s == "" {
		s = "untitled"
	}
	return s
}

// typeDir returns the directory, relative to root, that holds doc.
func typeDir(doc domain.Document) (string, error) {
	h := doc.Head()
	dir := h.Type.Dir()
	if dir == "" {
		return "", fmt.Errorf("%w: %q", domain.ErrUnsupportedType, h.Type)
	}
	if a, ok := doc.(*domain.PlatformAdaptation); ok {
		if !a.Platform.IsValid() {
			return "", fmt.Errorf("%w: unknown platform %q", domain.ErrInvalidInput, a.Platform)
		}
		return filepath.Join(dir, string(a.Platform)), nil
	}
	return dir, nil
}

// fileName renders <prefix>-<YYYY-MM-DD>-<slug>[-n].md.
func fileName(doc domain.Document, n int) string {
	h := doc.Head()
	name := fmt.Sprintf("%s-%s-%s", h.Type.FilePrefix(), h.Created.UTC().Format(dateFmt), Slug(h.ID))
	if n > 1 {
		name = fmt.Sprintf("%s-%d", name, n)
	}
	return name + ext
}

// backupDir returns the backup folder, relative to root, for a document file.
func backupDir(rel, id string) string {
	return filepath.Join(filepath.Dir(rel), BackupDirName, Slug(id))
}

func backupName(version int) string {
	return fmt.Sprintf("v%d%s", version, ext)
}

// parseBackupName returns the version encoded in a backup file name.
func parseBackupName(name string) (int, bool) {
	if !strings.HasPrefix(name, "v") || !strings.HasSuffix(name, ext) {
		return 0, false
	}
	var v int
	if _, err := fmt.Sscanf(strings.TrimSuffix(name, ext), "v%d", &v); err != nil || v < 1 {
		return 0, false
	}
	return v, true
}

// isDocumentFile reports whether rel names a document rather than a backup,
// a temp file or anything outside the type directories.
func isDocumentFile(rel string) bool {
	rel = filepath.ToSlash(rel)
	if !strings.HasSuffix(rel, ext) {
		return false
	}
	parts := strings.Split(rel, "/")
	for _, p := range parts {
		if strings.HasPrefix(p, ".") {
			return false
		}
	}
	for _, t := range domain.AllDocumentTypes() {
		if parts[0] == t.Dir() {
			return true
		}
	}
	return false
}

// writeAtomic writes data to path through a temp file in the same directory.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*"+ext)
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, filePerm); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// idLocks hands out one mutex per document id.
type idLocks struct {
	mu    sync.Mutex
	locks map[string]*idLock
}

type idLock struct {
	mu   sync.Mutex
	refs int
}

// lock acquires the mutex for id and returns its release function.
func (l *idLocks) lock(id string) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*idLock)
	}
	lk, ok := l.locks[id]
	if !ok {
		lk = &idLock{}
		l.locks[id] = lk
	}
	lk.refs++
	l.mu.Unlock()

	lk.mu.Lock()
	return func() {
		lk.mu.Unlock()
		l.mu.Lock()
		lk.refs--
		if lk.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
