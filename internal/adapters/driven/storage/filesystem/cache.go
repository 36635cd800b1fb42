package filesystem

import (
	"os"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultReadCacheSize is the number of document files kept in memory.
const DefaultReadCacheSize = 256

type cachedFile struct {
	modTime time.Time
	size    int64
	data    []byte
}

// readCache keeps the contents of recently read document files. An entry is
// only served while the file's size and modification time are unchanged, so
// edits made outside the store are picked up on the next read. A nil cache
// reads straight from disk.
type readCache struct {
	files *lru.Cache[string, cachedFile]
}

func newReadCache(size int) *readCache {
	if size <= 0 {
		return nil
	}
	files, err := lru.New[string, cachedFile](size)
	if err != nil {
		return nil
	}
	return &readCache{files: files}
}

// readFile returns the contents of abs. The returned slice is shared and
// must not be modified.
func (c *readCache) readFile(abs string) ([]byte, error) {
	if c == nil {
		return os.ReadFile(abs)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if f, ok := c.files.Get(abs); ok && f.size == info.Size() && f.modTime.Equal(info.ModTime()) {
		return f.data, nil
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}
	c.files.Add(abs, cachedFile{modTime: info.ModTime(), size: info.Size(), data: data})
	return data, nil
}

func (c *readCache) forget(abs string) {
	if c != nil {
		c.files.Remove(abs)
	}
}

func (c *readCache) len() int {
	if c == nil {
		return 0
	}
	return c.files.Len()
}
