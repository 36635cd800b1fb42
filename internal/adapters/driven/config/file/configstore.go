package file

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"

	"github.com/custodia-labs/flcm/internal/core/ports/driven"
)

// Ensure ConfigStore implements the interface.
var _ driven.ConfigStore = (*ConfigStore)(nil)

// DirName is the hidden directory under the storage root holding
// configuration and the index snapshot.
const DirName = ".flcm"

// FileName is the configuration file inside DirName.
const FileName = "config.toml"

// ConfigStore keeps .flcm/config.toml as the decoded TOML tree. A key such
// as "pipeline.max_retries" walks the [pipeline] table, so hand-edited files
// and files written by Set share one layout.
type ConfigStore struct {
	mu   sync.RWMutex
	path string
	tree map[string]any
}

// NewConfigStore opens <root>/.flcm/config.toml, creating the directory.
// A missing file is an empty configuration. If root is empty, the current
// directory is used.
func NewConfigStore(root string) (*ConfigStore, error) {
	if root == "" {
		root = "."
	}
	dir := filepath.Join(root, DirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	s := &ConfigStore{path: filepath.Join(dir, FileName)}
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Get returns the scalar or array stored at key. Tables are not values.
func (s *ConfigStore) Get(key string) (any, bool) {
	parts, err := splitKey(key)
	if err != nil {
		return nil, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	node := s.tree
	for _, p := range parts[:len(parts)-1] {
		next, ok := node[p].(map[string]any)
		if !ok {
			return nil, false
		}
		node = next
	}
	val, ok := node[parts[len(parts)-1]]
	if _, table := val.(map[string]any); table {
		return nil, false
	}
	return val, ok
}

// Keys returns the dotted path of every stored value.
func (s *ConfigStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	var walk func(prefix string, node map[string]any)
	walk = func(prefix string, node map[string]any) {
		for k, v := range node {
			if prefix != "" {
				k = prefix + "." + k
			}
			if table, ok := v.(map[string]any); ok {
				walk(k, table)
				continue
			}
			keys = append(keys, k)
		}
	}
	walk("", s.tree)
	slices.Sort(keys)
	return keys
}

// Set stores value at key and rewrites the file. The held tree is only
// replaced once the write succeeds.
func (s *ConfigStore) Set(key string, value any) error {
	parts, err := splitKey(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := cloneTree(s.tree)
	node := next
	for i, p := range parts[:len(parts)-1] {
		switch child := node[p].(type) {
		case nil:
			table := make(map[string]any)
			node[p] = table
			node = table
		case map[string]any:
			node = child
		default:
			return fmt.Errorf("config key %q: %q holds a value, not a table", key, strings.Join(parts[:i+1], "."))
		}
	}
	leaf := parts[len(parts)-1]
	if _, table := node[leaf].(map[string]any); table {
		return fmt.Errorf("config key %q names a table", key)
	}
	node[leaf] = value

	if err := s.write(next); err != nil {
		return err
	}
	s.tree = next
	return nil
}

// Load re-reads the file.
func (s *ConfigStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.tree = make(map[string]any)
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}

	tree := make(map[string]any)
	if err := toml.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("parsing %s: %w", s.path, err)
	}
	s.tree = tree
	return nil
}

// Path returns the configuration file path.
func (s *ConfigStore) Path() string {
	return s.path
}

func (s *ConfigStore) write(tree map[string]any) error {
	data, err := toml.Marshal(tree)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

func splitKey(key string) ([]string, error) {
	parts := strings.Split(key, ".")
	if slices.Contains(parts, "") {
		return nil, fmt.Errorf("invalid config key %q", key)
	}
	return parts, nil
}

// cloneTree copies every table so Set can fail without touching the original.
func cloneTree(tree map[string]any) map[string]any {
	out := make(map[string]any, len(tree))
	for k, v := range tree {
		if table, ok := v.(map[string]any); ok {
			v = cloneTree(table)
		}
		out[k] = v
	}
	return out
}
