package preset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Backend is a synchronous string-keyed key-value medium. A Store keeps its
// whole collection as one JSON value under a single key.
type Backend interface {
	// Get returns ok=false, err=nil for a key that was never set.
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	// Keys lists every key that has been set.
	Keys() ([]string, error)
}

// MemBackend keeps values in process memory.
type MemBackend struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemBackend() *MemBackend {
	return &MemBackend{values: make(map[string]string)}
}

func (b *MemBackend) Get(key string) (string, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.values[key]
	return v, ok, nil
}

func (b *MemBackend) Set(key, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values[key] = value
	return nil
}

func (b *MemBackend) Keys() ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	keys := make([]string, 0, len(b.values))
	for k := range b.values {
		keys = append(keys, k)
	}
	return keys, nil
}

// FileBackend stores each key as <dir>/<key>.json.
type FileBackend struct {
	mu  sync.Mutex
	dir string
}

// NewFileBackend returns a backend rooted at dir. The directory is created on
// first write, so a missing dir reads as an empty store.
func NewFileBackend(dir string) *FileBackend {
	return &FileBackend{dir: dir}
}

func (b *FileBackend) Dir() string { return b.dir }

func (b *FileBackend) Get(key string) (string, bool, error) {
	path, err := b.path(key)
	if err != nil {
		return "", false, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, err
	}
	return string(data), true, nil
}

func (b *FileBackend) Set(key, value string) error {
	path, err := b.path(key)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return writeAtomic(path, []byte(value))
}

// Keys returns the names of the .json files in the data directory. A missing
// directory has no keys.
func (b *FileBackend) Keys() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(b.dir, "*.json"))
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(matches))
	for _, m := range matches {
		keys = append(keys, strings.TrimSuffix(filepath.Base(m), ".json"))
	}
	return keys, nil
}

func (b *FileBackend) path(key string) (string, error) {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) {
		return "", fmt.Errorf("storage key %q is not a plain file name", key)
	}
	return filepath.Join(b.dir, key+".json"), nil
}

// writeAtomic writes to a temp file then renames it over path.
func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
