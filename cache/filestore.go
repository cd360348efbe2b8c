package cache

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
)

// FileStore implements the Store interface using filesystem storage, one
// JSON document per key
type FileStore struct {
	dir   string
	clock Clock
}

// NewFileStore creates a file-based store rooted at dir, creating it if needed
func NewFileStore(dir string, clock Clock) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("cache dir required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &FileStore{dir: dir, clock: clock}, nil
}

// DefaultFileDir returns the per-user cache directory for the CLI
func DefaultFileDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "airwave"), nil
}

// Get implements Reader
func (fs *FileStore) Get(_ context.Context, key, version string) (*Entry, error) {
	entry, err := fs.read(fs.path(key))
	if err != nil {
		return nil, ErrNotFound
	}
	if entry.Key != key {
		return nil, ErrNotFound
	}
	if entry.Expired(fs.clock.Now()) {
		_ = os.Remove(fs.path(key))
		return nil, ErrNotFound
	}
	if !entry.Valid(fs.clock.Now(), version) {
		return nil, ErrNotFound
	}
	return entry, nil
}

// Set implements Writer
func (fs *FileStore) Set(_ context.Context, entry *Entry) error {
	cp := *entry
	if cp.InsertedAt.IsZero() {
		cp.InsertedAt = fs.clock.Now()
	}

	data, err := json.MarshalIndent(&cp, "", "  ")
	if err != nil {
		return err
	}

	// Write to temporary file first, then rename (atomic operation)
	path := fs.path(cp.Key)
	tmpPath := path + fmt.Sprintf(".tmp.%d", rand.Int())
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// Delete implements Invalidator
func (fs *FileStore) Delete(_ context.Context, key string) error {
	if err := os.Remove(fs.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// DeleteMatching implements Invalidator. Filenames may be hashed, so every
// document is opened to compare its stored key.
func (fs *FileStore) DeleteMatching(_ context.Context, pattern string) (int, error) {
	removed := 0
	err := fs.walk(func(path string, entry *Entry) error {
		if !strings.Contains(entry.Key, pattern) {
			return nil
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		removed++
		return nil
	})
	return removed, err
}

// Clear implements Invalidator
func (fs *FileStore) Clear(_ context.Context) error {
	files, err := filepath.Glob(filepath.Join(fs.dir, "*.json"))
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := os.Remove(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

// Len implements Sizer
func (fs *FileStore) Len(_ context.Context) (int, error) {
	files, err := filepath.Glob(filepath.Join(fs.dir, "*.json"))
	if err != nil {
		return 0, err
	}
	return len(files), nil
}

func (fs *FileStore) walk(fn func(path string, entry *Entry) error) error {
	files, err := filepath.Glob(filepath.Join(fs.dir, "*.json"))
	if err != nil {
		return err
	}
	for _, f := range files {
		entry, err := fs.read(f)
		if err != nil {
			continue
		}
		if err := fn(f, entry); err != nil {
			return err
		}
	}
	return nil
}

func (fs *FileStore) read(path string) (*Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// path generates the full filesystem path for a cache key
func (fs *FileStore) path(key string) string {
	return filepath.Join(fs.dir, sanitizeKey(key)+".json")
}

// sanitizeKey ensures the key is safe for use as a filename
func sanitizeKey(key string) string {
	// For very long keys, use hash to avoid filesystem limits
	if len(key) > 200 {
		hash := md5.Sum([]byte(key))
		return fmt.Sprintf("hash_%x", hash)
	}

	unsafe := []string{"/", "\\", ":", "?", "&", "=", "#", "<", ">", "|", "*", "\"", " "}
	result := key
	for _, char := range unsafe {
		result = strings.ReplaceAll(result, char, "_")
	}

	// distinct keys can sanitize to the same name; a short hash keeps them apart
	hash := md5.Sum([]byte(key))
	return fmt.Sprintf("%s_%x", result, hash[:4])
}
