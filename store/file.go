// Package store provides DataStore implementations for persisting
// reconnect credentials: a JSON-file store for simple deployments and a
// SQLite-backed store for hosts that already carry a database.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileStore keeps one JSON file per record under a root directory. Path
// segments map to nested directories, the last segment to the file name.
type FileStore struct {
	root string
}

// NewFileStore creates a file store rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	return &FileStore{root: dir}, nil
}

// Read returns the record under the path, or (nil, nil) when absent.
func (fs *FileStore) Read(path ...string) ([]byte, error) {
	data, err := os.ReadFile(fs.filePath(path))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read record: %w", err)
	}
	return data, nil
}

// Write stores the record, creating intermediate directories as needed.
func (fs *FileStore) Write(data []byte, path ...string) error {
	target := fs.filePath(path)
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("create record directory: %w", err)
	}
	if err := os.WriteFile(target, data, 0600); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}

// Delete removes the record. Deleting a missing record is a no-op.
func (fs *FileStore) Delete(path ...string) error {
	err := os.Remove(fs.filePath(path))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete record: %w", err)
	}
	return nil
}

func (fs *FileStore) filePath(path []string) string {
	parts := make([]string, 0, len(path)+1)
	parts = append(parts, fs.root)
	for _, seg := range path {
		parts = append(parts, sanitizeSegment(seg))
	}
	return filepath.Join(parts...) + ".json"
}

// sanitizeSegment keeps host names like "example.com:8080" usable as file
// path components on every platform.
func sanitizeSegment(seg string) string {
	r := strings.NewReplacer(":", "_", "/", "_", "\\", "_", "..", "_")
	return r.Replace(seg)
}
