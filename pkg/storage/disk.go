package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// DiskStore implements ObjectStore on the local filesystem, for single
// node deployments and development.
type DiskStore struct {
	basePath string
}

// NewDiskStore creates the base directory if missing.
func NewDiskStore(basePath string) (*DiskStore, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, fmt.Errorf("storage base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &DiskStore{basePath: basePath}, nil
}

// Put writes the object under basePath, mirroring the key's directory
// structure.
func (d *DiskStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	target, err := d.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create object dir: %w", err)
	}
	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("create object file: %w", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, r); err != nil {
		return fmt.Errorf("write object file: %w", err)
	}
	return nil
}

// Delete removes the object. Missing objects are not an error.
func (d *DiskStore) Delete(ctx context.Context, key string) error {
	target, err := d.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete object file: %w", err)
	}
	return nil
}

// resolve maps a slash-separated key to a path under basePath and
// rejects keys that would escape it.
func (d *DiskStore) resolve(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("object key is required")
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return "", fmt.Errorf("invalid object key %q", key)
		}
	}
	return filepath.Join(d.basePath, filepath.FromSlash(key)), nil
}
