package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrBlobNotFound is returned when reading a path that was never uploaded.
var ErrBlobNotFound = errors.New("blob not found")

// Blob is the object storage behind the uploader.
type Blob interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) (string, error)
	// Delete accepts either the path or the URL returned by Upload.
	Delete(ctx context.Context, ref string) error
}

type object struct {
	data        []byte
	contentType string
}

// MemoryBlob keeps objects in process; used in tests and single-node demos.
type MemoryBlob struct {
	baseURL string

	mu      sync.RWMutex
	objects map[string]object
}

func NewMemoryBlob(baseURL string) *MemoryBlob {
	return &MemoryBlob{baseURL: strings.TrimRight(baseURL, "/"), objects: make(map[string]object)}
}

func (b *MemoryBlob) Upload(_ context.Context, path string, data []byte, contentType string) (string, error) {
	path, err := cleanPath(path)
	if err != nil {
		return "", err
	}
	b.mu.Lock()
	b.objects[path] = object{data: append([]byte(nil), data...), contentType: contentType}
	b.mu.Unlock()
	return b.baseURL + "/" + path, nil
}

func (b *MemoryBlob) Delete(_ context.Context, ref string) error {
	path, err := cleanPath(strings.TrimPrefix(ref, b.baseURL+"/"))
	if err != nil {
		return err
	}
	b.mu.Lock()
	delete(b.objects, path)
	b.mu.Unlock()
	return nil
}

// Get returns the stored bytes and content type for path.
func (b *MemoryBlob) Get(path string) ([]byte, string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	obj, ok := b.objects[strings.TrimPrefix(path, "/")]
	if !ok {
		return nil, "", ErrBlobNotFound
	}
	return obj.data, obj.contentType, nil
}

// Len reports how many objects are stored.
func (b *MemoryBlob) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.objects)
}

// FSBlob stores objects under a directory served at baseURL.
type FSBlob struct {
	dir     string
	baseURL string
}

func NewFSBlob(dir, baseURL string) (*FSBlob, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &FSBlob{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Dir is the root directory of the store.
func (b *FSBlob) Dir() string { return b.dir }

func (b *FSBlob) Upload(_ context.Context, path string, data []byte, _ string) (string, error) {
	path, err := cleanPath(path)
	if err != nil {
		return "", err
	}
	full := filepath.Join(b.dir, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create blob dir: %w", err)
	}
	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write blob: %w", err)
	}
	if err := os.Rename(tmp, full); err != nil {
		return "", fmt.Errorf("write blob: %w", err)
	}
	return b.baseURL + "/" + path, nil
}

func (b *FSBlob) Delete(_ context.Context, ref string) error {
	path, err := cleanPath(strings.TrimPrefix(ref, b.baseURL+"/"))
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(b.dir, filepath.FromSlash(path)))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

// cleanPath rejects absolute paths and traversal out of the store root.
func cleanPath(p string) (string, error) {
	p = strings.TrimPrefix(p, "/")
	clean := filepath.ToSlash(filepath.Clean(filepath.FromSlash(p)))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("invalid blob path %q", p)
	}
	return clean, nil
}
