// Package storage persists small JSON documents such as the credentials file
// and a notebook directory's .jovianrc.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/tidwall/jsonc"
)

var (
	ErrNotFound = errors.New("not found")
)

// Document is a single JSON file. Writes hold an exclusive lock and replace
// the file atomically.
type Document struct {
	path string
	perm os.FileMode
	mu   sync.Mutex
}

// NewDocument returns a document stored at path. Files are created with perm.
func NewDocument(path string, perm os.FileMode) *Document {
	return &Document{path: path, perm: perm}
}

// lockPath is the sidecar file flocked while the document is written.
func (d *Document) lockPath() string {
	return d.path + ".lock"
}

// lock serializes writers to the document, within the process and across
// processes sharing the file. The returned func releases the lock and
// removes the sidecar.
func (d *Document) lock() (func(), error) {
	d.mu.Lock()

	f, err := os.OpenFile(d.lockPath(), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		d.mu.Unlock()
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		f.Close()
		d.mu.Unlock()
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}

	return func() {
		os.Remove(d.lockPath())
		syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		f.Close()
		d.mu.Unlock()
	}, nil
}

// Path returns the file path of the document.
func (d *Document) Path() string {
	return d.path
}

// Exists reports whether the document file exists.
func (d *Document) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// Load decodes the document into v. Comments and trailing commas are
// tolerated so hand-edited files keep working.
func (d *Document) Load(ctx context.Context, v any) error {
	data, err := os.ReadFile(d.path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to read %s: %w", d.path, err)
	}

	if err := json.Unmarshal(jsonc.ToJSON(data), v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", d.path, err)
	}
	return nil
}

// Save encodes v and replaces the document.
func (d *Document) Save(ctx context.Context, v any) error {
	if err := os.MkdirAll(filepath.Dir(d.path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	unlock, err := d.lock()
	if err != nil {
		return err
	}
	defer unlock()

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal: %w", err)
	}

	tmpPath := d.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, d.perm); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, d.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}

// Remove deletes the document. Removing a missing document is not an error.
func (d *Document) Remove(ctx context.Context) error {
	unlock, err := d.lock()
	if err != nil {
		return err
	}
	defer unlock()

	if err := os.Remove(d.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete %s: %w", d.path, err)
	}
	return nil
}
