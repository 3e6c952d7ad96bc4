package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"ilp-go/internal/ilp"
)

// FileSystemArchive stores payloads as files, one directory per request:
//
//	<root>/
//	  <requestID>/
//	    request
//	    response
type FileSystemArchive struct {
	name string
	root string
}

// NewFileSystemArchive creates a new filesystem archive rooted at the given path.
func NewFileSystemArchive(name, root string) (*FileSystemArchive, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	return &FileSystemArchive{name: name, root: root}, nil
}

// Put stores a named payload for a request, replacing any earlier one.
func (a *FileSystemArchive) Put(requestID string, name string, r io.Reader, size int64) error {
	destPath, err := a.payloadPath(requestID, name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("failed to create request directory: %w", err)
	}
	return writeFile(destPath, r, size)
}

// Get writes a stored payload to w.
func (a *FileSystemArchive) Get(requestID string, name string, w io.Writer) error {
	srcPath, err := a.payloadPath(requestID, name)
	if err != nil {
		return err
	}

	f, err := os.Open(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s payload not found for request: %s", name, requestID)
		}
		return fmt.Errorf("failed to open payload: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read payload: %w", err)
	}
	return nil
}

// ValidateSetup verifies that the archive root exists and is a directory.
func (a *FileSystemArchive) ValidateSetup() error {
	info, err := os.Stat(a.root)
	if err != nil {
		return fmt.Errorf("archive root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("archive root is not a directory: %s", a.root)
	}
	return nil
}

func (a *FileSystemArchive) payloadPath(requestID, name string) (string, error) {
	for _, part := range []string{requestID, name} {
		if part == "" || part == "." || part == ".." || strings.ContainsAny(part, `/\`) {
			return "", fmt.Errorf("invalid archive key: %q", part)
		}
	}
	return filepath.Join(a.root, requestID, name), nil
}

// writeFile writes data from r to destPath through a temp file and rename.
func writeFile(destPath string, r io.Reader, expectedSize int64) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	success = true
	return nil
}

var _ ilp.Archive = (*FileSystemArchive)(nil)
