package archive

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"ilp-go/internal/ilp"
)

// MemoryArchive is an in-memory implementation of the ilp.Archive interface.
// This implementation is safe for concurrent use.
type MemoryArchive struct {
	name     string
	payloads map[string][]byte // "requestID/name" -> payload
	mu       sync.RWMutex
}

// NewMemoryArchive creates a new in-memory archive with the given name.
func NewMemoryArchive(name string) *MemoryArchive {
	return &MemoryArchive{
		name:     name,
		payloads: make(map[string][]byte),
	}
}

func payloadKey(requestID, name string) string {
	return requestID + "/" + name
}

// Put stores a named payload for a request.
func (m *MemoryArchive) Put(requestID string, name string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read payload: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.payloads[payloadKey(requestID, name)] = data
	return nil
}

// Get writes a stored payload to w.
func (m *MemoryArchive) Get(requestID string, name string, w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.payloads[payloadKey(requestID, name)]
	if !ok {
		return fmt.Errorf("%s payload not found for request: %s", name, requestID)
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write payload: %w", err)
	}
	return nil
}

// Len returns the number of stored payloads.
func (m *MemoryArchive) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.payloads)
}

// ValidateSetup always succeeds for in-memory archive.
func (m *MemoryArchive) ValidateSetup() error {
	return nil
}

var _ ilp.Archive = (*MemoryArchive)(nil)
