package spool

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"ilp-go/internal/ilp"
)

// memoryStore keeps payloads and the queue in memory.
type memoryStore struct {
	content map[string][]byte
	queue   []*ilp.SpoolItem
}

// NewMemorySpool creates an in-memory spool. maxSize is the maximum total
// payload size in bytes.
func NewMemorySpool(maxSize int64) ilp.Spool {
	return newSpoolArea(&memoryStore{content: make(map[string][]byte)}, maxSize)
}

func (m *memoryStore) StoreContent(r io.Reader) (string, int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", 0, fmt.Errorf("reading content: %w", err)
	}
	h := sha256.Sum256(data)
	checksum := hex.EncodeToString(h[:])
	if _, ok := m.content[checksum]; !ok {
		m.content[checksum] = data
	}
	return checksum, int64(len(data)), nil
}

func (m *memoryStore) RemoveContent(checksum string) {
	delete(m.content, checksum)
}

func (m *memoryStore) OpenContent(checksum string) (io.ReadCloser, error) {
	data, ok := m.content[checksum]
	if !ok {
		return nil, fmt.Errorf("content not found: %s", checksum)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryStore) ContentSize() (int64, error) {
	var total int64
	for _, data := range m.content {
		total += int64(len(data))
	}
	return total, nil
}

func (m *memoryStore) Append(item *ilp.SpoolItem) error {
	m.queue = append(m.queue, item)
	return nil
}

func (m *memoryStore) Peek() (*ilp.SpoolItem, error) {
	if len(m.queue) == 0 {
		return nil, nil
	}
	return m.queue[0], nil
}

func (m *memoryStore) Pop(name, checksum string) (int, error) {
	m.queue = popItem(m.queue, name, checksum)
	return countRefs(m.queue, checksum), nil
}

func (m *memoryStore) Refs(checksum string) (int, error) {
	return countRefs(m.queue, checksum), nil
}

func (m *memoryStore) Len() (int, error) {
	return len(m.queue), nil
}

// popItem removes the first item matching name and checksum.
func popItem(queue []*ilp.SpoolItem, name, checksum string) []*ilp.SpoolItem {
	for i, item := range queue {
		if item.Name == name && item.Checksum == checksum {
			return append(queue[:i:i], queue[i+1:]...)
		}
	}
	return queue
}

func countRefs(queue []*ilp.SpoolItem, checksum string) int {
	n := 0
	for _, item := range queue {
		if item.Checksum == checksum {
			n++
		}
	}
	return n
}
