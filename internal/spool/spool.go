package spool

import (
	"fmt"
	"io"
	"sync"
	"time"

	"ilp-go/internal/ilp"
)

// spoolArea implements ilp.Spool using a pluggable spoolStore
// for the storage mechanics. All shared algorithm logic lives here.
type spoolArea struct {
	store   spoolStore
	maxSize int64
	now     func() time.Time
	mu      sync.Mutex
}

var _ ilp.Spool = (*spoolArea)(nil)

func newSpoolArea(store spoolStore, maxSize int64) *spoolArea {
	return &spoolArea{store: store, maxSize: maxSize, now: time.Now}
}

// Add stores a payload and appends it to the queue.
func (s *spoolArea) Add(name string, r io.Reader) (*ilp.SpoolItem, error) {
	if name == "" {
		return nil, fmt.Errorf("spooled payload needs a name")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	checksum, size, err := s.store.StoreContent(r)
	if err != nil {
		return nil, fmt.Errorf("storing content: %w", err)
	}

	contentSize, err := s.store.ContentSize()
	if err != nil {
		s.discard(checksum)
		return nil, fmt.Errorf("getting current size: %w", err)
	}
	if contentSize > s.maxSize {
		s.discard(checksum)
		return nil, fmt.Errorf("spool full: would exceed max size of %d bytes", s.maxSize)
	}

	item := &ilp.SpoolItem{
		Name:     name,
		Checksum: checksum,
		Size:     size,
		QueuedAt: s.now().UTC(),
	}
	if err := s.store.Append(item); err != nil {
		s.discard(checksum)
		return nil, fmt.Errorf("adding to queue: %w", err)
	}
	return item, nil
}

// discard removes content that no queued item references.
func (s *spoolArea) discard(checksum string) {
	if refs, err := s.store.Refs(checksum); err == nil && refs == 0 {
		s.store.RemoveContent(checksum)
	}
}

// Next returns the oldest queued item, or nil if the spool is empty.
func (s *spoolArea) Next() (*ilp.SpoolItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Peek()
}

// Open returns a reader for the payload of a queued item.
func (s *spoolArea) Open(item *ilp.SpoolItem) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.store.OpenContent(item.Checksum)
	if err != nil {
		return nil, fmt.Errorf("content not found: %s", item.Checksum)
	}
	return r, nil
}

// Remove drops a handled item and its content once nothing references it.
func (s *spoolArea) Remove(item *ilp.SpoolItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	remaining, err := s.store.Pop(item.Name, item.Checksum)
	if err != nil {
		return err
	}
	if remaining == 0 {
		s.store.RemoveContent(item.Checksum)
	}
	return nil
}

// Count returns the number of queued items.
func (s *spoolArea) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Len()
}

// Size returns the total size of spooled content in bytes.
func (s *spoolArea) Size() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.ContentSize()
}
