package spool

import (
	"io"

	"ilp-go/internal/ilp"
)

// spoolStore abstracts the storage mechanics for a spool.
// Concurrency is managed by the caller (spoolArea.mu), so stores
// do not need to be safe for concurrent use.
type spoolStore interface {
	// StoreContent reads from r, computes SHA-256, and stores content.
	// Deduplicates if checksum already exists. Returns checksum and size.
	StoreContent(r io.Reader) (checksum string, size int64, err error)

	// RemoveContent removes stored content by checksum (best-effort).
	RemoveContent(checksum string)

	// OpenContent returns a reader for stored content by checksum.
	OpenContent(checksum string) (io.ReadCloser, error)

	// ContentSize returns total bytes of all stored content.
	ContentSize() (int64, error)

	// Append adds an item to the end of the queue.
	Append(item *ilp.SpoolItem) error

	// Peek returns the first item in the queue without removing it.
	// Returns nil if the queue is empty.
	Peek() (*ilp.SpoolItem, error)

	// Pop removes the first item matching name and checksum and returns the
	// number of remaining items referencing the same checksum.
	Pop(name, checksum string) (checksumRefsRemaining int, err error)

	// Refs returns the number of queued items referencing checksum.
	Refs(checksum string) (int, error)

	// Len returns the number of items in the queue.
	Len() (int, error)
}
