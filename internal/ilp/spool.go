package ilp

import (
	"io"
	"time"
)

// SpoolItem is a request payload waiting in the spool.
type SpoolItem struct {
	Name     string    `json:"name"`
	Checksum string    `json:"checksum"`
	Size     int64     `json:"size"`
	QueuedAt time.Time `json:"queued_at"`
}

// Spool is a FIFO of request payloads waiting to be handled. Payloads are
// stored by SHA-256 checksum and the total stored size is bounded.
type Spool interface {
	// Add reads a payload from r and appends it to the queue.
	Add(name string, r io.Reader) (*SpoolItem, error)

	// Next returns the oldest queued item without removing it.
	// Returns nil if the queue is empty.
	Next() (*SpoolItem, error)

	// Open returns a reader for the payload of a queued item.
	Open(item *SpoolItem) (io.ReadCloser, error)

	// Remove drops a handled item. Its payload is deleted once no other
	// queued item references the same checksum.
	Remove(item *SpoolItem) error

	// Count returns the number of queued items.
	Count() (int, error)

	// Size returns the total size of stored payloads in bytes.
	Size() (int64, error)
}
