package ilp

import "io"

// Archive names for the two payloads kept per request.
const (
	ArchiveRequest  = "request"
	ArchiveResponse = "response"
)

// Archive keeps the payloads of handled requests for later inspection.
// All operations stream through io.Reader/io.Writer.
type Archive interface {
	// Put stores a named payload for a request. Storing the same
	// requestID/name again replaces the earlier payload.
	// size is the number of bytes that will be read from r.
	Put(requestID string, name string, r io.Reader, size int64) error

	// Get writes a stored payload to w.
	Get(requestID string, name string, w io.Writer) error

	// ValidateSetup verifies that the archive is accessible.
	ValidateSetup() error
}
