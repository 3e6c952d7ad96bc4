package testutil

import (
	"ilp-go/internal/archive"
	"ilp-go/internal/ilp"
)

// NewTestArchive creates a new in-memory archive for testing.
func NewTestArchive() ilp.Archive {
	return archive.NewMemoryArchive("test-archive")
}
