package testutil

import (
	"ilp-go/internal/ilp"
	"ilp-go/internal/spool"
)

// DefaultSpoolMaxSize is the default max size for test spools (10MB).
const DefaultSpoolMaxSize = 10 * 1024 * 1024

// NewTestSpool creates a new in-memory spool for testing.
func NewTestSpool() ilp.Spool {
	return spool.NewMemorySpool(DefaultSpoolMaxSize)
}

// NewTestSpoolWithSize creates a new in-memory spool with a custom max size.
func NewTestSpoolWithSize(maxSize int64) ilp.Spool {
	return spool.NewMemorySpool(maxSize)
}
