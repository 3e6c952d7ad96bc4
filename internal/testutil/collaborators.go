package testutil

import (
	"sync"

	"ilp-go/internal/ilp"
)

// RecordingSyncer wraps an EnrollmentSyncer and counts calls per parent.
type RecordingSyncer struct {
	mu    sync.Mutex
	next  ilp.EnrollmentSyncer
	calls map[int64]int
	// Err, when set, is returned instead of delegating.
	Err error
}

// NewRecordingSyncer creates a RecordingSyncer. next may be nil.
func NewRecordingSyncer(next ilp.EnrollmentSyncer) *RecordingSyncer {
	return &RecordingSyncer{next: next, calls: make(map[int64]int)}
}

func (r *RecordingSyncer) SyncMetaEnrolments(parentID int64) error {
	r.mu.Lock()
	r.calls[parentID]++
	err := r.Err
	r.mu.Unlock()

	if err != nil {
		return err
	}
	if r.next == nil {
		return nil
	}
	return r.next.SyncMetaEnrolments(parentID)
}

// Calls returns the number of syncs requested for parentID.
func (r *RecordingSyncer) Calls(parentID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[parentID]
}

// RecordingCache records dirty context paths in order.
type RecordingCache struct {
	mu    sync.Mutex
	paths []string
}

func NewRecordingCache() *RecordingCache {
	return &RecordingCache{}
}

func (c *RecordingCache) MarkDirty(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paths = append(c.paths, path)
	return nil
}

// Paths returns the recorded paths.
func (c *RecordingCache) Paths() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.paths...)
}
