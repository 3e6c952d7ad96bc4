package app

import (
	"time"

	"ilp-go/internal/ilp"
)

// Run tracks one CLI invocation. Its ID tags every log line the run writes;
// the per-request records live in the sync_operations table.
type Run struct {
	ID        string
	Command   string
	StartedAt time.Time
	Handled   int
	Failed    int
}

// NewRun creates a run identified by its start time.
func NewRun(command string, clock ilp.Clock) *Run {
	now := clock.Now().UTC()
	return &Run{
		ID:        now.Format("20060102T150405Z"),
		Command:   command,
		StartedAt: now,
	}
}

// Record counts the outcome of one handled request.
func (r *Run) Record(err error) {
	if err != nil {
		r.Failed++
		return
	}
	r.Handled++
}

// Status is "error" if any request failed, otherwise "success".
func (r *Run) Status() string {
	if r.Failed > 0 {
		return ilp.StatusError
	}
	return ilp.StatusSuccess
}
