package ilp

import "time"

// Operation statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// SyncOperation records one handled request.
type SyncOperation struct {
	ID         int64
	RequestID  string
	Action     string
	IDNumber   string
	Status     string
	Message    string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// OperationLog persists the record of handled requests.
type OperationLog interface {
	// CreateSyncOperation records the start of a request.
	CreateSyncOperation(requestID, action, idnumber string, startedAt time.Time) (*SyncOperation, error)

	// FinishSyncOperation records the outcome of a request.
	FinishSyncOperation(id int64, status, message string, finishedAt time.Time) error

	// ListSyncOperations returns the most recent operations, newest first.
	ListSyncOperations(limit int) ([]*SyncOperation, error)
}
