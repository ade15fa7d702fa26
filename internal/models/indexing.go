package models

import "time"

// IndexingStatus is the lifecycle state of an indexing run.
type IndexingStatus string

const (
	IndexingStatusRunning   IndexingStatus = "running"
	IndexingStatusSucceeded IndexingStatus = "succeeded"
	IndexingStatusFailed    IndexingStatus = "failed"
)

// IndexingRun records the outcome of one content indexing pass.
type IndexingRun struct {
	ID          string         `json:"id"`
	Trigger     string         `json:"trigger"`
	Status      IndexingStatus `json:"status"`
	StartedAt   time.Time      `json:"startedAt"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
	Articles    int            `json:"articles"`
	Indexed     int            `json:"indexed"`
	Failed      int            `json:"failed"`
	Error       string         `json:"error,omitempty"`
}

// Duration returns how long the run took, or zero while it is still running.
func (r *IndexingRun) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}
